package cmd

import (
	"fmt"
	"os"

	"github.com/MeKo-Tech/parcelmap/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "parcelmap",
	Short: "A terminal client for parcel search on a map",
	Long: `parcelmap browses property parcels on a map.

It keeps the map viewport, filters, three autocomplete search bars and the
result sidebar in sync, fetching parcels from the property REST backend and
drawing them over satellite or street map tiles.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		closeLogging()
		os.Exit(1)
	}
	closeLogging()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./parcelmap.yaml)")
	rootCmd.PersistentFlags().String("api-url", "", "Base URL of the property backend")
	rootCmd.PersistentFlags().String("map-token", "", "Access token of the primary map backend")
	rootCmd.PersistentFlags().Bool("force-fallback", false, "Start directly on the fallback map backend")
	rootCmd.PersistentFlags().String("cache-dir", "", "Directory for the MBTiles tile caches (empty disables caching)")
	rootCmd.PersistentFlags().String("ops-addr", "", "Listen address of the ops listener (empty disables it)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (text, json)")
	rootCmd.PersistentFlags().String("log-file", "", "Write logs to this file instead of stderr")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose logging")

	mustBind := func(key, name string) {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}
	mustBind("api.base_url", "api-url")
	mustBind("map.token", "map-token")
	mustBind("map.force_fallback", "force-fallback")
	mustBind("map.cache_dir", "cache-dir")
	mustBind("ops.addr", "ops-addr")
	mustBind("log.level", "log-level")
	mustBind("log.format", "log-format")
	mustBind("log.file", "log-file")
	mustBind("verbose", "verbose")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("parcelmap")
	}

	config.Configure(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	} else if cfgFile != "" {
		fmt.Fprintln(os.Stderr, "Cannot read config file:", err)
	}
}

// loadConfig returns the validated configuration from file, env and flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if viper.GetBool("verbose") {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}
