package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/parcelmap/internal/app"
	"github.com/MeKo-Tech/parcelmap/internal/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest <text>",
	Short: "Print autocomplete suggestions for one search bar",
	Long: `Suggest types text into a search bar, waits out its debounce and prints
the suggestions the bar would show.

Examples:
  parcelmap suggest "12 Main"
  parcelmap suggest --mode owner --town Fairfield "Smi"`,
	Args: cobra.ExactArgs(1),
	RunE: runSuggest,
}

func init() {
	rootCmd.AddCommand(suggestCmd)

	suggestCmd.Flags().String("mode", string(types.SearchAddressTown), "Search bar: address_town, owner, mailing_address")
	suggestCmd.Flags().StringSlice("town", nil, "Scope suggestions to towns")

	if err := viper.BindPFlag("suggest.mode", suggestCmd.Flags().Lookup("mode")); err != nil {
		panic(fmt.Sprintf("failed to bind flag: %v", err))
	}
	if err := viper.BindPFlag("suggest.town", suggestCmd.Flags().Lookup("town")); err != nil {
		panic(fmt.Sprintf("failed to bind flag: %v", err))
	}
}

func runSuggest(cmd *cobra.Command, args []string) error {
	mode, err := types.ParseSearchMode(viper.GetString("suggest.mode"))
	if err != nil {
		return err
	}
	events, err := filterEvents(viper.GetStringSlice("suggest.town"), nil)
	if err != nil {
		return err
	}
	events = append(events, app.SearchInput{Mode: mode, Text: args[0]})

	svc, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	sess := svc.newSession(nil)
	defer func() { _ = sess.Close() }()

	snap, err := runEvents(sess, svc.cfg, events)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, bar := range snap.Bars {
		if bar.Mode != mode {
			continue
		}
		if len(bar.Suggestions) == 0 {
			fmt.Fprintf(out, "no suggestions (%s)\n", bar.Panel)
			return nil
		}
		for _, s := range bar.Suggestions {
			line := s.Display
			if line == "" {
				line = s.Value
			}
			if s.Count != nil {
				line += fmt.Sprintf(" (%d)", *s.Count)
			}
			fmt.Fprintf(out, "%-14s %s\n", s.Type, line)
		}
	}
	return nil
}
