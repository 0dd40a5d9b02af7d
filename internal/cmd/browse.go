package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/parcelmap/internal/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse parcels interactively",
	Long: `Browse opens the interactive client: three search bars with suggestions,
a filter pane, the map and the result sidebar.

Keys: tab cycles focus, 1/2/3 jump to a search bar, f to the filters.
On the map: arrows pan, +/- zoom, enter selects the parcel nearest the
center, r retries a failed search, c clears all filters, q quits.`,
	RunE: runBrowse,
}

func init() {
	rootCmd.AddCommand(browseCmd)

	browseCmd.Flags().String("frame-out", "", "Write every rendered map frame to this PNG file")

	if err := viper.BindPFlag("browse.frame_out", browseCmd.Flags().Lookup("frame-out")); err != nil {
		panic(fmt.Sprintf("failed to bind flag: %v", err))
	}
}

func runBrowse(cmd *cobra.Command, args []string) error {
	// the TUI owns the terminal
	if viper.GetString("log.file") == "" {
		viper.Set("log.file", filepath.Join(os.TempDir(), "parcelmap.log"))
	}

	svc, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	sess := svc.newSession(svc.adapter)
	defer func() { _ = sess.Close() }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	svc.startOps(ctx, sess.State)

	logger.Info("browse started", "api", svc.client.BaseURL(), "ops", svc.cfg.Ops.Addr)

	model := tui.New(tui.Options{
		Session:   sess,
		FramePath: viper.GetString("browse.frame_out"),
		Logger:    logger,
	})
	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil {
		return fmt.Errorf("browse: %w", err)
	}
	return nil
}
