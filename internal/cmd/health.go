package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/MeKo-Tech/parcelmap/internal/api"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the property backend is reachable",
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	svc, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), svc.cfg.API.HealthTimeout)
	defer cancel()
	hs, err := svc.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("%s: %s", svc.client.BaseURL(), api.UserMessage(err))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", svc.client.BaseURL(), hs.Status, hs.Latency.Round(time.Millisecond))
	return nil
}
