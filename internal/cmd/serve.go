package cmd

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a headless session behind the ops listener",
	Long: `Serve starts a session on the configured viewport without a terminal UI
and keeps the ops listener running until interrupted:

  /healthz                          liveness of the property backend
  /metrics                          Prometheus metrics
  /state                            the session snapshot as JSON
  /tiles/{backend}/{z}/{x}/{y}.png  tiles from the MBTiles caches`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "127.0.0.1:9090", "Listen address (host:port)")

	if err := viper.BindPFlag("serve.addr", serveCmd.Flags().Lookup("addr")); err != nil {
		panic(fmt.Sprintf("failed to bind flag: %v", err))
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	svc, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	addr := svc.cfg.Ops.Addr
	if addr == "" || cmd.Flags().Changed("addr") {
		addr = viper.GetString("serve.addr")
	}
	svc.cfg.Ops.Addr = addr

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess := svc.newSession(svc.adapter)
	defer func() { _ = sess.Close() }()

	if err := drain(sess, sess.Start(), drainTimeout(svc.cfg)); err != nil {
		logger.Warn("initial viewport load incomplete", "error", err)
	}
	snap := sess.Snapshot()
	logger.Info("ops listener ready",
		"addr", addr,
		"api", svc.client.BaseURL(),
		"backend", snap.Backend.Active,
		"parcels", snap.Query.Count,
		"caches", len(svc.caches))

	err = svc.opsServer(sess.State).ListenAndServe(ctx)
	if err != nil && !errors.Is(err, ctx.Err()) {
		return err
	}
	return nil
}
