package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atlasmemory/atlas/internal/rpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Atlas JSON-RPC daemon over a Unix socket",
	Long: `Start the atlasd JSON-RPC server, listening on the configured Unix
domain socket until interrupted.

Examples:
  # Start with defaults
  atlasd serve

  # Start with a specific config file
  atlasd serve --config /etc/atlas/config.yaml`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	app, logger, cfg, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info(ctx, "received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	srv := rpc.NewServer(app, cfg.Server, logger)
	logger.Info(ctx, "atlasd listening", zap.String("socket", cfg.Server.SocketPath))

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("rpc server: %w", err)
	}
	logger.Info(ctx, "atlasd shutdown complete")
	return nil
}
