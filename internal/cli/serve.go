package cli

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/strongdm/crashdispatch/internal/bootstrap"
	"github.com/strongdm/crashdispatch/internal/config"
	"github.com/strongdm/crashdispatch/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept failures over HTTP and dispatch them",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: metrics.addr from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return err
	}
	setupLogging(cfg.Logging.Level)

	app, err := bootstrap.Build(cfg, slog.Default(), nil)
	if err != nil {
		slog.Error("Failed to build dispatcher", "error", err)
		return err
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := server.New(addr, app.Dispatcher, app.Metrics, slog.Default()).Run(ctx)

	slog.Info("Shutting down...")
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Close(closeCtx); err != nil {
		slog.Error("Shutdown error", "error", err)
	}
	return runErr
}
