package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"libracatalog/internal/config"
	"libracatalog/internal/server"
	"libracatalog/internal/telemetry"
)

// Builder assembles a service's handler. The returned cleanup runs after
// the server stops.
type Builder func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (http.Handler, func(), error)

// Main loads configuration, sets up logging and tracing, then serves the
// handler from build until SIGINT or SIGTERM. It returns the exit code.
func Main(service string, defaultPort int, build Builder) int {
	defaults := config.Default()
	defaults.Port = defaultPort
	cfg, err := config.Load(service, defaults, os.Args[1:], os.Getenv)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", service, err)
		return 2
	}

	logger, err := telemetry.NewLogger(os.Stdout, service, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", service, err)
		return 2
	}

	if err := run(service, cfg, logger, build); err != nil {
		logger.Error("service failed", slog.String("error", err.Error()))
		return 1
	}
	return 0
}

func run(service string, cfg *config.Config, logger *slog.Logger, build Builder) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, service, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.Insecure)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("failed to flush traces", slog.String("error", err.Error()))
		}
	}()

	handler, cleanup, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	return server.Serve(ctx, cfg.Addr(), handler, logger)
}
