// cmd/membership/main.go
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"libracatalog/internal/app"
	"libracatalog/internal/clock"
	"libracatalog/internal/config"
	"libracatalog/internal/server"
)

func main() {
	os.Exit(app.Main("membership", 8083, build))
}

func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (http.Handler, func(), error) {
	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	svc, routes, err := app.Membership(ctx, stores, cfg, clock.Real(), logger)
	if err != nil {
		stores.Close()
		return nil, nil, err
	}

	handler := server.NewRouter(server.Options{
		Logger:    logger,
		RateLimit: cfg.RateLimit,
		Resolver:  svc,
	}, routes)
	return handler, func() { stores.Close() }, nil
}
