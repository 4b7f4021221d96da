// cmd/circulation/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"libracatalog/internal/app"
	"libracatalog/internal/clients"
	"libracatalog/internal/clock"
	"libracatalog/internal/config"
	"libracatalog/internal/server"
)

func main() {
	os.Exit(app.Main("circulation", 8082, build))
}

func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (http.Handler, func(), error) {
	// Loans are book instances; without a shared database this process
	// would never see the catalog's copies.
	if cfg.Storage == config.StorageMemory {
		return nil, nil, errors.New("circulation needs postgres storage; use the libracatalog binary for in-memory runs")
	}

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	routes, err := app.Circulation(stores, clock.Real(), logger)
	if err != nil {
		stores.Close()
		return nil, nil, err
	}

	handler := server.NewRouter(server.Options{
		Logger:    logger,
		RateLimit: cfg.RateLimit,
		Resolver:  clients.NewMembershipClient(cfg.Services.MembershipURL, nil),
	}, routes)
	return handler, func() { stores.Close() }, nil
}
