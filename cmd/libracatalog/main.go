// cmd/libracatalog/main.go

// Command libracatalog runs the catalog, circulation and membership
// services in one process behind the public API paths.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"libracatalog/internal/app"
	"libracatalog/internal/clock"
	"libracatalog/internal/config"
	"libracatalog/internal/gateway"
	"libracatalog/internal/server"
)

func main() {
	os.Exit(app.Main("libracatalog", 8080, build))
}

func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (http.Handler, func(), error) {
	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	fail := func(err error) (http.Handler, func(), error) {
		stores.Close()
		return nil, nil, err
	}

	members, memberRoutes, err := app.Membership(ctx, stores, cfg, clock.Real(), logger)
	if err != nil {
		return fail(err)
	}
	catalogRoutes, err := app.Catalog(stores, cfg, logger)
	if err != nil {
		return fail(err)
	}
	loanRoutes, err := app.Circulation(stores, clock.Real(), logger)
	if err != nil {
		return fail(err)
	}

	handler := server.NewRouter(server.Options{
		Logger:        logger,
		RateLimit:     cfg.RateLimit,
		Resolver:      members,
		CompressLevel: 5,
	}, func(r chi.Router) {
		gateway.Mount(r, catalogRoutes, loanRoutes, memberRoutes)
	})
	return handler, func() { stores.Close() }, nil
}
