// cmd/catalog/main.go
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"libracatalog/internal/app"
	"libracatalog/internal/clients"
	"libracatalog/internal/config"
	"libracatalog/internal/server"
)

func main() {
	os.Exit(app.Main("catalog", 8081, build))
}

func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (http.Handler, func(), error) {
	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	routes, err := app.Catalog(stores, cfg, logger)
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
