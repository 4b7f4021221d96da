// cmd/api/main.go
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"libracatalog/internal/app"
	"libracatalog/internal/config"
	"libracatalog/internal/gateway"
	"libracatalog/internal/server"
)

const compressLevel = 5

func main() {
	os.Exit(app.Main("api", 8080, build))
}

func build(_ context.Context, cfg *config.Config, logger *slog.Logger) (http.Handler, func(), error) {
	routes, err := gateway.Routes(cfg.Services, logger)
	if err != nil {
		return nil, nil, err
	}

	handler := server.NewRouter(server.Options{
		Logger:        logger,
		RateLimit:     cfg.RateLimit,
		CompressLevel: compressLevel,
	}, routes)
	return handler, func() {}, nil
}
