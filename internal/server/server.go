// Package server assembles the middleware stack every service shares and
// runs it with graceful shutdown.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"libracatalog/internal/access"
	"libracatalog/internal/config"
	"libracatalog/internal/httpx"
)

const shutdownTimeout = 20 * time.Second

// Options selects the optional parts of the middleware stack.
type Options struct {
	Logger    *slog.Logger
	RateLimit config.RateLimitConfig
	// Resolver authenticates requests. Nil leaves every request anonymous.
	Resolver access.Resolver
	// CompressLevel enables response compression when positive.
	CompressLevel int
}

// NewRouter returns a router with the shared middleware installed and
// the routes added by mount.
func NewRouter(opts Options, mount func(chi.Router)) http.Handler {
	logger := opts.Logger
	r := chi.NewRouter()
	r.NotFound(httpx.NotFound(logger))
	r.MethodNotAllowed(httpx.MethodNotAllowed(logger))

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpx.LogRequests(logger))
	r.Use(httpx.RecoverPanic(logger))
	if opts.RateLimit.Enabled {
		r.Use(httpx.NewRateLimiter(opts.RateLimit.RPS, opts.RateLimit.Burst).Middleware(logger))
	}
	if opts.CompressLevel > 0 {
		r.Use(httpx.Compress(opts.CompressLevel))
	}
	if opts.Resolver != nil {
		r.Use(access.Authenticate(opts.Resolver, logger))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{"status": "available"}, nil); err != nil {
			httpx.LogError(logger, r, err)
		}
	})
	mount(r)
	return r
}

// Serve listens on addr until ctx is cancelled, then gives in-flight
// requests time to finish.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		logger.Info("shutting down server", slog.String("addr", addr))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		shutdownErr <- srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting server", slog.String("addr", addr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-shutdownErr; err != nil {
		return err
	}

	logger.Info("server stopped", slog.String("addr", addr))
	return nil
}
