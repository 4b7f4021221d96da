// Package app wires stores, services and handlers from a Config. The
// service binaries and the combined binary share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"golang.org/x/time/rate"

	"libracatalog/internal/catalog"
	"libracatalog/internal/circulation"
	"libracatalog/internal/clock"
	"libracatalog/internal/config"
	"libracatalog/internal/database"
	"libracatalog/internal/eventlog"
	"libracatalog/internal/membership"
)

// Stores are the persistence backends of one process.
type Stores struct {
	Catalog catalog.Store
	Members membership.Store
	Events  eventlog.Recorder

	db *sqlx.DB
}

// NewMemoryStores returns empty in-process stores.
func NewMemoryStores() *Stores {
	return &Stores{
		Catalog: catalog.NewMemoryStore(),
		Members: membership.NewMemoryStore(),
		Events:  eventlog.NewMemory(),
	}
}

// OpenStores connects the backend cfg.Storage names. Postgres schemas
// are applied on open.
func OpenStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn("using in-memory storage; data is lost on exit")
		return NewMemoryStores(), nil
	}

	db, err := database.Open(ctx, cfg.DB, logger)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Stores{
		Catalog: catalog.NewPostgresStore(db),
		Members: membership.NewPostgresStore(db),
		Events:  eventlog.NewLog(db),
		db:      db,
	}, nil
}

// Close releases the database pool, if any.
func (s *Stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Catalog builds the catalog routes.
func Catalog(stores *Stores, cfg *config.Config, logger *slog.Logger) (func(chi.Router), error) {
	svc, err := catalog.NewService(stores.Catalog, stores.Events, logger, cfg.SummaryMatches)
	if err != nil {
		return nil, err
	}
	return catalog.NewHandler(svc, logger).Routes, nil
}

// Circulation builds the loan routes.
func Circulation(stores *Stores, clk clock.Clock, logger *slog.Logger) (func(chi.Router), error) {
	svc, err := circulation.NewService(stores.Catalog, stores.Events, clk, logger)
	if err != nil {
		return nil, err
	}
	return circulation.NewHandler(svc, logger).Routes, nil
}

// Membership builds the membership service and its routes, creating the
// configured admin account first.
func Membership(ctx context.Context, stores *Stores, cfg *config.Config, clk clock.Clock, logger *slog.Logger) (membership.Service, func(chi.Router), error) {
	tokens, err := membership.NewTokens(cfg.Session.Secret, cfg.Session.TTL, clk)
	if err != nil {
		return nil, nil, err
	}
	perMinute := cfg.Session.LoginsPerMinute
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	svc := membership.NewService(stores.Members, stores.Events, tokens, logger, limiter)

	if cfg.Admin.Username != "" {
		admin, err := svc.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create admin account: %w", err)
		}
		logger.Info("admin account ready", slog.String("username", admin.Username))
	}
	return svc, membership.NewHandler(svc, logger).Routes, nil
}
