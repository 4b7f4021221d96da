package app

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libracatalog/internal/access"
	"libracatalog/internal/catalog"
	"libracatalog/internal/clock"
	"libracatalog/internal/config"
)

var discard = slog.New(slog.DiscardHandler)

func TestOpenMemoryStores(t *testing.T) {
	cfg := config.Default()
	cfg.Storage = config.StorageMemory

	stores, err := OpenStores(context.Background(), cfg, discard)
	require.NoError(t, err)
	assert.IsType(t, &catalog.MemoryStore{}, stores.Catalog)
	assert.NoError(t, stores.Close())
}

func TestMembershipCreatesAdmin(t *testing.T) {
	cfg := config.Default()
	cfg.Session.Secret = "app-test"
	cfg.Admin = config.AdminConfig{Username: "admin", Password: "administrator"}
	stores := NewMemoryStores()

	_, _, err := Membership(context.Background(), stores, cfg, clock.Real(), discard)
	require.NoError(t, err)

	admin, err := stores.Members.GetMemberByUsername(context.Background(), "admin")
	require.NoError(t, err)
	assert.ElementsMatch(t, access.AllPermissions, admin.Permissions)

	// A restart keeps the same account.
	_, _, err = Membership(context.Background(), stores, cfg, clock.Real(), discard)
	require.NoError(t, err)
	again, err := stores.Members.GetMemberByUsername(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, again.ID)
}

func TestMembershipNeedsSecret(t *testing.T) {
	_, _, err := Membership(context.Background(), NewMemoryStores(), config.Default(), clock.Real(), discard)
	assert.Error(t, err)
}

func TestCatalogUsesConfiguredMatches(t *testing.T) {
	cfg := config.Default()
	cfg.SummaryMatches = []catalog.SummaryMatch{{
		Label:    "poetry",
		Entity:   catalog.EntityBooks,
		Criteria: catalog.Criteria{Field: "genre", Contains: "Poetry"},
	}}

	routes, err := Catalog(NewMemoryStores(), cfg, discard)
	require.NoError(t, err)
	r := chi.NewRouter()
	routes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "poetry"), rr.Body.String())

	cfg.SummaryMatches = []catalog.SummaryMatch{{Label: "bad", Entity: catalog.EntityAuthors, Criteria: catalog.Criteria{Field: "title"}}}
	_, err = Catalog(NewMemoryStores(), cfg, discard)
	assert.Error(t, err)
}
