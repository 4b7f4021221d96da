package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libracatalog/internal/app"
	"libracatalog/internal/clients"
	"libracatalog/internal/clock"
	"libracatalog/internal/config"
	"libracatalog/internal/server"
)

var discard = slog.New(slog.DiscardHandler)

type system struct {
	gateway *httptest.Server
	client  *http.Client
	t       *testing.T
}

// startSystem runs the three services and the gateway in front of them,
// sharing one set of in-memory stores the way they share one database.
func startSystem(t *testing.T) *system {
	t.Helper()
	ctx := context.Background()

	cfg := config.Default()
	cfg.Storage = config.StorageMemory
	cfg.Session.Secret = "gateway-test"
	cfg.Admin = config.AdminConfig{Username: "admin", Password: "administrator"}
	cfg.RateLimit.Enabled = false
	stores := app.NewMemoryStores()
	clk := clock.Fake(time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC))

	members, memberRoutes, err := app.Membership(ctx, stores, cfg, clock.Real(), discard)
	require.NoError(t, err)
	membershipSrv := httptest.NewServer(server.NewRouter(server.Options{Logger: discard, Resolver: members}, memberRoutes))
	t.Cleanup(membershipSrv.Close)

	resolver := clients.NewMembershipClient(membershipSrv.URL, nil)

	catalogRoutes, err := app.Catalog(stores, cfg, discard)
	require.NoError(t, err)
	catalogSrv := httptest.NewServer(server.NewRouter(server.Options{Logger: discard, Resolver: resolver}, catalogRoutes))
	t.Cleanup(catalogSrv.Close)

	loanRoutes, err := app.Circulation(stores, clk, discard)
	require.NoError(t, err)
	circulationSrv := httptest.NewServer(server.NewRouter(server.Options{Logger: discard, Resolver: resolver}, loanRoutes))
	t.Cleanup(circulationSrv.Close)

	routes, err := Routes(config.ServicesConfig{
		CatalogURL:     catalogSrv.URL,
		CirculationURL: circulationSrv.URL,
		MembershipURL:  membershipSrv.URL,
	}, discard)
	require.NoError(t, err)
	gw := httptest.NewServer(server.NewRouter(server.Options{Logger: discard, CompressLevel: 5}, routes))
	t.Cleanup(gw.Close)

	client := gw.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return &system{gateway: gw, client: client, t: t}
}

func (s *system) do(method, path, token, body string) (int, []byte) {
	s.t.Helper()
	req, err := http.NewRequest(method, s.gateway.URL+path, strings.NewReader(body))
	require.NoError(s.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.client.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	return resp.StatusCode, data
}

func (s *system) login(username, password string) string {
	s.t.Helper()
	code, body := s.do(http.MethodPost, MembershipPrefix+"/login", "",
		`{"username":"`+username+`","password":"`+password+`"}`)
	require.Equal(s.t, http.StatusOK, code, string(body))
	return jsoniter.Get(body, "session", "token").ToString()
}

func TestBorrowAndRenewThroughGateway(t *testing.T) {
	s := startSystem(t)
	admin := s.login("admin", "administrator")

	code, body := s.do(http.MethodPost, CatalogPrefix+"/books", "", `{"title":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, code, string(body))

	code, body = s.do(http.MethodPost, CatalogPrefix+"/genres", admin, `{"name":"Science Fiction"}`)
	require.Equal(t, http.StatusCreated, code, string(body))
	genreID := jsoniter.Get(body, "genre", "id").ToString()

	code, body = s.do(http.MethodPost, CatalogPrefix+"/books", admin,
		`{"title":"The Dispossessed","isbn":"9780061054884","genre":[`+genreID+`]}`)
	require.Equal(t, http.StatusCreated, code, string(body))
	bookID := jsoniter.Get(body, "book", "id").ToString()

	code, body = s.do(http.MethodPost, MembershipPrefix+"/members", "",
		`{"username":"reader","password":"password123"}`)
	require.Equal(t, http.StatusCreated, code, string(body))
	readerID := jsoniter.Get(body, "member", "id").ToString()
	reader := s.login("reader", "password123")

	code, body = s.do(http.MethodPost, CatalogPrefix+"/instances", admin,
		`{"book":`+bookID+`,"imprint":"Harper 1974","status":"o","due_back":"2026-10-10","borrower":"`+readerID+`"}`)
	require.Equal(t, http.StatusCreated, code, string(body))
	instanceID := jsoniter.Get(body, "instance", "id").ToString()

	code, body = s.do(http.MethodGet, CirculationPrefix+"/loans/mine", reader, "")
	require.Equal(t, http.StatusOK, code, string(body))
	assert.Equal(t, instanceID, jsoniter.Get(body, "loans", 0, "id").ToString())
	assert.True(t, jsoniter.Get(body, "loans", 0, "overdue").ToBool())

	code, _ = s.do(http.MethodGet, CirculationPrefix+"/loans", reader, "")
	assert.Equal(t, http.StatusForbidden, code)

	code, body = s.do(http.MethodPost, CirculationPrefix+"/instances/"+instanceID+"/renew", admin,
		`{"renewal_date":"2026-11-01"}`)
	require.Equal(t, http.StatusSeeOther, code, string(body))
	assert.Equal(t, "2026-11-01", jsoniter.Get(body, "loan", "due_back").ToString()[:10])

	code, body = s.do(http.MethodGet, CatalogPrefix+"/instances/"+instanceID, "", "")
	require.Equal(t, http.StatusOK, code, string(body))
	assert.Contains(t, jsoniter.Get(body, "instance", "due_back").ToString(), "2026-11-01")
}

func TestGatewayCompressesResponses(t *testing.T) {
	s := startSystem(t)

	req, err := http.NewRequest(http.MethodGet, s.gateway.URL+CatalogPrefix+"/books", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "br")
	resp, err := s.gateway.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "br", resp.Header.Get("Content-Encoding"))
}

func TestUpstreamDown(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()

	routes, err := Routes(config.ServicesConfig{
		CatalogURL:     dead.URL,
		CirculationURL: dead.URL,
		MembershipURL:  dead.URL,
	}, discard)
	require.NoError(t, err)
	r := chi.NewRouter()
	routes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, CatalogPrefix+"/books", nil))
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestRoutesRejectsBadUpstream(t *testing.T) {
	_, err := Routes(config.ServicesConfig{CatalogURL: "::not a url"}, discard)
	assert.Error(t, err)
}

func TestMountServesInProcess(t *testing.T) {
	cfg := config.Default()
	cfg.Session.Secret = "in-process"
	stores := app.NewMemoryStores()

	members, memberRoutes, err := app.Membership(context.Background(), stores, cfg, clock.Real(), discard)
	require.NoError(t, err)
	catalogRoutes, err := app.Catalog(stores, cfg, discard)
	require.NoError(t, err)
	loanRoutes, err := app.Circulation(stores, clock.Real(), discard)
	require.NoError(t, err)

	h := server.NewRouter(server.Options{Logger: discard, Resolver: members}, func(r chi.Router) {
		Mount(r, catalogRoutes, loanRoutes, memberRoutes)
	})

	for path, want := range map[string]int{
		CatalogPrefix + "/":                    http.StatusOK,
		CatalogPrefix + "/books":               http.StatusOK,
		CirculationPrefix + "/loans/mine":      http.StatusUnauthorized,
		MembershipPrefix + "/sessions/current": http.StatusUnauthorized,
	} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rr.Code, path)
	}
}
