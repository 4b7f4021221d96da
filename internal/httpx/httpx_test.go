package httpx

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libracatalog/internal/apperr"
)

var discard = slog.New(slog.DiscardHandler)

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	err := WriteJSON(rr, http.StatusCreated, Envelope{"id": 7}, http.Header{"Location": []string{"/books/7"}})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "/books/7", rr.Header().Get("Location"))
	assert.Equal(t, 7, jsoniter.Get(rr.Body.Bytes(), "id").ToInt())
}

func TestWriteJSONIndentsBody(t *testing.T) {
	rr := httptest.NewRecorder()
	require.NotPanics(t, func() {
		err := WriteJSON(rr, http.StatusOK, Envelope{"renewal_date": "2026-11-05"}, nil)
		require.NoError(t, err)
	})

	assert.Equal(t, "{\n  \"renewal_date\": \"2026-11-05\"\n}\n", rr.Body.String())
}

func TestWriteErrorWritesBody(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/loans/x", nil)
	require.NotPanics(t, func() {
		WriteError(discard, rr, req, apperr.ErrUnauthenticated)
	})

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.NotEmpty(t, jsoniter.Get(rr.Body.Bytes(), "error").ToString())
}

func TestReadJSON(t *testing.T) {
	type input struct {
		Title string `json:"title"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"title":"Dune"}`, ""},
		{"empty", ``, "body must not be empty"},
		{"unknown field", `{"title":"Dune","pages":412}`, "body contains unknown field: pages"},
		{"two values", `{"title":"Dune"}{"title":"Emma"}`, "body must only contain a single JSON value"},
		{"malformed", `{"title" "Dune"}`, "badly-formed JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var in input
			err := ReadJSON(httptest.NewRecorder(), req, &in)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "Dune", in.Title)
				return
			}
			var berr *BadRequestError
			require.ErrorAs(t, err, &berr)
			assert.Contains(t, berr.Error(), tt.wantErr)
		})
	}
}

func TestWriteErrorStatuses(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{apperr.NewValidationError("title", "This field is required."), http.StatusUnprocessableEntity},
		{&BadRequestError{msg: "bad"}, http.StatusBadRequest},
		{apperr.NotFound("book", 1), http.StatusNotFound},
		{fmt.Errorf("renew: %w", apperr.ErrUnauthenticated), http.StatusUnauthorized},
		{fmt.Errorf("renew: %w", apperr.ErrPermissionDenied), http.StatusForbidden},
		{apperr.ErrRateLimited, http.StatusTooManyRequests},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteError(discard, rr, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			assert.Equal(t, tt.code, rr.Code)
			assert.NotContains(t, rr.Body.String(), "disk on fire")
		})
	}

	rr := httptest.NewRecorder()
	WriteError(discard, rr, httptest.NewRequest(http.MethodGet, "/", nil),
		apperr.NewValidationError("title", "This field is required."))
	assert.Equal(t, "This field is required.", jsoniter.Get(rr.Body.Bytes(), "error", "title").ToString())
}

func TestParams(t *testing.T) {
	r := chi.NewRouter()
	var gotID int64
	var gotErr error
	r.Get("/books/{id}", func(w http.ResponseWriter, req *http.Request) {
		gotID, gotErr = IDParam(req, "id")
	})
	for raw, ok := range map[string]bool{"12": true, "0": false, "-3": false, "abc": false} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/books/"+raw, nil))
		if ok {
			assert.NoError(t, gotErr, raw)
			assert.Equal(t, int64(12), gotID)
		} else {
			assert.ErrorIs(t, gotErr, apperr.ErrNotFound, raw)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/books?page=3", nil)
	assert.Equal(t, 3, PageParam(req).Page)
	req = httptest.NewRequest(http.MethodGet, "/books?page=last", nil)
	assert.Equal(t, 1, PageParam(req).Page)
}

func TestRecoverPanic(t *testing.T) {
	h := RecoverPanic(discard)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "close", rr.Header().Get("Connection"))
}

func TestLogRequests(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := LogRequests(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew", nil))
	assert.Contains(t, buf.String(), "status=418")
	assert.Contains(t, buf.String(), "path=/brew")
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(1, 2)
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	assert.True(t, l.Allow("10.0.0.1", now))
	assert.True(t, l.Allow("10.0.0.1", now))
	assert.False(t, l.Allow("10.0.0.1", now))
	assert.True(t, l.Allow("10.0.0.2", now), "buckets are per client")
	assert.True(t, l.Allow("10.0.0.1", now.Add(time.Second)))

	l.Allow("10.0.0.3", now.Add(10*time.Minute))
	l.mu.Lock()
	assert.Len(t, l.clients, 1, "idle clients are swept")
	l.mu.Unlock()
}

func TestRateLimiterMiddleware(t *testing.T) {
	h := NewRateLimiter(1, 1).Middleware(discard)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestCompress(t *testing.T) {
	payload := Envelope{"title": strings.Repeat("the left hand of darkness ", 200)}
	h := Compress(5)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = WriteJSON(w, http.StatusOK, payload, nil)
	}))

	decode := map[string]func(io.Reader) (io.Reader, error){
		"br":   func(r io.Reader) (io.Reader, error) { return brotli.NewReader(r), nil },
		"gzip": func(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) },
	}
	for _, accept := range []string{"br", "gzip", "gzip, br"} {
		t.Run(accept, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Accept-Encoding", accept)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			enc := rr.Header().Get("Content-Encoding")
			if strings.Contains(accept, "br") {
				assert.Equal(t, "br", enc)
			}
			r, err := decode[enc](rr.Body)
			require.NoError(t, err)
			body, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, payload["title"], jsoniter.Get(body, "title").ToString())
		})
	}
}
