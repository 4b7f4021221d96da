package httpx

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"libracatalog/internal/apperr"
	"libracatalog/internal/paging"
)

// IDParam reads a positive integer route parameter. Malformed ids cannot
// name any row, so they are reported as not found.
func IDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, apperr.NotFound(name, raw)
	}
	return id, nil
}

// UUIDParam reads a UUID route parameter.
func UUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.NotFound(name, raw)
	}
	return id, nil
}

// PageParam reads the "page" query parameter. Missing or malformed values
// select the first page.
func PageParam(r *http.Request) paging.Request {
	n, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		n = 1
	}
	return paging.Page(n)
}
