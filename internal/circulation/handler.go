// internal/circulation/handler.go
package circulation

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"libracatalog/internal/access"
	"libracatalog/internal/apperr"
	"libracatalog/internal/catalog"
	"libracatalog/internal/httpx"
)

// allLoansPath is where a successful renewal redirects.
const allLoansPath = "/loans"

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes mounts the loan endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/loans/mine", h.handleMyLoans)
	r.Get(allLoansPath, h.handleAllOnLoan)
	r.Get("/instances/{id}/renew", h.handleRenewalForm)
	r.Post("/instances/{id}/renew", h.handleRenew)
}

func (h *Handler) handleMyLoans(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.MyLoans(r.Context(), access.PrincipalFrom(r.Context()), httpx.PageParam(r))
	if err != nil {
		httpx.WriteError(h.logger, w, r, err)
		return
	}
	if err := httpx.WriteJSON(w, http.StatusOK, page, nil); err != nil {
		httpx.LogError(h.logger, r, err)
	}
}

func (h *Handler) handleAllOnLoan(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.AllOnLoan(r.Context(), access.PrincipalFrom(r.Context()), httpx.PageParam(r))
	if err != nil {
		httpx.WriteError(h.logger, w, r, err)
		return
	}
	if err := httpx.WriteJSON(w, http.StatusOK, page, nil); err != nil {
		httpx.LogError(h.logger, r, err)
	}
}

func (h *Handler) handleRenewalForm(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.WriteError(h.logger, w, r, err)
		return
	}
	form, err := h.service.RenewalForm(r.Context(), access.PrincipalFrom(r.Context()), id)
	if err != nil {
		httpx.WriteError(h.logger, w, r, err)
		return
	}
	err = httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{
		"instance":     form.Instance,
		"book_title":   form.BookTitle,
		"renewal_date": catalog.FormatDate(form.RenewalDate),
	}, nil)
	if err != nil {
		httpx.LogError(h.logger, r, err)
	}
}

// parseRenewalDate reads the submitted date the way the renewal form does.
func parseRenewalDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, apperr.NewValidationError(fieldRenewalDate, msgRenewalRequired)
	}
	d, err := catalog.ParseDate(raw)
	if err != nil {
		return time.Time{}, apperr.NewValidationError(fieldRenewalDate, msgRenewalMalformed)
	}
	return d, nil
}

func (h *Handler) handleRenew(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.WriteError(h.logger, w, r, err)
		return
	}

	var in struct {
		RenewalDate string `json:"renewal_date"`
	}
	if err := httpx.ReadJSON(w, r, &in); err != nil {
		httpx.WriteError(h.logger, w, r, err)
		return
	}
	actor := access.PrincipalFrom(r.Context())
	dueBack, err := parseRenewalDate(in.RenewalDate)
	if err != nil {
		// Missing instances and missing permissions outrank a bad date.
		if _, ferr := h.service.RenewalForm(r.Context(), actor, id); ferr != nil {
			err = ferr
		}
		httpx.WriteError(h.logger, w, r, err)
		return
	}

	loan, err := h.service.Renew(r.Context(), actor, id, dueBack)
	if err != nil {
		httpx.WriteError(h.logger, w, r, err)
		return
	}

	headers := http.Header{"Location": []string{allLoansPath}}
	if err := httpx.WriteJSON(w, http.StatusSeeOther, httpx.Envelope{"loan": loan}, headers); err != nil {
		httpx.LogError(h.logger, r, err)
	}
}
