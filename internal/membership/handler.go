// internal/membership/handler.go
package membership

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"libracatalog/internal/access"
	"libracatalog/internal/httpx"
)

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes mounts the member and session endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/members", h.handleRegisterMember)
	r.Get("/members/{id}", h.handleGetMember)
	r.Post("/members/{id}/permissions", h.handleGrantPermission)
	r.Delete("/members/{id}/permissions/{permission}", h.handleRevokePermission)
	r.Post("/login", h.handleLogin)
	r.Get("/sessions/current", h.handleCurrentSession)
}

func (h *Handler) handleRegisterMember(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := httpx.ReadJSON(w, r, &in); err != nil {
		httpx.WriteError(h.logger, w, r, err)
		return
	}

	member, err := h.service.RegisterMember(r.Context(), in)
	if err != nil {
		httpx.WriteError(h.logger, w, r, err)
		return
	}

	headers := http.Header{"Location": []string{"/members/" + member.ID.String()}}
	if err := httpx.WriteJSON(w, http.StatusCreated, httpx.Envelope{"member": member}, headers); err != nil {
		httpx.LogError(h.logger, r, err)
	}
}

func (h *Handler) handleGetMember(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.WriteError(h.logger, w, r, err)
		return
	}
	member, err := h.service.GetMember(r.Context(), access.PrincipalFrom(r.Context()), id)
	if err != nil {
		httpx.WriteError(h.logger, w, r, err)
		return
	}
	if err := httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{"member": member}, nil); err != nil {
		httpx.LogError(h.logger, r, err)
	}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := httpx.ReadJSON(w, r, &in); err != nil {
		httpx.WriteError(h.logger, w, r, err)
		return
	}

	session, err := h.service.Login(r.Context(), in.Username, in.Password)
	if err != nil {
		httpx.WriteError(h.logger, w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	if err := httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{"session": session}, nil); err != nil {
		httpx.LogError(h.logger, r, err)
	}
}

// handleCurrentSession is what other services call to resolve a token.
func (h *Handler) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	principal, err := h.service.ResolveSession(r.Context(), access.TokenFromRequest(r))
	if err != nil {
		httpx.WriteError(h.logger, w, r, err)
		return
	}
	if err := httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{"principal": principal}, nil); err != nil {
		httpx.LogError(h.logger, r, err)
	}
}

func (h *Handler) handleGrantPermission(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.WriteError(h.logger, w, r, err)
		return
	}
	var in struct {
		Permission access.Permission `json:"permission"`
	}
	if err := httpx.ReadJSON(w, r, &in); err != nil {
		httpx.WriteError(h.logger, w, r, err)
		return
	}

	member, err := h.service.GrantPermission(r.Context(), access.PrincipalFrom(r.Context()), id, in.Permission)
	if err != nil {
		httpx.WriteError(h.logger, w, r, err)
		return
	}
	if err := httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{"member": member}, nil); err != nil {
		httpx.LogError(h.logger, r, err)
	}
}

func (h *Handler) handleRevokePermission(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		httpx.WriteError(h.logger, w, r, err)
		return
	}
	perm := access.Permission(chi.URLParam(r, "permission"))

	member, err := h.service.RevokePermission(r.Context(), access.PrincipalFrom(r.Context()), id, perm)
	if err != nil {
		httpx.WriteError(h.logger, w, r, err)
		return
	}
	if err := httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{"member": member}, nil); err != nil {
		httpx.LogError(h.logger, r, err)
	}
}
