// internal/catalog/handler.go
package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"libracatalog/internal/access"
	"libracatalog/internal/httpx"
)

const visitsCookie = "num_visits"

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes mounts the catalog endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleIndex)

	r.Route("/books", func(r chi.Router) {
		r.Get("/", h.handleListBooks)
		r.Post("/", h.handleCreateBook)
		r.Get("/{id}", h.handleGetBook)
		r.Put("/{id}", h.handleUpdateBook)
		r.Delete("/{id}", h.handleDeleteBook)
	})

	r.Route("/authors", func(r chi.Router) {
		r.Get("/", h.handleListAuthors)
		r.Post("/", h.handleCreateAuthor)
		r.Get("/{id}", h.handleGetAuthor)
		r.Put("/{id}", h.handleUpdateAuthor)
		r.Delete("/{id}", h.handleDeleteAuthor)
	})

	r.Route("/genres", func(r chi.Router) {
		r.Get("/", h.handleListGenres)
		r.Post("/", h.handleCreateGenre)
		r.Delete("/{id}", h.handleDeleteGenre)
	})

	r.Route("/languages", func(r chi.Router) {
		r.Get("/", h.handleListLanguages)
		r.Post("/", h.handleCreateLanguage)
		r.Delete("/{id}", h.handleDeleteLanguage)
	})

	r.Route("/instances", func(r chi.Router) {
		r.Post("/", h.handleCreateInstance)
		r.Get("/{id}", h.handleGetInstance)
		r.Put("/{id}", h.handleUpdateInstance)
		r.Delete("/{id}", h.handleDeleteInstance)
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	httpx.WriteError(h.logger, w, r, err)
}

func (h *Handler) ok(w http.ResponseWriter, r *http.Request, status int, data any) {
	if err := httpx.WriteJSON(w, status, data, nil); err != nil {
		httpx.LogError(h.logger, r, err)
	}
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	var visits Visits
	if c, err := r.Cookie(visitsCookie); err == nil {
		if n, err := strconv.Atoi(c.Value); err == nil && n >= 0 {
			visits = Visits(n)
		}
	}

	summary, next, err := h.service.Summary(r.Context(), visits)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     visitsCookie,
		Value:    strconv.Itoa(int(next)),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	h.ok(w, r, http.StatusOK, summary)
}

func (h *Handler) handleListBooks(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListBooks(r.Context(), httpx.PageParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, http.StatusOK, page)
}

func (h *Handler) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, http.StatusOK, httpx.Envelope{"book": book})
}

func (h *Handler) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var in BookInput
	if err := httpx.ReadJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	book, err := h.service.CreateBook(r.Context(), access.PrincipalFrom(r.Context()), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, http.StatusCreated, httpx.Envelope{"book": book})
}

func (h *Handler) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in BookInput
	if err := httpx.ReadJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	book, err := h.service.UpdateBook(r.Context(), access.PrincipalFrom(r.Context()), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, http.StatusOK, httpx.Envelope{"book": book})
}

func (h *Handler) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.DeleteBook(r.Context(), access.PrincipalFrom(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListAuthors(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListAuthors(r.Context(), httpx.PageParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, http.StatusOK, page)
}

func (h *Handler) handleGetAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	author, err := h.service.GetAuthor(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, http.StatusOK, httpx.Envelope{"author": author})
}

func (h *Handler) handleCreateAuthor(w http.ResponseWriter, r *http.Request) {
	var in AuthorInput
	if err := httpx.ReadJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	author, err := h.service.CreateAuthor(r.Context(), access.PrincipalFrom(r.Context()), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, http.StatusCreated, httpx.Envelope{"author": author})
}

func (h *Handler) handleUpdateAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in AuthorInput
	if err := httpx.ReadJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	author, err := h.service.UpdateAuthor(r.Context(), access.PrincipalFrom(r.Context()), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, http.StatusOK, httpx.Envelope{"author": author})
}

func (h *Handler) handleDeleteAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.DeleteAuthor(r.Context(), access.PrincipalFrom(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListGenres(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListGenres(r.Context(), httpx.PageParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, http.StatusOK, page)
}

func (h *Handler) handleCreateGenre(w http.ResponseWriter, r *http.Request) {
	var in GenreInput
	if err := httpx.ReadJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	genre, err := h.service.CreateGenre(r.Context(), access.PrincipalFrom(r.Context()), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, http.StatusCreated, httpx.Envelope{"genre": genre})
}

func (h *Handler) handleDeleteGenre(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.DeleteGenre(r.Context(), access.PrincipalFrom(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListLanguages(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListLanguages(r.Context(), httpx.PageParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, http.StatusOK, page)
}

func (h *Handler) handleCreateLanguage(w http.ResponseWriter, r *http.Request) {
	var in LanguageInput
	if err := httpx.ReadJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	language, err := h.service.CreateLanguage(r.Context(), access.PrincipalFrom(r.Context()), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, http.StatusCreated, httpx.Envelope{"language": language})
}

func (h *Handler) handleDeleteLanguage(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.DeleteLanguage(r.Context(), access.PrincipalFrom(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	bi, err := h.service.GetInstance(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, http.StatusOK, httpx.Envelope{"instance": bi})
}

func (h *Handler) handleCreateInstance(w http.ResponseWriter, r *http.Request) {
	var in InstanceInput
	if err := httpx.ReadJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	bi, err := h.service.CreateInstance(r.Context(), access.PrincipalFrom(r.Context()), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, http.StatusCreated, httpx.Envelope{"instance": bi})
}

func (h *Handler) handleUpdateInstance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in InstanceInput
	if err := httpx.ReadJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	bi, err := h.service.UpdateInstance(r.Context(), access.PrincipalFrom(r.Context()), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, r, http.StatusOK, httpx.Envelope{"instance": bi})
}

func (h *Handler) handleDeleteInstance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.UUIDParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.DeleteInstance(r.Context(), access.PrincipalFrom(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
