package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"libracatalog/internal/apperr"
)

// LogError logs an internal error with the request method and URL.
func LogError(logger *slog.Logger, r *http.Request, err error) {
	logger.Error(err.Error(),
		slog.String("request_method", r.Method),
		slog.String("request_url", r.URL.String()),
	)
}

// ErrorResponse sends {"error": message} with the given status.
func ErrorResponse(logger *slog.Logger, w http.ResponseWriter, r *http.Request, status int, message any) {
	if err := WriteJSON(w, status, Envelope{"error": message}, nil); err != nil {
		LogError(logger, r, err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// WriteError maps err onto a response status. Anything outside the
// shared error taxonomy is logged and reported as a generic 500.
func WriteError(logger *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *apperr.ValidationError
		berr *BadRequestError
	)
	switch {
	case errors.As(err, &verr):
		ErrorResponse(logger, w, r, http.StatusUnprocessableEntity, verr.Fields)
	case errors.As(err, &berr):
		ErrorResponse(logger, w, r, http.StatusBadRequest, berr.Error())
	case errors.Is(err, apperr.ErrNotFound):
		ErrorResponse(logger, w, r, http.StatusNotFound, "the requested resource could not be found")
	case errors.Is(err, apperr.ErrUnauthenticated):
		ErrorResponse(logger, w, r, http.StatusUnauthorized, "you must be signed in to access this resource")
	case errors.Is(err, apperr.ErrRateLimited):
		ErrorResponse(logger, w, r, http.StatusTooManyRequests, "rate limit exceeded")
	case errors.Is(err, apperr.ErrPermissionDenied):
		ErrorResponse(logger, w, r, http.StatusForbidden, "you do not have permission to access this resource")
	default:
		LogError(logger, r, err)
		ErrorResponse(logger, w, r, http.StatusInternalServerError,
			"the server encountered a problem and could not process your request")
	}
}

// NotFound sends a 404 for unmatched routes.
func NotFound(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(logger, w, r, http.StatusNotFound, "the requested resource could not be found")
	}
}

// MethodNotAllowed sends a 405 for routes that exist under another method.
func MethodNotAllowed(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(logger, w, r, http.StatusMethodNotAllowed,
			"the "+r.Method+" method is not supported for this resource")
	}
}
