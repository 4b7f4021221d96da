// Package httpx holds the JSON, error and middleware helpers shared by the
// catalog, circulation and membership HTTP handlers.
package httpx

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxBodyBytes = 1_048_576

// Envelope is the top-level JSON object of every response.
type Envelope map[string]any

// WriteJSON encodes data with the given status and extra headers.
func WriteJSON(w http.ResponseWriter, status int, data any, headers http.Header) error {
	js, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

// BadRequestError reports a body that could not be decoded.
type BadRequestError struct {
	msg string
}

func (e *BadRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &BadRequestError{msg: fmt.Sprintf(format, args...)}
}

// ReadJSON decodes exactly one JSON value from the request body into dst.
// Unknown fields are rejected. Decoding problems are returned as
// *BadRequestError.
func ReadJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return badRequest("body must not be empty")
		case errors.As(err, &maxBytesErr):
			return badRequest("body must not be larger than %d bytes", maxBytesErr.Limit)
		case strings.Contains(err.Error(), "unknown field"):
			return badRequest("body contains unknown field: %s", unknownField(err.Error()))
		default:
			return badRequest("body contains badly-formed JSON: %v", err)
		}
	}

	if dec.More() {
		return badRequest("body must only contain a single JSON value")
	}
	return nil
}

func unknownField(msg string) string {
	_, field, ok := strings.Cut(msg, "unknown field")
	if !ok {
		return msg
	}
	field = strings.TrimLeft(field, ": ")
	if i := strings.IndexAny(field, ",\n"); i >= 0 {
		field = field[:i]
	}
	return field
}
