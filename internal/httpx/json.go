// Package httpx holds the HTTP plumbing shared by the service binaries: JSON
// replies, the error body shapes, request middleware and server lifecycle.
package httpx

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
)

// JSON is the codec used for every request and response body.
var JSON = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrEmptyBody = errors.New("request body is empty")

// Message is the error body: {message} or {message, error}.
type Message struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// ValidationFailure is the 400 body for rejected input.
type ValidationFailure struct {
	Message string   `json:"message"`
	Details []string `json:"details"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = JSON.NewEncoder(w).Encode(v)
}

// WriteMessage replies {message}.
func WriteMessage(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, Message{Message: msg})
}

// WriteError replies {message, error}.
func WriteError(w http.ResponseWriter, status int, msg string, err error) {
	body := Message{Message: msg}
	if err != nil {
		body.Error = err.Error()
	}
	WriteJSON(w, status, body)
}

// WriteValidation replies 400 with the offending fields.
func WriteValidation(w http.ResponseWriter, details ...string) {
	WriteJSON(w, http.StatusBadRequest, ValidationFailure{Message: "Validation error", Details: details})
}

// WriteInternal logs err and replies 500 with a generic body.
func WriteInternal(w http.ResponseWriter, r *http.Request, msg string, err error) {
	zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg(msg)
	WriteJSON(w, http.StatusInternalServerError, Message{Message: msg, Error: "internal error"})
}

// Decode reads a JSON body into v.
func Decode(r *http.Request, v any) error {
	err := JSON.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return ErrEmptyBody
	}
	return err
}

// PathID parses a positive integer URL parameter.
func PathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// QueryInt parses a positive integer query parameter, falling back to def.
func QueryInt(r *http.Request, name string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
