// Package api exposes the pipeline-run lifecycle over HTTP. Handlers
// are thin: every mutation goes through the state manager, and every
// state-manager error kind maps to exactly one status code with a
// {detail: ...} body.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dife-bioinformatics/mekewe/state"
	"github.com/dife-bioinformatics/mekewe/store"
)

// errorBody is the wire shape of every error response.
type errorBody struct {
	Detail string `json:"detail"`
}

// statusForError maps a state-manager error kind to its HTTP status.
func statusForError(err error) int {
	switch {
	case errors.Is(err, state.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, state.ErrBadState):
		return http.StatusBadRequest
	case errors.Is(err, state.ErrBadParameter):
		return http.StatusUnprocessableEntity
	case errors.Is(err, state.ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, state.ErrOutOfStorage):
		return http.StatusInsufficientStorage
	case errors.Is(err, state.ErrNotReady):
		return http.StatusTooEarly
	case errors.Is(err, state.ErrGone):
		return http.StatusGone
	case errors.Is(err, state.ErrDependencyFailed):
		return http.StatusFailedDependency
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		// Internal details stay in the log, not on the wire.
		detail = "internal server error"
	}
	writeJSON(w, status, errorBody{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
