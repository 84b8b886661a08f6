package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/taskforge/taskforge/auth"
	"github.com/taskforge/taskforge/task"
)

const maxJSONBody = 1 << 20

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"detail": msg}, the error shape the frontend reads.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// writeServiceError maps domain errors to HTTP statuses. OAuth failures are
// 500 even when they wrap ErrUnauthorized.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var authErr *auth.AuthError
	switch {
	case errors.As(err, &authErr):
		s.logger.Error("auth failure", "op", authErr.Op, "status", authErr.Status, "error", err,
			"request_id", requestIDFrom(r.Context()))
		writeError(w, http.StatusInternalServerError, authErr.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, task.ErrNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, task.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, task.ErrConflict):
		writeError(w, http.StatusConflict, "task was modified concurrently, retry")
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err,
			"request_id", requestIDFrom(r.Context()))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", task.ErrValidation, err)
	}
	return nil
}

// taskID parses the {id} path parameter.
func taskID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: task id %q is not an integer", task.ErrValidation, raw)
	}
	return id, nil
}
