package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/machine-hub/server/internal/dashboard"
	"github.com/machine-hub/server/internal/entity"
)

// apiError carries the status and detail returned to the client.
type apiError struct {
	status int
	detail string
}

func (e *apiError) Error() string { return e.detail }

func badRequest(format string, args ...any) error {
	return &apiError{status: http.StatusBadRequest, detail: fmt.Sprintf(format, args...)}
}

// notFound replaces entity.ErrNotFound with a "<label> not found" detail.
func notFound(label string, err error) error {
	if errors.Is(err, entity.ErrNotFound) {
		return &apiError{status: http.StatusNotFound, detail: label + " not found"}
	}
	return err
}

type errorBody struct {
	Detail string `json:"detail"`
}

// fail writes err as a {"detail": ...} body with the matching status.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		apiErr *apiError
		maxErr *http.MaxBytesError
		status = http.StatusInternalServerError
		detail = "internal server error"
	)
	switch {
	case errors.As(err, &apiErr):
		status, detail = apiErr.status, apiErr.detail
	case errors.As(err, &maxErr):
		status, detail = http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, entity.ErrNotFound):
		status, detail = http.StatusNotFound, err.Error()
	case errors.Is(err, entity.ErrConflict), errors.Is(err, dashboard.ErrInvalidSubmission):
		status, detail = http.StatusBadRequest, err.Error()
	}

	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "req_id", reqID(r), "path", r.URL.Path, "err", err)
	} else {
		slog.Debug("Request rejected", "req_id", reqID(r), "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorBody{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode response", "err", err)
		http.Error(w, `{"detail":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeRawJSON(w, status, data)
}

func writeRawJSON(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid id %q", r.PathValue("id"))
	}
	return id, nil
}

// queryID parses an optional positive integer query parameter.
func queryID(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, badRequest("invalid %s %q", name, raw)
	}
	return &id, nil
}
