package api

import (
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/machine-hub/server/internal/dashboard"
	"github.com/zeebo/blake3"
)

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	sub, err := dashboard.DecodeSubmission(r.Body)
	if err != nil {
		s.rejectSubmission(w, r, err)
		return
	}

	ack, err := s.svc.Submit(sub.FunctionCode, sub.Data)
	if err != nil {
		s.rejectSubmission(w, r, err)
		return
	}

	s.metrics.SubmissionAccepted(ack.FunctionCode)
	slog.Info("Submission stored", "req_id", reqID(r), "function_code", ack.FunctionCode, "bytes", len(sub.Data))
	writeJSON(w, http.StatusOK, ack)
}

func (s *Server) rejectSubmission(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if !errors.As(err, &maxErr) {
		s.metrics.SubmissionRejected()
	}
	fail(w, r, err)
}

// handleGetDashboard returns the whole store. The ETag is a blake3 digest of
// the body so pollers can revalidate cheaply.
func (s *Server) handleGetDashboard(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Store().Snapshot()
	if err != nil {
		fail(w, r, err)
		return
	}

	etag := snapshotETag(snap)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeRawJSON(w, http.StatusOK, snap)
}

func snapshotETag(body []byte) string {
	sum := blake3.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
