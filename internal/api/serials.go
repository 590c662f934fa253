package api

import (
	"net/http"
	"strings"

	"github.com/machine-hub/server/internal/entity"
)

const serialLabel = "Serial number"

func validateSerial(sn *entity.SerialNumber) error {
	switch {
	case strings.TrimSpace(sn.SerialNumber) == "":
		return badRequest("serial_number is required")
	case sn.ModelNumber <= 0:
		return badRequest("model_number is required")
	case sn.CustomerID <= 0:
		return badRequest("customer_id is required")
	}
	return nil
}

func (s *Server) handleSerialExists(w http.ResponseWriter, r *http.Request) {
	ok, err := s.repo.SerialExists(r.Context(), r.PathValue("serial"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok)
}

func (s *Server) handleCreateSerial(w http.ResponseWriter, r *http.Request) {
	var sn entity.SerialNumber
	if err := s.decodeJSON(w, r, &sn); err != nil {
		fail(w, r, err)
		return
	}
	sn.ID = 0
	if err := validateSerial(&sn); err != nil {
		fail(w, r, err)
		return
	}
	if err := s.repo.Serials.Create(r.Context(), &sn); err != nil {
		fail(w, r, err)
		return
	}
	s.svc.Notify()
	writeJSON(w, http.StatusOK, sn)
}

func (s *Server) handleListSerials(w http.ResponseWriter, r *http.Request) {
	all, err := s.repo.Serials.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) handleUpdateSerial(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var sn entity.SerialNumber
	if err := s.decodeJSON(w, r, &sn); err != nil {
		fail(w, r, err)
		return
	}
	if err := validateSerial(&sn); err != nil {
		fail(w, r, err)
		return
	}
	if err := s.repo.Serials.Update(r.Context(), id, &sn); err != nil {
		fail(w, r, notFound(serialLabel, err))
		return
	}
	s.svc.Notify()
	writeJSON(w, http.StatusOK, sn)
}

func (s *Server) handleDeleteSerial(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.repo.Serials.Delete(r.Context(), id); err != nil {
		fail(w, r, notFound(serialLabel, err))
		return
	}
	s.svc.Notify()
	w.WriteHeader(http.StatusNoContent)
}
