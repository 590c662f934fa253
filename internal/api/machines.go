package api

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/machine-hub/server/internal/entity"
)

const machineLabel = "Machine"

// machineInput is the body of the JSON machine model endpoints. The
// multipart endpoints fill it from form fields.
type machineInput struct {
	MachineName           string  `json:"machineName"`
	ModelNumber           string  `json:"model_number"`
	Description           string  `json:"description"`
	DefaultWarrantyMonths int     `json:"default_warranty_months"`
	Phase                 string  `json:"phase"`
	Volts                 string  `json:"volts"`
	Amps                  string  `json:"amps"`
	Frequency             string  `json:"frequency"`
	SWVersion             string  `json:"sw_version"`
	PCBVersion            string  `json:"pcb_version"`
	FWVersion             string  `json:"fw_version"`
	DesignVersion         string  `json:"design_version"`
	Make                  int64   `json:"make"`
	Image                 *string `json:"image"`
}

func (in machineInput) apply(m *entity.MachineModel) error {
	switch {
	case strings.TrimSpace(in.MachineName) == "":
		return badRequest("machineName is required")
	case strings.TrimSpace(in.ModelNumber) == "":
		return badRequest("model_number is required")
	case in.Make <= 0:
		return badRequest("make is required")
	case in.DefaultWarrantyMonths < 0:
		return badRequest("default_warranty_months must not be negative")
	}

	m.MachineName = in.MachineName
	m.ModelNumber = in.ModelNumber
	m.Description = in.Description
	m.DefaultWarrantyMonths = in.DefaultWarrantyMonths
	m.Phase = in.Phase
	m.Volts = in.Volts
	m.Amps = in.Amps
	m.Frequency = in.Frequency
	m.SWVersion = in.SWVersion
	m.PCBVersion = in.PCBVersion
	m.FWVersion = in.FWVersion
	m.DesignVersion = in.DesignVersion
	m.Make = in.Make
	if in.Image != nil {
		m.Image = *in.Image
	}
	return nil
}

// machineForm reads a multipart machine model form. The returned file is nil
// when no image was attached.
func (s *Server) machineForm(w http.ResponseWriter, r *http.Request) (machineInput, multipart.File, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxBodyBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return machineInput{}, nil, "", err
		}
		return machineInput{}, nil, "", badRequest("invalid form: %v", err)
	}

	atoi := func(field string) (int64, error) {
		v, err := strconv.ParseInt(strings.TrimSpace(r.FormValue(field)), 10, 64)
		if err != nil {
			return 0, badRequest("invalid %s %q", field, r.FormValue(field))
		}
		return v, nil
	}
	warranty, err := atoi("default_warranty_months")
	if err != nil {
		return machineInput{}, nil, "", err
	}
	maker, err := atoi("make")
	if err != nil {
		return machineInput{}, nil, "", err
	}

	in := machineInput{
		MachineName:           r.FormValue("machineName"),
		ModelNumber:           r.FormValue("model_number"),
		Description:           r.FormValue("description"),
		DefaultWarrantyMonths: int(warranty),
		Phase:                 r.FormValue("phase"),
		Volts:                 r.FormValue("volts"),
		Amps:                  r.FormValue("amps"),
		Frequency:             r.FormValue("frequency"),
		SWVersion:             r.FormValue("sw_version"),
		PCBVersion:            r.FormValue("pcb_version"),
		FWVersion:             r.FormValue("fw_version"),
		DesignVersion:         r.FormValue("design_version"),
		Make:                  maker,
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil, "", nil
	}
	if err != nil {
		return machineInput{}, nil, "", badRequest("invalid image: %v", err)
	}
	return in, file, header.Filename, nil
}

func (s *Server) handleCreateMachine(w http.ResponseWriter, r *http.Request) {
	var in machineInput
	if err := s.decodeJSON(w, r, &in); err != nil {
		fail(w, r, err)
		return
	}
	var m entity.MachineModel
	if err := in.apply(&m); err != nil {
		fail(w, r, err)
		return
	}
	if err := s.repo.Machines.Create(r.Context(), &m); err != nil {
		fail(w, r, err)
		return
	}
	s.svc.Notify()
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleUploadMachine(w http.ResponseWriter, r *http.Request) {
	in, file, filename, err := s.machineForm(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if file != nil {
		defer file.Close()
	}

	var m entity.MachineModel
	if err := in.apply(&m); err != nil {
		fail(w, r, err)
		return
	}
	// The row goes in first so a conflicting model number never touches
	// another model's image.
	if err := s.repo.Machines.Create(r.Context(), &m); err != nil {
		fail(w, r, err)
		return
	}

	if file != nil {
		path, err := s.images.Save(file, m.ModelNumber+"_"+filename)
		if err != nil {
			if delErr := s.repo.Machines.Delete(r.Context(), m.ID); delErr != nil {
				slog.Error("Failed to roll back machine", "req_id", reqID(r), "id", m.ID, "err", delErr)
			}
			fail(w, r, badRequest("invalid image: %v", err))
			return
		}
		m.Image = path
		if err := s.repo.Machines.Update(r.Context(), m.ID, &m); err != nil {
			fail(w, r, err)
			return
		}
	}

	s.svc.Notify()
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleUpdateMachineUpload(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	in, file, filename, err := s.machineForm(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if file != nil {
		defer file.Close()
	}

	m, err := s.repo.Machines.Get(r.Context(), id)
	if err != nil {
		fail(w, r, notFound(machineLabel, err))
		return
	}
	if err := in.apply(&m); err != nil {
		fail(w, r, err)
		return
	}

	oldImage := m.Image
	if file != nil {
		path, err := s.images.Save(file, m.ModelNumber+"_"+filename)
		if err != nil {
			fail(w, r, badRequest("invalid image: %v", err))
			return
		}
		m.Image = path
	}

	if err := s.repo.Machines.Update(r.Context(), id, &m); err != nil {
		if file != nil && m.Image != oldImage {
			if rmErr := s.images.Remove(m.Image); rmErr != nil {
				slog.Warn("Failed to remove unused image", "req_id", reqID(r), "image", m.Image, "err", rmErr)
			}
		}
		fail(w, r, notFound(machineLabel, err))
		return
	}
	if file != nil {
		if err := s.images.Replace(oldImage, m.Image); err != nil {
			slog.Warn("Failed to remove replaced image", "req_id", reqID(r), "image", oldImage, "err", err)
		}
	}

	s.svc.Notify()
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleListMachines(w http.ResponseWriter, r *http.Request) {
	all, err := s.repo.Machines.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) handleUpdateMachine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var in machineInput
	if err := s.decodeJSON(w, r, &in); err != nil {
		fail(w, r, err)
		return
	}
	m, err := s.repo.Machines.Get(r.Context(), id)
	if err != nil {
		fail(w, r, notFound(machineLabel, err))
		return
	}
	if err := in.apply(&m); err != nil {
		fail(w, r, err)
		return
	}
	if err := s.repo.Machines.Update(r.Context(), id, &m); err != nil {
		fail(w, r, notFound(machineLabel, err))
		return
	}
	s.svc.Notify()
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMachine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	m, err := s.repo.Machines.Get(r.Context(), id)
	if err != nil {
		fail(w, r, notFound(machineLabel, err))
		return
	}
	if err := s.repo.Machines.Delete(r.Context(), id); err != nil {
		fail(w, r, notFound(machineLabel, err))
		return
	}
	if err := s.images.Remove(m.Image); err != nil {
		slog.Warn("Failed to remove machine image", "req_id", reqID(r), "image", m.Image, "err", err)
	}
	s.svc.Notify()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMachinesWithSerials(w http.ResponseWriter, r *http.Request) {
	customerID, err := queryID(r, "customer_id")
	if err != nil {
		fail(w, r, err)
		return
	}
	machines, err := s.repo.MachinesWithSerials(r.Context(), customerID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, machines)
}
