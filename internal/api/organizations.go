package api

import (
	"net/http"
	"strings"

	"github.com/machine-hub/server/internal/entity"
	"github.com/machine-hub/server/internal/keys"
)

// organizationInput is the request body for customers and management
// companies. Keys are generated on create; on update, empty keys keep the
// stored ones.
type organizationInput struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	GST        string `json:"gst"`
	Latitude   string `json:"latitude"`
	Longitude  string `json:"longitude"`
	Address    string `json:"address"`
	KeyName    string `json:"key_name"`
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
}

func (in organizationInput) apply(o *entity.Organization) error {
	if strings.TrimSpace(in.Name) == "" {
		return badRequest("name is required")
	}
	o.Name = in.Name
	o.Phone = in.Phone
	o.Email = in.Email
	o.GST = in.GST
	o.Latitude = in.Latitude
	o.Longitude = in.Longitude
	o.Address = in.Address
	o.KeyName = in.KeyName
	if in.PrivateKey != "" {
		o.PrivateKey = keys.NormalizePEM(in.PrivateKey)
	}
	if in.PublicKey != "" {
		if _, err := keys.ParsePublicKey(in.PublicKey); err != nil {
			return badRequest("invalid public_key: %v", err)
		}
		o.PublicKey = keys.NormalizePEM(in.PublicKey)
	}
	return nil
}

type organizationResource[T any] struct {
	label string
	table entity.Table[T]
	org   func(*T) *entity.Organization
}

func (res organizationResource[T]) create(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in organizationInput
		if err := s.decodeJSON(w, r, &in); err != nil {
			fail(w, r, err)
			return
		}

		// Create always issues a fresh pair.
		in.PrivateKey, in.PublicKey = "", ""
		var v T
		if err := in.apply(res.org(&v)); err != nil {
			fail(w, r, err)
			return
		}
		pair, err := keys.Generate()
		if err != nil {
			fail(w, r, err)
			return
		}
		res.org(&v).PrivateKey = pair.PrivateKey
		res.org(&v).PublicKey = pair.PublicKey

		if err := res.table.Create(r.Context(), &v); err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, v)
	}
}

func (res organizationResource[T]) list(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := res.table.List(r.Context())
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, all)
	}
}

func (res organizationResource[T]) update(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			fail(w, r, err)
			return
		}
		var in organizationInput
		if err := s.decodeJSON(w, r, &in); err != nil {
			fail(w, r, err)
			return
		}

		v, err := res.table.Get(r.Context(), id)
		if err != nil {
			fail(w, r, notFound(res.label, err))
			return
		}
		if err := in.apply(res.org(&v)); err != nil {
			fail(w, r, err)
			return
		}
		if err := res.table.Update(r.Context(), id, &v); err != nil {
			fail(w, r, notFound(res.label, err))
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func (res organizationResource[T]) delete(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			fail(w, r, err)
			return
		}
		if err := res.table.Delete(r.Context(), id); err != nil {
			fail(w, r, notFound(res.label, err))
			return
		}
		// Cascades may have removed serial numbers.
		s.svc.Notify()
		w.WriteHeader(http.StatusNoContent)
	}
}
