package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/machine-hub/server/internal/entity"
	"golang.org/x/crypto/bcrypt"
)

// userInput is the request body for customer and management users. Only
// the owner field matching the resource is read.
type userInput struct {
	Name         string `json:"name"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Designation  string `json:"designation"`
	Privilege    string `json:"privilege"`
	CustomerID   int64  `json:"customer_id"`
	ManagementID int64  `json:"management_id"`
}

type userResource[T any] struct {
	ownerColumn string
	privileges  []privilege
	table       entity.Table[T]
	user        func(*T) *entity.User
	owner       func(*T) *int64
}

// apply copies in onto v. An empty password keeps the stored hash unless
// requirePassword is set.
func (res userResource[T]) apply(in userInput, v *T, requirePassword bool) error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return badRequest("name is required")
	case strings.TrimSpace(in.Username) == "":
		return badRequest("username is required")
	case requirePassword && in.Password == "":
		return badRequest("password is required")
	case !validPrivilege(res.privileges, in.Privilege):
		return badRequest("invalid privilege %q", in.Privilege)
	}

	owner := in.CustomerID
	if res.ownerColumn == "management_id" {
		owner = in.ManagementID
	}
	if owner <= 0 {
		return badRequest("%s is required", res.ownerColumn)
	}

	u := res.user(v)
	u.Name = in.Name
	u.Username = in.Username
	u.Designation = in.Designation
	u.Privilege = in.Privilege
	*res.owner(v) = owner

	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return badRequest("password is too long")
		}
		if err != nil {
			return err
		}
		u.Password = string(hash)
	}
	return nil
}

func (res userResource[T]) create(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in userInput
		if err := s.decodeJSON(w, r, &in); err != nil {
			fail(w, r, err)
			return
		}
		var v T
		if err := res.apply(in, &v, true); err != nil {
			fail(w, r, err)
			return
		}
		if err := res.table.Create(r.Context(), &v); err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, v)
	}
}

func (res userResource[T]) list(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, err := queryID(r, res.ownerColumn)
		if err != nil {
			fail(w, r, err)
			return
		}
		var filters []entity.Filter
		if owner != nil {
			filters = append(filters, entity.Where(res.ownerColumn, *owner))
		}
		all, err := res.table.List(r.Context(), filters...)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, all)
	}
}

func (res userResource[T]) update(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			fail(w, r, err)
			return
		}
		var in userInput
		if err := s.decodeJSON(w, r, &in); err != nil {
			fail(w, r, err)
			return
		}
		v, err := res.table.Get(r.Context(), id)
		if err != nil {
			fail(w, r, notFound("User", err))
			return
		}
		if err := res.apply(in, &v, false); err != nil {
			fail(w, r, err)
			return
		}
		if err := res.table.Update(r.Context(), id, &v); err != nil {
			fail(w, r, notFound("User", err))
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func (res userResource[T]) delete(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			fail(w, r, err)
			return
		}
		if err := res.table.Delete(r.Context(), id); err != nil {
			fail(w, r, notFound("User", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
