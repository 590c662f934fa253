// Package entity stores customers, management companies, their users,
// machine models and serial numbers.
package entity

import (
	"context"
	"errors"
	"sort"
)

var (
	// ErrNotFound is returned when no row has the requested id.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned on unique or foreign key violations.
	ErrConflict = errors.New("conflict")
)

// Filter restricts List to rows whose column equals Value.
type Filter struct {
	Column string
	Value  any
}

// Where is shorthand for a Filter.
func Where(column string, value any) Filter {
	return Filter{Column: column, Value: value}
}

// Table is the CRUD contract shared by every entity.
type Table[T any] interface {
	// Create inserts v and sets its id.
	Create(ctx context.Context, v *T) error
	Get(ctx context.Context, id int64) (T, error)
	// List returns rows matching every filter, ordered by id.
	List(ctx context.Context, filters ...Filter) ([]T, error)
	// Update replaces every column of row id with v and sets v's id.
	Update(ctx context.Context, id int64, v *T) error
	// Delete removes row id and every row referencing it.
	Delete(ctx context.Context, id int64) error
}

// Repository groups the entity tables of one backing store.
type Repository struct {
	Customers       Table[Customer]
	Management      Table[Management]
	CustomerUsers   Table[CustomerUser]
	ManagementUsers Table[ManagementUser]
	Machines        Table[MachineModel]
	Serials         Table[SerialNumber]

	ping  func(context.Context) error
	close func() error
}

// Ping reports whether the backing store is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	if r.ping == nil {
		return nil
	}
	return r.ping(ctx)
}

// Close releases the backing store.
func (r *Repository) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}

// SerialExists reports whether a unit with the given serial number exists.
func (r *Repository) SerialExists(ctx context.Context, serial string) (bool, error) {
	found, err := r.Serials.List(ctx, Where("serial_number", serial))
	if err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

// MachinesWithSerials returns every machine model with its serial numbers.
// With a customer id, only models that customer owns a unit of are returned,
// and only that customer's units are listed.
func (r *Repository) MachinesWithSerials(ctx context.Context, customerID *int64) ([]MachineWithSerials, error) {
	machines, err := r.Machines.List(ctx)
	if err != nil {
		return nil, err
	}

	var filters []Filter
	if customerID != nil {
		filters = append(filters, Where("customer_id", *customerID))
	}
	serials, err := r.Serials.List(ctx, filters...)
	if err != nil {
		return nil, err
	}

	byModel := make(map[int64][]SerialRef)
	for _, s := range serials {
		byModel[s.ModelNumber] = append(byModel[s.ModelNumber], SerialRef{ID: s.ID, SerialNumber: s.SerialNumber})
	}

	result := make([]MachineWithSerials, 0, len(machines))
	for _, m := range machines {
		refs := byModel[m.ID]
		if customerID != nil && len(refs) == 0 {
			continue
		}
		if refs == nil {
			refs = []SerialRef{}
		}
		sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
		result = append(result, MachineWithSerials{MachineModel: m, SerialNumbers: refs})
	}
	return result, nil
}
