// Package dashboard holds the live dashboard state: the snapshot store, the
// change notifier and the submission intake that ties them together.
package dashboard

import (
	"encoding/json"
	"fmt"
)

// Kind is the shape of a category's default value.
type Kind string

const (
	KindList   Kind = "list"
	KindObject Kind = "object"
)

// Category names a function code known at startup.
type Category struct {
	Name string
	Kind Kind
}

// DefaultCategories are the function codes the machines report out of the box.
var DefaultCategories = []Category{
	{Name: "Running List", Kind: KindList},
	{Name: "Waiting List", Kind: KindList},
	{Name: "Flow details", Kind: KindObject},
}

// Service is the process-wide dashboard instance handed to HTTP and stream
// handlers.
type Service struct {
	store    *Store
	notifier *Notifier
	intake   *Intake
}

// NewService builds a service whose store is seeded with an empty value for
// every category.
func NewService(categories []Category) (*Service, error) {
	defaults := make(map[string]json.RawMessage, len(categories))
	for _, c := range categories {
		if c.Name == "" {
			return nil, fmt.Errorf("category with empty name")
		}
		switch c.Kind {
		case KindList, "":
			defaults[c.Name] = json.RawMessage("[]")
		case KindObject:
			defaults[c.Name] = json.RawMessage("{}")
		default:
			return nil, fmt.Errorf("category %q: unknown kind %q", c.Name, c.Kind)
		}
	}

	store := NewStore(defaults)
	notifier := NewNotifier()
	return &Service{
		store:    store,
		notifier: notifier,
		intake:   NewIntake(store, notifier),
	}, nil
}

func (s *Service) Store() *Store { return s.store }

func (s *Service) Notifier() *Notifier { return s.notifier }

// Submit forwards to the intake.
func (s *Service) Submit(functionCode string, data json.RawMessage) (Ack, error) {
	return s.intake.Submit(functionCode, data)
}

// Notify pulses observers without a store change.
func (s *Service) Notify() {
	s.intake.Notify()
}
