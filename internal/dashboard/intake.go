package dashboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrInvalidSubmission is returned when a submission does not have the
// expected structure. No store mutation happens in that case.
var ErrInvalidSubmission = errors.New("invalid submission")

// Submission is one telemetry update for a function code.
type Submission struct {
	FunctionCode string          `json:"functionCode"`
	Data         json.RawMessage `json:"data"`
}

// Ack acknowledges an accepted submission.
type Ack struct {
	Status       string `json:"status"`
	FunctionCode string `json:"functionCode"`
}

// Intake is the only writer of the store. The store write and the
// raise/clear pulse run under one mutex so two submissions never interleave
// their pulses.
type Intake struct {
	mu       sync.Mutex
	store    *Store
	notifier *Notifier
}

func NewIntake(store *Store, notifier *Notifier) *Intake {
	return &Intake{store: store, notifier: notifier}
}

// Submit validates data, replaces the entry for functionCode and pulses the
// notifier once.
func (in *Intake) Submit(functionCode string, data json.RawMessage) (Ack, error) {
	if functionCode == "" {
		return Ack{}, fmt.Errorf("%w: functionCode is required", ErrInvalidSubmission)
	}
	value, err := normalizePayload(data)
	if err != nil {
		return Ack{}, err
	}

	in.mu.Lock()
	in.store.set(functionCode, value)
	in.pulseLocked()
	in.mu.Unlock()

	return Ack{Status: "success", FunctionCode: functionCode}, nil
}

// Notify pulses the notifier without touching the store. Entity mutations
// use it to wake the machines channel.
func (in *Intake) Notify() {
	in.mu.Lock()
	in.pulseLocked()
	in.mu.Unlock()
}

func (in *Intake) pulseLocked() {
	in.notifier.Raise()
	in.notifier.Clear()
}

// DecodeSubmission reads a submission body. Unknown fields are ignored.
func DecodeSubmission(r io.Reader) (Submission, error) {
	var sub Submission
	if err := json.NewDecoder(r).Decode(&sub); err != nil {
		return Submission{}, fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	}
	return sub, nil
}

// normalizePayload accepts an object or an array of objects and returns its
// compact encoding.
func normalizePayload(data json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%w: data is required", ErrInvalidSubmission)
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: data is not valid JSON", ErrInvalidSubmission)
	}

	switch trimmed[0] {
	case '{':
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
		}
		for i, item := range items {
			item = bytes.TrimSpace(item)
			if len(item) == 0 || item[0] != '{' {
				return nil, fmt.Errorf("%w: data[%d] must be an object", ErrInvalidSubmission, i)
			}
		}
	default:
		return nil, fmt.Errorf("%w: data must be an object or an array of objects", ErrInvalidSubmission)
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}
	return buf.Bytes(), nil
}
