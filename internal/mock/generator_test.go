package mock

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/machine-hub/server/internal/dashboard"
)

type recordingSubmitter struct {
	mu    sync.Mutex
	codes []string
	last  map[string]json.RawMessage
	err   error
}

func (r *recordingSubmitter) Submit(code string, data json.RawMessage) (dashboard.Ack, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return dashboard.Ack{}, r.err
	}
	if r.last == nil {
		r.last = make(map[string]json.RawMessage)
	}
	r.codes = append(r.codes, code)
	r.last[code] = data
	return dashboard.Ack{Status: "success", FunctionCode: code}, nil
}

func (r *recordingSubmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.codes)
}

func TestStepSubmitsEveryFunctionCode(t *testing.T) {
	sub := &recordingSubmitter{}
	gen := NewGenerator(sub, time.Hour)

	if err := gen.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}

	want := []string{RunningList, WaitingList, FlowDetails}
	if len(sub.codes) != len(want) {
		t.Fatalf("submitted %v, want %v", sub.codes, want)
	}
	for i, code := range want {
		if sub.codes[i] != code {
			t.Errorf("submission %d = %q, want %q", i, sub.codes[i], code)
		}
	}

	var running []map[string]any
	if err := json.Unmarshal(sub.last[RunningList], &running); err != nil {
		t.Fatalf("Running List is not an array: %v", err)
	}
	if len(running) != maxRunning {
		t.Errorf("running batches = %d, want %d", len(running), maxRunning)
	}
	for _, b := range running {
		if _, ok := b["ChemRecords"].([]any); !ok {
			t.Errorf("running batch %v has no ChemRecords", b["batch_id"])
		}
	}

	var waiting []map[string]any
	if err := json.Unmarshal(sub.last[WaitingList], &waiting); err != nil {
		t.Fatalf("Waiting List is not an array: %v", err)
	}
	if len(waiting) != minWaiting {
		t.Errorf("waiting batches = %d, want %d", len(waiting), minWaiting)
	}

	var flow map[string]any
	if err := json.Unmarshal(sub.last[FlowDetails], &flow); err != nil {
		t.Fatalf("Flow details is not an object: %v", err)
	}
	state, ok := flow["FlowState"].(map[string]any)
	if !ok {
		t.Fatal("Flow details has no FlowState")
	}
	if state["ProcessState"] != "Running" {
		t.Errorf("ProcessState = %v, want Running", state["ProcessState"])
	}
}

func TestBatchesComplete(t *testing.T) {
	gen := NewGenerator(&recordingSubmitter{}, time.Hour)

	for range 300 {
		if err := gen.Step(); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}

	// Five batches are seeded on the first tick; later ids only appear once
	// earlier batches finish.
	if gen.nextID <= 115 {
		t.Errorf("nextID = %d, want batches to complete and be replaced", gen.nextID)
	}
	if got := gen.count(running); got != maxRunning {
		t.Errorf("running = %d, want %d", got, maxRunning)
	}
	if got := gen.count(waiting); got < minWaiting {
		t.Errorf("waiting = %d, want at least %d", got, minWaiting)
	}
	if gen.meterTotal == 0 {
		t.Error("flow meter never advanced")
	}
}

func TestChemState(t *testing.T) {
	tests := []struct {
		name string
		chem mockChem
		want string
	}{
		{"untouched", mockChem{targetKg: 10, afterwashKg: 5}, "Queued"},
		{"dispensing", mockChem{targetKg: 10, afterwashKg: 5, actualKg: 3}, "In Progress"},
		{"afterwash", mockChem{targetKg: 10, afterwashKg: 5, actualKg: 10, afterwashActKg: 2}, "In Progress"},
		{"done", mockChem{targetKg: 10, afterwashKg: 5, actualKg: 10, afterwashActKg: 5}, "Completed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.chem.state(); got != tt.want {
				t.Errorf("state() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStepReportsSubmitError(t *testing.T) {
	gen := NewGenerator(&recordingSubmitter{err: errors.New("boom")}, time.Hour)
	if err := gen.Step(); err == nil {
		t.Fatal("Step should fail when the submitter fails")
	}
}

func TestStartFeedsDashboard(t *testing.T) {
	svc, err := dashboard.NewService(dashboard.DefaultCategories)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	before := svc.Notifier().Version()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	NewGenerator(svc, 10*time.Millisecond).Start(ctx)

	// Start submits synchronously once.
	raw, _ := svc.Store().Get(RunningList)
	var running []any
	if err := json.Unmarshal(raw, &running); err != nil {
		t.Fatalf("Running List: %v", err)
	}
	if len(running) == 0 {
		t.Error("Running List should hold mock batches after Start")
	}

	deadline := time.After(2 * time.Second)
	for svc.Notifier().Version() < before+6 {
		select {
		case <-deadline:
			t.Fatalf("version = %d, want ticker to keep submitting", svc.Notifier().Version())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	sub := &recordingSubmitter{}
	ctx, cancel := context.WithCancel(context.Background())
	NewGenerator(sub, 5*time.Millisecond).Start(ctx)
	cancel()

	// Let an in-flight tick finish, then the count must stay put.
	time.Sleep(20 * time.Millisecond)
	n := sub.count()
	time.Sleep(30 * time.Millisecond)
	if got := sub.count(); got != n {
		t.Errorf("submissions continued after cancel: %d -> %d", n, got)
	}
}
