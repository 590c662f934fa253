// Package mock produces sample dispenser telemetry and feeds it through the
// dashboard intake, so the dashboard and its observers can be exercised
// without real machines.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/machine-hub/server/internal/dashboard"
)

// Function codes the generator reports.
const (
	RunningList = "Running List"
	WaitingList = "Waiting List"
	FlowDetails = "Flow details"
)

const (
	maxRunning = 2
	minWaiting = 3
)

// Submitter accepts one submission per function code.
type Submitter interface {
	Submit(functionCode string, data json.RawMessage) (dashboard.Ack, error)
}

type stage int

const (
	waiting stage = iota
	running
	done
)

type mockChem struct {
	recordID       int
	chemID         int
	name           string
	targetKg       float64
	afterwashKg    float64
	actualKg       float64
	afterwashActKg float64
	ratePerTick    float64
}

func (c *mockChem) complete() bool {
	return c.actualKg >= c.targetKg && c.afterwashActKg >= c.afterwashKg
}

func (c *mockChem) state() string {
	switch {
	case c.complete():
		return "Completed"
	case c.actualKg > 0:
		return "In Progress"
	}
	return "Queued"
}

type mockBatch struct {
	id          int
	name        string
	machineID   int
	machineName string
	tankID      int
	tankName    string
	fabricKg    int
	mlr         int
	requestedAt time.Time
	stage       stage
	chems       []*mockChem
}

var chemicals = []struct {
	id   int
	name string
}{
	{105, "Sodium Hydroxide"},
	{106, "Sulfuric Acid"},
	{107, "Hydrogen Peroxide"},
	{108, "Acetic Acid"},
	{999, "NaCl"},
}

var machines = []string{"DD Machine", "IR Machine", "Jet Dyer", "Soft Flow"}

// Generator advances a small population of batches through the waiting and
// running lists on every tick.
type Generator struct {
	submitter Submitter
	interval  time.Duration
	now       func() time.Time

	mu         sync.Mutex
	rng        *rand.Rand
	batches    []*mockBatch
	nextID     int
	meterTotal int
	tick       int
}

func NewGenerator(submitter Submitter, interval time.Duration) *Generator {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Generator{
		submitter: submitter,
		interval:  interval,
		now:       time.Now,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		nextID:    110,
	}
}

// Start seeds the batches, submits the first state and keeps submitting on
// every interval until ctx is done.
func (g *Generator) Start(ctx context.Context) {
	if err := g.Step(); err != nil {
		slog.Warn("Mock submission failed", "err", err)
	}
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.Step(); err != nil {
				slog.Warn("Mock submission failed", "err", err)
			}
		}
	}
}

// Step advances every batch by one tick and submits the three function codes.
func (g *Generator) Step() error {
	g.mu.Lock()
	g.advance()
	payloads := []struct {
		code string
		data any
	}{
		{RunningList, g.runningList()},
		{WaitingList, g.waitingList()},
		{FlowDetails, g.flowDetails()},
	}
	g.mu.Unlock()

	for _, p := range payloads {
		data, err := json.Marshal(p.data)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", p.code, err)
		}
		if _, err := g.submitter.Submit(p.code, data); err != nil {
			return fmt.Errorf("submitting %s: %w", p.code, err)
		}
	}
	return nil
}

func (g *Generator) advance() {
	g.tick++

	live := g.batches[:0]
	for _, b := range g.batches {
		if b.stage == running {
			g.dispense(b)
		}
		if b.stage != done {
			live = append(live, b)
		}
	}
	g.batches = live

	g.refill()
	for g.count(running) < maxRunning {
		g.first(waiting).stage = running
		g.refill()
	}
}

func (g *Generator) refill() {
	for g.count(waiting) < minWaiting {
		g.batches = append(g.batches, g.newBatch())
	}
}

// dispense moves the first unfinished chemical of b forward. A batch is done
// once every chemical and its afterwash reached the target weight.
func (g *Generator) dispense(b *mockBatch) {
	for _, c := range b.chems {
		if c.complete() {
			continue
		}
		step := c.ratePerTick * (0.8 + 0.4*g.rng.Float64())
		if c.actualKg < c.targetKg {
			c.actualKg = min(c.targetKg, c.actualKg+step)
		} else {
			c.afterwashActKg = min(c.afterwashKg, c.afterwashActKg+step)
		}
		g.meterTotal += int(step * 10)
		return
	}
	b.stage = done
}

func (g *Generator) count(s stage) int {
	n := 0
	for _, b := range g.batches {
		if b.stage == s {
			n++
		}
	}
	return n
}

func (g *Generator) first(s stage) *mockBatch {
	for _, b := range g.batches {
		if b.stage == s {
			return b
		}
	}
	return nil
}

func (g *Generator) newBatch() *mockBatch {
	id := g.nextID
	g.nextID++

	b := &mockBatch{
		id:          id,
		name:        fmt.Sprintf("Batch %d", id),
		machineID:   10 + g.rng.Intn(40),
		machineName: machines[g.rng.Intn(len(machines))],
		tankID:      200 + g.rng.Intn(50),
		fabricKg:    50 + 10*g.rng.Intn(20),
		mlr:         6 + g.rng.Intn(5),
		requestedAt: g.now(),
	}
	b.tankName = fmt.Sprintf("Tank-%d", b.tankID)

	for i := range 1 + g.rng.Intn(3) {
		chem := chemicals[g.rng.Intn(len(chemicals))]
		target := float64(10 + g.rng.Intn(40))
		b.chems = append(b.chems, &mockChem{
			recordID:    id*10 + i,
			chemID:      chem.id,
			name:        chem.name,
			targetKg:    target,
			afterwashKg: float64(5 + g.rng.Intn(10)),
			ratePerTick: target / 4,
		})
	}
	return b
}

func (g *Generator) runningList() []map[string]any {
	list := []map[string]any{}
	for _, b := range g.batches {
		if b.stage != running {
			continue
		}
		list = append(list, map[string]any{
			"batch_id":               b.id,
			"batch_name":             b.name,
			"machine_name":           b.machineName,
			"tank_id":                b.tankID,
			"tank_name":              b.tankName,
			"request_from":           "IR Machine",
			"request_date_time":      b.requestedAt.Format(time.RFC3339),
			"selected_flow_meter_id": 502,
			"selected_out_number":    1 + b.id%2,
			"ChemRecords":            runningChems(b),
		})
	}
	return list
}

func runningChems(b *mockBatch) []map[string]any {
	records := make([]map[string]any, 0, len(b.chems))
	for i, c := range b.chems {
		status := "Pending"
		if c.complete() {
			status = "Reported"
		}
		records = append(records, map[string]any{
			"index":                   i + 1,
			"record_id":               c.recordID,
			"group_no":                1,
			"seq_no":                  i + 1,
			"chem_id":                 c.chemID,
			"chem_name":               c.name,
			"chem_target_weight":      c.targetKg,
			"afterwash_target_weight": c.afterwashKg,
			"chem_acutal_weight":      round(c.actualKg),
			"afterwash_actual_weight": round(c.afterwashActKg),
			"current_state":           c.state(),
			"current_report_status":   status,
		})
	}
	return records
}

func (g *Generator) waitingList() []map[string]any {
	list := []map[string]any{}
	for _, b := range g.batches {
		if b.stage != waiting {
			continue
		}
		records := make([]map[string]any, 0, len(b.chems))
		for i, c := range b.chems {
			records = append(records, map[string]any{
				"BatchID":          b.id,
				"RecordID":         c.recordID,
				"GroupNo":          1,
				"SeqNo":            i + 1,
				"ChemID":           c.chemID,
				"ChemName":         c.name,
				"TankID":           b.tankID,
				"Chem_TW_Kg":       c.targetKg,
				"Chem_AW_Kg":       0,
				"AWash_TW_Kg":      c.afterwashKg,
				"AWash_AW_Kg":      0,
				"Staus":            "Queued",
				"DispenseMachine":  "DD",
				"RequestType":      "Auto",
				"UserName":         "Admin",
				"Request_From":     "Scheduler",
				"Request_DateTime": b.requestedAt.Format(time.RFC3339),
			})
		}
		list = append(list, map[string]any{
			"BatchID":      b.id,
			"BatchName":    b.name,
			"FabricWt":     fmt.Sprintf("%dkg", b.fabricKg),
			"MLR":          fmt.Sprintf("1:%d", b.mlr),
			"MachineID":    b.machineID,
			"Chem_Records": records,
		})
	}
	return list
}

// flowDetails reports the flow meter serving the oldest running batch. With
// nothing running the meter is idle and Flow_Request is empty.
func (g *Generator) flowDetails() map[string]any {
	b := g.first(running)
	state := map[string]any{
		"FlowMeterID":           1,
		"FlowSystemEnabled":     true,
		"Out1_Enabled":          true,
		"Out2_Enabled":          false,
		"OperationMode":         "Auto",
		"ProcessState":          "Idle",
		"ProcessState_SubState": 0,
		"IsAirOut1Busy":         false,
		"IsAirOut2Busy":         false,
		"FlowMeterReading":      g.meterTotal,
		"NACKCode":              "None",
	}
	details := map[string]any{"FlowState": state, "Flow_Request": map[string]any{}}
	if b == nil {
		return details
	}

	state["ProcessState"] = "Running"
	state["ProcessState_SubState"] = 1 + g.tick%3
	state["IsAirOut1Busy"] = g.tick%2 == 0
	details["Flow_Request"] = map[string]any{
		"batch_id":               b.id,
		"batch_name":             b.name,
		"machine_id":             b.machineID,
		"machine_name":           b.machineName,
		"tank_id":                b.tankID,
		"tank_name":              b.tankName,
		"request_from":           "IR Machine",
		"request_date_time":      b.requestedAt.Format(time.RFC3339),
		"selected_flow_meter_id": 502,
		"selected_out_number":    1 + b.id%2,
		"ChemRecords":            runningChems(b),
	}
	return details
}

func round(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
