package ws

import (
	"encoding/json"

	"github.com/machine-hub/server/internal/dashboard"
)

// EventMachineDataUpdated tells machine list observers to refetch.
const EventMachineDataUpdated = "machine_data_updated"

// Event is the payload sent on the machines channel.
type Event struct {
	Event string `json:"event"`
}

// Channel describes what an observer receives: whether it gets a message
// right after connecting, and how each message is built.
type Channel struct {
	Name    string
	Initial bool
	Message func() ([]byte, error)
}

// DashboardChannel streams the full store on open and after every change.
func DashboardChannel(store *dashboard.Store) Channel {
	return Channel{
		Name:    "dashboard",
		Initial: true,
		Message: store.Snapshot,
	}
}

// MachinesChannel streams a bare change event after every change.
func MachinesChannel() Channel {
	data, _ := json.Marshal(Event{Event: EventMachineDataUpdated})
	return Channel{
		Name: "machines",
		Message: func() ([]byte, error) {
			return data, nil
		},
	}
}
