package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestDecode(t *testing.T) {
	at := time.Now()
	tests := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{name: "snapshot", data: `{"Running List":[],"Flow details":{}}`, want: "snapshot"},
		{name: "machines event", data: `{"event":"machine_data_updated"}`, want: "machines"},
		{name: "category named event", data: `{"event":[1]}`, want: "snapshot"},
		{name: "not an object", data: `[1,2]`, wantErr: true},
		{name: "null", data: `null`, wantErr: true},
		{name: "garbage", data: `{`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.data), at)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Decode(%s) = %#v, want error", tt.data, msg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode(%s): %v", tt.data, err)
			}
			switch msg.(type) {
			case SnapshotMsg:
				if tt.want != "snapshot" {
					t.Errorf("got snapshot, want %s", tt.want)
				}
			case MachinesUpdatedMsg:
				if tt.want != "machines" {
					t.Errorf("got machines event, want %s", tt.want)
				}
			default:
				t.Errorf("unexpected message %T", msg)
			}
		})
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		raw      string
		wantList bool
		wantSize int
	}{
		{`[]`, true, 0},
		{` [{"a":1},{"b":2}]`, true, 2},
		{`{}`, false, 0},
		{`{"FlowState":{},"Flow_Request":{}}`, false, 2},
	}
	for _, tt := range tests {
		isList, size := Summary(json.RawMessage(tt.raw))
		if isList != tt.wantList || size != tt.wantSize {
			t.Errorf("Summary(%s) = (%v, %d), want (%v, %d)", tt.raw, isList, size, tt.wantList, tt.wantSize)
		}
	}
}

func TestListenAndRead(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"Running List":[{"batch_id":110}]}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"machine_data_updated"}`))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewWSClient("ws" + strings.TrimPrefix(srv.URL, "http"))
	defer c.Close()

	if _, ok := c.Listen(ctx)().(ConnectedMsg); !ok {
		t.Fatal("Listen should connect")
	}

	snap, ok := c.ReadLoop(ctx)().(SnapshotMsg)
	if !ok {
		t.Fatal("first message should be a snapshot")
	}
	if _, ok := snap.Categories["Running List"]; !ok {
		t.Errorf("snapshot = %v", snap.Categories)
	}

	if _, ok := c.ReadLoop(ctx)().(MachinesUpdatedMsg); !ok {
		t.Error("malformed messages are skipped and the event is delivered")
	}

	disc, ok := c.ReadLoop(ctx)().(DisconnectedMsg)
	if !ok {
		t.Fatal("close frame should disconnect")
	}
	if !websocket.IsCloseError(disc.Err, websocket.CloseGoingAway) {
		t.Errorf("disconnect err = %v", disc.Err)
	}

	if _, ok := c.ReadLoop(ctx)().(DisconnectedMsg); !ok {
		t.Error("reading without a connection reports a disconnect")
	}
}

func TestListenStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewWSClient("ws://127.0.0.1:1/ws/dashboard")

	done := make(chan any, 1)
	go func() { done <- c.Listen(ctx)() }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case msg := <-done:
		if msg != nil {
			t.Errorf("Listen returned %#v after cancel, want nil", msg)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Listen did not stop after cancel")
	}
}
