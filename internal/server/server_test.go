package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/machine-hub/server/internal/api"
	"github.com/machine-hub/server/internal/dashboard"
	"github.com/machine-hub/server/internal/entity"
	"github.com/machine-hub/server/internal/imaging"
	"github.com/machine-hub/server/internal/metrics"
	"github.com/machine-hub/server/internal/ws"
)

type running struct {
	base string
	svc  *dashboard.Service
	stop context.CancelFunc
	done chan error
}

func start(t *testing.T) *running {
	t.Helper()

	svc, err := dashboard.NewService(dashboard.DefaultCategories)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	m := metrics.New()
	hub := ws.NewHub(svc.Notifier(), ws.WithRecorder(m))
	static := t.TempDir()
	rest := api.New(svc, entity.NewMemory(), imaging.NewCompressor(static+"/images", 800, 75), m, hub,
		api.Config{MaxBodyBytes: 1 << 20, StaticDir: static})

	ctx, cancel := context.WithCancel(context.Background())
	handler := NewHandler(rest, ws.NewServer(ctx, hub, svc, nil))
	srv := New(Config{ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second, ShutdownTimeout: 2 * time.Second}, handler, hub)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		cancel()
		t.Fatalf("listen: %v", err)
	}

	r := &running{base: ln.Addr().String(), svc: svc, stop: cancel, done: make(chan error, 1)}
	go func() { r.done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		<-r.done
	})
	return r
}

func (r *running) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+r.base+path, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return msg
}

func TestSubmitReachesObservers(t *testing.T) {
	r := start(t)
	dash := r.dial(t, "/ws/dashboard")
	machines := r.dial(t, "/ws/machines/")

	initial := readMessage(t, dash)
	if got := initial["Running List"]; got == nil {
		t.Fatalf("initial snapshot missing Running List: %v", initial)
	}

	body := `{"functionCode":"Running List","data":[{"batch_id":110}]}`
	resp, err := http.Post("http://"+r.base+"/submit/", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /submit/: %v", err)
	}
	ack, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /submit/ = %d: %s", resp.StatusCode, ack)
	}

	msg := readMessage(t, dash)
	list, ok := msg["Running List"].([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("Running List = %v, want one batch", msg["Running List"])
	}
	if _, ok := msg["Waiting List"]; !ok {
		t.Errorf("streamed snapshot should carry every category: %v", msg)
	}

	event := readMessage(t, machines)
	if event["event"] != ws.EventMachineDataUpdated {
		t.Errorf("machines event = %v, want %q", event["event"], ws.EventMachineDataUpdated)
	}
}

func TestRESTAndCORSOnSameListener(t *testing.T) {
	r := start(t)

	req, err := http.NewRequest(http.MethodGet, "http://"+r.base+"/get_dashboard/", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Origin", "http://dashboard.example")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /get_dashboard/: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://dashboard.example" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestShutdownClosesObservers(t *testing.T) {
	r := start(t)
	conn := r.dial(t, "/ws/dashboard")
	readMessage(t, conn)

	r.stop()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read after shutdown = %v, want going away close", err)
	}

	select {
	case err := <-r.done:
		if err != nil {
			t.Errorf("Serve returned %v, want nil", err)
		}
		r.done <- nil
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	if _, err := http.Get("http://" + r.base + "/"); err == nil {
		t.Error("listener should be closed after shutdown")
	}
}

func TestRunFailsOnBadAddress(t *testing.T) {
	svc, err := dashboard.NewService(dashboard.DefaultCategories)
	if err != nil {
		t.Fatal(err)
	}
	srv := New(Config{Addr: "256.0.0.1:bad"}, http.NotFoundHandler(), ws.NewHub(svc.Notifier()))
	if err := srv.Run(context.Background()); err == nil {
		t.Fatal("Run should fail to listen on an invalid address")
	}
}
