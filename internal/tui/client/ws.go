// Package client streams dashboard snapshots from the machine-hub backend
// into Bubble Tea messages.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

// WSClient manages the observer connection to /ws/dashboard or /ws/machines/.
type WSClient struct {
	url    string
	dialer *websocket.Dialer

	mu         sync.Mutex
	writeMu    sync.Mutex // serialises pings
	conn       *websocket.Conn
	pingCancel context.CancelFunc
	delay      time.Duration
}

// NewWSClient creates a client that connects to the given WebSocket URL.
func NewWSClient(url string) *WSClient {
	return &WSClient{url: url, dialer: websocket.DefaultDialer, delay: reconnectBaseDelay}
}

// --- Bubble Tea messages ---

// ConnectedMsg is sent when the WebSocket connects.
type ConnectedMsg struct{}

// DisconnectedMsg is sent when the connection drops.
type DisconnectedMsg struct{ Err error }

// SnapshotMsg carries the full dashboard state. Every snapshot replaces the
// previous one.
type SnapshotMsg struct {
	Categories map[string]json.RawMessage
	At         time.Time
}

// MachinesUpdatedMsg is sent for each machine_data_updated event.
type MachinesUpdatedMsg struct{ At time.Time }

// Listen returns a Bubble Tea command that connects, retrying with
// exponential backoff until ctx is done.
func (c *WSClient) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		for {
			conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
			if err == nil {
				c.attach(ctx, conn)
				return ConnectedMsg{}
			}
			if ctx.Err() != nil {
				return nil
			}

			c.mu.Lock()
			delay := c.delay
			c.delay = min(c.delay*2, reconnectMaxDelay)
			c.mu.Unlock()

			slog.Debug("ws dial failed", "url", c.url, "err", err, "retry_in", delay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
		}
	}
}

func (c *WSClient) attach(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pingCancel != nil {
		c.pingCancel()
	}
	pingCtx, cancel := context.WithCancel(ctx)
	c.conn = conn
	c.pingCancel = cancel
	c.delay = reconnectBaseDelay

	go c.pingLoop(pingCtx, conn)
}

// ReadLoop returns a Bubble Tea command that reads the next message. It
// should be started after ConnectedMsg and again after every message.
func (c *WSClient) ReadLoop(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return DisconnectedMsg{Err: errors.New("no connection")}
		}

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongTimeout))
		})
		_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.drop(conn)
				return DisconnectedMsg{Err: err}
			}

			msg, err := Decode(data, time.Now())
			if err != nil {
				slog.Debug("ignoring ws message", "err", err)
				continue
			}
			return msg
		}
	}
}

// Close drops the current connection.
func (c *WSClient) Close() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		c.drop(conn)
	}
}

func (c *WSClient) drop(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		if c.pingCancel != nil {
			c.pingCancel()
			c.pingCancel = nil
		}
	}
	c.mu.Unlock()
	conn.Close()
}

// pingLoop sends periodic pings on conn until ctx is done or a write fails.
func (c *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Decode turns one server message into a Bubble Tea message. The machines
// channel sends {"event": ...}; anything else must be a dashboard snapshot.
func Decode(data []byte, at time.Time) (tea.Msg, error) {
	var event struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(data, &event); err == nil && event.Event == "machine_data_updated" {
		return MachinesUpdatedMsg{At: at}, nil
	}

	var categories map[string]json.RawMessage
	if err := json.Unmarshal(data, &categories); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if categories == nil {
		return nil, errors.New("decoding snapshot: null")
	}
	return SnapshotMsg{Categories: categories, At: at}, nil
}

// Summary describes a category payload: whether it is a list and how many
// entries or keys it has.
func Summary(raw json.RawMessage) (isList bool, size int) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		_ = json.Unmarshal(trimmed, &items)
		return true, len(items)
	}
	var fields map[string]json.RawMessage
	_ = json.Unmarshal(trimmed, &fields)
	return false, len(fields)
}
