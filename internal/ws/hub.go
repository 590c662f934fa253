package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/machine-hub/server/internal/dashboard"
)

var (
	// ErrTooManyConnections is returned when the observer limit is reached.
	ErrTooManyConnections = errors.New("too many websocket connections")
	// ErrHubClosed is returned when serving a connection after Close.
	ErrHubClosed = errors.New("websocket hub closed")
)

// Recorder receives observer lifecycle events, typically for metrics.
type Recorder interface {
	ObserverOpened(channel string)
	ObserverClosed(channel string)
	MessageSent(channel string)
}

type noopRecorder struct{}

func (noopRecorder) ObserverOpened(string) {}
func (noopRecorder) ObserverClosed(string) {}
func (noopRecorder) MessageSent(string)    {}

// Hub tracks every open observer and streams notifier changes to them.
type Hub struct {
	mu        sync.RWMutex
	observers map[*observer]struct{}
	closed    bool
	wg        sync.WaitGroup

	notifier     *dashboard.Notifier
	maxConns     int
	writeTimeout time.Duration
	pingInterval time.Duration
	recorder     Recorder
}

type options struct {
	maxConns     int
	writeTimeout time.Duration
	pingInterval time.Duration
	recorder     Recorder
}

// Option overrides a Hub default.
type Option func(*options)

// WithMaxConnections caps the number of concurrent observers. Zero means no cap.
func WithMaxConnections(n int) Option {
	return func(o *options) { o.maxConns = n }
}

// WithWriteTimeout sets the deadline applied to every write. Zero disables
// write deadlines.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.writeTimeout = d }
}

// WithPingInterval sets how often idle observers are pinged. Zero disables pings.
func WithPingInterval(d time.Duration) Option {
	return func(o *options) { o.pingInterval = d }
}

// WithRecorder sets the lifecycle event recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// NewHub returns a hub that wakes its observers on notifier changes.
func NewHub(notifier *dashboard.Notifier, args ...Option) *Hub {
	opts := options{
		writeTimeout: 10 * time.Second,
		pingInterval: 30 * time.Second,
		recorder:     noopRecorder{},
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Hub{
		observers:    make(map[*observer]struct{}),
		notifier:     notifier,
		maxConns:     opts.maxConns,
		writeTimeout: opts.writeTimeout,
		pingInterval: opts.pingInterval,
		recorder:     opts.recorder,
	}
}

// Serve streams ch over conn until the peer disconnects, a write fails, ctx is
// done or the hub is closed. It takes ownership of conn and closes it.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, ch Channel) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	o := &observer{
		conn:         conn,
		channel:      ch,
		notifier:     h.notifier,
		remote:       conn.RemoteAddr().String(),
		writeTimeout: h.writeTimeout,
		pingInterval: h.pingInterval,
		recorder:     h.recorder,
		cancel:       cancel,
	}
	// Anything raised after this point reaches the observer.
	o.seen = h.notifier.Version()

	if err := h.add(o); err != nil {
		code := websocket.CloseTryAgainLater
		if errors.Is(err, ErrHubClosed) {
			code = websocket.CloseGoingAway
		}
		o.closeWith(code, err.Error())
		conn.Close()
		return err
	}
	defer h.remove(o)

	slog.Info("Observer connected", "channel", ch.Name, "remote", o.remote)
	err := o.run(ctx)
	o.setState(StateClosed)
	conn.Close()

	if err != nil {
		slog.Info("Observer disconnected", "channel", ch.Name, "remote", o.remote, "err", err)
	} else {
		slog.Info("Observer disconnected", "channel", ch.Name, "remote", o.remote)
	}
	return err
}

func (h *Hub) add(o *observer) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	if h.maxConns > 0 && len(h.observers) >= h.maxConns {
		return ErrTooManyConnections
	}
	h.observers[o] = struct{}{}
	h.wg.Add(1)
	h.recorder.ObserverOpened(o.channel.Name)
	return nil
}

func (h *Hub) remove(o *observer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.observers[o]; !ok {
		return
	}
	delete(h.observers, o)
	h.recorder.ObserverClosed(o.channel.Name)
	h.wg.Done()
}

// Count returns the number of open observers on the named channel, or on
// every channel when name is empty.
func (h *Hub) Count(name string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if name == "" {
		return len(h.observers)
	}
	n := 0
	for o := range h.observers {
		if o.channel.Name == name {
			n++
		}
	}
	return n
}

// Close stops accepting observers, cancels the open ones and waits for them
// to finish or for ctx to be done.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	for o := range h.observers {
		o.cancel(errHubClosing)
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
