package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/machine-hub/server/internal/dashboard"
)

// State is the lifecycle position of an observer connection.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

const maxReadBytes = 512

var (
	errPeerGone   = errors.New("peer disconnected")
	errHubClosing = errors.New("hub closing")
)

type observer struct {
	conn     *websocket.Conn
	channel  Channel
	notifier *dashboard.Notifier
	remote   string

	writeTimeout time.Duration
	pingInterval time.Duration
	recorder     Recorder

	// seen is the notifier version the last sent message reflects.
	seen  uint64
	state atomic.Int32

	cancel context.CancelCauseFunc
}

func (o *observer) setState(s State) {
	o.state.Store(int32(s))
	slog.Debug("Observer state", "channel", o.channel.Name, "remote", o.remote, "state", s)
}

// readPump discards inbound frames and cancels the observer once the peer
// goes away.
func (o *observer) readPump() {
	defer o.cancel(errPeerGone)
	o.conn.SetReadLimit(maxReadBytes)
	for {
		if _, _, err := o.conn.NextReader(); err != nil {
			return
		}
	}
}

// pingLoop keeps idle connections alive. A failed ping ends the observer.
func (o *observer) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(o.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.conn.WriteControl(websocket.PingMessage, nil, o.deadline()); err != nil {
				o.cancel(fmt.Errorf("ping: %w", err))
				return
			}
		}
	}
}

// run sends the initial message if the channel has one and then one message
// per notifier change until ctx is done or a write fails.
func (o *observer) run(ctx context.Context) error {
	go o.readPump()

	o.setState(StateConnected)
	if o.channel.Initial {
		if err := o.send(); err != nil {
			return err
		}
	}

	o.setState(StateStreaming)
	if o.pingInterval > 0 {
		go o.pingLoop(ctx)
	}

	for {
		version, err := o.notifier.Wait(ctx, o.seen)
		if err != nil {
			return o.stop(context.Cause(ctx))
		}
		o.seen = version
		o.notifier.Clear()
		if err := o.send(); err != nil {
			return err
		}
	}
}

// stop ends the stream for cause. Only a server side shutdown sends a close
// frame; a peer that left or stopped answering gets none.
func (o *observer) stop(cause error) error {
	shutdown, err := endReason(cause)
	if shutdown {
		o.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
	return err
}

// endReason classifies why an observer context ended. It reports whether the
// server is shutting down and the error, if any, the observer failed with.
func endReason(cause error) (shutdown bool, err error) {
	switch {
	case errors.Is(cause, errPeerGone):
		return false, nil
	case errors.Is(cause, errHubClosing), errors.Is(cause, context.Canceled), errors.Is(cause, context.DeadlineExceeded):
		return true, nil
	}
	return false, cause
}

// deadline returns the write deadline for a new write. A non-positive write
// timeout means no deadline.
func (o *observer) deadline() time.Time {
	if o.writeTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(o.writeTimeout)
}

func (o *observer) send() error {
	msg, err := o.channel.Message()
	if err != nil {
		return fmt.Errorf("building %s message: %w", o.channel.Name, err)
	}
	_ = o.conn.SetWriteDeadline(o.deadline())
	if err := o.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	o.recorder.MessageSent(o.channel.Name)
	return nil
}

func (o *observer) closeWith(code int, text string) {
	deadline := time.Now().Add(time.Second)
	if o.writeTimeout > 0 && o.writeTimeout < time.Second {
		deadline = o.deadline()
	}
	err := o.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		slog.Debug("Failed to send close frame", "channel", o.channel.Name, "remote", o.remote, "err", err)
	}
}
