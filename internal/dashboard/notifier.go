package dashboard

import (
	"context"
	"sync"
)

// Notifier is a broadcast change signal. Every Raise bumps a version counter
// and closes the channel current waiters are parked on, so all of them wake.
//
// Waiters track the last version they acted on. A waiter that was slow to be
// scheduled and missed a raise/clear pulse still sees the bumped version on its
// next Wait and returns immediately.
type Notifier struct {
	mu      sync.Mutex
	version uint64
	raised  bool
	wake    chan struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{wake: make(chan struct{})}
}

// Raise sets the signal and releases every current waiter.
func (n *Notifier) Raise() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.version++
	n.raised = true
	close(n.wake)
	n.wake = make(chan struct{})
}

// Clear resets the signal. Waiters already released are unaffected.
func (n *Notifier) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.raised = false
}

// Raised reports whether the signal is currently set.
func (n *Notifier) Raised() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.raised
}

// Version returns the number of raises so far.
func (n *Notifier) Version() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.version
}

// Wait blocks until the notifier is raised past version seen or ctx is done.
// It returns the version observed on wake. Wait never clears the signal.
func (n *Notifier) Wait(ctx context.Context, seen uint64) (uint64, error) {
	for {
		n.mu.Lock()
		version, wake := n.version, n.wake
		n.mu.Unlock()
		if version != seen {
			return version, nil
		}

		select {
		case <-wake:
		case <-ctx.Done():
			return seen, ctx.Err()
		}
	}
}
