package edgevisor

import (
	"errors"
	"sync"

	"github.com/bft-labs/edgevisor/pkg/log"
)

var (
	// ErrAlreadyRunning is returned by Start on a started instance.
	ErrAlreadyRunning = errors.New("edgevisor: already running")

	// ErrNotRunning is returned by Stop on an instance that is not running.
	ErrNotRunning = errors.New("edgevisor: not running")
)

// RunState is the state of an Edgevisor instance as a whole.
type RunState int

const (
	RunStopped RunState = iota
	RunStarting
	RunRunning
	RunStopping
	RunFailed
)

// String returns a human-readable representation of the state.
func (s RunState) String() string {
	switch s {
	case RunStopped:
		return "Stopped"
	case RunStarting:
		return "Starting"
	case RunRunning:
		return "Running"
	case RunStopping:
		return "Stopping"
	case RunFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// runState guards Start and Stop. An instance runs once. A failed instance
// may still be stopped.
type runState struct {
	mu      sync.RWMutex
	state   RunState
	started bool
	logger  log.Logger
}

func (r *runState) get() RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// to moves to next when the current state allows it.
func (r *runState) to(next RunState, reason string) error {
	r.mu.Lock()
	prev := r.state
	switch {
	case prev == RunStopped && next == RunStarting && !r.started:
		r.started = true
	case prev == RunStarting && (next == RunRunning || next == RunFailed):
	case (prev == RunRunning || prev == RunFailed) && next == RunStopping:
	case prev == RunStopping && (next == RunStopped || next == RunFailed):
	case next == RunStarting:
		r.mu.Unlock()
		return ErrAlreadyRunning
	default:
		r.mu.Unlock()
		return ErrNotRunning
	}
	r.state = next
	r.mu.Unlock()

	r.logger.Info("run-state",
		log.String("from", prev.String()),
		log.String("to", next.String()),
		log.String("reason", reason))
	return nil
}
