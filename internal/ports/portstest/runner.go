// Package portstest provides scripted fakes of the ports interfaces.
package portstest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/internal/ports"
)

// Exit codes reported for terminated fake processes.
const (
	ExitTerminated = 143
	ExitKilled     = 137
)

// Behavior scripts one fake process.
type Behavior struct {
	// ExitCode is reported when the process exits on its own.
	ExitCode int
	// Delay is how long the process runs before exiting on its own.
	Delay time.Duration
	// Forever keeps the process alive until it is terminated.
	Forever bool
	// IgnoreTerm makes polite termination a no-op.
	IgnoreTerm bool
	// StartErr fails Start.
	StartErr error
}

// Runner is a ports.Runner whose processes follow scripted behaviors,
// keyed by the command's script.
type Runner struct {
	mu        sync.Mutex
	scripts   map[string][]Behavior
	fallback  Behavior
	starts    []ports.Command
	perScript map[string]int
	running   map[string]int
	peak      map[string]int
}

// NewRunner creates a Runner whose unknown scripts exit 0 immediately.
func NewRunner() *Runner {
	return &Runner{
		scripts:   map[string][]Behavior{},
		perScript: map[string]int{},
		running:   map[string]int{},
		peak:      map[string]int{},
	}
}

// On scripts the successive runs of script. The last behavior repeats.
func (r *Runner) On(script string, seq ...Behavior) *Runner {
	r.mu.Lock()
	r.scripts[script] = seq
	r.mu.Unlock()
	return r
}

// Start implements ports.Runner.
func (r *Runner) Start(_ context.Context, cmd ports.Command) (ports.Handle, error) {
	r.mu.Lock()
	n := r.perScript[cmd.Script]
	r.perScript[cmd.Script] = n + 1
	b := r.fallback
	if seq := r.scripts[cmd.Script]; len(seq) > 0 {
		if n >= len(seq) {
			n = len(seq) - 1
		}
		b = seq[n]
	}
	r.starts = append(r.starts, cmd)
	if b.StartErr != nil {
		r.mu.Unlock()
		return nil, b.StartErr
	}
	r.running[cmd.Service]++
	if r.running[cmd.Service] > r.peak[cmd.Service] {
		r.peak[cmd.Service] = r.running[cmd.Service]
	}
	r.mu.Unlock()

	h := &Handle{done: make(chan struct{}), term: make(chan int, 2), behavior: b}
	go h.live(func() {
		r.mu.Lock()
		r.running[cmd.Service]--
		r.mu.Unlock()
	})
	return h, nil
}

// Starts returns how many times service's stage was started.
func (r *Runner) Starts(service, stage string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.starts {
		if c.Service == service && c.Stage == stage {
			n++
		}
	}
	return n
}

// Commands returns every started command in order.
func (r *Runner) Commands() []ports.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ports.Command(nil), r.starts...)
}

// Peak returns the highest number of simultaneously live processes of service.
func (r *Runner) Peak(service string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peak[service]
}

// Running returns the live processes of service.
func (r *Runner) Running(service string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running[service]
}

// Handle is a fake process.
type Handle struct {
	behavior Behavior
	done     chan struct{}
	term     chan int

	mu   sync.Mutex
	code int
}

func (h *Handle) live(onExit func()) {
	var natural <-chan time.Time
	if !h.behavior.Forever {
		timer := time.NewTimer(h.behavior.Delay)
		defer timer.Stop()
		natural = timer.C
	}
	code := h.behavior.ExitCode
	select {
	case <-natural:
	case code = <-h.term:
	}
	h.mu.Lock()
	h.code = code
	h.mu.Unlock()
	onExit()
	close(h.done)
}

// Wait implements ports.Handle.
func (h *Handle) Wait(timeout time.Duration) (int, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.code, nil
	case <-expired:
		return 0, domain.ErrTimeout
	}
}

// Terminate implements ports.Handle.
func (h *Handle) Terminate(force bool) error {
	if !h.Alive() {
		return errors.New("process already exited")
	}
	if !force && h.behavior.IgnoreTerm {
		return nil
	}
	code := ExitTerminated
	if force {
		code = ExitKilled
	}
	select {
	case h.term <- code:
	default:
	}
	return nil
}

// Alive implements ports.Handle.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

var _ ports.Runner = (*Runner)(nil)
var _ ports.Handle = (*Handle)(nil)
