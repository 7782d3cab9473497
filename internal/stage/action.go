// Package stage turns a service's configuration into runnable lifecycle
// stage actions.
//
// Every stage (install, startup, run, shutdown, recover, bootstrap) is an
// [Action]. The concrete variant depends on the service's componentType,
// resolved through a [Registry]: "generic" services run shell scripts via a
// ports.Runner, "plugin" services call an in-process [Plugin].
package stage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bft-labs/edgevisor/internal/domain"
)

// Action is one execution of a lifecycle stage.
type Action interface {
	// Run executes the stage until it completes or ctx is done. ready is
	// called at most once, when a long-running stage is up.
	Run(ctx context.Context, ready func()) Result

	// Cancel forcibly interrupts a Run in progress.
	Cancel()
}

// Result is the outcome of Action.Run.
type Result struct {
	ExitCode int
	Err      error
}

// OK reports whether the stage succeeded.
func (r Result) OK() bool { return r.Err == nil && r.ExitCode == 0 }

// TimedOut reports whether the stage was stopped by its deadline.
func (r Result) TimedOut() bool { return errors.Is(r.Err, context.DeadlineExceeded) }

// Canceled reports whether the stage was interrupted by cancellation.
func (r Result) Canceled() bool { return errors.Is(r.Err, context.Canceled) }

// Set builds fresh actions for the stages a service defines.
type Set interface {
	Action(stage domain.Stage) (Action, bool)
}

// FuncAction runs an in-process function as a stage.
type FuncAction struct {
	fn func(ctx context.Context, ready func()) (int, error)

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewFunc wraps fn. Non-nil errors and non-zero codes both fail the stage.
func NewFunc(fn func(ctx context.Context, ready func()) (int, error)) *FuncAction {
	return &FuncAction{fn: fn}
}

// Run implements Action. Panics are recovered into the Result.
func (a *FuncAction) Run(ctx context.Context, ready func()) (res Result) {
	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()
	defer cancel()

	if ready == nil {
		ready = func() {}
	}

	defer func() {
		if r := recover(); r != nil {
			res = Result{ExitCode: -1, Err: fmt.Errorf("stage panic: %v", r)}
		}
	}()

	code, err := a.fn(runCtx, ready)
	if err == nil && runCtx.Err() != nil {
		err = runCtx.Err()
	}
	return Result{ExitCode: code, Err: err}
}

// Cancel implements Action.
func (a *FuncAction) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

var _ Action = (*FuncAction)(nil)
