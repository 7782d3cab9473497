package service

import (
	"context"
	"sync"
)

// Outcome is how a Task finished.
type Outcome int

// Task outcomes.
const (
	OutcomePending Outcome = iota
	OutcomeCompleted
	OutcomeForced
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeForced:
		return "forced"
	case OutcomeCanceled:
		return "canceled"
	}
	return "pending"
}

// Task is a future fulfilled exactly once by the goroutine owning the
// operation.
type Task struct {
	done    chan struct{}
	once    sync.Once
	outcome Outcome
	err     error
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

func (t *Task) complete(o Outcome, err error) {
	t.once.Do(func() {
		t.outcome = o
		t.err = err
		close(t.done)
	})
}

// Done is closed once the task has an outcome.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task completes or ctx is done. A ctx expiry
// leaves the task running and reports OutcomePending.
func (t *Task) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.outcome, t.err
	case <-ctx.Done():
		return OutcomePending, ctx.Err()
	}
}

// Outcome returns the outcome, or OutcomePending while running.
func (t *Task) Outcome() Outcome {
	select {
	case <-t.done:
		return t.outcome
	default:
		return OutcomePending
	}
}

// Err returns the task error once completed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}
