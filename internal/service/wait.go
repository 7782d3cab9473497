package service

import (
	"context"
	"time"

	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/pkg/clock"
)

// WaitOutcome is the result of WaitFor.
type WaitOutcome int

// Wait outcomes.
const (
	WaitReached WaitOutcome = iota
	WaitTimedOut
	WaitOtherTerminal
	WaitCanceled
)

func (o WaitOutcome) String() string {
	switch o {
	case WaitReached:
		return "reached"
	case WaitTimedOut:
		return "timed-out"
	case WaitOtherTerminal:
		return "other-terminal"
	}
	return "canceled"
}

// WaitFor blocks until the service enters target. It gives up with
// WaitOtherTerminal when the service settles in a different terminal
// state during the wait, after timeout on the service clock (none when
// zero), or when ctx is done.
func (s *Service) WaitFor(ctx context.Context, target domain.State, timeout time.Duration) WaitOutcome {
	result := make(chan WaitOutcome, 1)
	report := func(o WaitOutcome) {
		select {
		case result <- o:
		default:
		}
	}
	cancel := s.AddStateSubscriber(func(ev domain.Event) {
		switch {
		case ev.New == target:
			report(WaitReached)
		case ev.New.IsTerminal():
			report(WaitOtherTerminal)
		}
	})
	defer cancel()

	if s.State() == target {
		return WaitReached
	}

	expired := clock.Timeout(s.env.Clock, timeout)
	select {
	case o := <-result:
		return o
	case <-expired:
		return WaitTimedOut
	case <-ctx.Done():
		return WaitCanceled
	}
}

// WaitStable waits for the service to leave every transient state.
func (s *Service) WaitStable(ctx context.Context, timeout time.Duration) (domain.State, bool) {
	expired := clock.Timeout(s.env.Clock, timeout)
	for {
		changed := s.changedChan()
		st := s.State()
		switch st {
		case domain.StateRunning, domain.StateFinished, domain.StateBroken:
			return st, true
		}
		select {
		case <-changed:
		case <-expired:
			return s.State(), false
		case <-ctx.Done():
			return s.State(), false
		}
	}
}
