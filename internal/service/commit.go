package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/internal/stage"
	"github.com/bft-labs/edgevisor/pkg/clock"
	"github.com/bft-labs/edgevisor/pkg/log"
)

// commit moves the service to `to` and publishes the event. Illegal edges
// are recorded as faults and leave the state unchanged.
func (s *Service) commit(to domain.State, failure *domain.Failure) bool {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	if s.forced {
		return false
	}

	from := s.State()
	if !domain.CanTransition(from, to) {
		s.faults.Add(1)
		s.logger.Error("illegal-transition",
			log.String("from", from.String()),
			log.String("to", to.String()),
			log.Err(domain.ErrIllegalTransition),
		)
		return false
	}

	s.mu.Lock()
	switch to {
	case domain.StateNew:
		s.generation.Add(1)
		s.pinned = nil
		s.reachedRunning = false
		s.runningOnce = false
		s.needReinstall = false
	case domain.StateStarting:
		s.generation.Add(1)
		s.reachedRunning = false
		s.stopFromError = false
		s.needRestart = false
	case domain.StateRunning:
		s.reachedRunning = true
		s.everRunning = true
		s.runningOnce = true
	case domain.StateStopping:
		s.stopFromError = from == domain.StateErrored
	}
	if failure != nil {
		s.lastFailure = failure
	}
	s.state.Store(int32(to))
	ev := domain.Event{
		Service:    s.name,
		Old:        from,
		New:        to,
		Time:       s.env.Clock.Now(),
		Seq:        s.seq.Add(1),
		Generation: s.generation.Load(),
		Failure:    failure,
	}
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()

	fields := []log.Field{
		log.Event("service-set-state"),
		log.String("from", from.String()),
		log.String("to", to.String()),
		log.Uint64("generation", ev.Generation),
	}
	if failure != nil {
		fields = append(fields, log.String("status", string(failure.Code)), log.Err(failure))
		s.logger.Warn("service-set-state", fields...)
	} else {
		s.logger.Info("service-set-state", fields...)
	}
	s.env.Bus.Publish(ev)
	return true
}

// forceFinish drives the service to FINISHED regardless of the stage in
// progress and stops the worker. Worker commits are refused from here on.
func (s *Service) forceFinish(cause error) bool {
	s.commitMu.Lock()
	if s.forced {
		s.commitMu.Unlock()
		return false
	}
	s.forced = true
	s.commitMu.Unlock()

	s.cancelWorker()
	s.cancelActive()
	if err := clock.WaitDone(context.Background(), s.env.Clock, s.done, s.env.ForceGrace); err != nil {
		s.logger.Error("worker-unresponsive", log.Duration("waited", s.env.ForceGrace))
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	from := s.State()
	if from.HasExited() {
		return false
	}

	failure := &domain.Failure{
		Stage: domain.StageShutdown,
		Code:  domain.StatusForcedShutdown,
		Cause: cause,
	}
	s.mu.Lock()
	s.lastFailure = failure
	s.state.Store(int32(domain.StateFinished))
	ev := domain.Event{
		Service:    s.name,
		Old:        from,
		New:        domain.StateFinished,
		Time:       s.env.Clock.Now(),
		Seq:        s.seq.Add(1),
		Generation: s.generation.Load(),
		Forced:     true,
		Failure:    failure,
	}
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()

	s.logger.Warn("shutdown-forced",
		log.Event("service-set-state"),
		log.String("from", from.String()),
		log.String("to", domain.StateFinished.String()),
		log.Err(cause),
	)
	s.env.Bus.Publish(ev)
	return true
}

// activeAction is a stage action currently executing.
type activeAction struct {
	stage  domain.Stage
	action stage.Action
	cancel context.CancelFunc
	ready  chan struct{}
	result chan stage.Result
}

// launch runs action in its own goroutine bounded by timeout (none when
// zero). The result is delivered once on the returned activeAction.
func (s *Service) launch(ctx context.Context, st domain.Stage, action stage.Action, timeout time.Duration, withReady bool) *activeAction {
	runCtx, cancel := clock.WithOptionalTimeout(ctx, timeout)
	a := &activeAction{
		stage:  st,
		action: action,
		cancel: cancel,
		ready:  make(chan struct{}),
		result: make(chan stage.Result, 1),
	}
	s.activeMu.Lock()
	s.active[a] = struct{}{}
	s.activeMu.Unlock()

	var ready func()
	if withReady {
		var once sync.Once
		ready = func() { once.Do(func() { close(a.ready) }) }
	}

	go func() {
		defer func() {
			cancel()
			s.activeMu.Lock()
			delete(s.active, a)
			s.activeMu.Unlock()
		}()
		res := func() (res stage.Result) {
			defer func() {
				if r := recover(); r != nil {
					res = stage.Result{ExitCode: -1, Err: fmt.Errorf("stage %s panic: %v", st, r)}
				}
			}()
			return action.Run(runCtx, ready)
		}()
		a.result <- res
	}()
	return a
}

// runStage runs a stage synchronously and returns its result. The stage
// is canceled when interrupt, if set, reports true after a wake.
func (s *Service) runStage(ctx context.Context, st domain.Stage, action stage.Action, timeout time.Duration, interrupt func() bool) stage.Result {
	a := s.launch(ctx, st, action, timeout, false)
	for {
		select {
		case res := <-a.result:
			return res
		case <-s.wake:
			if interrupt != nil && interrupt() {
				return s.stopActive(a)
			}
		case <-ctx.Done():
			return s.stopActive(a)
		}
	}
}

// stopActive cancels a and waits for it, escalating to a forced cancel.
func (s *Service) stopActive(a *activeAction) stage.Result {
	a.cancel()
	select {
	case res := <-a.result:
		return res
	case <-s.env.Clock.After(3 * s.env.Grace):
	}
	a.action.Cancel()
	select {
	case res := <-a.result:
		return res
	case <-s.env.Clock.After(s.env.Grace):
		s.logger.Error("stage-abandoned", log.String("stage", string(a.stage)))
		return stage.Result{ExitCode: -1, Err: context.Canceled}
	}
}

// stageActive reports whether an action of stage st is executing.
func (s *Service) stageActive(st domain.Stage) bool {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	for a := range s.active {
		if a.stage == st {
			return true
		}
	}
	return false
}

func (s *Service) cancelActive() {
	s.activeMu.Lock()
	actives := make([]*activeAction, 0, len(s.active))
	for a := range s.active {
		actives = append(actives, a)
	}
	s.activeMu.Unlock()
	for _, a := range actives {
		a.cancel()
		a.action.Cancel()
	}
}
