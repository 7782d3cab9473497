package service

import (
	"context"
	"errors"

	"github.com/bft-labs/edgevisor/internal/config"
	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/internal/stage"
	"github.com/bft-labs/edgevisor/pkg/log"
)

// loop is the lifecycle worker. One runs per service once it is first
// requested; it exits after Close once the service has come to rest.
func (s *Service) loop(ctx context.Context) {
	defer close(s.done)
	s.logger.Debug("worker-started")
	defer s.logger.Debug("worker-stopped")

	for {
		if ctx.Err() != nil || s.exitable() {
			return
		}
		switch s.State() {
		case domain.StateNew:
			s.handleNew(ctx)
		case domain.StateInstalled, domain.StateFinished:
			s.handleIdle(ctx)
		case domain.StateStarting:
			s.handleStarting(ctx)
		case domain.StateRunning:
			s.handleRunning(ctx)
		case domain.StateStopping:
			s.handleStopping(ctx)
		case domain.StateErrored:
			s.handleErrored(ctx)
		case domain.StateBroken:
			s.handleBroken(ctx)
		}
	}
}

func (s *Service) exitable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed && s.State().HasExited()
}

// absorb folds the highest pending intent into the desired state.
func (s *Service) absorb() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.pending.take() {
	case intentStop:
		s.desired = goalFinished
		s.needRestart = false
		s.needReinstall = false
	case intentReinstall:
		s.desired = goalRunning
		s.needReinstall = true
	case intentRestart:
		s.desired = goalRunning
		s.needRestart = true
	case intentStart:
		s.desired = goalRunning
	}
	if s.closed {
		s.desired = goalFinished
		s.needRestart = false
		s.needReinstall = false
	}
}

func (s *Service) interrupting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed || s.pending.interrupting()
}

func (s *Service) stopPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed || s.pending.stop
}

// sleep blocks until the worker is poked or stopped.
func (s *Service) sleep(ctx context.Context) {
	select {
	case <-s.wake:
	case <-ctx.Done():
	}
}

type intentions struct {
	desired   goal
	restart   bool
	reinstall bool
	closed    bool
}

func (s *Service) intentions() intentions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return intentions{desired: s.desired, restart: s.needRestart, reinstall: s.needReinstall, closed: s.closed}
}

func (s *Service) setDesired(g goal) {
	s.mu.Lock()
	s.desired = g
	s.mu.Unlock()
}

func (s *Service) setFailure(f *domain.Failure) {
	s.mu.Lock()
	s.lastFailure = f
	s.mu.Unlock()
}

// snapshot pins the configuration used for one transition.
type snapshot struct {
	spec config.Spec
	set  stage.Set
	err  error
}

// snapshot takes the latest spec. A pinned set is resolved once and reused
// until the next entry to NEW.
func (s *Service) snapshot() snapshot {
	spec := s.Spec()
	if err := s.configError(); err != nil {
		return snapshot{spec: spec, err: err}
	}

	s.resolveMu.Lock()
	defer s.resolveMu.Unlock()
	s.mu.Lock()
	set := s.pinned
	s.mu.Unlock()
	if set != nil {
		return snapshot{spec: spec, set: set}
	}

	set, err := s.env.Registry.Resolve(spec, stage.Deps{
		Runner: s.env.Runner,
		Grace:  s.env.Grace,
		Logger: s.logger,
		Clock:  s.env.Clock,
	})
	if err != nil {
		return snapshot{spec: spec, err: err}
	}
	if stage.IsPinned(set) {
		s.mu.Lock()
		s.pinned = set
		s.mu.Unlock()
	}
	return snapshot{spec: spec, set: set}
}

func (sn snapshot) action(st domain.Stage) (stage.Action, bool) {
	if sn.set == nil {
		return nil, false
	}
	return sn.set.Action(st)
}

func configFailure(st domain.Stage, err error) *domain.Failure {
	code := st.ConfigCode()
	var se *config.SpecError
	if errors.As(err, &se) && se.Code != "" {
		code = se.Code
	}
	return &domain.Failure{Stage: st, Code: code, Cause: err}
}

func stageFailure(st domain.Stage, res stage.Result) *domain.Failure {
	if res.TimedOut() {
		return &domain.Failure{Stage: st, Code: st.TimeoutCode(), ExitCode: res.ExitCode, Cause: res.Err}
	}
	return &domain.Failure{Stage: st, Code: st.ErrorCode(), ExitCode: res.ExitCode, Cause: res.Err}
}

func isConfigFailure(f *domain.Failure) bool {
	return f != nil && errors.Is(f.Cause, domain.ErrInvalidConfig)
}

func (s *Service) handleNew(ctx context.Context) {
	s.absorb()
	in := s.intentions()
	if in.desired != goalRunning {
		s.sleep(ctx)
		return
	}
	if in.reinstall {
		s.mu.Lock()
		s.needReinstall = false
		s.mu.Unlock()
	}

	if retry := s.install(ctx); !retry {
		return
	}

	delay := s.backoff.Next()
	s.logger.Info("install-retry", log.Duration("delay", delay))
	for {
		select {
		case <-s.env.Clock.After(delay):
			return
		case <-s.wake:
			if s.stopPending() {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// install runs the install stage and reports whether it should be retried.
func (s *Service) install(ctx context.Context) (retry bool) {
	s.inflight.Lock()
	defer s.inflight.Unlock()

	snap := s.snapshot()
	if snap.err != nil {
		s.commit(domain.StateBroken, configFailure(domain.StageInstall, snap.err))
		return false
	}
	action, ok := snap.action(domain.StageInstall)
	if !ok {
		s.errors.reset(domain.StageInstall)
		s.commit(domain.StateInstalled, nil)
		return false
	}

	res := s.runStage(ctx, domain.StageInstall, action, snap.spec.Timeout(domain.StageInstall), s.stopPending)
	switch {
	case res.OK():
		s.errors.reset(domain.StageInstall)
		s.backoff.Reset()
		s.commit(domain.StateInstalled, nil)
		return false
	case res.Canceled():
		return false
	}

	f := stageFailure(domain.StageInstall, res)
	n := s.errors.record(domain.StageInstall, s.env.Clock.Now(), snap.spec.ErrorResetTime)
	budget := snap.spec.RetryBudget(domain.StageInstall)
	if n >= budget {
		s.commit(domain.StateBroken, f)
		return false
	}
	s.setFailure(f)
	s.logger.Warn("install-failed",
		log.String("status", string(f.Code)),
		log.Int("attempt", n),
		log.Int("budget", budget),
		log.Err(f),
	)
	return true
}

// handleIdle drives INSTALLED and FINISHED: back to NEW on reinstall, or
// on to STARTING once requested and dependencies allow it.
func (s *Service) handleIdle(ctx context.Context) {
	s.absorb()
	in := s.intentions()
	if in.reinstall {
		s.commit(domain.StateNew, nil)
		return
	}
	if in.desired != goalRunning {
		s.sleep(ctx)
		return
	}

	s.mu.Lock()
	initial := !s.runningOnce
	s.mu.Unlock()
	if ok, blocker := s.deps.ready(initial); !ok {
		if blocker != s.lastBlocker {
			s.lastBlocker = blocker
			s.logger.Info("waiting-for-dependency", log.String("dependency", blocker))
		}
		s.sleep(ctx)
		return
	}
	s.lastBlocker = ""

	snap := s.snapshot()
	if snap.err != nil {
		s.logger.Error("config-invalid", log.Err(snap.err))
		s.commit(domain.StateNew, nil)
		return
	}
	s.applyLimits(snap.spec)
	s.commit(domain.StateStarting, nil)
}

func (s *Service) handleStarting(ctx context.Context) {
	s.inflight.Lock()
	defer s.inflight.Unlock()

	snap := s.snapshot()
	if snap.err != nil {
		s.commit(domain.StateErrored, configFailure(domain.StageStartup, snap.err))
		return
	}
	if ok, blocker := s.deps.hardReady(); !ok {
		s.logger.Info("dependency-not-ready", log.String("dependency", blocker))
		s.mu.Lock()
		s.needRestart = true
		s.desired = goalRunning
		s.mu.Unlock()
		s.commit(domain.StateStopping, nil)
		return
	}
	if s.interrupting() {
		s.commit(domain.StateStopping, nil)
		return
	}

	if startup, ok := snap.action(domain.StageStartup); ok {
		res := s.runStage(ctx, domain.StageStartup, startup, snap.spec.Timeout(domain.StageStartup), s.interrupting)
		switch {
		case res.OK():
			s.errors.reset(domain.StageStartup)
			s.commit(domain.StateRunning, nil)
		case res.Canceled():
			s.commit(domain.StateStopping, nil)
		default:
			f := stageFailure(domain.StageStartup, res)
			s.errors.record(domain.StageStartup, s.env.Clock.Now(), snap.spec.ErrorResetTime)
			s.commit(domain.StateErrored, f)
		}
		return
	}

	run, ok := snap.action(domain.StageRun)
	if !ok {
		s.mu.Lock()
		s.finishWhenUp = true
		s.mu.Unlock()
		s.commit(domain.StateRunning, nil)
		return
	}

	a := s.launch(ctx, domain.StageRun, run, snap.spec.Timeout(domain.StageRun), true)
	s.backing = a
	readyTimeout := s.env.Clock.After(snap.spec.Timeout(domain.StageStartup))
	for {
		select {
		case <-a.ready:
			s.errors.reset(domain.StageStartup)
			s.commit(domain.StateRunning, nil)
			return
		case res := <-a.result:
			s.backing = nil
			switch {
			case res.OK():
				s.mu.Lock()
				s.finishWhenUp = true
				s.mu.Unlock()
				s.commit(domain.StateRunning, nil)
			case res.Canceled():
				s.commit(domain.StateStopping, nil)
			default:
				s.errors.record(domain.StageRun, s.env.Clock.Now(), snap.spec.ErrorResetTime)
				s.commit(domain.StateErrored, stageFailure(domain.StageRun, res))
			}
			return
		case <-readyTimeout:
			f := &domain.Failure{
				Stage: domain.StageStartup,
				Code:  domain.StageStartup.TimeoutCode(),
				Cause: domain.ErrTimeout,
			}
			s.errors.record(domain.StageStartup, s.env.Clock.Now(), snap.spec.ErrorResetTime)
			s.commit(domain.StateErrored, f)
			return
		case <-s.wake:
			if s.interrupting() {
				s.commit(domain.StateStopping, nil)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) handleRunning(ctx context.Context) {
	s.absorb()
	in := s.intentions()
	if in.desired == goalFinished || in.restart || in.reinstall {
		s.errors.reset(domain.StageRun)
		s.commit(domain.StateStopping, nil)
		return
	}

	s.mu.Lock()
	finish := s.finishWhenUp
	if finish {
		s.finishWhenUp = false
		s.desired = goalFinished
	}
	s.mu.Unlock()
	if finish {
		s.commit(domain.StateStopping, nil)
		return
	}

	a := s.backing
	if a == nil {
		s.sleep(ctx)
		return
	}
	select {
	case res := <-a.result:
		s.backing = nil
		if res.OK() {
			s.errors.reset(domain.StageRun)
			s.setDesired(goalFinished)
			s.commit(domain.StateStopping, nil)
			return
		}
		spec := s.Spec()
		s.errors.record(domain.StageRun, s.env.Clock.Now(), spec.ErrorResetTime)
		s.commit(domain.StateErrored, stageFailure(domain.StageRun, res))
	case <-s.wake:
	case <-ctx.Done():
	}
}

func (s *Service) handleStopping(ctx context.Context) {
	s.inflight.Lock()
	defer s.inflight.Unlock()

	snap := s.snapshot()
	s.resumeBeforeStop()
	if a := s.backing; a != nil {
		s.backing = nil
		s.stopActive(a)
	}
	s.runShutdown(ctx, snap)

	s.absorb()
	in := s.intentions()
	if in.closed || (in.desired != goalRunning && !in.restart && !in.reinstall) {
		s.commit(domain.StateFinished, nil)
		return
	}
	s.commit(domain.StateInstalled, nil)
}

// runShutdown runs the shutdown stage. A failure is recorded and does not
// block the stop.
func (s *Service) runShutdown(ctx context.Context, snap snapshot) {
	action, ok := snap.action(domain.StageShutdown)
	if !ok {
		return
	}
	res := s.runStage(ctx, domain.StageShutdown, action, snap.spec.Timeout(domain.StageShutdown), nil)
	if res.OK() {
		return
	}
	f := stageFailure(domain.StageShutdown, res)
	s.setFailure(f)
	s.logger.Warn("shutdown-failed", log.String("status", string(f.Code)), log.Err(f))
}

func (s *Service) handleErrored(ctx context.Context) {
	s.inflight.Lock()
	defer s.inflight.Unlock()

	snap := s.snapshot()
	f := s.LastFailure()
	if action, ok := snap.action(domain.StageRecover); ok {
		res := s.runStage(ctx, domain.StageRecover, action, snap.spec.Timeout(domain.StageRecover), nil)
		if !res.OK() {
			s.logger.Warn("recover-failed", log.Int("exit_code", res.ExitCode), log.Err(res.Err))
		}
	}

	s.absorb()
	in := s.intentions()
	if in.closed || in.desired == goalFinished {
		s.commit(domain.StateStopping, nil)
		return
	}

	st := domain.StageStartup
	if f != nil {
		st = f.Stage
	}
	if isConfigFailure(f) || s.errors.count(st) >= snap.spec.RetryBudget(st) {
		s.resumeBeforeStop()
		if a := s.backing; a != nil {
			s.backing = nil
			s.stopActive(a)
		}
		s.runShutdown(ctx, snap)
		s.commit(domain.StateBroken, f)
		return
	}

	s.setDesired(goalRunning)
	s.commit(domain.StateStopping, nil)
}

func (s *Service) handleBroken(ctx context.Context) {
	s.absorb()
	if s.intentions().reinstall {
		s.errors.resetAll()
		s.backoff.Reset()
		s.commit(domain.StateNew, nil)
		return
	}
	s.sleep(ctx)
}
