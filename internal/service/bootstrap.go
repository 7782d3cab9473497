package service

import (
	"context"
	"fmt"

	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/pkg/log"
)

// Bootstrap runs the bootstrap stage once and returns its exit code, or 0
// when none is defined. It never overlaps another stage of the service
// and never changes state: while the run stage is up it fails with
// domain.ErrBusy.
func (s *Service) Bootstrap(ctx context.Context) (int, error) {
	s.inflight.Lock()
	defer s.inflight.Unlock()

	if s.stageActive(domain.StageRun) {
		return 0, fmt.Errorf("bootstrap %s: %w", s.name, domain.ErrBusy)
	}
	snap := s.snapshot()
	if snap.err != nil {
		return 0, snap.err
	}
	action, ok := snap.action(domain.StageBootstrap)
	if !ok {
		return 0, nil
	}

	s.logger.Info("bootstrap-started")
	a := s.launch(ctx, domain.StageBootstrap, action, snap.spec.Timeout(domain.StageBootstrap), false)
	res := <-a.result
	switch {
	case res.TimedOut():
		s.logger.Warn("bootstrap-timeout", log.Duration("timeout", snap.spec.Timeout(domain.StageBootstrap)))
		return res.ExitCode, fmt.Errorf("bootstrap %s: %w", s.name, domain.ErrTimeout)
	case res.Err != nil:
		s.logger.Warn("bootstrap-failed", log.Err(res.Err))
		return res.ExitCode, fmt.Errorf("bootstrap %s: %w", s.name, res.Err)
	}
	s.logger.Info("bootstrap-finished", log.Int("exit_code", res.ExitCode))
	return res.ExitCode, nil
}
