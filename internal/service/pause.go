package service

import (
	"fmt"

	"github.com/bft-labs/edgevisor/internal/config"
	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/pkg/log"
)

const resumeAttempts = 3

// Pause suspends a RUNNING service. Pausing a paused service is a no-op.
func (s *Service) Pause() error {
	if s.State() != domain.StateRunning {
		return fmt.Errorf("pause %s: %w", s.name, domain.ErrNotRunning)
	}
	if s.env.Resources == nil || s.env.Resources.IsPaused(s.name) {
		return nil
	}
	if err := s.env.Resources.Pause(s.name); err != nil {
		return fmt.Errorf("pause %s: %w", s.name, err)
	}
	s.logger.Info("service-paused")
	return nil
}

// Resume continues a paused RUNNING service. When resuming keeps failing
// the service is restarted.
func (s *Service) Resume() error {
	if s.State() != domain.StateRunning {
		return fmt.Errorf("resume %s: %w", s.name, domain.ErrNotRunning)
	}
	if err := s.resume(); err != nil {
		s.logger.Error("resume-failed", log.Int("attempts", resumeAttempts), log.Err(err))
		s.RequestRestart()
		return fmt.Errorf("resume %s: %w", s.name, err)
	}
	return nil
}

// Paused reports whether the service is suspended.
func (s *Service) Paused() bool {
	return s.env.Resources != nil && s.env.Resources.IsPaused(s.name)
}

func (s *Service) resume() error {
	if s.env.Resources == nil || !s.env.Resources.IsPaused(s.name) {
		return nil
	}
	var err error
	for i := 0; i < resumeAttempts; i++ {
		if err = s.env.Resources.Resume(s.name); err == nil {
			s.logger.Info("service-resumed")
			return nil
		}
		s.logger.Debug("resume-attempt-failed", log.Int("attempt", i+1), log.Err(err))
	}
	return err
}

// resumeBeforeStop resumes a paused service so it can shut down.
func (s *Service) resumeBeforeStop() {
	if err := s.resume(); err != nil {
		s.logger.Warn("resume-before-stop-failed", log.Err(err))
	}
}

func (s *Service) applyLimits(spec config.Spec) {
	if s.env.Resources == nil {
		return
	}
	if err := s.env.Resources.Limit(s.name, spec.Limits); err != nil {
		s.logger.Warn("limit-failed", log.Err(err))
	}
}
