package service

import (
	"github.com/bft-labs/edgevisor/internal/config"
	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/internal/ports"
	"github.com/bft-labs/edgevisor/pkg/log"
)

// onConfigChange refreshes the snapshot after a change under the
// service's node and reacts according to what changed. Removal of the
// node is handled by the orchestrator.
func (s *Service) onConfigChange(ch ports.Change) {
	if len(ch.Path) < 2 {
		return
	}
	node, ok := s.env.Config.Find(config.ServicesKey, s.name)
	if !ok {
		return
	}
	m, _ := node.(map[string]any)
	spec, err := config.ParseSpec(s.name, m)
	if err != nil {
		s.logger.Error("config-invalid", log.Strings("path", ch.Path), log.Err(err))
		s.specErr.Store(&err)
		return
	}
	s.specErr.Store(nil)
	s.spec.Store(&spec)

	rel := ch.Path[2:]
	switch config.Classify(rel) {
	case config.ReactReinstall:
		if s.started() {
			s.logger.Info("config-reinstall", log.Strings("path", rel))
			s.RequestReinstall()
		}
	case config.ReactRestart:
		if s.started() {
			s.logger.Info("config-restart", log.Strings("path", rel))
			s.RequestRestart()
		}
	case config.ReactDependencies:
		s.deps.sync(spec.Dependencies)
	case config.ReactLimits:
		switch s.State() {
		case domain.StateStarting, domain.StateRunning:
			s.applyLimits(spec)
		}
	}
}

// started reports whether the service is meant to be running.
func (s *Service) started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desired == goalRunning || s.pending.start
}
