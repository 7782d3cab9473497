package service

import (
	"sync"

	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/pkg/log"
)

// tracker holds a service's dependency edges and reacts to transitions of
// the services it depends on.
type tracker struct {
	owner *Service

	mu    sync.Mutex
	edges []domain.Dependency
}

func newTracker(owner *Service, deps []domain.Dependency) *tracker {
	t := &tracker{owner: owner}
	t.edges = append(t.edges, deps...)
	return t
}

func (t *tracker) list() []domain.Dependency {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Dependency, len(t.edges))
	copy(out, t.edges)
	return out
}

func (t *tracker) find(name string) (domain.Dependency, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, d := range t.edges {
		if d.Name == name {
			return d, true
		}
	}
	return domain.Dependency{}, false
}

// ready reports whether every dependency allows a start. SOFT edges only
// gate the initial start. The name of the first blocking dependency is
// returned when not ready.
func (t *tracker) ready(initial bool) (bool, string) {
	for _, d := range t.list() {
		target, ok := t.owner.env.Locate(d.Name)
		if !ok {
			return false, d.Name
		}
		switch d.Type {
		case domain.Hard:
			if !target.readyAsHard() {
				return false, d.Name
			}
		case domain.Soft:
			if initial && !target.readyAsSoft() {
				return false, d.Name
			}
		}
	}
	return true, ""
}

// hardReady is ready restricted to HARD edges.
func (t *tracker) hardReady() (bool, string) {
	for _, d := range t.list() {
		if d.Type != domain.Hard {
			continue
		}
		target, ok := t.owner.env.Locate(d.Name)
		if !ok || !target.readyAsHard() {
			return false, d.Name
		}
	}
	return true, ""
}

// onTransition wakes the owner on any dependency transition and restarts
// it when a HARD dependency stops being ready under a started owner.
func (t *tracker) onTransition(ev domain.Event) {
	if ev.Service == t.owner.name {
		return
	}
	d, ok := t.find(ev.Service)
	if !ok {
		return
	}
	t.owner.poke()
	if d.Type != domain.Hard {
		return
	}
	if target, ok := t.owner.env.Locate(d.Name); ok && target.readyAsHard() {
		return
	}
	t.cascade(d.Name, ev.New)
}

func (t *tracker) cascade(dependency string, depState domain.State) {
	st := t.owner.State()
	if st != domain.StateStarting && st != domain.StateRunning {
		return
	}
	if _, fresh := t.owner.requestIntent(intentRestart); fresh {
		t.owner.logger.Info("dependency-cascade",
			log.String("dependency", dependency),
			log.String("dependency_state", depState.String()),
			log.String("state", st.String()),
		)
	}
}

// sync replaces the edge set. A type change alone never restarts the
// owner; a newly added HARD edge that is not ready does.
func (t *tracker) sync(deps []domain.Dependency) {
	t.mu.Lock()
	old := map[string]domain.Dependency{}
	for _, d := range t.edges {
		old[d.Name] = d
	}
	t.edges = append([]domain.Dependency(nil), deps...)
	t.mu.Unlock()

	for _, d := range deps {
		if _, existed := old[d.Name]; existed || d.Type != domain.Hard {
			continue
		}
		if target, ok := t.owner.env.Locate(d.Name); !ok || !target.readyAsHard() {
			t.cascade(d.Name, stateOf(target))
		}
	}
	t.owner.logger.Debug("dependencies-updated", log.Int("count", len(deps)))
	t.owner.poke()
}

// remove drops the edge to name, if any.
func (t *tracker) remove(name string) (domain.Dependency, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, d := range t.edges {
		if d.Name == name {
			t.edges = append(t.edges[:i:i], t.edges[i+1:]...)
			return d, true
		}
	}
	return domain.Dependency{}, false
}

func stateOf(s *Service) domain.State {
	if s == nil {
		return domain.StateNew
	}
	return s.State()
}

// readyAsHard reports whether s satisfies a HARD dependant: RUNNING, or
// finishing cleanly for good after running in the current generation.
func (s *Service) readyAsHard() bool {
	st := s.State()
	switch st {
	case domain.StateRunning:
		return true
	case domain.StateStopping, domain.StateFinished:
	default:
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.reachedRunning || s.stopFromError {
		return false
	}
	if st == domain.StateStopping {
		return s.desired == goalFinished && !s.needRestart && !s.needReinstall
	}
	return true
}

// readyAsSoft reports whether s satisfies a SOFT dependant's initial start.
func (s *Service) readyAsSoft() bool {
	switch s.State() {
	case domain.StateRunning, domain.StateFinished, domain.StateBroken:
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.everRunning
}

// RemoveDependency drops the edge to name. Removing a HARD dependency
// neither stops nor restarts the service.
func (s *Service) RemoveDependency(name string) bool {
	_, ok := s.deps.remove(name)
	if ok {
		s.poke()
	}
	return ok
}

// HasHardDependency reports whether s has a HARD edge to name.
func (s *Service) HasHardDependency(name string) bool {
	d, ok := s.deps.find(name)
	return ok && d.Type == domain.Hard
}
