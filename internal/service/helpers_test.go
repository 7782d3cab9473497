package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bft-labs/edgevisor/internal/config"
	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/internal/events"
	"github.com/bft-labs/edgevisor/internal/ports/portstest"
	"github.com/bft-labs/edgevisor/internal/stage"
	"github.com/bft-labs/edgevisor/pkg/clock"
	"github.com/bft-labs/edgevisor/pkg/log"
)

const waitTimeout = 5 * time.Second

// harness wires services to scripted fakes and records every transition.
type harness struct {
	t         *testing.T
	runner    *portstest.Runner
	resources *portstest.ResourceController
	registry  *stage.Registry
	bus       *events.Bus
	tree      *config.Tree
	clock     clock.Clock

	svcMu    sync.Mutex
	services map[string]*Service
	order    []string

	evMu   sync.Mutex
	events []domain.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		runner:    portstest.NewRunner(),
		resources: portstest.NewResourceController(),
		registry:  stage.NewRegistry(),
		bus:       events.NewBus(log.NewNoop()),
		services:  map[string]*Service{},
	}
	h.bus.Subscribe(events.ListenerFunc(func(ev domain.Event) {
		h.evMu.Lock()
		h.events = append(h.events, ev)
		h.evMu.Unlock()
	}))
	t.Cleanup(h.closeAll)
	return h
}

// withTree makes services follow a config tree.
func (h *harness) withTree() *harness {
	h.tree = config.NewTree()
	return h
}

func (h *harness) env() Env {
	env := Env{
		Runner:     h.runner,
		Resources:  h.resources,
		Registry:   h.registry,
		Bus:        h.bus,
		Logger:     log.NewNoop(),
		Grace:      20 * time.Millisecond,
		ForceGrace: 100 * time.Millisecond,
		Locate:     h.locate,
		Dependants: h.dependants,
	}
	if h.tree != nil {
		env.Config = h.tree
	}
	if h.clock != nil {
		env.Clock = h.clock
	}
	return env
}

func (h *harness) add(name string, node map[string]any) *Service {
	h.t.Helper()
	spec, err := config.ParseSpec(name, node)
	require.NoError(h.t, err)
	if h.tree != nil {
		h.tree.Set(node, config.ServicesKey, name)
	}
	svc := New(spec, nil, h.env())
	h.svcMu.Lock()
	h.services[name] = svc
	h.order = append(h.order, name)
	h.svcMu.Unlock()
	return svc
}

func (h *harness) locate(name string) (*Service, bool) {
	h.svcMu.Lock()
	defer h.svcMu.Unlock()
	s, ok := h.services[name]
	return s, ok
}

func (h *harness) dependants(name string) []*Service {
	h.svcMu.Lock()
	defer h.svcMu.Unlock()
	var out []*Service
	for _, n := range h.order {
		if s := h.services[n]; s.HasHardDependency(name) {
			out = append(out, s)
		}
	}
	return out
}

func (h *harness) closeAll() {
	h.svcMu.Lock()
	all := make([]*Service, 0, len(h.services))
	for _, s := range h.services {
		all = append(all, s)
	}
	h.svcMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	tasks := make([]*Task, 0, len(all))
	for _, s := range all {
		tasks = append(tasks, s.Close(ctx))
	}
	for _, task := range tasks {
		_, _ = task.Wait(ctx)
	}
}

// states returns the successive states entered by service.
func (h *harness) states(service string) []domain.State {
	h.evMu.Lock()
	defer h.evMu.Unlock()
	var out []domain.State
	for _, ev := range h.events {
		if ev.Service == service {
			out = append(out, ev.New)
		}
	}
	return out
}

// index returns the position of the first event of service entering
// state, or -1.
func (h *harness) index(service string, state domain.State) int {
	h.evMu.Lock()
	defer h.evMu.Unlock()
	for i, ev := range h.events {
		if ev.Service == service && ev.New == state {
			return i
		}
	}
	return -1
}

func (h *harness) count(service string, state domain.State) int {
	n := 0
	for _, st := range h.states(service) {
		if st == state {
			n++
		}
	}
	return n
}

// eventsOf returns every event of service in publication order.
func (h *harness) eventsOf(service string) []domain.Event {
	h.evMu.Lock()
	defer h.evMu.Unlock()
	var out []domain.Event
	for _, ev := range h.events {
		if ev.Service == service {
			out = append(out, ev)
		}
	}
	return out
}

func (h *harness) lastEvent(service string) domain.Event {
	h.evMu.Lock()
	defer h.evMu.Unlock()
	for i := len(h.events) - 1; i >= 0; i-- {
		if h.events[i].Service == service {
			return h.events[i]
		}
	}
	return domain.Event{}
}

func (h *harness) waitFor(svc *Service, state domain.State) {
	h.t.Helper()
	require.Equal(h.t, WaitReached, svc.WaitFor(context.Background(), state, waitTimeout),
		"%s did not reach %s, states %v", svc.Name(), state, h.states(svc.Name()))
}

func (h *harness) close(svc *Service) (Outcome, error) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	return svc.Close(ctx).Wait(ctx)
}

func lifecycle(stages map[string]any) map[string]any {
	return map[string]any{config.KeyLifecycle: stages}
}

func withDeps(node map[string]any, deps ...string) map[string]any {
	list := make([]any, len(deps))
	for i, d := range deps {
		list[i] = d
	}
	node[config.KeyDependencies] = list
	return node
}

// funcSet is a stage.Set of in-process actions.
type funcSet map[domain.Stage]func(ctx context.Context, ready func()) (int, error)

func (f funcSet) Action(st domain.Stage) (stage.Action, bool) {
	fn, ok := f[st]
	if !ok {
		return nil, false
	}
	return stage.NewFunc(fn), true
}

func (h *harness) registerFuncs(typeTag string, set funcSet) {
	h.t.Helper()
	require.NoError(h.t, h.registry.Register(typeTag, func(config.Spec, stage.Deps) (stage.Set, error) {
		return set, nil
	}))
}

func eventually(t *testing.T, cond func() bool, msg string, args ...any) {
	t.Helper()
	require.Eventually(t, cond, waitTimeout, 5*time.Millisecond, append([]any{msg}, args...)...)
}
