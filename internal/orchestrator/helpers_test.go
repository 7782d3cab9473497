package orchestrator

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
	"github.com/bft-labs/edgevisor/internal/service"
	"github.com/bft-labs/edgevisor/internal/stage"
	"github.com/bft-labs/edgevisor/pkg/log"
)

const waitTimeout = 5 * time.Second

// recorder keeps every transition published on the bus.
type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) OnTransition(ev domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) index(svc string, state domain.State) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, ev := range r.events {
		if ev.Service == svc && ev.New == state {
			return i
		}
	}
	return -1
}

func (r *recorder) count(svc string, state domain.State) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Service == svc && ev.New == state {
			n++
		}
	}
	return n
}

type fixture struct {
	t        *testing.T
	runner   *portstest.Runner
	registry *stage.Registry
	tree     *config.Tree
	rec      *recorder
	o        *Orchestrator
}

func testConfig(f *fixture) Config {
	return Config{
		Runner:     f.runner,
		Resources:  portstest.NewResourceController(),
		Registry:   f.registry,
		Logger:     log.NewNoop(),
		Grace:      20 * time.Millisecond,
		ForceGrace: 100 * time.Millisecond,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		runner:   portstest.NewRunner(),
		registry: stage.NewRegistry(),
		rec:      &recorder{},
	}
	f.o = New(testConfig(f))
	f.o.AddListener(f.rec)
	t.Cleanup(f.shutdown)
	return f
}

// newTreeFixture builds the orchestrator from a config tree holding nodes.
func newTreeFixture(t *testing.T, order []string, nodes map[string]any) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		runner:   portstest.NewRunner(),
		registry: stage.NewRegistry(),
		tree:     config.NewTree(),
		rec:      &recorder{},
	}
	f.tree.Replace(map[string]any{config.ServicesKey: nodes})
	o, err := NewFromConfig(f.tree, order, testConfig(f))
	require.NoError(t, err)
	f.o = o
	f.o.AddListener(f.rec)
	t.Cleanup(f.shutdown)
	return f
}

func (f *fixture) shutdown() {
	_, _ = f.o.Shutdown(waitTimeout)
}

func (f *fixture) add(name string, node map[string]any) *service.Service {
	f.t.Helper()
	spec, err := config.ParseSpec(name, node)
	require.NoError(f.t, err)
	svc, err := f.o.Register(spec, nil)
	require.NoError(f.t, err)
	return svc
}

func (f *fixture) waitFor(svc *service.Service, state domain.State) {
	f.t.Helper()
	require.Equal(f.t, service.WaitReached, svc.WaitFor(context.Background(), state, waitTimeout),
		"%s did not reach %s", svc.Name(), state)
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

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, waitTimeout, 5*time.Millisecond, msg)
}

var _ events.Listener = (*recorder)(nil)
