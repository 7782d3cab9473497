package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/edgevisor/internal/config"
	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/internal/ports/portstest"
)

func TestDependency_HardGatesStart(t *testing.T) {
	h := newHarness(t)
	h.runner.
		On("serve", portstest.Behavior{Forever: true}).
		On("warmup", portstest.Behavior{Delay: 100 * time.Millisecond})
	a := h.add("a", lifecycle(map[string]any{"startup": "warmup"}))
	b := h.add("b", withDeps(lifecycle(map[string]any{"run": "serve"}), "a:HARD"))

	b.RequestStart()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, domain.StateInstalled, b.State())

	a.RequestStart()
	h.waitFor(b, domain.StateRunning)

	assert.Equal(t, []domain.State{
		domain.StateInstalled,
		domain.StateStarting,
		domain.StateRunning,
	}, h.states("a"))
	assert.Less(t, h.index("a", domain.StateRunning), h.index("b", domain.StateStarting))
}

func TestDependency_SoftGatesInitialStart(t *testing.T) {
	h := newHarness(t)
	h.runner.On("serve", portstest.Behavior{Forever: true})
	a := h.add("a", lifecycle(map[string]any{"startup": "boot"}))
	b := h.add("b", withDeps(lifecycle(map[string]any{"run": "serve"}), "a:SOFT"))

	b.RequestStart()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, domain.StateInstalled, b.State())

	a.RequestStart()
	h.waitFor(b, domain.StateRunning)
	assert.Less(t, h.index("a", domain.StateRunning), h.index("b", domain.StateStarting))
}

func TestDependency_BrokenSoftDependencyDoesNotBlock(t *testing.T) {
	h := newHarness(t)
	h.runner.
		On("serve", portstest.Behavior{Forever: true}).
		On("bad", portstest.Behavior{ExitCode: 1})
	a := h.add("a", lifecycle(map[string]any{"install": map[string]any{"script": "bad", "retryBudget": 1}}))
	b := h.add("b", withDeps(lifecycle(map[string]any{"run": "serve"}), "a:SOFT"))

	a.RequestStart()
	b.RequestStart()
	h.waitFor(a, domain.StateBroken)
	h.waitFor(b, domain.StateRunning)
}

func TestDependency_HardFailureRestartsDependant(t *testing.T) {
	h := newHarness(t)
	h.runner.
		On("a-serve", portstest.Behavior{Forever: true}, portstest.Behavior{ExitCode: 1, Delay: 20 * time.Millisecond}, portstest.Behavior{Forever: true}).
		On("b-serve", portstest.Behavior{Forever: true})
	a := h.add("a", lifecycle(map[string]any{"run": "a-serve"}))
	b := h.add("b", withDeps(lifecycle(map[string]any{"run": "b-serve"}), "a"))

	a.RequestStart()
	b.RequestStart()
	h.waitFor(b, domain.StateRunning)

	// Restart a; its second run crashes and the third stays up.
	a.RequestRestart()
	eventually(t, func() bool { return h.runner.Starts("a", "run") == 3 }, "a recovered")
	h.waitFor(a, domain.StateRunning)
	h.waitFor(b, domain.StateRunning)
	time.Sleep(50 * time.Millisecond)

	assert.GreaterOrEqual(t, h.runner.Starts("b", "run"), 2)
	assert.LessOrEqual(t, h.runner.Starts("b", "run"), 3)
	assert.Equal(t, domain.StateRunning, b.State())
	assert.Equal(t, 1, h.runner.Peak("b"))
	assert.Zero(t, b.Faults())
}

func TestDependency_ErrorCascadesOnce(t *testing.T) {
	h := newHarness(t)
	h.runner.
		On("a-serve", portstest.Behavior{ExitCode: 1, Delay: 80 * time.Millisecond}, portstest.Behavior{Forever: true}).
		On("b-serve", portstest.Behavior{Forever: true})
	a := h.add("a", lifecycle(map[string]any{"run": "a-serve"}))
	b := h.add("b", withDeps(lifecycle(map[string]any{"run": "b-serve"}), "a"))

	a.RequestStart()
	b.RequestStart()
	h.waitFor(b, domain.StateRunning)

	eventually(t, func() bool { return h.runner.Starts("a", "run") == 2 }, "a retried")
	h.waitFor(a, domain.StateRunning)
	h.waitFor(b, domain.StateRunning)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 2, h.runner.Starts("b", "run"))
	assert.Equal(t, 1, h.count("b", domain.StateStopping))
}

func TestDependency_SoftFailureKeepsDependantRunning(t *testing.T) {
	h := newHarness(t)
	h.runner.
		On("s-serve",
			portstest.Behavior{ExitCode: 1, Delay: 80 * time.Millisecond},
			portstest.Behavior{Forever: true}).
		On("c-serve", portstest.Behavior{Forever: true})
	s := h.add("s", lifecycle(map[string]any{"run": "s-serve"}))
	c := h.add("c", withDeps(lifecycle(map[string]any{"run": "c-serve"}), "s:SOFT"))

	s.RequestStart()
	c.RequestStart()
	h.waitFor(c, domain.StateRunning)
	h.waitFor(s, domain.StateRunning)
	before := h.states("c")

	eventually(t, func() bool { return h.count("s", domain.StateRunning) == 2 }, "s recovered")
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, 1, h.count("s", domain.StateErrored))
	assert.Equal(t, before, h.states("c"), "c must not react to s failing and recovering")
	assert.Equal(t, domain.StateRunning, c.State())
	assert.Equal(t, 1, h.runner.Starts("c", "run"))
}

func TestDependency_SoftBrokenKeepsDependantRunning(t *testing.T) {
	h := newHarness(t)
	h.runner.
		On("a-serve", portstest.Behavior{ExitCode: 1, Delay: 80 * time.Millisecond}).
		On("b-serve", portstest.Behavior{Forever: true})
	a := h.add("a", lifecycle(map[string]any{"run": map[string]any{"script": "a-serve", "retryBudget": 1}}))
	b := h.add("b", withDeps(lifecycle(map[string]any{"run": "b-serve"}), "a:SOFT"))

	a.RequestStart()
	b.RequestStart()
	h.waitFor(b, domain.StateRunning)
	before := h.states("b")
	h.waitFor(a, domain.StateBroken)
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, before, h.states("b"))
	assert.Equal(t, 1, h.runner.Starts("b", "run"))
	assert.Equal(t, domain.StateRunning, b.State())
}

func TestDependency_FinishedOneShotSatisfiesHard(t *testing.T) {
	h := newHarness(t)
	h.runner.On("serve", portstest.Behavior{Forever: true})
	a := h.add("a", lifecycle(map[string]any{"install": "migrate"}))
	b := h.add("b", withDeps(lifecycle(map[string]any{"run": "serve"}), "a"))

	a.RequestStart()
	b.RequestStart()
	h.waitFor(a, domain.StateFinished)
	h.waitFor(b, domain.StateRunning)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, h.runner.Starts("b", "run"))
}

func TestDependency_TypeChangeDoesNotRestart(t *testing.T) {
	h := newHarness(t).withTree()
	h.runner.On("serve", portstest.Behavior{Forever: true})
	c := h.add("c", lifecycle(map[string]any{"run": "serve"}))
	s := h.add("s", withDeps(lifecycle(map[string]any{"run": "serve"}), "c:SOFT"))

	c.RequestStart()
	s.RequestStart()
	h.waitFor(s, domain.StateRunning)

	h.tree.Set([]any{"c:HARD"}, config.ServicesKey, "s", config.KeyDependencies)
	assert.True(t, s.HasHardDependency("c"))
	h.tree.Set([]any{"c:SOFT"}, config.ServicesKey, "s", config.KeyDependencies)
	assert.False(t, s.HasHardDependency("c"))
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, h.runner.Starts("s", "run"))
	assert.Equal(t, 1, h.runner.Starts("c", "run"))
	assert.Equal(t, domain.StateRunning, s.State())
}

func TestDependency_AddedHardDependencyRestarts(t *testing.T) {
	h := newHarness(t).withTree()
	h.runner.On("serve", portstest.Behavior{Forever: true})
	h.add("c", lifecycle(map[string]any{"run": "serve"}))
	s := h.add("s", lifecycle(map[string]any{"run": "serve"}))

	s.RequestStart()
	h.waitFor(s, domain.StateRunning)

	h.tree.Set([]any{"c"}, config.ServicesKey, "s", config.KeyDependencies)
	h.waitFor(s, domain.StateInstalled)
	require.Equal(t, []domain.Dependency{{Name: "c", Type: domain.Hard}}, s.Dependencies())
	assert.Equal(t, 1, h.runner.Starts("s", "run"))
}

func TestDependency_RemovedEdgeOnlyUnsubscribes(t *testing.T) {
	h := newHarness(t)
	h.runner.On("serve", portstest.Behavior{Forever: true})
	a := h.add("a", lifecycle(map[string]any{"run": "serve"}))
	b := h.add("b", withDeps(lifecycle(map[string]any{"run": "serve"}), "a"))

	a.RequestStart()
	b.RequestStart()
	h.waitFor(b, domain.StateRunning)

	require.True(t, b.RemoveDependency("a"))
	assert.False(t, b.RemoveDependency("a"))
	a.RequestStop()
	h.waitFor(a, domain.StateFinished)
	a.RequestRestart()
	h.waitFor(a, domain.StateRunning)
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, 1, h.runner.Starts("b", "run"))
	assert.Empty(t, b.Dependencies())
}
