package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/edgevisor/internal/config"
	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/internal/ports/portstest"
)

func TestWatch_CreatedServiceStartsAfterLaunch(t *testing.T) {
	f := newTreeFixture(t, []string{"a"}, map[string]any{
		"a": lifecycle(map[string]any{"run": "serve"}),
	})
	f.runner.On("serve", portstest.Behavior{Forever: true})
	require.NoError(t, f.o.Launch(context.Background()))

	f.tree.Set(lifecycle(map[string]any{"run": "serve"}), config.ServicesKey, "b")

	b, err := f.o.Locate("b")
	require.NoError(t, err)
	f.waitFor(b, domain.StateRunning)
	assert.Equal(t, []string{"a", "b"}, names(f.o.Services()))
}

func TestWatch_CreatedServiceWaitsForLaunch(t *testing.T) {
	f := newTreeFixture(t, nil, map[string]any{})
	f.tree.Set(lifecycle(map[string]any{"run": "serve"}), config.ServicesKey, "late")

	svc, err := f.o.Locate("late")
	require.NoError(t, err)
	assert.Equal(t, domain.StateNew, svc.State())
}

func TestWatch_RemovedServiceIsUndeployed(t *testing.T) {
	removed := make(chan string, 1)
	f := newTreeFixture(t, []string{"a", "b"}, map[string]any{
		"a": lifecycle(map[string]any{"run": "serve"}),
		"b": lifecycle(map[string]any{"run": "serve"}),
	})
	f.o.cfg.OnRemove = func(name string) { removed <- name }
	f.runner.On("serve", portstest.Behavior{Forever: true})
	require.NoError(t, f.o.Launch(context.Background()))

	b, err := f.o.Locate("b")
	require.NoError(t, err)
	f.waitFor(b, domain.StateRunning)

	f.tree.Remove(config.ServicesKey, "b")
	select {
	case name := <-removed:
		assert.Equal(t, "b", name)
	case <-time.After(waitTimeout):
		t.Fatal("b not undeployed")
	}
	_, err = f.o.Locate("b")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.StateFinished, b.State())

	a, err := f.o.Locate("a")
	require.NoError(t, err)
	assert.Equal(t, domain.StateRunning, a.State())
}

func TestWatch_InvalidCreatedServiceBreaks(t *testing.T) {
	f := newTreeFixture(t, nil, map[string]any{})
	require.NoError(t, f.o.Launch(context.Background()))

	f.tree.Set(map[string]any{config.KeyComponentType: "nope"}, config.ServicesKey, "bad")

	svc, err := f.o.Locate("bad")
	require.NoError(t, err)
	f.waitFor(svc, domain.StateBroken)
}
