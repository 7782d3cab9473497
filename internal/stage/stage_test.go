package stage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/edgevisor/internal/config"
	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/internal/ports/portstest"
	"github.com/bft-labs/edgevisor/pkg/clock"
)

func genericSpec(t *testing.T, lifecycle map[string]any) config.Spec {
	t.Helper()
	spec, err := config.ParseSpec("svc", map[string]any{
		"version":   "1.0.0",
		"lifecycle": lifecycle,
		"setenv":    map[string]any{"MODE": "edge"},
	})
	require.NoError(t, err)
	return spec
}

func TestExecAction_ExitCodes(t *testing.T) {
	runner := portstest.NewRunner().
		On("ok").
		On("fail", portstest.Behavior{ExitCode: 147})

	reg := NewRegistry()
	set, err := reg.Resolve(genericSpec(t, map[string]any{"install": "ok", "startup": "fail"}), Deps{Runner: runner})
	require.NoError(t, err)

	install, ok := set.Action(domain.StageInstall)
	require.True(t, ok)
	assert.True(t, install.Run(context.Background(), nil).OK())

	startup, _ := set.Action(domain.StageStartup)
	res := startup.Run(context.Background(), nil)
	assert.False(t, res.OK())
	assert.Equal(t, 147, res.ExitCode)

	_, ok = set.Action(domain.StageRun)
	assert.False(t, ok)

	cmd := runner.Commands()[0]
	assert.Equal(t, "edge", cmd.Env["MODE"])
	assert.Equal(t, "svc", cmd.Env["EDGEVISOR_SERVICE"])
	assert.Equal(t, "install", cmd.Env["EDGEVISOR_STAGE"])
	assert.Equal(t, "1.0.0", cmd.Env["EDGEVISOR_SERVICE_VERSION"])
}

func TestExecAction_ReadyAndTimeout(t *testing.T) {
	runner := portstest.NewRunner().On("serve", portstest.Behavior{Forever: true})
	reg := NewRegistry()
	set, err := reg.Resolve(genericSpec(t, map[string]any{"run": "serve"}), Deps{Runner: runner, Grace: 50 * time.Millisecond})
	require.NoError(t, err)

	run, _ := set.Action(domain.StageRun)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	ready := make(chan struct{})
	res := run.Run(ctx, func() { close(ready) })
	<-ready
	assert.True(t, res.TimedOut())
	assert.Equal(t, portstest.ExitTerminated, res.ExitCode)
	assert.Equal(t, 0, runner.Running("svc"))
}

func TestExecAction_EscalatesToKill(t *testing.T) {
	runner := portstest.NewRunner().On("stubborn", portstest.Behavior{Forever: true, IgnoreTerm: true})
	action := NewExec(runner, portsCommand("stubborn"), 20*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res := action.Run(ctx, nil)
	assert.True(t, res.Canceled())
	assert.Equal(t, portstest.ExitKilled, res.ExitCode)
}

func TestExecAction_GraceRunsOnClock(t *testing.T) {
	runner := portstest.NewRunner().On("stubborn", portstest.Behavior{Forever: true, IgnoreTerm: true})
	manual := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	action := NewExec(runner, portsCommand("stubborn"), time.Hour, nil).WithClock(manual)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	done := make(chan Result, 1)
	go func() { done <- action.Run(ctx, func() { close(started) }) }()
	<-started
	cancel()

	require.Eventually(t, func() bool { return manual.Waiters() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, runner.Running("svc"), "polite termination is ignored")
	manual.Advance(time.Hour)

	select {
	case res := <-done:
		assert.Equal(t, portstest.ExitKilled, res.ExitCode)
	case <-time.After(2 * time.Second):
		t.Fatal("grace did not follow the clock")
	}
}

func TestExecAction_SkipIf(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "installed")
	require.NoError(t, os.WriteFile(marker, nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jq"), []byte("#!/bin/sh\n"), 0o755))

	tests := []struct {
		name    string
		skipif  string
		skipped bool
	}{
		{name: "exists", skipif: "exists " + marker, skipped: true},
		{name: "not exists", skipif: "!exists " + marker},
		{name: "missing file", skipif: "exists " + filepath.Join(dir, "nope")},
		{name: "on path", skipif: "onpath jq", skipped: true},
		{name: "not on path", skipif: "onpath yq"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := portstest.NewRunner()
			spec, err := config.ParseSpec("svc", map[string]any{
				"lifecycle": map[string]any{
					"install": map[string]any{"script": "setup", "skipif": tt.skipif},
				},
				"setenv": map[string]any{"PATH": dir},
			})
			require.NoError(t, err)
			set, err := NewRegistry().Resolve(spec, Deps{Runner: runner})
			require.NoError(t, err)

			install, ok := set.Action(domain.StageInstall)
			require.True(t, ok)
			assert.True(t, install.Run(context.Background(), nil).OK())
			want := 1
			if tt.skipped {
				want = 0
			}
			assert.Equal(t, want, runner.Starts("svc", "install"))
		})
	}
}

func TestExecAction_StartError(t *testing.T) {
	boom := errors.New("no such file")
	runner := portstest.NewRunner().On("missing", portstest.Behavior{StartErr: boom})
	action := NewExec(runner, portsCommand("missing"), 0, nil)

	res := action.Run(context.Background(), nil)
	assert.ErrorIs(t, res.Err, boom)
	assert.False(t, res.OK())
}

func TestExecAction_Cancel(t *testing.T) {
	runner := portstest.NewRunner().On("serve", portstest.Behavior{Forever: true, IgnoreTerm: true})
	action := NewExec(runner, portsCommand("serve"), time.Second, nil)

	started := make(chan struct{})
	done := make(chan Result, 1)
	go func() { done <- action.Run(context.Background(), func() { close(started) }) }()
	<-started
	action.Cancel()

	select {
	case res := <-done:
		assert.Equal(t, portstest.ExitKilled, res.ExitCode)
	case <-time.After(2 * time.Second):
		t.Fatal("Cancel did not stop the action")
	}
}

func TestFuncAction(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		a := NewFunc(func(ctx context.Context, ready func()) (int, error) { return 0, nil })
		assert.True(t, a.Run(context.Background(), nil).OK())
	})

	t.Run("panic", func(t *testing.T) {
		a := NewFunc(func(ctx context.Context, ready func()) (int, error) { panic("plugin bug") })
		res := a.Run(context.Background(), nil)
		assert.ErrorContains(t, res.Err, "plugin bug")
	})

	t.Run("cancel", func(t *testing.T) {
		a := NewFunc(func(ctx context.Context, ready func()) (int, error) {
			ready()
			<-ctx.Done()
			return 0, nil
		})
		started := make(chan struct{})
		done := make(chan Result, 1)
		go func() { done <- a.Run(context.Background(), func() { close(started) }) }()
		<-started
		a.Cancel()
		res := <-done
		assert.True(t, res.Canceled())
	})
}

type testPlugin struct {
	initialized bool
	recovered   bool
}

func (p *testPlugin) Name() string { return "watchdog" }
func (p *testPlugin) Initialize(ctx context.Context, cfg PluginConfig) error {
	p.initialized = cfg.Service == "watchdog"
	return nil
}
func (p *testPlugin) Run(ctx context.Context, ready func()) error {
	ready()
	<-ctx.Done()
	return nil
}
func (p *testPlugin) Shutdown(ctx context.Context) error { return nil }
func (p *testPlugin) Recover(ctx context.Context) error {
	p.recovered = true
	return nil
}

func TestRegistry_Plugin(t *testing.T) {
	reg := NewRegistry()
	plugin := &testPlugin{}
	reg.RegisterPlugin("watchdog", func() Plugin { return plugin })

	spec, err := config.ParseSpec("watchdog", map[string]any{"componentType": "plugin"})
	require.NoError(t, err)
	set, err := reg.Resolve(spec, Deps{})
	require.NoError(t, err)

	install, ok := set.Action(domain.StageInstall)
	require.True(t, ok)
	require.True(t, install.Run(context.Background(), nil).OK())
	assert.True(t, plugin.initialized)

	rec, ok := set.Action(domain.StageRecover)
	require.True(t, ok)
	rec.Run(context.Background(), nil)
	assert.True(t, plugin.recovered)

	_, ok = set.Action(domain.StageBootstrap)
	assert.False(t, ok)
	_, ok = set.Action(domain.StageStartup)
	assert.False(t, ok)

	assert.True(t, IsPinned(set))
	generic, err := reg.Resolve(genericSpec(t, map[string]any{"run": "serve"}), Deps{Runner: portstest.NewRunner()})
	require.NoError(t, err)
	assert.False(t, IsPinned(generic))
}

func TestRegistry_UnknownTypes(t *testing.T) {
	reg := NewRegistry()

	spec, _ := config.ParseSpec("x", map[string]any{"componentType": "lambda"})
	_, err := reg.Resolve(spec, Deps{})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	spec, _ = config.ParseSpec("x", map[string]any{"componentType": "plugin"})
	_, err = reg.Resolve(spec, Deps{})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	require.NoError(t, reg.Register("lambda", execFactory))
	assert.Error(t, reg.Register("lambda", execFactory))
	assert.Equal(t, []string{"generic", "lambda", "plugin"}, reg.Types())
}
