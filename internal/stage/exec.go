package stage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bft-labs/edgevisor/internal/config"
	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/internal/ports"
	"github.com/bft-labs/edgevisor/pkg/clock"
	"github.com/bft-labs/edgevisor/pkg/log"
)

// DefaultGrace is how long a process gets between a polite and a forced
// termination.
const DefaultGrace = 5 * time.Second

// ExecAction runs a stage command through a Runner.
type ExecAction struct {
	runner ports.Runner
	cmd    ports.Command
	grace  time.Duration
	logger log.Logger
	clock  clock.Clock
	skipIf *config.SkipCondition

	mu     sync.Mutex
	handle ports.Handle
}

// NewExec creates an action running cmd.
func NewExec(runner ports.Runner, cmd ports.Command, grace time.Duration, logger log.Logger) *ExecAction {
	if grace <= 0 {
		grace = DefaultGrace
	}
	if logger == nil {
		logger = log.NewNoop()
	}
	return &ExecAction{runner: runner, cmd: cmd, grace: grace, logger: logger, clock: clock.Real{}}
}

// WithClock makes the grace waits run on c.
func (a *ExecAction) WithClock(c clock.Clock) *ExecAction {
	if c != nil {
		a.clock = c
	}
	return a
}

// WithSkipIf guards the action: when cond holds, Run succeeds without
// starting the command.
func (a *ExecAction) WithSkipIf(cond *config.SkipCondition) *ExecAction {
	a.skipIf = cond
	return a
}

type exit struct {
	code int
	err  error
}

// Run implements Action.
func (a *ExecAction) Run(ctx context.Context, ready func()) Result {
	if err := ctx.Err(); err != nil {
		return Result{ExitCode: -1, Err: err}
	}
	if a.skipIf != nil {
		skip, err := ShouldSkip(*a.skipIf, a.cmd.Env)
		if err != nil {
			return Result{ExitCode: -1, Err: fmt.Errorf("skipif %s: %w", a.cmd.Stage, err)}
		}
		if skip {
			a.logger.Debug("stage-skipped", log.String("stage", a.cmd.Stage), log.String("skipif", a.skipIf.String()))
			return Result{}
		}
	}
	h, err := a.runner.Start(ctx, a.cmd)
	if err != nil {
		return Result{ExitCode: -1, Err: fmt.Errorf("start %s: %w", a.cmd.Stage, err)}
	}
	a.mu.Lock()
	a.handle = h
	a.mu.Unlock()

	if ready != nil {
		ready()
	}

	done := make(chan exit, 1)
	go func() {
		code, err := h.Wait(0)
		done <- exit{code: code, err: err}
	}()

	select {
	case e := <-done:
		return Result{ExitCode: e.code, Err: e.err}
	case <-ctx.Done():
	}

	a.logger.Debug("stage-interrupt", log.String("stage", a.cmd.Stage), log.Err(ctx.Err()))
	_ = h.Terminate(false)
	select {
	case e := <-done:
		return Result{ExitCode: e.code, Err: ctx.Err()}
	case <-a.clock.After(a.grace):
	}

	_ = h.Terminate(true)
	select {
	case e := <-done:
		return Result{ExitCode: e.code, Err: ctx.Err()}
	case <-a.clock.After(a.grace):
		a.logger.Error("stage-abandoned", log.String("stage", a.cmd.Stage))
		return Result{ExitCode: -1, Err: ctx.Err()}
	}
}

// Cancel implements Action.
func (a *ExecAction) Cancel() {
	a.mu.Lock()
	h := a.handle
	a.mu.Unlock()
	if h != nil && h.Alive() {
		_ = h.Terminate(true)
	}
}

// ExecSet builds ExecActions from a service spec.
type ExecSet struct {
	spec   config.Spec
	runner ports.Runner
	grace  time.Duration
	logger log.Logger
	clock  clock.Clock
}

// Action implements Set.
func (s *ExecSet) Action(stage domain.Stage) (Action, bool) {
	st, ok := s.spec.Stage(stage)
	if !ok {
		return nil, false
	}
	env := make(map[string]string, len(s.spec.Env)+3)
	for k, v := range s.spec.Env {
		env[k] = v
	}
	env["EDGEVISOR_SERVICE"] = s.spec.Name
	env["EDGEVISOR_STAGE"] = string(stage)
	if s.spec.Version != "" {
		env["EDGEVISOR_SERVICE_VERSION"] = s.spec.Version
	}
	cmd := ports.Command{
		Service: s.spec.Name,
		Stage:   string(stage),
		Script:  st.Script,
		Env:     env,
		Dir:     s.spec.WorkDir,
	}
	return NewExec(s.runner, cmd, s.grace, s.logger).WithClock(s.clock).WithSkipIf(st.SkipIf), true
}

func execFactory(spec config.Spec, deps Deps) (Set, error) {
	if deps.Runner == nil {
		return nil, fmt.Errorf("%w: no runner for %s services", domain.ErrInvalidConfig, spec.Type)
	}
	return &ExecSet{spec: spec, runner: deps.Runner, grace: deps.Grace, logger: deps.Logger, clock: deps.Clock}, nil
}

// ShouldSkip evaluates a skip condition. PATH lookups use env's PATH when set.
func ShouldSkip(c config.SkipCondition, env map[string]string) (bool, error) {
	var found bool
	switch c.Op {
	case config.SkipOnPath:
		found = onPath(c.Arg, env["PATH"])
	case config.SkipExists:
		_, err := os.Stat(expandHome(c.Arg))
		switch {
		case err == nil:
			found = true
		case !errors.Is(err, fs.ErrNotExist):
			return false, err
		}
	default:
		return false, fmt.Errorf("%w: skipif operator %q", domain.ErrInvalidConfig, c.Op)
	}
	return found != c.Negate, nil
}

func onPath(name, path string) bool {
	if path == "" || strings.ContainsRune(name, os.PathSeparator) {
		_, err := exec.LookPath(name)
		return err == nil
	}
	for _, dir := range filepath.SplitList(path) {
		fi, err := os.Stat(filepath.Join(dir, name))
		if err == nil && !fi.IsDir() && fi.Mode()&0o111 != 0 {
			return true
		}
	}
	return false
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

var _ Action = (*ExecAction)(nil)
