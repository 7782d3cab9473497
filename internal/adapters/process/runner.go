// Package process runs stage scripts as operating system processes.
package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/internal/ports"
	"github.com/bft-labs/edgevisor/pkg/log"
)

// DefaultShell interprets stage scripts.
const DefaultShell = "/bin/sh"

// DefaultWaitDelay is how long output is drained after a process exits.
const DefaultWaitDelay = 5 * time.Second

// Runner starts each script with "sh -c" in its own process group.
type Runner struct {
	shell     string
	environ   []string
	logger    log.Logger
	waitDelay time.Duration

	mu   sync.Mutex
	live map[string]map[*Handle]struct{}
}

// Option configures a Runner.
type Option func(*Runner)

// WithShell sets the interpreter for scripts.
func WithShell(path string) Option {
	return func(r *Runner) { r.shell = path }
}

// WithEnviron sets the base environment. The parent environment is used
// by default.
func WithEnviron(env []string) Option {
	return func(r *Runner) { r.environ = env }
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithWaitDelay bounds how long output pipes are drained after a process
// exits. A descendant that keeps them open is cut off after d.
func WithWaitDelay(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.waitDelay = d
		}
	}
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		shell:     DefaultShell,
		environ:   os.Environ(),
		logger:    log.NewNoop(),
		waitDelay: DefaultWaitDelay,
		live:      map[string]map[*Handle]struct{}{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start implements ports.Runner.
func (r *Runner) Start(ctx context.Context, cmd ports.Command) (ports.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := exec.Command(r.shell, "-c", cmd.Script)
	c.Dir = cmd.Dir
	c.Env = mergeEnv(r.environ, cmd.Env)
	c.Stdout = &lineWriter{logger: r.logger, service: cmd.Service, stage: cmd.Stage, stream: "stdout"}
	c.Stderr = &lineWriter{logger: r.logger, service: cmd.Service, stage: cmd.Stage, stream: "stderr"}
	c.WaitDelay = r.waitDelay
	configureProcAttr(c)

	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("start %s/%s: %w", cmd.Service, cmd.Stage, err)
	}
	r.logger.Debug("process-started",
		log.Service(cmd.Service),
		log.String("stage", cmd.Stage),
		log.Int("pid", c.Process.Pid))

	h := &Handle{cmd: c, done: make(chan struct{})}
	r.track(cmd.Service, h)
	go func() {
		h.reap()
		r.untrack(cmd.Service, h)
	}()
	return h, nil
}

func (r *Runner) track(service string, h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.live[service]
	if !ok {
		set = map[*Handle]struct{}{}
		r.live[service] = set
	}
	set[h] = struct{}{}
}

func (r *Runner) untrack(service string, h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live[service], h)
	if len(r.live[service]) == 0 {
		delete(r.live, service)
	}
}

func (r *Runner) handles(service string) []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Handle, 0, len(r.live[service]))
	for h := range r.live[service] {
		out = append(out, h)
	}
	return out
}

// Suspend stops every live process group of service.
func (r *Runner) Suspend(service string) error {
	return r.each(service, true)
}

// Continue resumes every live process group of service.
func (r *Runner) Continue(service string) error {
	return r.each(service, false)
}

func (r *Runner) each(service string, stop bool) error {
	var errs []error
	for _, h := range r.handles(service) {
		if !h.Alive() {
			continue
		}
		if err := suspendGroup(h.cmd.Process, stop); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// mergeEnv appends extra to base, overriding keys already present.
func mergeEnv(base []string, extra map[string]string) []string {
	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := extra[key]; !ok {
			out = append(out, kv)
		}
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}

// Handle is a started process.
type Handle struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu   sync.Mutex
	code int
	err  error
}

func (h *Handle) reap() {
	err := h.cmd.Wait()
	if errors.Is(err, exec.ErrWaitDelay) {
		err = nil
	}
	code, werr := exitCode(h.cmd.ProcessState, err)
	h.mu.Lock()
	h.code, h.err = code, werr
	h.mu.Unlock()
	close(h.done)
}

// Wait implements ports.Handle.
func (h *Handle) Wait(timeout time.Duration) (int, error) {
	if timeout <= 0 {
		<-h.done
	} else {
		select {
		case <-h.done:
		case <-time.After(timeout):
			return -1, domain.ErrTimeout
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.code, h.err
}

// Terminate implements ports.Handle. The whole process group is
// signaled.
func (h *Handle) Terminate(force bool) error {
	if !h.Alive() {
		return nil
	}
	err := signalGroup(h.cmd.Process, force)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Alive implements ports.Handle.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Pid returns the process id.
func (h *Handle) Pid() int { return h.cmd.Process.Pid }

var (
	_ ports.Runner = (*Runner)(nil)
	_ ports.Handle = (*Handle)(nil)
)
