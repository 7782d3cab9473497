package edgevisor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bft-labs/edgevisor/internal/adapters/fs"
	"github.com/bft-labs/edgevisor/internal/adapters/process"
	"github.com/bft-labs/edgevisor/internal/adapters/resource"
	"github.com/bft-labs/edgevisor/internal/config"
	"github.com/bft-labs/edgevisor/internal/events"
	"github.com/bft-labs/edgevisor/internal/metrics"
	"github.com/bft-labs/edgevisor/internal/orchestrator"
	"github.com/bft-labs/edgevisor/internal/ports"
	"github.com/bft-labs/edgevisor/internal/stage"
	"github.com/bft-labs/edgevisor/internal/status"
	"github.com/bft-labs/edgevisor/pkg/log"
	"github.com/bft-labs/edgevisor/plugins/dircleanup"
)

// Edgevisor runs the services declared in one config file.
// Use New() to create an instance, then Start() to launch the services.
type Edgevisor struct {
	path     string
	opts     options
	logger   log.Logger
	tree     *config.Tree
	orch     *orchestrator.Orchestrator
	watcher  *config.Watcher
	recorder *status.Recorder
	metrics  *metrics.Listener
	run      *runState

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New loads the config file at path and registers its services. Nothing is
// started until Start. A service with an invalid declaration is still
// registered and goes BROKEN when started.
func New(path string, opts ...Option) (*Edgevisor, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger

	doc, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	tree := config.NewTree()
	tree.Replace(doc.Root)

	runner := o.runner
	if runner == nil {
		ropts := []process.Option{process.WithLogger(logger.With(log.String("component", "runner")))}
		if o.shell != "" {
			ropts = append(ropts, process.WithShell(o.shell))
		}
		if o.grace > 0 {
			ropts = append(ropts, process.WithWaitDelay(o.grace))
		}
		runner = process.NewRunner(ropts...)
	}
	resources := o.resources
	if resources == nil {
		suspender, _ := runner.(resource.Suspender)
		resources = resource.New(o.caps, suspender, logger.With(log.String("component", "resources")))
	}

	registry := stage.NewRegistry()
	registry.RegisterPlugin(dircleanup.Name, dircleanup.Factory)
	for name, f := range o.plugins {
		registry.RegisterPlugin(name, f)
	}

	e := &Edgevisor{
		path:   path,
		opts:   o,
		logger: logger,
		tree:   tree,
		run:    &runState{logger: logger},
	}
	if o.registerer != nil {
		e.metrics = metrics.New(o.registerer)
	}

	orch, err := orchestrator.NewFromConfig(tree, doc.Services, orchestrator.Config{
		Runner:     runner,
		Resources:  resources,
		Registry:   registry,
		Clock:      o.clock,
		Logger:     logger,
		Grace:      o.grace,
		ForceGrace: o.forceGrace,
		OnRemove:   e.forget,
	})
	if err != nil {
		return nil, err
	}
	e.orch = orch

	for _, l := range o.listeners {
		orch.AddListener(l)
	}
	if o.eventLog != nil {
		orch.AddListener(events.NewJSONLinesSink(o.eventLog, source(), logger))
	}
	if e.metrics != nil {
		orch.AddListener(e.metrics)
	}
	if o.statusFile != "" {
		e.recorder = status.NewRecorder(orch.Report, fs.NewStatusFile(o.statusFile), o.clock, logger)
		orch.AddListener(e.recorder)
	}
	e.watcher = config.NewWatcher(path, tree, config.DefaultWatcherConfig(), logger)

	logger.Info("edgevisor-created",
		log.String("config", path),
		log.Strings("services", doc.Services),
		log.String("version", Version))
	return e, nil
}

// Start launches every service in dependency order and returns without
// waiting for them to reach RUNNING. A dependency cycle or unknown
// dependency starts nothing; the affected services go BROKEN and the error
// is returned. Stop must still be called to release the instance.
func (e *Edgevisor) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.run.to(RunStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	if e.recorder != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.recorder.Run(runCtx)
		}()
	}

	if err := e.orch.Launch(runCtx); err != nil {
		_ = e.run.to(RunFailed, "launch failed")
		return err
	}

	if e.opts.watch {
		if err := e.watcher.Start(runCtx); err != nil {
			e.logger.Warn("config-watch-failed", log.String("config", e.path), log.Err(err))
		}
	}
	return e.run.to(RunRunning, "services launched")
}

// Stop closes every service in reverse dependency order within timeout.
// Returns an error wrapping ErrShutdownTimeout if some had to be forced.
func (e *Edgevisor) Stop(timeout time.Duration) (ShutdownReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.run.to(RunStopping, "Stop() called"); err != nil {
		return ShutdownReport{}, err
	}
	e.watcher.Stop()

	report, err := e.orch.Shutdown(timeout)

	e.cancel()
	e.wg.Wait()

	if err != nil {
		_ = e.run.to(RunFailed, err.Error())
	} else {
		_ = e.run.to(RunStopped, "graceful shutdown")
	}
	return report, err
}

// Reload reads the config file again. Changed services react to their own
// changes, new services are deployed and removed ones undeployed.
func (e *Edgevisor) Reload() error {
	return e.watcher.Reload()
}

// State returns the run state of the instance.
func (e *Edgevisor) State() RunState { return e.run.get() }

// Locate returns the named service.
func (e *Edgevisor) Locate(name string) (*Service, error) {
	return e.orch.Locate(name)
}

// Report returns the status of every service in declaration order.
func (e *Edgevisor) Report() []Status { return e.orch.Report() }

// Broken returns the status of every BROKEN service.
func (e *Edgevisor) Broken() []Status { return e.orch.Broken() }

// Order returns the service names in startup order.
func (e *Edgevisor) Order() ([]string, error) {
	svcs, err := e.orch.OrderedDependencies()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(svcs))
	for i, s := range svcs {
		out[i] = s.Name()
	}
	return out, nil
}

// AddListener registers l for every transition.
func (e *Edgevisor) AddListener(l Listener) (remove func()) {
	return e.orch.AddListener(l)
}

// Config returns the live configuration source.
func (e *Edgevisor) Config() ports.ConfigSource { return e.tree }

// forget drops the metrics of an undeployed service.
func (e *Edgevisor) forget(name string) {
	if e.metrics != nil {
		e.metrics.Forget(name)
	}
}

// source is the CloudEvents source of this host.
func source() string {
	h, err := os.Hostname()
	if err != nil {
		h = "unknown"
	}
	return fmt.Sprintf("edgevisor://%s", h)
}
