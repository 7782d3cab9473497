package edgevisor

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/edgevisor/internal/adapters/resource"
	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/internal/events"
	"github.com/bft-labs/edgevisor/internal/orchestrator"
	"github.com/bft-labs/edgevisor/internal/ports"
	"github.com/bft-labs/edgevisor/internal/service"
	"github.com/bft-labs/edgevisor/internal/stage"
	"github.com/bft-labs/edgevisor/pkg/clock"
	"github.com/bft-labs/edgevisor/pkg/log"
)

// Re-exported types so that embedders need not import internal packages.
type (
	// Logger is the structured logger from pkg/log.
	Logger = log.Logger

	// Event is a state transition of one service.
	Event = domain.Event

	// State is a lifecycle state.
	State = domain.State

	// Listener receives every transition.
	Listener = events.Listener

	// ListenerFunc adapts a function to Listener.
	ListenerFunc = events.ListenerFunc

	// Status is the report of one service.
	Status = service.Status

	// Service is the handle of one registered service.
	Service = service.Service

	// ShutdownReport lists how each service was closed by Stop.
	ShutdownReport = orchestrator.ShutdownReport

	// Runner starts stage commands.
	Runner = ports.Runner

	// ResourceController applies limits and pauses services.
	ResourceController = ports.ResourceController

	// Plugin is a service implemented in-process.
	Plugin = stage.Plugin

	// PluginConfig is handed to a plugin when it is installed.
	PluginConfig = stage.PluginConfig

	// PluginFactory creates a fresh Plugin for each resolution.
	PluginFactory = stage.PluginFactory
)

var (
	// ErrShutdownTimeout is wrapped by Stop when services had to be forced.
	ErrShutdownTimeout = domain.ErrShutdownTimeout

	// ErrDependencyCycle is wrapped by Start and Order for a cyclic graph.
	ErrDependencyCycle = domain.ErrDependencyCycle

	// ErrNotFound is wrapped by Locate for an undeclared service.
	ErrNotFound = domain.ErrNotFound
)

// Option configures optional behavior of Edgevisor.
type Option func(*options)

// options holds the optional configuration for an Edgevisor instance.
type options struct {
	logger     log.Logger
	clock      clock.Clock
	runner     ports.Runner
	resources  ports.ResourceController
	listeners  []events.Listener
	eventLog   io.Writer
	registerer prometheus.Registerer
	statusFile string
	watch      bool
	shell      string
	caps       resource.Config
	grace      time.Duration
	forceGrace time.Duration
	plugins    map[string]stage.PluginFactory
}

// defaultOptions returns options with sensible defaults.
func defaultOptions() options {
	return options{
		logger:     log.NewNoop(),
		clock:      clock.Real{},
		caps:       resource.DefaultConfig(),
		grace:      service.DefaultGrace,
		forceGrace: service.DefaultForceGrace,
		plugins:    map[string]stage.PluginFactory{},
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithRunner replaces the os/exec runner. Pausing a service only suspends
// its processes when runner also implements Suspend and Continue.
func WithRunner(r Runner) Option {
	return func(o *options) {
		o.runner = r
	}
}

// WithResources replaces the default resource controller.
func WithResources(rc ResourceController) Option {
	return func(o *options) {
		o.resources = rc
	}
}

// WithResourceCaps caps the limits any service may request. A zero
// maxCPUs keeps the host's CPU count; a zero maxMemoryKB leaves memory
// uncapped. Ignored when WithResources is used.
func WithResourceCaps(maxCPUs float64, maxMemoryKB int64) Option {
	return func(o *options) {
		if maxCPUs > 0 {
			o.caps.MaxCPUs = maxCPUs
		}
		o.caps.MaxMemoryKB = maxMemoryKB
	}
}

// WithListener adds a listener for every transition.
func WithListener(l Listener) Option {
	return func(o *options) {
		o.listeners = append(o.listeners, l)
	}
}

// WithEventLog writes every transition to w as a JSON CloudEvent line.
func WithEventLog(w io.Writer) Option {
	return func(o *options) {
		o.eventLog = w
	}
}

// WithMetrics registers the transition metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithStatusFile keeps a JSON status report at path, or at
// path/status.json when path is a directory.
func WithStatusFile(path string) Option {
	return func(o *options) {
		o.statusFile = path
	}
}

// WithWatch reloads the config file when it changes. Services added to the
// file are deployed and services removed from it are undeployed.
func WithWatch(enabled bool) Option {
	return func(o *options) {
		o.watch = enabled
	}
}

// WithShell sets the shell used to run stage scripts. Default: /bin/sh.
func WithShell(path string) Option {
	return func(o *options) {
		o.shell = path
	}
}

// WithGrace sets the delay between polite and forced termination of a
// stage process.
func WithGrace(d time.Duration) Option {
	return func(o *options) {
		o.grace = d
	}
}

// WithForceGrace bounds each wait of a forced finish at the shutdown
// deadline.
func WithForceGrace(d time.Duration) Option {
	return func(o *options) {
		o.forceGrace = d
	}
}

// WithPlugin registers an in-process service implementation under name.
func WithPlugin(name string, f PluginFactory) Option {
	return func(o *options) {
		o.plugins[name] = f
	}
}
