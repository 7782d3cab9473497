package service

import (
	"time"

	"github.com/bft-labs/edgevisor/internal/events"
	"github.com/bft-labs/edgevisor/internal/ports"
	"github.com/bft-labs/edgevisor/internal/stage"
	"github.com/bft-labs/edgevisor/pkg/clock"
	"github.com/bft-labs/edgevisor/pkg/log"
)

// Default timings.
const (
	DefaultGrace      = stage.DefaultGrace
	DefaultForceGrace = 2 * time.Second
	installBackoffMin = 100 * time.Millisecond
	installBackoffMax = 30 * time.Second
)

// Env carries everything a Service needs from its surroundings.
type Env struct {
	Clock     clock.Clock
	Runner    ports.Runner
	Resources ports.ResourceController
	Registry  *stage.Registry
	Bus       *events.Bus
	// Config, when set, is watched for changes to the service's node.
	Config ports.ConfigSource
	Logger log.Logger

	// Grace is the delay between polite and forced process termination.
	Grace time.Duration
	// ForceGrace bounds each wait of a forced finish.
	ForceGrace time.Duration

	// Locate resolves a dependency name.
	Locate func(name string) (*Service, bool)
	// Dependants lists the services with a HARD dependency on name.
	Dependants func(name string) []*Service
}

func (e Env) withDefaults() Env {
	if e.Clock == nil {
		e.Clock = clock.Real{}
	}
	if e.Registry == nil {
		e.Registry = stage.NewRegistry()
	}
	if e.Logger == nil {
		e.Logger = log.NewNoop()
	}
	if e.Bus == nil {
		e.Bus = events.NewBus(e.Logger)
	}
	if e.Grace <= 0 {
		e.Grace = DefaultGrace
	}
	if e.ForceGrace <= 0 {
		e.ForceGrace = DefaultForceGrace
	}
	if e.Locate == nil {
		e.Locate = func(string) (*Service, bool) { return nil, false }
	}
	if e.Dependants == nil {
		e.Dependants = func(string) []*Service { return nil }
	}
	return e
}
