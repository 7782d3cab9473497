// Package orchestrator owns the set of services: it registers them, orders
// their startup by dependency and coordinates their shutdown.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bft-labs/edgevisor/internal/config"
	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/internal/events"
	"github.com/bft-labs/edgevisor/internal/ports"
	"github.com/bft-labs/edgevisor/internal/service"
	"github.com/bft-labs/edgevisor/internal/stage"
	"github.com/bft-labs/edgevisor/pkg/clock"
	"github.com/bft-labs/edgevisor/pkg/log"
)

// Config contains the collaborators shared by every service.
type Config struct {
	Runner    ports.Runner
	Resources ports.ResourceController
	Registry  *stage.Registry
	Clock     clock.Clock
	Logger    log.Logger

	// Grace is the delay between polite and forced termination of a
	// stage process.
	Grace time.Duration
	// ForceGrace bounds each wait of a forced finish at the shutdown
	// deadline.
	ForceGrace time.Duration

	// OnRemove, when set, is called with the name of each undeployed
	// service.
	OnRemove func(name string)
}

// Orchestrator is the registry of services.
type Orchestrator struct {
	cfg    Config
	logger log.Logger
	bus    *events.Bus
	source ports.ConfigSource

	mu       sync.RWMutex
	services map[string]*service.Service
	order    []string
	launched bool
	removing map[string]bool

	unwatch func()
}

// New creates an empty orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNoop()
	}
	if cfg.Registry == nil {
		cfg.Registry = stage.NewRegistry()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	return &Orchestrator{
		cfg:      cfg,
		logger:   cfg.Logger,
		bus:      events.NewBus(cfg.Logger),
		services: map[string]*service.Service{},
		removing: map[string]bool{},
	}
}

// NewFromConfig registers every service under the services namespace of
// src, in the given declaration order, and follows later creation and
// removal of services there. Names missing from order are registered
// after it, alphabetically.
func NewFromConfig(src ports.ConfigSource, order []string, cfg Config) (*Orchestrator, error) {
	o := New(cfg)
	o.source = src

	root, _ := src.Find(config.ServicesKey)
	nodes, _ := root.(map[string]any)
	names := append([]string(nil), order...)
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	for _, n := range sortedKeys(nodes) {
		if !seen[n] {
			names = append(names, n)
		}
	}

	for _, name := range names {
		if _, ok := nodes[name]; !ok {
			continue
		}
		spec, err := config.SpecFrom(src, name)
		if err != nil {
			o.logger.Error("config-invalid", log.Service(name), log.Err(err))
			spec = config.Spec{Name: name, Type: config.DefaultType}
		}
		if _, rerr := o.register(spec, err); rerr != nil {
			return nil, rerr
		}
	}
	o.unwatch = src.Subscribe(o.onServicesChange, config.ServicesKey)
	return o, nil
}

// Register adds a service built from spec. specErr, when set, is the
// configuration error that makes the service BROKEN once started.
func (o *Orchestrator) Register(spec config.Spec, specErr error) (*service.Service, error) {
	return o.register(spec, specErr)
}

func (o *Orchestrator) register(spec config.Spec, specErr error) (*service.Service, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("%w: empty service name", domain.ErrInvalidConfig)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.services[spec.Name]; ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyRegistered, spec.Name)
	}
	svc := service.New(spec, specErr, o.env())
	o.services[spec.Name] = svc
	o.order = append(o.order, spec.Name)
	o.logger.Debug("service-registered", log.Service(spec.Name), log.String("type", spec.Type))
	return svc, nil
}

func (o *Orchestrator) env() service.Env {
	return service.Env{
		Clock:      o.cfg.Clock,
		Runner:     o.cfg.Runner,
		Resources:  o.cfg.Resources,
		Registry:   o.cfg.Registry,
		Bus:        o.bus,
		Config:     o.source,
		Logger:     o.logger,
		Grace:      o.cfg.Grace,
		ForceGrace: o.cfg.ForceGrace,
		Locate:     o.lookup,
		Dependants: o.dependants,
	}
}

// Locate returns the named service.
func (o *Orchestrator) Locate(name string) (*service.Service, error) {
	if svc, ok := o.lookup(name); ok {
		return svc, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, name)
}

func (o *Orchestrator) lookup(name string) (*service.Service, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	svc, ok := o.services[name]
	return svc, ok
}

// Services returns every service in declaration order.
func (o *Orchestrator) Services() []*service.Service {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*service.Service, 0, len(o.order))
	for _, n := range o.order {
		out = append(out, o.services[n])
	}
	return out
}

// dependants lists the services with a HARD dependency on name.
func (o *Orchestrator) dependants(name string) []*service.Service {
	var out []*service.Service
	for _, svc := range o.Services() {
		if svc.HasHardDependency(name) {
			out = append(out, svc)
		}
	}
	return out
}

func (o *Orchestrator) softDependants(name string) []*service.Service {
	var out []*service.Service
	for _, svc := range o.Services() {
		for _, d := range svc.Dependencies() {
			if d.Name == name && d.Type == domain.Soft {
				out = append(out, svc)
			}
		}
	}
	return out
}

// AddListener registers l for the transitions of every service.
func (o *Orchestrator) AddListener(l events.Listener) (remove func()) {
	return o.bus.Subscribe(l)
}

// Bus returns the global event bus.
func (o *Orchestrator) Bus() *events.Bus { return o.bus }

func (o *Orchestrator) graph() graph {
	svcs := o.Services()
	g := graph{edges: make(map[string][]string, len(svcs))}
	for _, svc := range svcs {
		g.names = append(g.names, svc.Name())
		for _, d := range svc.Dependencies() {
			g.edges[svc.Name()] = append(g.edges[svc.Name()], d.Name)
		}
	}
	return g
}

// OrderedDependencies returns every service, dependencies first. Ties are
// broken by declaration order. Cycles and unknown dependencies are
// reported as ErrDependencyCycle and ErrUnknownDependency.
func (o *Orchestrator) OrderedDependencies() ([]*service.Service, error) {
	a := o.graph().sort()
	if err := a.err(); err != nil {
		return nil, err
	}
	return o.resolve(a.order), nil
}

func (o *Orchestrator) resolve(names []string) []*service.Service {
	out := make([]*service.Service, 0, len(names))
	for _, n := range names {
		if svc, ok := o.lookup(n); ok {
			out = append(out, svc)
		}
	}
	return out
}

// Launch requests the start of every service. A dependency cycle or an
// unknown dependency starts nothing: the affected services go BROKEN and
// the error is returned.
func (o *Orchestrator) Launch(ctx context.Context) error {
	a := o.graph().sort()
	if err := a.err(); err != nil {
		for name, cause := range a.affected() {
			svc, ok := o.lookup(name)
			if !ok {
				continue
			}
			svc.Invalidate(&config.SpecError{Service: name, Code: domain.StatusDependencyNotValid, Err: cause})
			svc.RequestStart()
		}
		o.logger.Error("launch-aborted", log.Err(err))
		return err
	}

	order := o.resolve(a.order)
	for _, svc := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		svc.RequestStart()
	}

	o.mu.Lock()
	o.launched = true
	o.mu.Unlock()
	o.logger.Info("launched", log.Strings("order", names(order)))
	return nil
}

// Undeploy closes the named service and removes it. Each HARD dependant
// is stopped once; SOFT dependants only lose the edge.
func (o *Orchestrator) Undeploy(ctx context.Context, name string) error {
	svc, err := o.Locate(name)
	if err != nil {
		return err
	}
	hard := o.dependants(name)
	soft := o.softDependants(name)
	for _, d := range hard {
		o.logger.Info("dependency-removed", log.Service(d.Name()), log.String("dependency", name))
		d.RequestStop()
	}

	outcome, err := svc.Close(ctx).Wait(ctx)
	if err != nil && outcome != service.OutcomeForced {
		return fmt.Errorf("undeploy %s: %w", name, err)
	}

	o.mu.Lock()
	delete(o.services, name)
	for i, n := range o.order {
		if n == name {
			o.order = append(o.order[:i:i], o.order[i+1:]...)
			break
		}
	}
	o.mu.Unlock()

	for _, d := range append(hard, soft...) {
		d.RemoveDependency(name)
	}
	if o.cfg.OnRemove != nil {
		o.cfg.OnRemove(name)
	}
	o.logger.Info("service-undeployed", log.Service(name), log.String("outcome", outcome.String()))
	return err
}

// Report returns the status of every service in declaration order.
func (o *Orchestrator) Report() []service.Status {
	svcs := o.Services()
	out := make([]service.Status, 0, len(svcs))
	for _, svc := range svcs {
		out = append(out, svc.Status())
	}
	return out
}

// Broken returns the status of every BROKEN service.
func (o *Orchestrator) Broken() []service.Status {
	var out []service.Status
	for _, st := range o.Report() {
		if st.Broken {
			out = append(out, st)
		}
	}
	return out
}

func names(svcs []*service.Service) []string {
	out := make([]string, len(svcs))
	for i, s := range svcs {
		out[i] = s.Name()
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
