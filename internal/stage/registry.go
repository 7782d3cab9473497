package stage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bft-labs/edgevisor/internal/config"
	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/internal/ports"
	"github.com/bft-labs/edgevisor/pkg/clock"
	"github.com/bft-labs/edgevisor/pkg/log"
)

// Type tags with built-in factories.
const (
	TypeGeneric = config.DefaultType
	TypePlugin  = "plugin"
)

// Deps are the collaborators a Factory may use.
type Deps struct {
	Runner ports.Runner
	Grace  time.Duration
	Logger log.Logger
	Clock  clock.Clock
}

// Factory builds the stage actions of a service with a given type tag.
type Factory func(spec config.Spec, deps Deps) (Set, error)

// Pinned is implemented by sets whose actions share state from install
// until the next reinstall, such as an in-process plugin instance. A
// service resolves such a set once per install and reuses it.
type Pinned interface {
	Set
	Pinned() bool
}

// IsPinned reports whether set must be kept for the whole install.
func IsPinned(set Set) bool {
	p, ok := set.(Pinned)
	return ok && p.Pinned()
}

// PluginFactory creates a fresh Plugin instance per resolution. The
// instance lives from install until the service is reinstalled.
type PluginFactory func() Plugin

// Registry maps componentType tags to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	plugins   map[string]PluginFactory
}

// NewRegistry creates a registry with the generic and plugin types.
func NewRegistry() *Registry {
	r := &Registry{
		factories: map[string]Factory{},
		plugins:   map[string]PluginFactory{},
	}
	r.factories[TypeGeneric] = execFactory
	r.factories[TypePlugin] = r.pluginFactory
	return r
}

// Register adds a factory for typeTag.
func (r *Registry) Register(typeTag string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[typeTag]; ok {
		return fmt.Errorf("component type %q already registered", typeTag)
	}
	r.factories[typeTag] = f
	return nil
}

// RegisterPlugin makes a plugin available to services of type "plugin"
// whose plugin key (default: the service name) equals name.
func (r *Registry) RegisterPlugin(name string, f PluginFactory) {
	r.mu.Lock()
	r.plugins[name] = f
	r.mu.Unlock()
}

// Types lists registered type tags.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Resolve builds the action set for spec. Unknown types are a
// configuration error.
func (r *Registry) Resolve(spec config.Spec, deps Deps) (Set, error) {
	if deps.Logger == nil {
		deps.Logger = log.NewNoop()
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	r.mu.RLock()
	f, ok := r.factories[spec.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, &config.SpecError{
			Service: spec.Name,
			Code:    domain.StatusInstallConfigNotValid,
			Err:     fmt.Errorf("unknown componentType %q", spec.Type),
		}
	}
	set, err := f(spec, deps)
	if err != nil {
		return nil, err
	}
	return set, nil
}

func (r *Registry) pluginFactory(spec config.Spec, deps Deps) (Set, error) {
	r.mu.RLock()
	f, ok := r.plugins[spec.Plugin]
	r.mu.RUnlock()
	if !ok {
		return nil, &config.SpecError{
			Service: spec.Name,
			Code:    domain.StatusInstallConfigNotValid,
			Err:     fmt.Errorf("no plugin named %q", spec.Plugin),
		}
	}
	return &PluginSet{spec: spec, plugin: f(), logger: deps.Logger}, nil
}
