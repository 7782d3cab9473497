package stage

import (
	"context"

	"github.com/bft-labs/edgevisor/internal/config"
	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/pkg/log"
)

// PluginConfig is handed to a plugin when it is installed.
type PluginConfig struct {
	Service string
	Version string
	Env     map[string]string
	Logger  log.Logger
}

// Plugin is a service implemented in-process.
type Plugin interface {
	// Name returns the plugin identifier.
	Name() string

	// Initialize prepares the plugin. It is the install stage.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Run serves until ctx is done and calls ready once it is serving.
	// Returning nil before ctx is done means the plugin finished its work.
	Run(ctx context.Context, ready func()) error

	// Shutdown releases what Initialize and Run acquired.
	Shutdown(ctx context.Context) error
}

// Recoverer is implemented by plugins with a recover stage.
type Recoverer interface {
	Recover(ctx context.Context) error
}

// Bootstrapper is implemented by plugins with a bootstrap stage.
type Bootstrapper interface {
	Bootstrap(ctx context.Context) (int, error)
}

// PluginSet exposes a Plugin's methods as stage actions.
type PluginSet struct {
	spec   config.Spec
	plugin Plugin
	logger log.Logger
}

// Pinned implements Pinned: every stage must reach the same instance.
func (s *PluginSet) Pinned() bool { return true }

// Action implements Set.
func (s *PluginSet) Action(stage domain.Stage) (Action, bool) {
	p := s.plugin
	switch stage {
	case domain.StageInstall:
		cfg := PluginConfig{
			Service: s.spec.Name,
			Version: s.spec.Version,
			Env:     s.spec.Env,
			Logger:  s.logger,
		}
		return NewFunc(func(ctx context.Context, _ func()) (int, error) {
			return 0, p.Initialize(ctx, cfg)
		}), true
	case domain.StageRun:
		return NewFunc(func(ctx context.Context, ready func()) (int, error) {
			return 0, p.Run(ctx, ready)
		}), true
	case domain.StageShutdown:
		return NewFunc(func(ctx context.Context, _ func()) (int, error) {
			return 0, p.Shutdown(ctx)
		}), true
	case domain.StageRecover:
		if r, ok := p.(Recoverer); ok {
			return NewFunc(func(ctx context.Context, _ func()) (int, error) {
				return 0, r.Recover(ctx)
			}), true
		}
	case domain.StageBootstrap:
		if b, ok := p.(Bootstrapper); ok {
			return NewFunc(func(ctx context.Context, _ func()) (int, error) {
				return b.Bootstrap(ctx)
			}), true
		}
	}
	return nil, false
}
var _ Pinned = (*PluginSet)(nil)
