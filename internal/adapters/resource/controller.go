// Package resource applies resource limits and suspends services on the
// local host.
package resource

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/internal/ports"
	"github.com/bft-labs/edgevisor/pkg/log"
)

// Suspender freezes and thaws the processes of a service.
type Suspender interface {
	Suspend(service string) error
	Continue(service string) error
}

// Config holds controller settings.
type Config struct {
	// MaxCPUs caps a CPU limit. Default: the host's CPU count.
	MaxCPUs float64
	// MaxMemoryKB caps a memory limit; zero leaves it uncapped.
	MaxMemoryKB int64
}

// DefaultConfig returns a Config sized to the host.
func DefaultConfig() Config {
	return Config{MaxCPUs: float64(runtime.NumCPU())}
}

// Controller is a ports.ResourceController. Limits are recorded and
// clamped to the host; pausing is delegated to a Suspender.
type Controller struct {
	cfg       Config
	suspender Suspender
	logger    log.Logger

	mu     sync.RWMutex
	limits map[string]ports.ResourceSpec
	paused map[string]bool
}

// New creates a Controller. A nil suspender makes Pause and Resume only
// track state.
func New(cfg Config, suspender Suspender, logger log.Logger) *Controller {
	if cfg.MaxCPUs <= 0 {
		cfg.MaxCPUs = float64(runtime.NumCPU())
	}
	if logger == nil {
		logger = log.NewNoop()
	}
	return &Controller{
		cfg:       cfg,
		suspender: suspender,
		logger:    logger,
		limits:    map[string]ports.ResourceSpec{},
		paused:    map[string]bool{},
	}
}

// Limit records spec for service, clamped to the configured maximums.
func (c *Controller) Limit(service string, spec ports.ResourceSpec) error {
	if spec.CPUs < 0 || spec.MemoryKB < 0 {
		return fmt.Errorf("%w: negative resource limit for %s", domain.ErrInvalidConfig, service)
	}
	if spec.CPUs > c.cfg.MaxCPUs {
		c.logger.Warn("cpu-limit-clamped",
			log.Service(service),
			log.Float64("requested", spec.CPUs),
			log.Float64("max", c.cfg.MaxCPUs))
		spec.CPUs = c.cfg.MaxCPUs
	}
	if c.cfg.MaxMemoryKB > 0 && spec.MemoryKB > c.cfg.MaxMemoryKB {
		c.logger.Warn("memory-limit-clamped",
			log.Service(service),
			log.Int64("requested", spec.MemoryKB),
			log.Int64("max", c.cfg.MaxMemoryKB))
		spec.MemoryKB = c.cfg.MaxMemoryKB
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if spec.IsZero() {
		delete(c.limits, service)
	} else {
		c.limits[service] = spec
	}
	c.logger.Debug("resource-limits-applied",
		log.Service(service),
		log.Float64("cpus", spec.CPUs),
		log.Int64("memory_kb", spec.MemoryKB))
	return nil
}

// Limits returns the limits recorded for service.
func (c *Controller) Limits(service string) (ports.ResourceSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	spec, ok := c.limits[service]
	return spec, ok
}

// Pause implements ports.ResourceController.
func (c *Controller) Pause(service string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused[service] {
		return nil
	}
	if c.suspender != nil {
		if err := c.suspender.Suspend(service); err != nil {
			return fmt.Errorf("pause %s: %w", service, err)
		}
	}
	c.paused[service] = true
	return nil
}

// Resume implements ports.ResourceController.
func (c *Controller) Resume(service string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused[service] {
		return nil
	}
	if c.suspender != nil {
		if err := c.suspender.Continue(service); err != nil {
			return fmt.Errorf("resume %s: %w", service, err)
		}
	}
	delete(c.paused, service)
	return nil
}

// IsPaused implements ports.ResourceController.
func (c *Controller) IsPaused(service string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paused[service]
}

var _ ports.ResourceController = (*Controller)(nil)
