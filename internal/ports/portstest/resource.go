package portstest

import (
	"errors"
	"sync"

	"github.com/bft-labs/edgevisor/internal/ports"
)

// ErrResume is returned by ResourceController.Resume while resume failures are enabled.
var ErrResume = errors.New("resume failed")

// ResourceController records limit and pause calls.
type ResourceController struct {
	mu         sync.Mutex
	limits     map[string]ports.ResourceSpec
	paused     map[string]bool
	calls      []string
	failResume bool
}

// NewResourceController creates an empty controller.
func NewResourceController() *ResourceController {
	return &ResourceController{limits: map[string]ports.ResourceSpec{}, paused: map[string]bool{}}
}

// Limit implements ports.ResourceController.
func (c *ResourceController) Limit(service string, spec ports.ResourceSpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limits[service] = spec
	c.calls = append(c.calls, "limit:"+service)
	return nil
}

// Pause implements ports.ResourceController.
func (c *ResourceController) Pause(service string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused[service] = true
	c.calls = append(c.calls, "pause:"+service)
	return nil
}

// Resume implements ports.ResourceController.
func (c *ResourceController) Resume(service string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "resume:"+service)
	if c.failResume {
		return ErrResume
	}
	c.paused[service] = false
	return nil
}

// IsPaused implements ports.ResourceController.
func (c *ResourceController) IsPaused(service string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused[service]
}

// Limits returns the last limits applied to service.
func (c *ResourceController) Limits(service string) (ports.ResourceSpec, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limits[service]
	return l, ok
}

// Calls returns the recorded calls as "op:service".
func (c *ResourceController) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// SetFailResume toggles resume failures.
func (c *ResourceController) SetFailResume(fail bool) {
	c.mu.Lock()
	c.failResume = fail
	c.mu.Unlock()
}

var _ ports.ResourceController = (*ResourceController)(nil)
