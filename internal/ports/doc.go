// Package ports defines the interfaces (ports) that connect the lifecycle
// engine to infrastructure adapters.
//
// In Clean Architecture / Hexagonal Architecture, ports are the boundaries
// between the application core and the outside world. They define what the
// engine needs from external systems without specifying how those needs
// are fulfilled.
//
// # Port Interfaces
//
//   - [Runner]: Starts stage commands as processes and returns a [Handle]
//   - [ConfigSource]: Hierarchical, subscribable configuration
//   - [ResourceController]: Resource limits and pause/resume of a service
//
// # Usage
//
// The engine (internal/service, internal/orchestrator) depends only on these
// interfaces. Infrastructure adapters (internal/adapters, internal/config)
// implement them with concrete implementations (os/exec, in-memory trees,
// file loaders).
package ports
