package domain

import "errors"

// Domain errors represent error conditions in edgevisor.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrNotFound is returned when a service name is not declared.
	ErrNotFound = errors.New("edgevisor: service not found")

	// ErrAlreadyRegistered is returned when a service name is registered twice.
	ErrAlreadyRegistered = errors.New("edgevisor: service already registered")

	// ErrIllegalTransition marks an attempted edge outside the state table.
	ErrIllegalTransition = errors.New("edgevisor: illegal state transition")

	// ErrDependencyCycle is returned when the dependency graph has a cycle.
	ErrDependencyCycle = errors.New("edgevisor: dependency cycle")

	// ErrUnknownDependency is returned when a dependency names no service.
	ErrUnknownDependency = errors.New("edgevisor: unknown dependency")

	// ErrInvalidDependency is returned for a malformed dependency declaration.
	ErrInvalidDependency = errors.New("edgevisor: invalid dependency")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("edgevisor: invalid configuration")

	// ErrTimeout is returned when a bounded operation exceeds its timeout.
	ErrTimeout = errors.New("edgevisor: timeout")

	// ErrShutdownTimeout is returned when graceful shutdown needed forcing.
	ErrShutdownTimeout = errors.New("edgevisor: shutdown timeout")

	// ErrClosed is returned when a request targets a closed service.
	ErrClosed = errors.New("edgevisor: service closed")

	// ErrNotRunning is returned when an operation needs a RUNNING service.
	ErrNotRunning = errors.New("edgevisor: service not running")

	// ErrBusy is returned when a stage cannot run because another stage of
	// the same service is in progress.
	ErrBusy = errors.New("edgevisor: service busy")
)
