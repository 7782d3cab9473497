package ports

import (
	"context"
	"time"
)

// Command describes one stage command to execute.
type Command struct {
	Service string
	Stage   string
	Script  string
	Env     map[string]string
	Dir     string
}

// Runner starts stage commands.
type Runner interface {
	// Start launches cmd and returns once the process exists.
	// Canceling ctx does not stop the process; use Handle.Terminate.
	Start(ctx context.Context, cmd Command) (Handle, error)
}

// Handle controls one started process.
type Handle interface {
	// Wait blocks up to timeout for the process to exit and returns its
	// exit code. A non-positive timeout waits without bound. On timeout the
	// error is domain.ErrTimeout and the process keeps running.
	Wait(timeout time.Duration) (int, error)

	// Terminate asks the process to stop, or kills it when force is set.
	Terminate(force bool) error

	// Alive reports whether the process is still running.
	Alive() bool
}
