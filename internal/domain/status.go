package domain

import "fmt"

// StatusCode classifies why a service stage failed.
type StatusCode string

// Status codes reported with failures.
const (
	StatusNone                  StatusCode = "NONE"
	StatusInstallError          StatusCode = "INSTALL_ERROR"
	StatusInstallTimeout        StatusCode = "INSTALL_TIMEOUT"
	StatusInstallConfigNotValid StatusCode = "INSTALL_CONFIG_NOT_VALID"
	StatusStartupError          StatusCode = "STARTUP_ERROR"
	StatusStartupTimeout        StatusCode = "STARTUP_TIMEOUT"
	StatusStartupConfigNotValid StatusCode = "STARTUP_CONFIG_NOT_VALID"
	StatusRunError              StatusCode = "RUN_ERROR"
	StatusRunTimeout            StatusCode = "RUN_TIMEOUT"
	StatusShutdownError         StatusCode = "SHUTDOWN_ERROR"
	StatusShutdownTimeout       StatusCode = "SHUTDOWN_TIMEOUT"
	StatusDependencyNotValid    StatusCode = "DEPENDENCY_NOT_VALID"
	StatusForcedShutdown        StatusCode = "FORCED_SHUTDOWN"
)

type statusInfo struct {
	description string
	withExit    string
}

var statusDescriptions = map[StatusCode]statusInfo{
	StatusNone:                  {description: "No status code."},
	StatusInstallError:          {description: "An error occurred during installation.", withExit: "The install script exited with code %d."},
	StatusInstallTimeout:        {description: "Install script didn't finish within the timeout period."},
	StatusInstallConfigNotValid: {description: "The install configuration is not valid."},
	StatusStartupError:          {description: "An error occurred during startup.", withExit: "The startup script exited with code %d."},
	StatusStartupTimeout:        {description: "Startup script didn't finish within the timeout period."},
	StatusStartupConfigNotValid: {description: "The startup configuration is not valid."},
	StatusRunError:              {description: "An error occurred while running.", withExit: "The run script exited with code %d."},
	StatusRunTimeout:            {description: "Run script didn't finish within the timeout period."},
	StatusShutdownError:         {description: "An error occurred during shutdown.", withExit: "The shutdown script exited with code %d."},
	StatusShutdownTimeout:       {description: "Shutdown script didn't finish within the timeout period."},
	StatusDependencyNotValid:    {description: "The dependency configuration is not valid."},
	StatusForcedShutdown:        {description: "The service did not stop within the shutdown deadline and was terminated."},
}

// Description returns a human readable explanation of c.
func (c StatusCode) Description() string {
	if info, ok := statusDescriptions[c]; ok {
		return info.description
	}
	return string(c)
}

// DescribeExit returns the exit-code form of the description when c has one.
func (c StatusCode) DescribeExit(exitCode int) string {
	if info, ok := statusDescriptions[c]; ok && info.withExit != "" {
		return fmt.Sprintf(info.withExit, exitCode)
	}
	return c.Description()
}

// Stage names a lifecycle step.
type Stage string

// Lifecycle stages.
const (
	StageInstall   Stage = "install"
	StageStartup   Stage = "startup"
	StageRun       Stage = "run"
	StageShutdown  Stage = "shutdown"
	StageRecover   Stage = "recover"
	StageBootstrap Stage = "bootstrap"
)

// Stages lists the stages in lifecycle order.
var Stages = []Stage{StageBootstrap, StageInstall, StageStartup, StageRun, StageShutdown, StageRecover}

// ErrorCode returns the error status for a stage.
func (s Stage) ErrorCode() StatusCode {
	switch s {
	case StageInstall:
		return StatusInstallError
	case StageStartup:
		return StatusStartupError
	case StageRun:
		return StatusRunError
	case StageShutdown:
		return StatusShutdownError
	}
	return StatusNone
}

// TimeoutCode returns the timeout status for a stage.
func (s Stage) TimeoutCode() StatusCode {
	switch s {
	case StageInstall:
		return StatusInstallTimeout
	case StageStartup:
		return StatusStartupTimeout
	case StageRun:
		return StatusRunTimeout
	case StageShutdown:
		return StatusShutdownTimeout
	}
	return StatusNone
}

// ConfigCode returns the invalid-configuration status for a stage.
func (s Stage) ConfigCode() StatusCode {
	switch s {
	case StageInstall:
		return StatusInstallConfigNotValid
	case StageStartup, StageRun:
		return StatusStartupConfigNotValid
	}
	return StatusInstallConfigNotValid
}

// Failure records why a stage did not succeed.
type Failure struct {
	Stage    Stage
	Code     StatusCode
	ExitCode int
	Cause    error
}

// Error implements error.
func (f *Failure) Error() string {
	msg := f.Code.Description()
	if f.ExitCode != 0 {
		msg = f.Code.DescribeExit(f.ExitCode)
	}
	if f.Cause != nil {
		return fmt.Sprintf("%s %s: %v", f.Stage, f.Code, f.Cause)
	}
	return fmt.Sprintf("%s %s: %s", f.Stage, f.Code, msg)
}

// Unwrap returns the underlying cause.
func (f *Failure) Unwrap() error { return f.Cause }
