package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bft-labs/edgevisor/internal/domain"
	"github.com/bft-labs/edgevisor/internal/ports"
)

// Config keys of a service node.
const (
	ServicesKey       = "services"
	KeyComponentType  = "componentType"
	KeyVersion        = "version"
	KeyDependencies   = "dependencies"
	KeyLifecycle      = "lifecycle"
	KeySetenv         = "setenv"
	KeyRunWith        = "runWith"
	KeyResourceLimits = "systemResourceLimits"
	KeyPosixUser      = "posixUser"
	KeyWorkDir        = "workDir"
	KeyPlugin         = "plugin"
	KeyScript         = "script"
	KeyTimeout        = "timeout"
	KeyRetryBudget    = "retryBudget"
	KeySkipIf         = "skipif"
	KeyErrorReset     = "errorResetTime"
	DefaultType       = "generic"
)

// Defaults applied when a stage leaves them unset.
const (
	DefaultInstallTimeout   = 120 * time.Second
	DefaultStartupTimeout   = 120 * time.Second
	DefaultShutdownTimeout  = 15 * time.Second
	DefaultRecoverTimeout   = 60 * time.Second
	DefaultBootstrapTimeout = 120 * time.Second
	DefaultRetryBudget      = 3
	DefaultErrorResetTime   = time.Hour
)

// DefaultTimeout returns the stage timeout used when none is configured.
// The run stage has no default bound.
func DefaultTimeout(stage domain.Stage) time.Duration {
	switch stage {
	case domain.StageInstall:
		return DefaultInstallTimeout
	case domain.StageStartup:
		return DefaultStartupTimeout
	case domain.StageShutdown:
		return DefaultShutdownTimeout
	case domain.StageRecover:
		return DefaultRecoverTimeout
	case domain.StageBootstrap:
		return DefaultBootstrapTimeout
	}
	return 0
}

// StageSpec is the configuration of one lifecycle stage.
type StageSpec struct {
	Script      string
	Timeout     time.Duration
	RetryBudget int
	SkipIf      *SkipCondition
}

// Spec is an immutable snapshot of one service's configuration.
type Spec struct {
	Name           string
	Type           string
	Version        string
	Plugin         string
	Dependencies   []domain.Dependency
	Stages         map[domain.Stage]StageSpec
	Env            map[string]string
	WorkDir        string
	PosixUser      string
	Limits         ports.ResourceSpec
	ErrorResetTime time.Duration
}

// Stage returns the configuration of stage and whether it is defined.
func (s Spec) Stage(stage domain.Stage) (StageSpec, bool) {
	st, ok := s.Stages[stage]
	return st, ok
}

// Timeout returns the configured or default timeout of stage.
func (s Spec) Timeout(stage domain.Stage) time.Duration {
	if st, ok := s.Stages[stage]; ok && st.Timeout > 0 {
		return st.Timeout
	}
	return DefaultTimeout(stage)
}

// RetryBudget returns how many consecutive failures of stage are tolerated
// before the service is BROKEN.
func (s Spec) RetryBudget(stage domain.Stage) int {
	if st, ok := s.Stages[stage]; ok && st.RetryBudget > 0 {
		return st.RetryBudget
	}
	return DefaultRetryBudget
}

// SpecError is a configuration error attributed to a stage.
type SpecError struct {
	Service string
	Code    domain.StatusCode
	Err     error
}

func (e *SpecError) Error() string {
	return fmt.Sprintf("service %s: %s: %v", e.Service, e.Code, e.Err)
}

func (e *SpecError) Unwrap() []error { return []error{domain.ErrInvalidConfig, e.Err} }

func specErr(name string, code domain.StatusCode, format string, args ...any) error {
	return &SpecError{Service: name, Code: code, Err: fmt.Errorf(format, args...)}
}

// SpecFrom reads the snapshot of service name from src.
func SpecFrom(src ports.ConfigSource, name string) (Spec, error) {
	v, ok := src.Find(ServicesKey, name)
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", domain.ErrNotFound, name)
	}
	node, _ := v.(map[string]any)
	return ParseSpec(name, node)
}

// ParseSpec parses a service node.
func ParseSpec(name string, node map[string]any) (Spec, error) {
	spec := Spec{
		Name:           name,
		Type:           DefaultType,
		Stages:         map[domain.Stage]StageSpec{},
		Env:            map[string]string{},
		ErrorResetTime: DefaultErrorResetTime,
	}
	if node == nil {
		return spec, nil
	}

	if v, ok := node[KeyComponentType]; ok {
		spec.Type = strings.ToLower(strings.TrimSpace(ToString(v)))
	}
	spec.Version = ToString(node[KeyVersion])
	spec.Plugin = ToString(node[KeyPlugin])
	if spec.Plugin == "" {
		spec.Plugin = name
	}
	spec.WorkDir = ToString(node[KeyWorkDir])

	deps, err := parseDependencies(node[KeyDependencies])
	if err != nil {
		return Spec{}, &SpecError{Service: name, Code: domain.StatusDependencyNotValid, Err: err}
	}
	for _, d := range deps {
		if d.Name == name {
			return Spec{}, specErr(name, domain.StatusDependencyNotValid, "service depends on itself")
		}
	}
	spec.Dependencies = deps

	if lc, ok := node[KeyLifecycle].(map[string]any); ok {
		if err := parseLifecycle(&spec, lc); err != nil {
			return Spec{}, err
		}
	}

	if env, ok := node[KeySetenv].(map[string]any); ok {
		for k, v := range env {
			spec.Env[k] = ToString(v)
		}
	}

	if rw, ok := node[KeyRunWith].(map[string]any); ok {
		spec.PosixUser = ToString(rw[KeyPosixUser])
		if limits, ok := rw[KeyResourceLimits].(map[string]any); ok {
			if v, ok := limits["cpus"]; ok {
				cpus, err := ToFloat64(v)
				if err != nil || cpus < 0 {
					return Spec{}, specErr(name, domain.StatusStartupConfigNotValid, "invalid cpus limit %v", v)
				}
				spec.Limits.CPUs = cpus
			}
			if v, ok := limits["memory"]; ok {
				mem, err := ToInt64(v)
				if err != nil || mem < 0 {
					return Spec{}, specErr(name, domain.StatusStartupConfigNotValid, "invalid memory limit %v", v)
				}
				spec.Limits.MemoryKB = mem
			}
		}
	}

	return spec, nil
}

func parseLifecycle(spec *Spec, lc map[string]any) error {
	if v, ok := lc[KeyErrorReset]; ok {
		d, err := ToDuration(v)
		if err != nil || d <= 0 {
			return specErr(spec.Name, domain.StatusInstallConfigNotValid, "invalid %s %v", KeyErrorReset, v)
		}
		spec.ErrorResetTime = d
	}

	for _, stage := range domain.Stages {
		raw, ok := lc[string(stage)]
		if !ok {
			continue
		}
		st, err := parseStage(raw)
		if err != nil {
			return specErr(spec.Name, stage.ConfigCode(), "lifecycle.%s: %v", stage, err)
		}
		spec.Stages[stage] = st
	}
	return nil
}

var errMissingScript = errors.New("missing script")

func parseStage(raw any) (StageSpec, error) {
	switch t := raw.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return StageSpec{}, errMissingScript
		}
		return StageSpec{Script: t}, nil
	case map[string]any:
		st := StageSpec{Script: ToString(t[KeyScript])}
		if strings.TrimSpace(st.Script) == "" {
			return StageSpec{}, errMissingScript
		}
		if v, ok := t[KeyTimeout]; ok {
			d, err := ToDuration(v)
			if err != nil || d < 0 {
				return StageSpec{}, fmt.Errorf("invalid timeout %v", v)
			}
			st.Timeout = d
		}
		if v, ok := t[KeyRetryBudget]; ok {
			n, err := ToInt(v)
			if err != nil || n < 1 {
				return StageSpec{}, fmt.Errorf("invalid retryBudget %v", v)
			}
			st.RetryBudget = n
		}
		if v, ok := t[KeySkipIf]; ok {
			cond, err := ParseSkipCondition(ToString(v))
			if err != nil {
				return StageSpec{}, err
			}
			st.SkipIf = &cond
		}
		return st, nil
	}
	return StageSpec{}, fmt.Errorf("unsupported stage value %T", raw)
}

// parseDependencies accepts ["a", "b:SOFT"] or {a: HARD, b: {dependencyType: SOFT}}.
// Map keys are taken in lexical order.
func parseDependencies(raw any) ([]domain.Dependency, error) {
	switch t := raw.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		names := make([]string, 0, len(t))
		for k := range t {
			names = append(names, k)
		}
		sort.Strings(names)
		decls := make([]string, 0, len(names))
		for _, n := range names {
			typ := ""
			switch v := t[n].(type) {
			case string:
				typ = v
			case map[string]any:
				typ = ToString(v["dependencyType"])
				if typ == "" {
					typ = ToString(v["type"])
				}
			}
			if typ == "" {
				decls = append(decls, n)
			} else {
				decls = append(decls, n+":"+typ)
			}
		}
		return domain.ParseDependencies(decls)
	default:
		decls, err := ToStringList(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidDependency, err)
		}
		return domain.ParseDependencies(decls)
	}
}

// Reaction classifies what a configuration change requires of a running
// service.
type Reaction int

// Reactions in increasing order of disruption.
const (
	ReactNone Reaction = iota
	ReactLimits
	ReactDependencies
	ReactRestart
	ReactReinstall
)

// Classify maps a changed path relative to the service node to a Reaction.
func Classify(rel []string) Reaction {
	if len(rel) == 0 {
		return ReactReinstall
	}
	switch rel[0] {
	case KeyVersion, KeyComponentType, KeyPlugin:
		return ReactReinstall
	case KeyDependencies:
		return ReactDependencies
	case KeySetenv, KeyWorkDir:
		return ReactRestart
	case KeyLifecycle:
		if len(rel) > 1 && rel[1] == string(domain.StageInstall) {
			return ReactReinstall
		}
		if len(rel) > 1 && rel[1] == string(domain.StageBootstrap) {
			return ReactNone
		}
		return ReactRestart
	case KeyRunWith:
		if len(rel) > 1 && rel[1] == KeyResourceLimits {
			return ReactLimits
		}
		if len(rel) > 1 && rel[1] == KeyPosixUser {
			return ReactReinstall
		}
		return ReactRestart
	}
	return ReactNone
}
