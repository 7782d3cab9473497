package cliconfig

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bft-labs/edgevisor/internal/adapters/process"
	"github.com/bft-labs/edgevisor/internal/orchestrator"
	"github.com/bft-labs/edgevisor/internal/service"
)

// Config holds CLI configuration for edgevisor.
type Config struct {
	// Services is the YAML or TOML file declaring the services.
	Services string

	ShutdownTimeout time.Duration
	Grace           time.Duration
	ForceGrace      time.Duration

	Shell       string
	MetricsAddr string
	EventLog    string
	StatusFile  string
	LogLevel    string
	LogJSON     bool
	Watch       bool

	MaxCPUs     float64
	MaxMemoryKB int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ShutdownTimeout: orchestrator.DefaultShutdownTimeout,
		Grace:           service.DefaultGrace,
		ForceGrace:      service.DefaultForceGrace,
		Shell:           process.DefaultShell,
		LogLevel:        "info",
		Watch:           true,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Services == "" {
		return fmt.Errorf("services file is required")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	if c.Grace <= 0 {
		return fmt.Errorf("grace must be positive")
	}
	if c.ForceGrace <= 0 {
		return fmt.Errorf("force grace must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setFloat sets a float64 value if positive and flag not changed.
func (s *configSetter) setFloat(flag string, value float64, dst *float64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setFloatFromString parses a string to float64 and sets the destination if valid.
func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if f <= 0 {
		return nil
	}
	*dst = f
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
