package cliconfig

import "os"

// EnvPrefix prefixes every environment setting.
const EnvPrefix = "EDGEVISOR_"

// ApplyEnvConfig applies configuration from environment variables (EDGEVISOR_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	env := func(key string) string { return os.Getenv(EnvPrefix + key) }

	s.setString("services", env("SERVICES"), &cfg.Services)
	s.setString("shell", env("SHELL"), &cfg.Shell)
	s.setString("metrics-addr", env("METRICS_ADDR"), &cfg.MetricsAddr)
	s.setString("event-log", env("EVENT_LOG"), &cfg.EventLog)
	s.setString("status-file", env("STATUS_FILE"), &cfg.StatusFile)
	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setDuration("shutdown-timeout", env("SHUTDOWN_TIMEOUT"), &cfg.ShutdownTimeout); err != nil {
		return err
	}
	if err := s.setDuration("grace", env("GRACE"), &cfg.Grace); err != nil {
		return err
	}
	if err := s.setDuration("force-grace", env("FORCE_GRACE"), &cfg.ForceGrace); err != nil {
		return err
	}

	if err := s.setFloatFromString("max-cpus", env("MAX_CPUS"), &cfg.MaxCPUs); err != nil {
		return err
	}
	if err := s.setIntFromString("max-memory-kb", env("MAX_MEMORY_KB"), &cfg.MaxMemoryKB); err != nil {
		return err
	}

	s.setBoolFromString("log-json", env("LOG_JSON"), &cfg.LogJSON)
	s.setBoolFromString("watch", env("WATCH"), &cfg.Watch)

	return nil
}
