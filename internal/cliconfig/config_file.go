package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Services        string  `toml:"services"`
	ShutdownTimeout string  `toml:"shutdown_timeout"`
	Grace           string  `toml:"grace"`
	ForceGrace      string  `toml:"force_grace"`
	Shell           string  `toml:"shell"`
	MetricsAddr     string  `toml:"metrics_addr"`
	EventLog        string  `toml:"event_log"`
	StatusFile      string  `toml:"status_file"`
	LogLevel        string  `toml:"log_level"`
	LogJSON         *bool   `toml:"log_json"`
	Watch           *bool   `toml:"watch"`
	MaxCPUs         float64 `toml:"max_cpus"`
	MaxMemoryKB     int     `toml:"max_memory_kb"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.edgevisor/config.toml, or "" when the home
// directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".edgevisor", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("services", fc.Services, &cfg.Services)
	s.setString("shell", fc.Shell, &cfg.Shell)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setString("event-log", fc.EventLog, &cfg.EventLog)
	s.setString("status-file", fc.StatusFile, &cfg.StatusFile)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("shutdown-timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout); err != nil {
		return err
	}
	if err := s.setDuration("grace", fc.Grace, &cfg.Grace); err != nil {
		return err
	}
	if err := s.setDuration("force-grace", fc.ForceGrace, &cfg.ForceGrace); err != nil {
		return err
	}

	s.setFloat("max-cpus", fc.MaxCPUs, &cfg.MaxCPUs)
	s.setInt("max-memory-kb", fc.MaxMemoryKB, &cfg.MaxMemoryKB)

	s.setBool("log-json", fc.LogJSON, &cfg.LogJSON)
	s.setBool("watch", fc.Watch, &cfg.Watch)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
