package cliconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) { c.Services = "services.yaml" }},
		{name: "missing services", mutate: func(c *Config) {}, wantErr: "services file is required"},
		{
			name:    "zero shutdown timeout",
			mutate:  func(c *Config) { c.Services = "s.yaml"; c.ShutdownTimeout = 0 },
			wantErr: "shutdown timeout",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Services = "s.yaml"; c.LogLevel = "loud" },
			wantErr: "unknown log level",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyFileConfig(t *testing.T) {
	trueVal := true
	fc := FileConfig{
		Services:        "/etc/edgevisor/services.yaml",
		ShutdownTimeout: "45s",
		MetricsAddr:     ":9100",
		LogJSON:         &trueVal,
		MaxCPUs:         2,
	}
	cfg := DefaultConfig()
	cfg.MetricsAddr = ":9999"
	if err := ApplyFileConfig(&cfg, fc, map[string]bool{"metrics-addr": true}); err != nil {
		t.Fatalf("ApplyFileConfig failed: %v", err)
	}
	if cfg.Services != "/etc/edgevisor/services.yaml" {
		t.Errorf("Services = %v", cfg.Services)
	}
	if cfg.ShutdownTimeout != 45*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 45s", cfg.ShutdownTimeout)
	}
	if cfg.MetricsAddr != ":9999" {
		t.Errorf("MetricsAddr = %v, want :9999 (flag should win)", cfg.MetricsAddr)
	}
	if !cfg.LogJSON {
		t.Error("LogJSON = false, want true")
	}
	if cfg.MaxCPUs != 2 {
		t.Errorf("MaxCPUs = %v, want 2", cfg.MaxCPUs)
	}
}

func TestApplyFileConfig_InvalidDuration(t *testing.T) {
	cfg := DefaultConfig()
	if err := ApplyFileConfig(&cfg, FileConfig{Grace: "soon"}, map[string]bool{}); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoadFileConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
services = "services.toml"
shutdown_timeout = "1m"
log_level = "debug"
watch = false
max_memory_kb = 4096
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("LoadFileConfig failed: %v", err)
	}
	if fc.Services != "services.toml" || fc.ShutdownTimeout != "1m" || fc.LogLevel != "debug" {
		t.Errorf("unexpected file config: %+v", fc)
	}
	if fc.Watch == nil || *fc.Watch {
		t.Errorf("Watch = %v, want false", fc.Watch)
	}
	if fc.MaxMemoryKB != 4096 {
		t.Errorf("MaxMemoryKB = %v, want 4096", fc.MaxMemoryKB)
	}
	if !FileExists(path) || FileExists(path+".missing") {
		t.Error("FileExists mismatch")
	}
}

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		changed map[string]bool
		check   func(t *testing.T, c Config)
		wantErr bool
	}{
		{
			name: "applies values",
			env: map[string]string{
				"EDGEVISOR_SERVICES":         "/env/services.yaml",
				"EDGEVISOR_SHUTDOWN_TIMEOUT": "10s",
				"EDGEVISOR_LOG_JSON":         "1",
				"EDGEVISOR_WATCH":            "false",
				"EDGEVISOR_MAX_MEMORY_KB":    "2048",
			},
			check: func(t *testing.T, c Config) {
				if c.Services != "/env/services.yaml" {
					t.Errorf("Services = %v", c.Services)
				}
				if c.ShutdownTimeout != 10*time.Second {
					t.Errorf("ShutdownTimeout = %v", c.ShutdownTimeout)
				}
				if !c.LogJSON || c.Watch {
					t.Errorf("LogJSON = %v, Watch = %v", c.LogJSON, c.Watch)
				}
				if c.MaxMemoryKB != 2048 {
					t.Errorf("MaxMemoryKB = %v", c.MaxMemoryKB)
				}
			},
		},
		{
			name:    "respects changed flags",
			env:     map[string]string{"EDGEVISOR_SERVICES": "/env/services.yaml"},
			changed: map[string]bool{"services": true},
			check: func(t *testing.T, c Config) {
				if c.Services != "" {
					t.Errorf("Services = %v, want empty", c.Services)
				}
			},
		},
		{name: "invalid duration", env: map[string]string{"EDGEVISOR_GRACE": "later"}, wantErr: true},
		{name: "invalid float", env: map[string]string{"EDGEVISOR_MAX_CPUS": "many"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg := DefaultConfig()
			err := ApplyEnvConfig(&cfg, tt.changed)
			if tt.wantErr {
				if err == nil {
					t.Fatal("ApplyEnvConfig() expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyEnvConfig() unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

// Precedence order: flags > env > file > defaults.
func TestConfigPrecedence(t *testing.T) {
	fileConf := FileConfig{Services: "/file/services.yaml", LogLevel: "debug", EventLog: "/file/events"}
	t.Setenv("EDGEVISOR_SERVICES", "/env/services.yaml")
	t.Setenv("EDGEVISOR_EVENT_LOG", "/env/events")

	changed := map[string]bool{"event-log": true}
	cfg := DefaultConfig()
	cfg.EventLog = "/cli/events"

	if err := ApplyFileConfig(&cfg, fileConf, changed); err != nil {
		t.Fatalf("ApplyFileConfig failed: %v", err)
	}
	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		t.Fatalf("ApplyEnvConfig failed: %v", err)
	}

	if cfg.EventLog != "/cli/events" {
		t.Errorf("EventLog = %v, want /cli/events (flag should win)", cfg.EventLog)
	}
	if cfg.Services != "/env/services.yaml" {
		t.Errorf("Services = %v, want env value", cfg.Services)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %v, want debug (file should set)", cfg.LogLevel)
	}
	if cfg.Grace != DefaultConfig().Grace {
		t.Errorf("Grace = %v, want default", cfg.Grace)
	}
}
