// Package dircleanup is a built-in service plugin that keeps a directory
// under a size budget by removing its oldest files.
package dircleanup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bft-labs/edgevisor/internal/stage"
	"github.com/bft-labs/edgevisor/pkg/log"
)

// Name is the plugin key services refer to.
const Name = "dircleanup"

// Environment keys read from the service's setenv.
const (
	EnvDir           = "CLEANUP_DIR"
	EnvHighWatermark = "CLEANUP_HIGH_WATERMARK"
	EnvLowWatermark  = "CLEANUP_LOW_WATERMARK"
	EnvInterval      = "CLEANUP_INTERVAL"
)

// Config holds configuration options for the cleanup plugin.
type Config struct {
	Dir string

	// CheckInterval is how often to check the directory size.
	// Default: 1 hour
	CheckInterval time.Duration

	// HighWatermark is the size in bytes above which cleanup begins.
	// Default: 2 GiB
	HighWatermark int64

	// LowWatermark is the target size in bytes after cleanup.
	// Default: 1.5 GiB
	LowWatermark int64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CheckInterval: time.Hour,
		HighWatermark: 2 << 30,
		LowWatermark:  3 << 29,
	}
}

// configFromEnv overlays env onto DefaultConfig.
func configFromEnv(env map[string]string) (Config, error) {
	cfg := DefaultConfig()
	cfg.Dir = env[EnvDir]
	if cfg.Dir == "" {
		return cfg, fmt.Errorf("%s is required", EnvDir)
	}
	if v := env[EnvInterval]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid %s %q", EnvInterval, v)
		}
		cfg.CheckInterval = d
	}
	for key, dst := range map[string]*int64{EnvHighWatermark: &cfg.HighWatermark, EnvLowWatermark: &cfg.LowWatermark} {
		v := env[key]
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid %s %q", key, v)
		}
		*dst = n
	}
	if cfg.LowWatermark > cfg.HighWatermark {
		return cfg, fmt.Errorf("low watermark %d above high watermark %d", cfg.LowWatermark, cfg.HighWatermark)
	}
	return cfg, nil
}

// Plugin trims a directory on a timer while the service runs.
type Plugin struct {
	mu     sync.RWMutex
	cfg    Config
	logger log.Logger
	tick   func(time.Duration) (<-chan time.Time, func())
}

// New creates a cleanup plugin.
func New() *Plugin {
	return &Plugin{logger: log.NewNoop(), tick: realTicker}
}

// Factory registers the plugin with a stage registry.
func Factory() stage.Plugin { return New() }

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string { return Name }

// Initialize validates the configuration. It is the install stage.
func (p *Plugin) Initialize(ctx context.Context, pc stage.PluginConfig) error {
	cfg, err := configFromEnv(pc.Env)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", cfg.Dir, err)
	}
	p.mu.Lock()
	p.cfg = cfg
	if pc.Logger != nil {
		p.logger = pc.Logger
	}
	p.mu.Unlock()
	p.logger.Info("cleanup-initialized",
		log.String("dir", cfg.Dir),
		log.Int64("high_watermark", cfg.HighWatermark),
		log.Int64("low_watermark", cfg.LowWatermark))
	return nil
}

// Run checks the directory immediately and then every CheckInterval.
func (p *Plugin) Run(ctx context.Context, ready func()) error {
	p.mu.RLock()
	interval := p.cfg.CheckInterval
	p.mu.RUnlock()
	if interval <= 0 {
		return errors.New("dircleanup: run before initialize")
	}

	ready()
	p.CleanupOnce(ctx)

	ticks, stop := p.tick(interval)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticks:
			p.CleanupOnce(ctx)
		}
	}
}

// Shutdown implements stage.Plugin.
func (p *Plugin) Shutdown(ctx context.Context) error { return nil }

// CleanupOnce removes the oldest files until the directory is at or below
// the low watermark. Nothing is removed below the high watermark. It
// returns the bytes freed.
func (p *Plugin) CleanupOnce(ctx context.Context) int64 {
	p.mu.RLock()
	cfg := p.cfg
	p.mu.RUnlock()

	files, size, err := scan(cfg.Dir)
	if err != nil {
		p.logger.Error("cleanup-scan-failed", log.Err(err))
		return 0
	}
	if size <= cfg.HighWatermark {
		return 0
	}

	var freed int64
	for _, f := range files {
		if ctx.Err() != nil || size <= cfg.LowWatermark {
			break
		}
		if err := os.Remove(f.path); err != nil {
			p.logger.Warn("cleanup-remove-failed", log.String("path", f.path), log.Err(err))
			continue
		}
		size -= f.size
		freed += f.size
	}
	if freed > 0 {
		p.logger.Info("cleanup-completed", log.Int64("freed", freed), log.Int64("size", size))
	}
	return freed
}

type file struct {
	path    string
	size    int64
	modTime time.Time
}

// scan lists regular files oldest first and their total size.
func scan(dir string) ([]file, int64, error) {
	var (
		out   []file
		total int64
	)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, file{path: path, size: info.Size(), modTime: info.ModTime()})
		total += info.Size()
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].modTime.Equal(out[j].modTime) {
			return out[i].path < out[j].path
		}
		return out[i].modTime.Before(out[j].modTime)
	})
	return out, total, err
}

var _ stage.Plugin = (*Plugin)(nil)
