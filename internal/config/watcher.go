package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/edgevisor/pkg/log"
)

// WatcherConfig holds configuration options for the file watcher.
type WatcherConfig struct {
	// DebounceDelay is the delay to wait after a file change before reloading.
	// Default: 100 milliseconds
	DebounceDelay time.Duration

	// OnReload is called after every successful reload, outside any lock.
	OnReload func(Document)
}

// DefaultWatcherConfig returns a WatcherConfig with sensible defaults.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{DebounceDelay: 100 * time.Millisecond}
}

// Watcher keeps a Tree in sync with a config file.
type Watcher struct {
	mu sync.Mutex

	path          string
	tree          *Tree
	debounceDelay time.Duration
	onReload      func(Document)
	logger        log.Logger

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
}

// NewWatcher creates a watcher for path feeding tree.
func NewWatcher(path string, tree *Tree, cfg WatcherConfig, logger log.Logger) *Watcher {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	if logger == nil {
		logger = log.NewNoop()
	}
	return &Watcher{
		path:          path,
		tree:          tree,
		debounceDelay: cfg.DebounceDelay,
		onReload:      cfg.OnReload,
		logger:        logger.With(log.String("component", "config-watcher"), log.String("path", path)),
	}
}

// Reload loads the file into the tree once.
func (w *Watcher) Reload() error {
	doc, err := LoadFile(w.path)
	if err != nil {
		return err
	}
	w.tree.Replace(doc.Root)
	w.logger.Info("config-reloaded", log.Int("services", len(doc.Services)))
	if w.onReload != nil {
		w.onReload(doc)
	}
	return nil
}

// Start watches the file's directory until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go w.watchLoop(watchCtx, watcher)
	return nil
}

// Stop ends the watch loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer w.wg.Done()
	defer watcher.Close()

	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.debounceReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config-watch-error", log.Err(err))
		}
	}
}

func (w *Watcher) debounceReload(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}

	w.debounce = time.AfterFunc(w.debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		// A half-written file keeps the previous tree.
		if err := w.Reload(); err != nil {
			w.logger.Warn("config-reload-failed", log.Err(err))
		}
	})
}
