package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/moolen/bdcraft/internal/logging"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 500 * time.Millisecond

// ReloadFunc is called with every successfully loaded config.
// A returned error is logged and the watcher keeps watching.
type ReloadFunc func(cfg *Config) error

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// FilePath is the config file to watch.
	FilePath string

	// Debounce is the quiet period after the last file event before the
	// file is reloaded. Zero means DefaultDebounce.
	Debounce time.Duration
}

// Watcher reloads a config file when it changes.
//
// Invalid configs are logged and skipped; the previously loaded config stays
// in force until a valid one is written.
type Watcher struct {
	config   WatcherConfig
	callback ReloadFunc
	logger   *logging.Logger

	cancel   context.CancelFunc
	stopped  chan struct{}
	ready    chan struct{}
	startErr error
	mu       sync.Mutex

	debounceTimer *time.Timer
}

// NewWatcher creates a watcher for cfg.FilePath.
func NewWatcher(cfg WatcherConfig, callback ReloadFunc) (*Watcher, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("FilePath cannot be empty")
	}
	if callback == nil {
		return nil, fmt.Errorf("callback cannot be nil")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	return &Watcher{
		config:   cfg,
		callback: callback,
		logger:   logging.GetLogger("config.watcher"),
		stopped:  make(chan struct{}),
		ready:    make(chan struct{}),
	}, nil
}

// Start begins watching and returns once the file watch is in place, or the
// error that prevented it. It does not load the file; callers load the
// initial config themselves.
func (w *Watcher) Start(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	go w.watchLoop(watchCtx)

	select {
	case <-w.ready:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for file watcher to initialize")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.startErr
}

// fail records why the watch could not be set up. It must run before
// signalReady so Start observes it.
func (w *Watcher) fail(err error) {
	w.mu.Lock()
	w.startErr = err
	w.mu.Unlock()
	w.logger.Error("%v", err)
}

func (w *Watcher) signalReady() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.ready:
	default:
		close(w.ready)
	}
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.stopped)
	defer w.signalReady()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.fail(fmt.Errorf("failed to create file watcher: %w", err))
		return
	}
	defer watcher.Close()

	if err := watcher.Add(w.config.FilePath); err != nil {
		w.fail(fmt.Errorf("failed to watch %s: %w", w.config.FilePath, err))
		return
	}

	w.logger.Info("Watching %s for changes (debounce: %s)", w.config.FilePath, w.config.Debounce)
	w.signalReady()

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			// Atomic replacement unlinks the watched inode; watch the new one.
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				time.Sleep(50 * time.Millisecond)
				if err := watcher.Add(w.config.FilePath); err != nil {
					w.logger.Warn("Failed to re-add watch after %s: %v", event.Op, err)
				}
			}
			w.handleFileChange(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleFileChange(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.config.Debounce, func() {
		if ctx.Err() != nil {
			return
		}
		w.reload()
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.config.FilePath)
	if err != nil {
		w.logger.Warn("Failed to load config, keeping previous config: %v", err)
		return
	}
	if err := w.callback(cfg); err != nil {
		w.logger.Error("Config reload callback failed: %v", err)
		return
	}
	w.logger.Info("Config reloaded from %s", w.config.FilePath)
}

// Stop cancels the watch and waits up to five seconds for it to exit.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	select {
	case <-w.stopped:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for watcher to stop")
	}
}
