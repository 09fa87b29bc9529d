package tiercache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadCallback is called when the watched config file changes and is
// successfully reparsed. If the callback returns an error it is logged,
// but the reload is still considered successful.
type ReloadCallback func(Config) error

// ErrWatcherClosed is returned when an operation is attempted on a closed
// watcher.
var ErrWatcherClosed = errors.New("tiercache: watcher already closed")

// ConfigWatcher monitors a cache config file for changes and triggers
// reload callbacks. Rapid file changes are debounced (editors often fire
// several events per save), and the parent directory is watched so atomic
// writes (temp file + rename) are detected.
//
// Budgets, TTLs and sweep settings can be applied to a running cache via
// Cache.ApplyConfig from a reload callback.
type ConfigWatcher struct {
	ctx           context.Context
	cancel        context.CancelFunc
	fsWatcher     *fsnotify.Watcher
	path          string
	callbacks     []ReloadCallback
	debounceDelay time.Duration
	mu            sync.RWMutex
	closed        bool
}

// WatcherOption configures a ConfigWatcher.
type WatcherOption func(*ConfigWatcher)

// WithDebounceDelay sets the debounce delay for file change events.
// Default is 100ms.
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *ConfigWatcher) {
		w.debounceDelay = d
	}
}

// NewConfigWatcher creates a watcher for the given config file path.
// The path is resolved to an absolute path and its parent directory is
// watched to catch atomic writes.
func NewConfigWatcher(path string, opts ...WatcherOption) (*ConfigWatcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &ConfigWatcher{
		ctx:           ctx,
		cancel:        cancel,
		fsWatcher:     fsWatcher,
		path:          absPath,
		debounceDelay: 100 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(w)
	}

	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		if closeErr := fsWatcher.Close(); closeErr != nil {
			logger().Error().Err(closeErr).Msg("failed to close watcher after add failure")
		}
		cancel()
		return nil, err
	}

	return w, nil
}

// Path returns the absolute path being watched.
func (w *ConfigWatcher) Path() string {
	return w.path
}

// OnReload registers a callback invoked after the config file is reloaded.
// Callbacks run in registration order.
func (w *ConfigWatcher) OnReload(cb ReloadCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Watch blocks until ctx is canceled, reloading the config on each change.
// Only Write and Create events for the watched file are processed; Chmod
// noise from indexers is ignored.
func (w *ConfigWatcher) Watch(ctx context.Context) error {
	var (
		timer      *time.Timer
		timerMu    sync.Mutex
		targetFile = filepath.Base(w.path)
	)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != targetFile {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounceDelay, func() {
				// The timer can fire after Close; don't reload then.
				select {
				case <-w.ctx.Done():
					return
				default:
				}
				w.triggerReload()
			})
			timerMu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			logger().Error().Err(err).Msg("config watcher error")
		}
	}
}

// triggerReload parses the config and invokes all registered callbacks.
func (w *ConfigWatcher) triggerReload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		logger().Error().Err(err).Str("path", w.path).Msg("failed to reload config")
		return
	}
	if err := cfg.Validate(); err != nil {
		logger().Error().Err(err).Str("path", w.path).Msg("reloaded config is invalid")
		return
	}

	logger().Info().Str("path", w.path).Msg("config file reloaded")

	w.mu.RLock()
	callbacks := make([]ReloadCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for _, cb := range callbacks {
		if err := cb(cfg); err != nil {
			logger().Error().Err(err).Msg("config reload callback error")
		}
	}
}

// Close stops watching and releases resources.
// Returns ErrWatcherClosed if already closed.
func (w *ConfigWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	w.closed = true

	w.cancel()
	return w.fsWatcher.Close()
}
