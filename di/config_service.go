// Package di wires tiercache into a samber/do container: config with
// hot reload, logging, and the cache itself with graceful shutdown.
package di

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"

	"github.com/tiercache/tiercache"
)

// ConfigPathKey names the optional config file path in the container.
// Register it with do.ProvideNamedValue; when absent, defaults apply and
// no watcher is created.
const ConfigPathKey = "tiercache.config.path"

// ConfigService wraps the loaded configuration with hot-reload support.
// Reads go through an atomic pointer, so a reload never blocks readers.
type ConfigService struct {
	config  atomic.Pointer[tiercache.Config]
	watcher *tiercache.ConfigWatcher
	path    string
}

// Get returns the current configuration.
func (c *ConfigService) Get() tiercache.Config {
	return *c.config.Load()
}

// Path returns the config file path, empty when running on defaults.
func (c *ConfigService) Path() string {
	return c.path
}

// OnReload registers a callback invoked after each successful reload.
// No-op when no config file is being watched.
func (c *ConfigService) OnReload(cb tiercache.ReloadCallback) {
	if c.watcher != nil {
		c.watcher.OnReload(cb)
	}
}

// StartWatching begins watching the config file, swapping the config
// atomically on change. Call after the container is fully initialized;
// cancel the context to stop watching.
func (c *ConfigService) StartWatching(ctx context.Context) {
	if c.watcher == nil {
		return
	}

	c.watcher.OnReload(func(newCfg tiercache.Config) error {
		c.config.Store(&newCfg)
		log.Info().Str("path", c.path).Msg("config hot-reloaded successfully")
		return nil
	})

	go func() {
		if err := c.watcher.Watch(ctx); err != nil {
			log.Error().Err(err).Msg("config watcher error")
		}
	}()

	log.Info().Str("path", c.path).Msg("config file watcher started")
}

// Shutdown implements do.Shutdowner for graceful watcher cleanup.
func (c *ConfigService) Shutdown() error {
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}

// NewConfig loads the configuration and, when a path was registered,
// creates a file watcher for it. The watcher is not started; call
// StartWatching after container init.
func NewConfig(i do.Injector) (*ConfigService, error) {
	svc := &ConfigService{}

	path, err := do.InvokeNamed[string](i, ConfigPathKey)
	if err != nil || path == "" {
		cfg := tiercache.DefaultConfig()
		svc.config.Store(&cfg)
		return svc, nil
	}

	cfg, err := tiercache.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	watcher, err := tiercache.NewConfigWatcher(path)
	if err != nil {
		return nil, fmt.Errorf("failed to watch config at %s: %w", path, err)
	}

	svc.path = path
	svc.watcher = watcher
	svc.config.Store(&cfg)
	return svc, nil
}
