package di

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/do/v2"

	"github.com/tiercache/tiercache"
)

// CacheService wraps the cache for DI.
type CacheService struct {
	Cache *tiercache.Cache
}

// NewCache creates the cache from the loaded configuration and wires
// config hot reloads into it.
func NewCache(i do.Injector) (*CacheService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	logSvc := do.MustInvoke[*LoggerService](i)

	tiercache.SetLogger(logSvc.Logger)

	// Durable medium initialization is bounded; a sick database must not
	// hang startup.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := tiercache.New(ctx, cfgSvc.Get())
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	cfgSvc.OnReload(c.ApplyConfig)

	return &CacheService{Cache: c}, nil
}

// Shutdown implements do.Shutdowner for graceful cache cleanup.
func (c *CacheService) Shutdown() error {
	if c.Cache != nil {
		return c.Cache.Close()
	}
	return nil
}
