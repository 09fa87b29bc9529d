package tiercache

import (
	"context"
	"fmt"

	"github.com/samber/mo"
)

// Fetch returns the cached value for key, or loads it, caches the result,
// and returns it. Concurrent fetches for the same key are coalesced so
// the loader runs at most once; every waiter shares its result.
//
// A cache failure on the write path is logged and swallowed: the caller
// still gets the loaded value, it just goes uncached.
func Fetch[T any](ctx context.Context, c *Cache, key string, opts SetOptions, loader func(context.Context) (T, error)) (T, error) {
	var out T

	found, err := c.GetWithOptions(ctx, key, &out, GetOptions{Tier: opts.Tier})
	if err != nil {
		return out, err
	}
	if found {
		return out, nil
	}

	v, err := c.flight.Do(ctx, key, func() (any, error) {
		// A previous leader may have landed the value between our miss
		// and this call.
		var cached T
		if found, err := c.GetWithOptions(ctx, key, &cached, GetOptions{Tier: opts.Tier}); err == nil && found {
			return cached, nil
		}

		val, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.SetWithOptions(ctx, key, val, opts); err != nil {
			logger().Debug().Err(err).Str("key", key).Msg("fetched value not cached")
		}
		return val, nil
	})
	if err != nil {
		return out, err
	}

	cast, ok := v.(T)
	if !ok {
		return out, fmt.Errorf("tiercache: fetch for key %q yielded %T", key, v)
	}
	return cast, nil
}

// Lookup returns the cached value for key as an Option: Some on a hit,
// None on a miss or any cache failure. Use it where a miss and an error
// call for the same fallback.
func Lookup[T any](ctx context.Context, c *Cache, key string) mo.Option[T] {
	var out T
	found, err := c.Get(ctx, key, &out)
	if err != nil || !found {
		return mo.None[T]()
	}
	return mo.Some(out)
}
