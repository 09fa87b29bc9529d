// This file provides reactive cache operations using samber/ro.
//
// ROCache wraps the Cache facade with observable-based access. It is an
// alternative surface for stream-based workflows, not a replacement: use
// the Cache methods directly for plain synchronous operations.

package tiercache

import (
	"context"
	"errors"

	"github.com/samber/ro"
)

// ErrFetchFailed is returned when a fetch observable completes without
// producing a value.
var ErrFetchFailed = errors.New("tiercache: fetch produced no value")

// ROCache provides reactive cache operations wrapping a Cache.
type ROCache struct {
	cache *Cache
	opts  SetOptions
}

// NewROCache wraps a Cache. The SetOptions apply to every write issued
// through the reactive surface.
func NewROCache(cache *Cache, opts SetOptions) *ROCache {
	return &ROCache{cache: cache, opts: opts}
}

// Underlying returns the wrapped Cache for operations not available
// through the reactive surface.
func (c *ROCache) Underlying() *Cache {
	return c.cache
}

// Invalidate removes a key from every tier. The observable completes when
// the removal is done.
func (c *ROCache) Invalidate(ctx context.Context, key string) ro.Observable[struct{}] {
	return ro.NewObservable(func(observer ro.Observer[struct{}]) ro.Teardown {
		if err := c.cache.Delete(ctx, key); err != nil {
			observer.Error(err)
			return nil
		}
		observer.Complete()
		return nil
	})
}

// InvalidateByTags drops every entry carrying any of the tags and emits
// the number of entries removed.
func (c *ROCache) InvalidateByTags(ctx context.Context, tags ...string) ro.Observable[int] {
	return ro.NewObservable(func(observer ro.Observer[int]) ro.Teardown {
		n, err := c.cache.InvalidateByTags(ctx, tags...)
		if err != nil {
			observer.Error(err)
			return nil
		}
		observer.Next(n)
		observer.Complete()
		return nil
	})
}

// Exists emits whether the key resolves to a live entry.
func (c *ROCache) Exists(ctx context.Context, key string) ro.Observable[bool] {
	return ro.NewObservable(func(observer ro.Observer[bool]) ro.Teardown {
		exists, err := c.cache.Exists(ctx, key)
		if err != nil {
			observer.Error(err)
			return nil
		}
		observer.Next(exists)
		observer.Complete()
		return nil
	})
}

// GetOrFetch returns the cached value for key, or subscribes to the fetch
// observable, caches its result, and emits it. A cache failure on the
// write path never fails the stream; the value just goes uncached.
func GetOrFetch[T any](
	ctx context.Context,
	c *ROCache,
	key string,
	fetch func() ro.Observable[T],
) ro.Observable[T] {
	return ro.NewObservable(func(observer ro.Observer[T]) ro.Teardown {
		var cached T
		found, err := c.cache.GetWithOptions(ctx, key, &cached, GetOptions{Tier: c.opts.Tier})
		if err != nil {
			observer.Error(err)
			return nil
		}
		if found {
			observer.Next(cached)
			observer.Complete()
			return nil
		}

		var (
			result    T
			hasResult bool
			fetchErr  error
		)
		fetch().Subscribe(ro.NewObserver(
			func(val T) {
				result = val
				hasResult = true
			},
			func(err error) {
				fetchErr = err
			},
			func() {},
		))

		if fetchErr != nil {
			observer.Error(fetchErr)
			return nil
		}
		if !hasResult {
			observer.Error(ErrFetchFailed)
			return nil
		}

		if err := c.cache.SetWithOptions(ctx, key, result, c.opts); err != nil {
			logger().Debug().Err(err).Str("key", key).Msg("fetched value not cached")
		}
		observer.Next(result)
		observer.Complete()
		return nil
	})
}

// Stream caches every item flowing through the source observable under a
// key produced by keyFunc, passing items through unchanged.
func Stream[T any](
	ctx context.Context,
	c *ROCache,
	source ro.Observable[T],
	keyFunc func(T) string,
) ro.Observable[T] {
	return ro.Pipe1(
		source,
		ro.DoOnNext(func(item T) {
			if err := c.cache.SetWithOptions(ctx, keyFunc(item), item, c.opts); err != nil {
				logger().Debug().Err(err).Msg("stream item not cached")
			}
		}),
	)
}
