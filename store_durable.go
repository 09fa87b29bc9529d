package tiercache

import (
	"context"
	"errors"
	"sort"

	"github.com/sony/gobreaker/v2"
)

// durableVariant identifies which medium backs the durable tier.
type durableVariant string

const (
	// durableNative means the persistent medium opened successfully.
	durableNative durableVariant = "native"

	// durableFallback means the medium was unconfigured or failed to
	// open; an in-memory substitute serves the tier instead.
	durableFallback durableVariant = "fallback"
)

// durableStore presents the durable tier as a single tierStore. The
// variant is selected once at construction and the substitution is
// transparent to callers; it is logged here, not per call.
//
// In the native variant a circuit breaker guards the medium: while it is
// open, operations are served by the fallback so callers keep a working
// (if non-persistent) durable tier. Reads check the fallback after a
// native miss when the fallback holds entries from an outage window.
type durableStore struct {
	variant  durableVariant
	native   *sqliteStore // nil in the fallback variant
	fallback *memoryStore
	breaker  *mediumBreaker
}

// newDurableStore opens the configured medium, or selects the in-memory
// fallback when the path is empty or the medium cannot be opened.
func newDurableStore(ctx context.Context, cfg DurableConfig) *durableStore {
	fallback := newMemoryStore("durable-fallback")

	if cfg.Path == "" {
		logger().Info().Msg("durable tier using in-memory fallback, no database path configured")
		return &durableStore{variant: durableFallback, fallback: fallback}
	}

	timeout := cfg.GetQueryTimeoutOption().OrElse(DefaultQueryTimeout)
	native, err := newSQLiteStore(ctx, cfg.Path, timeout)
	if err != nil {
		logger().Warn().Err(err).Str("path", cfg.Path).
			Msg("durable medium unavailable, using in-memory fallback")
		return &durableStore{variant: durableFallback, fallback: fallback}
	}

	logger().Debug().Str("path", cfg.Path).Msg("durable tier backed by sqlite")
	return &durableStore{
		variant:  durableNative,
		native:   native,
		fallback: fallback,
		breaker:  newMediumBreaker("sqlite"),
	}
}

// degraded reports whether the tier is currently served by the fallback.
func (d *durableStore) degraded() bool {
	return d.variant == durableFallback || d.breaker.State() == gobreaker.StateOpen
}

func (d *durableStore) Put(ctx context.Context, e *Entry) error {
	if d.variant == durableFallback {
		return d.fallback.Put(ctx, e)
	}
	done, err := d.breaker.Allow()
	if err != nil {
		return d.fallback.Put(ctx, e)
	}
	if err := d.native.Put(ctx, e); err != nil {
		done(err)
		// The value can still be cached for this process's lifetime.
		return d.fallback.Put(ctx, e)
	}
	done(nil)
	return nil
}

func (d *durableStore) Get(ctx context.Context, key string) (*Entry, error) {
	if d.variant == durableFallback {
		return d.fallback.Get(ctx, key)
	}
	done, err := d.breaker.Allow()
	if err != nil {
		return d.fallback.Get(ctx, key)
	}
	e, err := d.native.Get(ctx, key)
	done(err)
	if err == nil {
		return e, nil
	}
	// Entries written during an outage window live only in the fallback.
	if d.fallback.Len() > 0 {
		if fe, ferr := d.fallback.Get(ctx, key); ferr == nil {
			return fe, nil
		}
	}
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	return nil, err
}

func (d *durableStore) Touch(ctx context.Context, key string, now int64) error {
	// The entry may live in the fallback after an outage window; touching
	// a missing key is a no-op, so touch both media.
	if err := d.fallback.Touch(ctx, key, now); err != nil || d.variant == durableFallback {
		return err
	}
	done, err := d.breaker.Allow()
	if err != nil {
		return nil
	}
	err = d.native.Touch(ctx, key, now)
	done(err)
	return err
}

func (d *durableStore) Delete(ctx context.Context, key string) (bool, error) {
	// The key may exist in both media after an outage window, so delete
	// from both.
	fbDid, _ := d.fallback.Delete(ctx, key)
	if d.variant == durableFallback {
		return fbDid, nil
	}
	done, err := d.breaker.Allow()
	if err != nil {
		return fbDid, nil
	}
	did, err := d.native.Delete(ctx, key)
	done(err)
	if err != nil {
		return fbDid, err
	}
	return did || fbDid, nil
}

func (d *durableStore) Clear(ctx context.Context) error {
	if err := d.fallback.Clear(ctx); err != nil {
		return err
	}
	if d.variant == durableFallback {
		return nil
	}
	done, err := d.breaker.Allow()
	if err != nil {
		return nil
	}
	err = d.native.Clear(ctx)
	done(err)
	return err
}

func (d *durableStore) SizeBytes() int64 {
	total := d.fallback.SizeBytes()
	if d.native != nil {
		total += d.native.SizeBytes()
	}
	return total
}

func (d *durableStore) Len() int {
	total := d.fallback.Len()
	if d.native != nil {
		total += d.native.Len()
	}
	return total
}

func (d *durableStore) Entries(ctx context.Context) ([]*Entry, error) {
	out, err := d.fallback.Entries(ctx)
	if err != nil {
		return nil, err
	}
	if d.variant == durableFallback {
		return out, nil
	}
	done, err := d.breaker.Allow()
	if err != nil {
		return out, nil
	}
	native, err := d.native.Entries(ctx)
	done(err)
	if err != nil {
		return out, err
	}
	return append(out, native...), nil
}

// Victims merges candidates from both media and re-sorts so eviction
// order holds across an outage window.
func (d *durableStore) Victims(ctx context.Context) ([]*Entry, error) {
	victims, err := d.fallback.Entries(ctx)
	if err != nil {
		return nil, err
	}
	if d.variant == durableNative {
		done, allowErr := d.breaker.Allow()
		if allowErr == nil {
			native, err := d.native.Victims(ctx)
			done(err)
			if err != nil {
				return nil, err
			}
			victims = append(victims, native...)
		}
	}
	sort.Slice(victims, func(i, j int) bool {
		return victimLess(victims[i], victims[j])
	})
	return victims, nil
}

// KeysWithTags resolves tag membership from the native medium's tag
// column. Fallback entries were written by this process and are already
// in the tag index, so only the native medium is consulted.
func (d *durableStore) KeysWithTags(ctx context.Context, tags []string) ([]string, error) {
	if d.variant == durableFallback {
		return nil, nil
	}
	done, err := d.breaker.Allow()
	if err != nil {
		return nil, nil
	}
	keys, err := d.native.KeysWithTags(ctx, tags)
	done(err)
	return keys, err
}

func (d *durableStore) DeleteExpired(ctx context.Context, now int64, limit int) ([]string, error) {
	keys, err := d.fallback.DeleteExpired(ctx, now, limit)
	if err != nil {
		return nil, err
	}
	if d.variant == durableFallback {
		return keys, nil
	}
	done, allowErr := d.breaker.Allow()
	if allowErr != nil {
		return keys, nil
	}
	nativeKeys, err := d.native.DeleteExpired(ctx, now, limit)
	done(err)
	if err != nil {
		return keys, err
	}
	return append(keys, nativeKeys...), nil
}

func (d *durableStore) Close() error {
	fbErr := d.fallback.Close()
	if d.native != nil {
		if err := d.native.Close(); err != nil {
			return err
		}
	}
	return fbErr
}
