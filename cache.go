package tiercache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"github.com/tiercache/tiercache/internal/singleflight"
)

// Cache is the tiered cache facade. It routes operations to the Volatile,
// Scoped, and Durable tiers, enforces per-tier byte budgets through the
// eviction engine, maintains the tag index, and runs the background expiry
// sweeper.
//
// All methods are safe for concurrent use. Cache failures are designed to
// be recoverable: a failed Set means "value not cached", a decode failure
// reads as a miss, and a sick durable medium degrades to an in-memory
// substitute. None of these abort the caller's primary operation.
type Cache struct {
	cfgMu sync.RWMutex
	cfg   Config

	codec *codec
	clock Clock
	stats *statsCollector
	tags  *tagIndex

	volatile tierStore
	scoped   tierStore
	durable  *durableStore

	// Per-tier write locks serialize room-making and insertion so a tier
	// never exceeds its budget between the eviction check and the put.
	// Operations on different tiers never contend.
	volatileMu sync.Mutex
	scopedMu   sync.Mutex
	durableMu  sync.Mutex

	eviction *evictionEngine
	sweeper  *sweeper

	// flight coalesces concurrent Fetch loads per key.
	flight singleflight.Group[string, any]

	closed atomic.Bool
}

// Option configures a Cache beyond what Config carries.
type Option func(*Cache)

// WithClock overrides the time source, letting tests advance time
// deterministically.
func WithClock(clk Clock) Option {
	return func(c *Cache) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithMetrics installs an observability hook. See metrics/prom for a
// Prometheus adapter.
func WithMetrics(m Metrics) Option {
	return func(c *Cache) {
		if m != nil {
			c.stats = newStatsCollector(m)
		}
	}
}

// New creates a Cache from the configuration. The durable tier's medium
// is selected exactly once here: if the configured database cannot be
// opened, the tier is served by an in-memory substitute for the life of
// the cache and the substitution is logged once.
//
// The context bounds durable medium initialization. Close must be called
// to stop the sweeper and release the medium.
func New(ctx context.Context, cfg Config, opts ...Option) (*Cache, error) {
	log := logger().With().Str("component", "cache_init").Logger()

	if err := cfg.Validate(); err != nil {
		log.Debug().Err(err).Msg("configuration rejected")
		return nil, err
	}

	codec, err := newCodec(cfg.compressionThreshold())
	if err != nil {
		return nil, err
	}

	c := &Cache{
		cfg:      cfg,
		codec:    codec,
		clock:    systemClock{},
		stats:    newStatsCollector(nil),
		tags:     newTagIndex(),
		volatile: newMemoryStore("volatile"),
		scoped:   newMemoryStore("scoped"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.durable = newDurableStore(ctx, cfg.Durable)
	c.eviction = &evictionEngine{stats: c.stats, tags: c.tags}

	if interval := cfg.sweepInterval(); interval > 0 {
		c.sweeper = newSweeper(c.clock, c.tags, c.stats, []sweepTarget{
			{tier: TierVolatile, store: c.volatile, mu: &c.volatileMu},
			{tier: TierScoped, store: c.scoped, mu: &c.scopedMu},
			{tier: TierDurable, store: c.durable, mu: &c.durableMu, durable: true, batch: cfg.Durable.SweepBatch},
		}, interval, cfg.durableSweepChance())
		c.sweeper.start()
	}

	log.Info().
		Int64("volatile_budget", cfg.Volatile.BudgetBytes).
		Int64("scoped_budget", cfg.Scoped.BudgetBytes).
		Int64("durable_budget", cfg.Durable.BudgetBytes).
		Bool("durable_fallback", c.durable.variant == durableFallback).
		Dur("sweep_interval", cfg.sweepInterval()).
		Msg("tiered cache initialized")

	return c, nil
}

// SetOptions controls a single Set.
type SetOptions struct {
	// TTL is how long the entry lives. Zero applies the target tier's
	// default; negative means the entry never expires even when the tier
	// has a default.
	TTL time.Duration

	// Tier selects the target. The zero value is TierHybrid, which writes
	// to Volatile and Durable.
	Tier Tier

	// Priority influences eviction order. The zero value is
	// PriorityNormal.
	Priority Priority

	// Tags register the key for bulk invalidation.
	Tags []string
}

// GetOptions controls a single Get.
type GetOptions struct {
	// Tier selects where to look. The zero value is TierHybrid, which
	// checks Volatile first and falls back to Durable, promoting hits.
	Tier Tier

	// SkipAccessStats leaves recency untouched by this read, so
	// diagnostic reads don't distort eviction order.
	SkipAccessStats bool
}

// Set stores a value in hybrid mode with default TTL and priority.
func (c *Cache) Set(ctx context.Context, key string, value any) error {
	return c.SetWithOptions(ctx, key, value, SetOptions{})
}

// SetWithOptions encodes the value, makes room in the target tier(s),
// inserts, and registers tags. A failed Set leaves the caller's value
// uncached but is never fatal to the caller.
func (c *Cache) SetWithOptions(ctx context.Context, key string, value any, opts SetOptions) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	if !opts.Tier.valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTier, opts.Tier)
	}
	if !opts.Priority.valid() {
		return fmt.Errorf("tiercache: unknown priority %q", opts.Priority)
	}

	payload, compressed, err := c.codec.Encode(value)
	if err != nil {
		return err
	}

	now := c.clock.NowUnixNano()
	tiers := targetTiers(opts.Tier.normalize())

	var firstErr error
	accepted := 0
	for _, tier := range tiers {
		e := &Entry{
			Key:            key,
			Payload:        payload,
			Compressed:     compressed,
			SizeBytes:      int64(len(payload)),
			Priority:       opts.Priority.normalize(),
			Tags:           opts.Tags,
			LastAccessedAt: now,
			CreatedAt:      now,
		}
		if ttl := c.entryTTL(tier, opts.TTL); ttl > 0 {
			e.ExpiresAt = now + int64(ttl)
		}
		if err := c.setTier(ctx, tier, e); err != nil {
			// A hybrid write succeeds as long as one tier accepted the
			// entry: a value too large for Volatile still caches into
			// Durable.
			if firstErr == nil {
				firstErr = err
			}
			logger().Debug().Err(err).Str("tier", string(tier)).Str("key", key).
				Msg("tier rejected entry")
			continue
		}
		accepted++
	}
	if accepted == 0 {
		return firstErr
	}

	c.stats.set(opts.Tier.normalize())
	return nil
}

// setTier re-creates the entry under its key in one tier: the old copy is
// released first so budget accounting sees the replacement, then room is
// made and the new entry inserted. Runs under the tier's write lock.
func (c *Cache) setTier(ctx context.Context, tier Tier, e *Entry) error {
	store, mu, err := c.tierFor(tier)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	did, err := store.Delete(ctx, e.Key)
	if err != nil {
		return err
	}
	if did {
		c.tags.RemoveKey(tier, e.Key)
	}

	if err := c.eviction.makeRoom(ctx, tier, store, c.budgetFor(tier), e.SizeBytes); err != nil {
		return err
	}
	if err := store.Put(ctx, e); err != nil {
		return err
	}
	c.tags.AddTags(tier, e.Key, e.Tags)
	c.stats.sized(tier, store.Len(), store.SizeBytes())
	return nil
}

// Get retrieves a value in hybrid mode, decoding it into dst.
// Returns false with a nil error on a normal miss.
func (c *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	return c.GetWithOptions(ctx, key, dst, GetOptions{})
}

// GetWithOptions retrieves a value, decoding it into dst, which must be a
// non-nil pointer.
//
// Expired entries found on the way are deleted and read as misses. A
// payload that fails to decode is dropped and reads as a miss. In hybrid
// mode a durable hit is promoted into Volatile.
func (c *Cache) GetWithOptions(ctx context.Context, key string, dst any, opts GetOptions) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosed
	}
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	tier := opts.Tier.normalize()
	if !tier.valid() {
		return false, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}

	e, src, err := c.lookup(ctx, tier, key)
	if err != nil {
		return false, err
	}
	if e == nil {
		c.stats.miss(tier)
		return false, nil
	}

	if err := c.codec.Decode(e.Payload, e.Compressed, dst); err != nil {
		logger().Warn().Err(err).Str("key", key).Str("tier", string(src)).
			Msg("dropping entry with undecodable payload")
		c.deleteFromTier(ctx, src, key)
		c.stats.miss(tier)
		return false, nil
	}

	now := c.clock.NowUnixNano()
	if !opts.SkipAccessStats {
		if store, _, err := c.tierFor(src); err == nil {
			// Recency updates are advisory; a failed touch never fails
			// the read.
			_ = store.Touch(ctx, key, now)
		}
	}

	if src == TierDurable {
		// Entries persisted by a previous process are absent from the tag
		// index until first read; re-register so tag invalidation finds
		// them without a medium scan.
		c.tags.AddTags(TierDurable, key, e.Tags)
	}
	if tier == TierHybrid && src == TierDurable {
		promoted := e.clone()
		promoted.touch(now)
		c.promote(ctx, promoted)
	}

	c.stats.hit(tier)
	return true, nil
}

// lookup finds the first live entry for key in the tier (or, for hybrid,
// in Volatile then Durable). Expired entries are lazily deleted and
// skipped. Returns the entry and the tier it came from; a nil entry with
// nil error is a miss.
func (c *Cache) lookup(ctx context.Context, tier Tier, key string) (*Entry, Tier, error) {
	for _, t := range lookupTiers(tier) {
		store, _, err := c.tierFor(t)
		if err != nil {
			return nil, "", err
		}

		e, err := store.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if errors.Is(err, ErrClosed) {
			return nil, "", err
		}
		if err != nil {
			// The durable store degrades internally; anything that still
			// surfaces here reads as a miss.
			logger().Warn().Err(err).Str("tier", string(t)).Str("key", key).Msg("tier read failed")
			continue
		}

		if e.expired(c.clock.NowUnixNano()) {
			c.deleteFromTier(ctx, t, key)
			c.stats.evicted(t, EvictTTL, 1)
			continue
		}
		return e, t, nil
	}
	return nil, "", nil
}

// promote copies a durable hit into Volatile so the next read is fast.
// Promotion is best-effort: an entry too large for the volatile budget
// just stays durable-only.
func (c *Cache) promote(ctx context.Context, e *Entry) {
	if err := c.setTier(ctx, TierVolatile, e); err != nil {
		if !errors.Is(err, ErrTooLarge) {
			logger().Debug().Err(err).Str("key", e.Key).Msg("promotion to volatile failed")
		}
	}
}

// Exists reports whether key resolves to a live entry, without decoding,
// promoting, or updating access stats.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	return c.ExistsInTier(ctx, key, TierHybrid)
}

// ExistsInTier is Exists restricted to one tier.
func (c *Cache) ExistsInTier(ctx context.Context, key string, tier Tier) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosed
	}
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	tier = tier.normalize()
	if !tier.valid() {
		return false, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}

	e, _, err := c.lookup(ctx, tier, key)
	if err != nil {
		return false, err
	}
	return e != nil, nil
}

// Delete removes the key from every tier and the tag index. Idempotent:
// deleting an absent key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := ValidateKey(key); err != nil {
		return err
	}

	removed := false
	for _, tier := range []Tier{TierVolatile, TierScoped, TierDurable} {
		if c.deleteFromTier(ctx, tier, key) {
			removed = true
		}
	}
	if removed {
		c.stats.deleted(TierHybrid)
	}
	return nil
}

// deleteFromTier removes one tier's copy of key, cascading into the tag
// index. Reports whether a copy existed.
func (c *Cache) deleteFromTier(ctx context.Context, tier Tier, key string) bool {
	store, mu, err := c.tierFor(tier)
	if err != nil {
		return false
	}

	mu.Lock()
	defer mu.Unlock()

	did, err := store.Delete(ctx, key)
	if err != nil {
		logger().Warn().Err(err).Str("tier", string(tier)).Str("key", key).Msg("tier delete failed")
		return false
	}
	if did {
		c.tags.RemoveKey(tier, key)
		c.stats.sized(tier, store.Len(), store.SizeBytes())
	}
	return did
}

// InvalidateByTags removes every entry carrying any of the tags, across
// all tiers. Returns the number of entries removed; a key resident in two
// tiers counts twice. Cost is proportional to the affected entries, not
// the cache size.
func (c *Cache) InvalidateByTags(ctx context.Context, tags ...string) (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	if len(tags) == 0 {
		return 0, nil
	}

	total := 0
	for _, tier := range []Tier{TierVolatile, TierScoped, TierDurable} {
		store, mu, err := c.tierFor(tier)
		if err != nil {
			return total, err
		}

		keys := c.tags.KeysForTags(tier, tags)
		if ts, ok := store.(tagScanner); ok {
			// The index only knows entries touched by this process; the
			// medium's tag column covers rows persisted before a restart.
			persisted, err := ts.KeysWithTags(ctx, tags)
			if err != nil {
				logger().Warn().Err(err).Str("tier", string(tier)).Msg("tag scan on backing medium failed")
			} else {
				keys = lo.Union(keys, persisted)
			}
		}
		if len(keys) == 0 {
			continue
		}

		mu.Lock()
		removed := 0
		for _, key := range keys {
			did, err := store.Delete(ctx, key)
			if err != nil {
				logger().Warn().Err(err).Str("tier", string(tier)).Str("key", key).Msg("tag invalidation delete failed")
				continue
			}
			if did {
				c.tags.RemoveKey(tier, key)
				removed++
			}
		}
		c.stats.sized(tier, store.Len(), store.SizeBytes())
		mu.Unlock()

		c.stats.evicted(tier, EvictInvalidated, removed)
		total += removed
	}

	if total > 0 {
		logger().Debug().Strs("tags", tags).Int("removed", total).Msg("invalidated entries by tag")
	}
	return total, nil
}

// Clear empties the given tiers, or every tier when none are named.
func (c *Cache) Clear(ctx context.Context, tiers ...Tier) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if len(tiers) == 0 {
		tiers = []Tier{TierVolatile, TierScoped, TierDurable}
	}

	var expanded []Tier
	for _, t := range tiers {
		if !t.valid() {
			return fmt.Errorf("%w: %q", ErrUnknownTier, t)
		}
		expanded = append(expanded, targetTiers(t.normalize())...)
	}

	for _, tier := range lo.Uniq(expanded) {
		store, mu, err := c.tierFor(tier)
		if err != nil {
			return err
		}
		mu.Lock()
		err = store.Clear(ctx)
		if err == nil {
			c.tags.ClearTier(tier)
			c.stats.sized(tier, 0, 0)
		}
		mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// Stats returns a snapshot of counters and per-tier usage.
func (c *Cache) Stats() Stats {
	tiers := make(map[Tier]TierStats, 3)
	for _, tier := range []Tier{TierVolatile, TierScoped, TierDurable} {
		store, _, err := c.tierFor(tier)
		if err != nil {
			continue
		}
		tiers[tier] = TierStats{
			Entries:     store.Len(),
			SizeBytes:   store.SizeBytes(),
			BudgetBytes: c.budgetFor(tier),
			Tags:        c.tags.TagCount(tier),
		}
	}
	return c.stats.snapshot(tiers, c.durable.degraded())
}

// Entries lists metadata for the tier's resident entries, payloads
// omitted. Diagnostic surface; hybrid is not a store and is rejected.
func (c *Cache) Entries(ctx context.Context, tier Tier) ([]*Entry, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	store, _, err := c.tierFor(tier)
	if err != nil {
		return nil, err
	}
	return store.Entries(ctx)
}

// SweepNow runs one synchronous sweep over every tier, including Durable
// regardless of its sweep probability.
func (c *Cache) SweepNow(ctx context.Context) {
	if c.closed.Load() || c.sweeper == nil {
		return
	}
	c.sweeper.sweep(ctx, true)
}

// ApplyConfig adjusts budgets, TTLs, the compression threshold, and sweep
// settings on a running cache; shrunken budgets are enforced immediately.
// The durable medium and its path are fixed at initialization and cannot
// be changed here.
func (c *Cache) ApplyConfig(cfg Config) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.cfgMu.Lock()
	if cfg.Durable.Path != c.cfg.Durable.Path {
		logger().Warn().Str("path", cfg.Durable.Path).
			Msg("durable path change ignored, medium is selected at initialization")
		cfg.Durable.Path = c.cfg.Durable.Path
	}
	c.cfg = cfg
	c.cfgMu.Unlock()

	c.codec.setThreshold(cfg.compressionThreshold())
	if c.sweeper != nil {
		c.sweeper.setInterval(cfg.sweepInterval())
		c.sweeper.setDurableChance(cfg.durableSweepChance())
	}

	// Enforce shrunken budgets right away instead of waiting for the next
	// Set.
	ctx, cancel := context.WithTimeout(context.Background(), DefaultQueryTimeout)
	defer cancel()
	for _, tier := range []Tier{TierVolatile, TierScoped, TierDurable} {
		store, mu, err := c.tierFor(tier)
		if err != nil {
			continue
		}
		mu.Lock()
		if err := c.eviction.makeRoom(ctx, tier, store, c.budgetFor(tier), 0); err != nil {
			logger().Warn().Err(err).Str("tier", string(tier)).Msg("budget enforcement after reload failed")
		}
		c.stats.sized(tier, store.Len(), store.SizeBytes())
		mu.Unlock()
	}

	logger().Info().Msg("cache configuration applied")
	return nil
}

// Close stops the sweeper and releases every tier. Safe to call more than
// once.
func (c *Cache) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	if c.sweeper != nil {
		c.sweeper.stop()
	}

	var firstErr error
	for _, store := range []tierStore{c.volatile, c.scoped, c.durable} {
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.codec.Close()

	logger().Debug().Msg("tiered cache closed")
	return firstErr
}

// tierFor resolves a concrete tier to its store and write lock. Hybrid is
// a routing mode, not a store, and resolves to ErrUnknownTier here.
func (c *Cache) tierFor(tier Tier) (tierStore, *sync.Mutex, error) {
	switch tier {
	case TierVolatile:
		return c.volatile, &c.volatileMu, nil
	case TierScoped:
		return c.scoped, &c.scopedMu, nil
	case TierDurable:
		return c.durable, &c.durableMu, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
}

// budgetFor returns the tier's configured byte budget.
func (c *Cache) budgetFor(tier Tier) int64 {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	switch tier {
	case TierVolatile:
		return c.cfg.Volatile.BudgetBytes
	case TierScoped:
		return c.cfg.Scoped.BudgetBytes
	case TierDurable:
		return c.cfg.Durable.BudgetBytes
	default:
		return 0
	}
}

// entryTTL resolves the effective TTL for a write: an explicit TTL wins,
// zero falls back to the tier default, negative disables expiry.
func (c *Cache) entryTTL(tier Tier, ttl time.Duration) time.Duration {
	if ttl < 0 {
		return 0
	}
	if ttl > 0 {
		return ttl
	}

	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	switch tier {
	case TierVolatile:
		return c.cfg.Volatile.GetDefaultTTLOption().OrElse(0)
	case TierScoped:
		return c.cfg.Scoped.GetDefaultTTLOption().OrElse(0)
	case TierDurable:
		return c.cfg.Durable.GetDefaultTTLOption().OrElse(0)
	default:
		return 0
	}
}

// targetTiers expands a routing tier into the concrete tiers a write
// lands in.
func targetTiers(tier Tier) []Tier {
	switch tier {
	case TierHybrid:
		return []Tier{TierVolatile, TierDurable}
	case TierVolatile, TierScoped, TierDurable:
		return []Tier{tier}
	default:
		return nil
	}
}

// lookupTiers expands a routing tier into the concrete tiers a read
// consults, in order.
func lookupTiers(tier Tier) []Tier {
	switch tier {
	case TierHybrid:
		return []Tier{TierVolatile, TierDurable}
	case TierVolatile, TierScoped, TierDurable:
		return []Tier{tier}
	default:
		return nil
	}
}
