package tiercache

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// sweepTarget is one tier as the sweeper sees it: the store, the facade's
// write lock for that tier, and the batch size for its medium.
type sweepTarget struct {
	tier    Tier
	store   tierStore
	mu      *sync.Mutex
	durable bool
	batch   int
}

// sweeper purges expired entries in the background. Volatile and Scoped
// are swept every tick; the Durable tier joins a tick with a small
// probability since its scan costs real I/O.
//
// A pass holds a tier's write lock only for the duration of one delete
// batch and releases it between batches, so a slow durable medium never
// stalls operations on the other tiers. Batches are paced by a rate
// limiter.
type sweeper struct {
	clock   Clock
	tags    *tagIndex
	stats   *statsCollector
	targets []sweepTarget
	limiter *rate.Limiter

	interval   atomic.Int64  // nanoseconds between ticks
	chanceBits atomic.Uint64 // durable sweep probability as float64 bits
	cancel     context.CancelFunc
	done       chan struct{}
}

func newSweeper(clock Clock, tags *tagIndex, stats *statsCollector, targets []sweepTarget, interval time.Duration, durableChance float64) *sweeper {
	s := &sweeper{
		clock:   clock,
		tags:    tags,
		stats:   stats,
		targets: targets,
		limiter: rate.NewLimiter(rate.Every(10*time.Millisecond), 4),
		done:    make(chan struct{}),
	}
	s.interval.Store(int64(interval))
	s.chanceBits.Store(math.Float64bits(durableChance))
	return s
}

// start launches the sweep loop. The loop exits when stop is called.
func (s *sweeper) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx)
}

// stop cancels the loop and waits for it to exit.
func (s *sweeper) stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *sweeper) setInterval(d time.Duration) {
	s.interval.Store(int64(d))
}

func (s *sweeper) setDurableChance(p float64) {
	s.chanceBits.Store(math.Float64bits(p))
}

func (s *sweeper) durableChance() float64 {
	return math.Float64frombits(s.chanceBits.Load())
}

func (s *sweeper) run(ctx context.Context) {
	defer close(s.done)

	timer := time.NewTimer(time.Duration(s.interval.Load()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.sweep(ctx, false)
			// Interval changes from a config reload apply on the next
			// tick.
			timer.Reset(time.Duration(s.interval.Load()))
		}
	}
}

// sweep runs one pass over all tiers. The durable tier is skipped unless
// the probability fires or force is set.
func (s *sweeper) sweep(ctx context.Context, force bool) {
	now := s.clock.NowUnixNano()
	for _, t := range s.targets {
		if t.durable && !force && rand.Float64() >= s.durableChance() {
			continue
		}
		removed, err := s.sweepTarget(ctx, t, now)
		if err != nil {
			logger().Warn().Err(err).Str("tier", string(t.tier)).Msg("sweep failed")
			continue
		}
		if removed > 0 {
			logger().Debug().Str("tier", string(t.tier)).Int("removed", removed).Msg("swept expired entries")
		}
	}
}

// sweepTarget deletes expired entries from one tier in batches, decaying
// the tag index as keys go. The tier lock is released between batches.
func (s *sweeper) sweepTarget(ctx context.Context, t sweepTarget, now int64) (int, error) {
	total := 0
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return total, err
		}

		t.mu.Lock()
		keys, err := deleteExpired(ctx, t.store, now, t.batch)
		if err == nil {
			s.tags.RemoveKeys(t.tier, keys)
		}
		t.mu.Unlock()

		if err != nil {
			return total, err
		}
		total += len(keys)
		s.stats.evicted(t.tier, EvictTTL, len(keys))

		if t.batch <= 0 || len(keys) < t.batch {
			return total, nil
		}
	}
}

// deleteExpired uses the store's fast path when it has one, and otherwise
// scans and deletes entry by entry.
func deleteExpired(ctx context.Context, store tierStore, now int64, limit int) ([]string, error) {
	if ed, ok := store.(expiryDeleter); ok {
		return ed.DeleteExpired(ctx, now, limit)
	}

	entries, err := store.Entries(ctx)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		if !e.expired(now) {
			continue
		}
		did, err := store.Delete(ctx, e.Key)
		if err != nil {
			return keys, err
		}
		if did {
			keys = append(keys, e.Key)
		}
		if limit > 0 && len(keys) >= limit {
			break
		}
	}
	return keys, nil
}
