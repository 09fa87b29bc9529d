package tiercache

import "sync/atomic"

// EvictReason says why an entry left a tier.
type EvictReason int

const (
	// EvictCapacity marks an entry evicted under budget pressure.
	EvictCapacity EvictReason = iota

	// EvictTTL marks an entry removed because its TTL elapsed, whether by
	// the sweeper or lazily on read.
	EvictTTL

	// EvictInvalidated marks an entry removed by tag invalidation.
	EvictInvalidated
)

// String returns a stable label for the reason.
func (r EvictReason) String() string {
	switch r {
	case EvictTTL:
		return "ttl"
	case EvictInvalidated:
		return "invalidated"
	default:
		return "capacity"
	}
}

// Metrics receives cache events for export to an observability backend.
// Implementations must be safe for concurrent use. NoopMetrics is the
// default when none is configured; see metrics/prom for a Prometheus
// adapter.
type Metrics interface {
	Hit(tier Tier)
	Miss(tier Tier)
	Set(tier Tier)
	Evict(tier Tier, reason EvictReason, count int)
	Size(tier Tier, entries int, sizeBytes int64)
}

// NoopMetrics is a drop-in Metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Hit(Tier)                     {}
func (NoopMetrics) Miss(Tier)                    {}
func (NoopMetrics) Set(Tier)                     {}
func (NoopMetrics) Evict(Tier, EvictReason, int) {}
func (NoopMetrics) Size(Tier, int, int64)        {}

// Ensure NoopMetrics implements the Metrics interface at compile time.
var _ Metrics = NoopMetrics{}

// Stats is a point-in-time snapshot of cache counters and tier usage.
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Sets          int64 `json:"sets"`
	Deletes       int64 `json:"deletes"`
	Evictions     int64 `json:"evictions"`
	Expirations   int64 `json:"expirations"`
	Invalidations int64 `json:"invalidations"`

	// HitRate is hits / (hits + misses), 0 when both are 0.
	HitRate float64 `json:"hit_rate"`

	// DurableFallback reports whether the durable tier is currently
	// served by its in-memory substitute.
	DurableFallback bool `json:"durable_fallback"`

	Tiers map[Tier]TierStats `json:"tiers"`
}

// TierStats describes one tier's resident usage.
type TierStats struct {
	Entries     int   `json:"entries"`
	SizeBytes   int64 `json:"size_bytes"`
	BudgetBytes int64 `json:"budget_bytes"`
	Tags        int   `json:"tags"`
}

// statsCollector aggregates counters with atomics and fans events out to
// the Metrics hook.
type statsCollector struct {
	hits          atomic.Int64
	misses        atomic.Int64
	sets          atomic.Int64
	deletes       atomic.Int64
	evictions     atomic.Int64
	expirations   atomic.Int64
	invalidations atomic.Int64

	metrics Metrics
}

func newStatsCollector(m Metrics) *statsCollector {
	if m == nil {
		m = NoopMetrics{}
	}
	return &statsCollector{metrics: m}
}

func (s *statsCollector) hit(tier Tier) {
	s.hits.Add(1)
	s.metrics.Hit(tier)
}

func (s *statsCollector) miss(tier Tier) {
	s.misses.Add(1)
	s.metrics.Miss(tier)
}

func (s *statsCollector) set(tier Tier) {
	s.sets.Add(1)
	s.metrics.Set(tier)
}

func (s *statsCollector) deleted(tier Tier) {
	s.deletes.Add(1)
}

func (s *statsCollector) evicted(tier Tier, reason EvictReason, count int) {
	if count <= 0 {
		return
	}
	switch reason {
	case EvictTTL:
		s.expirations.Add(int64(count))
	case EvictInvalidated:
		s.invalidations.Add(int64(count))
	default:
		s.evictions.Add(int64(count))
	}
	s.metrics.Evict(tier, reason, count)
}

func (s *statsCollector) sized(tier Tier, entries int, sizeBytes int64) {
	s.metrics.Size(tier, entries, sizeBytes)
}

// snapshot renders the counters plus the supplied per-tier usage.
func (s *statsCollector) snapshot(tiers map[Tier]TierStats, durableFallback bool) Stats {
	hits := s.hits.Load()
	misses := s.misses.Load()

	var rate float64
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}

	return Stats{
		Hits:            hits,
		Misses:          misses,
		Sets:            s.sets.Load(),
		Deletes:         s.deletes.Load(),
		Evictions:       s.evictions.Load(),
		Expirations:     s.expirations.Load(),
		Invalidations:   s.invalidations.Load(),
		HitRate:         rate,
		DurableFallback: durableFallback,
		Tiers:           tiers,
	}
}
