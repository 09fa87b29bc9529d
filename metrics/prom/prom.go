// Package prom exports tiercache metrics to Prometheus.
package prom

import (
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tiercache/tiercache"
)

// Adapter implements tiercache.Metrics and exports Prometheus counters
// and gauges, labeled by tier. Safe for concurrent use; all Prometheus
// metric types are goroutine-safe.
type Adapter struct {
	hits    *prometheus.CounterVec
	misses  *prometheus.CounterVec
	sets    *prometheus.CounterVec
	evicts  *prometheus.CounterVec
	entries *prometheus.GaugeVec
	bytes   *prometheus.GaugeVec
}

// New constructs a Prometheus metrics adapter.
//   - reg:         registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:     Prometheus namespace and subsystem
//   - constLabels: static labels applied to all metrics (may be nil); an
//     instance label with a random UUID is added when absent, so two
//     caches in one process never collide
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if constLabels == nil {
		constLabels = prometheus.Labels{}
	}
	if _, ok := constLabels["instance_id"]; !ok {
		constLabels["instance_id"] = uuid.New().String()
	}

	tier := []string{"tier"}
	a := &Adapter{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Cache hits by tier",
			ConstLabels: constLabels,
		}, tier),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Cache misses by tier",
			ConstLabels: constLabels,
		}, tier),
		sets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "sets_total",
			Help:        "Cache sets by tier",
			ConstLabels: constLabels,
		}, tier),
		evicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "evictions_total",
			Help:        "Cache evictions by tier and reason",
			ConstLabels: constLabels,
		}, []string{"tier", "reason"}),
		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "entries",
			Help:        "Resident entries by tier",
			ConstLabels: constLabels,
		}, tier),
		bytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_bytes",
			Help:        "Resident payload bytes by tier",
			ConstLabels: constLabels,
		}, tier),
	}
	reg.MustRegister(a.hits, a.misses, a.sets, a.evicts, a.entries, a.bytes)
	return a
}

// Hit increments the hit counter for the tier.
func (a *Adapter) Hit(tier tiercache.Tier) {
	a.hits.WithLabelValues(string(tier)).Inc()
}

// Miss increments the miss counter for the tier.
func (a *Adapter) Miss(tier tiercache.Tier) {
	a.misses.WithLabelValues(string(tier)).Inc()
}

// Set increments the set counter for the tier.
func (a *Adapter) Set(tier tiercache.Tier) {
	a.sets.WithLabelValues(string(tier)).Inc()
}

// Evict adds to the eviction counter with tier and reason labels.
func (a *Adapter) Evict(tier tiercache.Tier, reason tiercache.EvictReason, count int) {
	a.evicts.WithLabelValues(string(tier), reason.String()).Add(float64(count))
}

// Size updates the per-tier entry and byte gauges.
func (a *Adapter) Size(tier tiercache.Tier, entries int, sizeBytes int64) {
	a.entries.WithLabelValues(string(tier)).Set(float64(entries))
	a.bytes.WithLabelValues(string(tier)).Set(float64(sizeBytes))
}

// Compile-time check: ensure Adapter implements tiercache.Metrics.
var _ tiercache.Metrics = (*Adapter)(nil)
