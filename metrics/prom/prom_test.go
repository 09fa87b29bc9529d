package prom

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiercache/tiercache"
)

func testConfig() tiercache.Config {
	return tiercache.Config{
		Volatile:             tiercache.TierConfig{BudgetBytes: 1 << 20},
		Scoped:               tiercache.TierConfig{BudgetBytes: 1 << 20},
		Durable:              tiercache.DurableConfig{BudgetBytes: 1 << 20},
		CompressionThreshold: -1,
		SweepIntervalSeconds: -1,
		DurableSweepChance:   -1,
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	a := New(reg, "tiercache", "cache", nil)

	require.NotNil(t, a)
	assert.NotNil(t, a.hits)
	assert.NotNil(t, a.misses)
	assert.NotNil(t, a.sets)
	assert.NotNil(t, a.evicts)
	assert.NotNil(t, a.entries)
	assert.NotNil(t, a.bytes)
}

func TestNewDistinctInstances(t *testing.T) {
	t.Parallel()

	// Two adapters on one registry must not collide: each gets its own
	// instance_id const label.
	reg := prometheus.NewRegistry()
	assert.NotPanics(t, func() {
		New(reg, "tiercache", "cache", nil)
		New(reg, "tiercache", "cache", nil)
	})
}

func TestNewKeepsCallerInstanceLabel(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	a := New(reg, "tiercache", "cache", prometheus.Labels{"instance_id": "primary"})
	a.Hit(tiercache.TierVolatile)

	got := testutil.ToFloat64(a.hits.WithLabelValues("volatile"))
	assert.Equal(t, 1.0, got)
}

func TestAdapterCounters(t *testing.T) {
	t.Parallel()

	a := New(prometheus.NewRegistry(), "tiercache", "cache", nil)

	a.Hit(tiercache.TierVolatile)
	a.Hit(tiercache.TierVolatile)
	a.Miss(tiercache.TierDurable)
	a.Set(tiercache.TierHybrid)

	assert.Equal(t, 2.0, testutil.ToFloat64(a.hits.WithLabelValues("volatile")))
	assert.Equal(t, 0.0, testutil.ToFloat64(a.hits.WithLabelValues("durable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.misses.WithLabelValues("durable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.sets.WithLabelValues("hybrid")))
}

func TestAdapterEvictionsByReason(t *testing.T) {
	t.Parallel()

	a := New(prometheus.NewRegistry(), "tiercache", "cache", nil)

	a.Evict(tiercache.TierVolatile, tiercache.EvictCapacity, 3)
	a.Evict(tiercache.TierVolatile, tiercache.EvictTTL, 2)
	a.Evict(tiercache.TierDurable, tiercache.EvictInvalidated, 5)

	assert.Equal(t, 3.0, testutil.ToFloat64(a.evicts.WithLabelValues("volatile", "capacity")))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.evicts.WithLabelValues("volatile", "ttl")))
	assert.Equal(t, 5.0, testutil.ToFloat64(a.evicts.WithLabelValues("durable", "invalidated")))
}

func TestAdapterSizeGauges(t *testing.T) {
	t.Parallel()

	a := New(prometheus.NewRegistry(), "tiercache", "cache", nil)

	a.Size(tiercache.TierDurable, 12, 4096)
	assert.Equal(t, 12.0, testutil.ToFloat64(a.entries.WithLabelValues("durable")))
	assert.Equal(t, 4096.0, testutil.ToFloat64(a.bytes.WithLabelValues("durable")))

	// Gauges track the latest value, not a running total.
	a.Size(tiercache.TierDurable, 3, 128)
	assert.Equal(t, 3.0, testutil.ToFloat64(a.entries.WithLabelValues("durable")))
	assert.Equal(t, 128.0, testutil.ToFloat64(a.bytes.WithLabelValues("durable")))
}

func TestAdapterWiredIntoCache(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	a := New(reg, "tiercache", "cache", nil)

	ctx := context.Background()
	c, err := tiercache.New(ctx, testConfig(), tiercache.WithMetrics(a))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Set(ctx, "k1", "v1"))

	var got string
	found, err := c.Get(ctx, "k1", &got)
	require.NoError(t, err)
	require.True(t, found)

	found, err = c.Get(ctx, "nope", &got)
	require.NoError(t, err)
	require.False(t, found)

	// Default operations run in hybrid mode.
	assert.Equal(t, 1.0, testutil.ToFloat64(a.sets.WithLabelValues("hybrid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.hits.WithLabelValues("hybrid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.misses.WithLabelValues("hybrid")))

	// Writes update the per-tier size gauges for both physical tiers.
	assert.Equal(t, 1.0, testutil.ToFloat64(a.entries.WithLabelValues("volatile")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.entries.WithLabelValues("durable")))
	assert.Positive(t, testutil.ToFloat64(a.bytes.WithLabelValues("volatile")))
}
