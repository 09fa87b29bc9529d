package tiercache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a manually advanced Clock for deterministic TTL tests.
type fakeClock struct {
	t int64
}

// newFakeClock starts well past zero so TTL arithmetic never goes
// negative.
func newFakeClock() *fakeClock {
	return &fakeClock{t: int64(time.Hour)}
}

func (f *fakeClock) NowUnixNano() int64 { return atomic.LoadInt64(&f.t) }

func (f *fakeClock) add(d time.Duration) { atomic.AddInt64(&f.t, int64(d)) }

// testConfig returns a small, deterministic configuration: tight budgets,
// no default TTLs, no background sweeper, no compression, and the durable
// tier on its in-memory fallback.
func testConfig() Config {
	return Config{
		Volatile:             TierConfig{BudgetBytes: 1 << 20},
		Scoped:               TierConfig{BudgetBytes: 1 << 20},
		Durable:              DurableConfig{BudgetBytes: 1 << 20},
		CompressionThreshold: -1,
		SweepIntervalSeconds: -1,
		DurableSweepChance:   -1,
	}
}

// newTestCache creates a cache and registers cleanup.
func newTestCache(t *testing.T, cfg Config, opts ...Option) *Cache {
	t.Helper()
	c, err := New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return c
}

// encodedSize returns the stored payload size for a value under the
// cache's codec, for byte-exact budget arithmetic.
func encodedSize(t *testing.T, c *Cache, value any) int64 {
	t.Helper()
	payload, _, err := c.codec.Encode(value)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return int64(len(payload))
}
