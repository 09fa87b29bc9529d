package tiercache

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/mo"
)

// Tier identifies a storage tier, or the hybrid routing mode that spans
// Volatile and Durable.
type Tier string

const (
	// TierVolatile is the fastest, smallest tier. Entries vanish on restart.
	TierVolatile Tier = "volatile"

	// TierScoped is the mid-lifetime, mid-size tier. Entries vanish on
	// restart but outlive Volatile churn.
	TierScoped Tier = "scoped"

	// TierDurable is the slowest, largest tier, backed by a persistent
	// medium with an in-memory fallback when that medium is unavailable.
	TierDurable Tier = "durable"

	// TierHybrid is a routing mode, not a store: reads check Volatile
	// first and fall back to Durable (promoting hits), writes mirror into
	// both.
	TierHybrid Tier = "hybrid"
)

// normalize maps the zero value to TierHybrid, the facade default.
func (t Tier) normalize() Tier {
	if t == "" {
		return TierHybrid
	}
	return t
}

func (t Tier) valid() bool {
	switch t {
	case "", TierVolatile, TierScoped, TierDurable, TierHybrid:
		return true
	default:
		return false
	}
}

// Defaults applied by Validate and the Default*Config constructors.
const (
	// DefaultCompressionThreshold is the encoded size at which payloads
	// are zstd-compressed.
	DefaultCompressionThreshold = 1 << 10 // 1 KiB

	// DefaultSweepInterval is how often the expiry sweeper runs.
	DefaultSweepInterval = time.Minute

	// DefaultDurableSweepChance is the probability that a sweep tick also
	// scans the durable tier.
	DefaultDurableSweepChance = 0.1

	// DefaultQueryTimeout bounds each statement against the durable
	// medium.
	DefaultQueryTimeout = 5 * time.Second

	// DefaultSweepBatch is the number of expired durable rows deleted per
	// sweep transaction.
	DefaultSweepBatch = 256
)

// Config defines cache configuration.
// Use Validate() to check for configuration errors before creating a cache.
type Config struct {
	Volatile TierConfig    `yaml:"volatile" toml:"volatile"`
	Scoped   TierConfig    `yaml:"scoped" toml:"scoped"`
	Durable  DurableConfig `yaml:"durable" toml:"durable"`

	// CompressionThreshold is the encoded payload size in bytes at which
	// compression kicks in. Zero means DefaultCompressionThreshold;
	// negative disables compression entirely.
	CompressionThreshold int `yaml:"compression_threshold" toml:"compression_threshold"`

	// SweepIntervalSeconds is the period of the background expiry sweeper.
	// Zero means DefaultSweepInterval; negative disables the sweeper
	// (lazy expiry on read still applies).
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds" toml:"sweep_interval_seconds"`

	// DurableSweepChance is the probability, per sweep tick, of also
	// sweeping the durable tier. Must be within [0, 1]. Zero means
	// DefaultDurableSweepChance; use a negative value to never sweep the
	// durable tier in the background.
	DurableSweepChance float64 `yaml:"durable_sweep_chance" toml:"durable_sweep_chance"`
}

// TierConfig configures one in-memory tier.
type TierConfig struct {
	// BudgetBytes caps the tier's total payload bytes. Eviction runs
	// synchronously before any insert that would exceed it.
	BudgetBytes int64 `yaml:"budget_bytes" toml:"budget_bytes"`

	// DefaultTTLSeconds applies when a Set carries no explicit TTL.
	// Zero means entries never expire unless a TTL is given.
	DefaultTTLSeconds int64 `yaml:"default_ttl_seconds" toml:"default_ttl_seconds"`
}

// DurableConfig configures the durable tier and its backing medium.
type DurableConfig struct {
	// BudgetBytes caps the tier's total payload bytes.
	BudgetBytes int64 `yaml:"budget_bytes" toml:"budget_bytes"`

	// DefaultTTLSeconds applies when a Set carries no explicit TTL.
	DefaultTTLSeconds int64 `yaml:"default_ttl_seconds" toml:"default_ttl_seconds"`

	// Path is the SQLite database file. Empty selects the in-memory
	// fallback without attempting the medium, which is useful in tests.
	Path string `yaml:"path" toml:"path"`

	// QueryTimeoutMS bounds each statement against the medium, in
	// milliseconds. Zero means DefaultQueryTimeout.
	QueryTimeoutMS int `yaml:"query_timeout_ms" toml:"query_timeout_ms"`

	// SweepBatch limits rows deleted per sweep transaction so a slow
	// medium never stalls the sweeper. Zero means DefaultSweepBatch.
	SweepBatch int `yaml:"sweep_batch" toml:"sweep_batch"`
}

// Validate checks the configuration for errors.
// Returns nil if the configuration is valid.
func (c *Config) Validate() error {
	if c.Volatile.BudgetBytes <= 0 {
		return errors.New("tiercache: volatile.budget_bytes must be positive")
	}
	if c.Scoped.BudgetBytes <= 0 {
		return errors.New("tiercache: scoped.budget_bytes must be positive")
	}
	if c.Durable.BudgetBytes <= 0 {
		return errors.New("tiercache: durable.budget_bytes must be positive")
	}
	if c.DurableSweepChance > 1 {
		return fmt.Errorf("tiercache: durable_sweep_chance %v out of range [0, 1]", c.DurableSweepChance)
	}
	if c.Durable.SweepBatch < 0 {
		return errors.New("tiercache: durable.sweep_batch must not be negative")
	}
	return nil
}

// GetDefaultTTLOption returns the tier's default TTL as an Option.
// Returns None when no default is configured (entries never expire).
func (t *TierConfig) GetDefaultTTLOption() mo.Option[time.Duration] {
	if t.DefaultTTLSeconds <= 0 {
		return mo.None[time.Duration]()
	}
	return mo.Some(time.Duration(t.DefaultTTLSeconds) * time.Second)
}

// GetDefaultTTLOption returns the durable tier's default TTL as an Option.
func (d *DurableConfig) GetDefaultTTLOption() mo.Option[time.Duration] {
	if d.DefaultTTLSeconds <= 0 {
		return mo.None[time.Duration]()
	}
	return mo.Some(time.Duration(d.DefaultTTLSeconds) * time.Second)
}

// GetQueryTimeoutOption returns the durable query timeout as an Option.
// Returns None when unset (use DefaultQueryTimeout).
func (d *DurableConfig) GetQueryTimeoutOption() mo.Option[time.Duration] {
	if d.QueryTimeoutMS <= 0 {
		return mo.None[time.Duration]()
	}
	return mo.Some(time.Duration(d.QueryTimeoutMS) * time.Millisecond)
}

// DefaultVolatileConfig returns the Volatile tier defaults.
// 16 MB budget, 5 minute TTL.
func DefaultVolatileConfig() TierConfig {
	return TierConfig{
		BudgetBytes:       16 << 20, // 16 MB.
		DefaultTTLSeconds: 300,      // 5 minutes.
	}
}

// DefaultScopedConfig returns the Scoped tier defaults.
// 64 MB budget, 1 hour TTL.
func DefaultScopedConfig() TierConfig {
	return TierConfig{
		BudgetBytes:       64 << 20, // 64 MB.
		DefaultTTLSeconds: 3600,     // 1 hour.
	}
}

// DefaultDurableConfig returns the Durable tier defaults.
// 256 MB budget, 24 hour TTL, no database path (fallback mode).
func DefaultDurableConfig() DurableConfig {
	return DurableConfig{
		BudgetBytes:       256 << 20, // 256 MB.
		DefaultTTLSeconds: 86400,     // 24 hours.
		QueryTimeoutMS:    5000,
		SweepBatch:        DefaultSweepBatch,
	}
}

// DefaultConfig returns a Config with sensible defaults for all tiers.
func DefaultConfig() Config {
	return Config{
		Volatile:             DefaultVolatileConfig(),
		Scoped:               DefaultScopedConfig(),
		Durable:              DefaultDurableConfig(),
		CompressionThreshold: DefaultCompressionThreshold,
		SweepIntervalSeconds: 60,
		DurableSweepChance:   DefaultDurableSweepChance,
	}
}

// compressionThreshold resolves the configured threshold against the
// default. Negative disables compression.
func (c *Config) compressionThreshold() int {
	switch {
	case c.CompressionThreshold < 0:
		return 0
	case c.CompressionThreshold == 0:
		return DefaultCompressionThreshold
	default:
		return c.CompressionThreshold
	}
}

// sweepInterval resolves the configured interval against the default.
// Zero return means the sweeper is disabled.
func (c *Config) sweepInterval() time.Duration {
	switch {
	case c.SweepIntervalSeconds < 0:
		return 0
	case c.SweepIntervalSeconds == 0:
		return DefaultSweepInterval
	default:
		return time.Duration(c.SweepIntervalSeconds) * time.Second
	}
}

// durableSweepChance resolves the configured probability against the
// default.
func (c *Config) durableSweepChance() float64 {
	switch {
	case c.DurableSweepChance < 0:
		return 0
	case c.DurableSweepChance == 0:
		return DefaultDurableSweepChance
	default:
		return c.DurableSweepChance
	}
}
