package tiercache

import (
	"bytes"

	"github.com/rs/zerolog"
)

// Exported for testing in external test packages (tiercache_test).

// VictimLessForTest exports the eviction ordering for property tests.
var VictimLessForTest = victimLess

// EntryT exports the stored entry type for ordering tests.
type EntryT = Entry

// NewTestLogger creates a test logger at the given level, returning the
// buffer (for inspecting output) and the logger pointer.
func NewTestLogger(level zerolog.Level) (*bytes.Buffer, *zerolog.Logger) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(level)
	return &buf, &logger
}

// VolatileSizeBytes exposes the volatile tier's byte usage so external
// tests can check the budget invariant.
func (c *Cache) VolatileSizeBytes() int64 {
	return c.volatile.SizeBytes()
}

// VolatileLen exposes the volatile tier's entry count.
func (c *Cache) VolatileLen() int {
	return c.volatile.Len()
}
