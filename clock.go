package tiercache

import "time"

// Clock supplies the time source used for TTL and recency decisions.
// Production code uses the system clock; tests substitute a fake to
// advance time deterministically.
type Clock interface {
	// NowUnixNano returns the current time in nanoseconds since the epoch.
	NowUnixNano() int64
}

// systemClock is the default Clock backed by time.Now.
type systemClock struct{}

func (systemClock) NowUnixNano() int64 { return time.Now().UnixNano() }
