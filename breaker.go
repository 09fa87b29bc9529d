package tiercache

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Breaker defaults for the durable medium.
const (
	breakerFailureThreshold = 5
	breakerOpenDuration     = 30 * time.Second
	breakerHalfOpenProbes   = 1
)

// mediumBreaker guards the durable backing medium. Consecutive failures
// open the circuit and route durable operations to the in-memory fallback
// until the medium recovers. State transitions are logged once here, not
// per call.
type mediumBreaker struct {
	cb *gobreaker.TwoStepCircuitBreaker[struct{}]
}

func newMediumBreaker(name string) *mediumBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: breakerHalfOpenProbes,
		Timeout:     breakerOpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			event := logger().Info()
			if to == gobreaker.StateOpen {
				event = logger().Warn()
			}
			event.
				Str("medium", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("durable medium circuit state change")
		},
		// A miss is a healthy answer, and a canceled caller says nothing
		// about the medium.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, context.Canceled)
		},
	}

	return &mediumBreaker{
		cb: gobreaker.NewTwoStepCircuitBreaker[struct{}](settings),
	}
}

// Allow checks whether the medium may be called. The returned done must be
// invoked with the call's outcome. Returns ErrDurableUnavailable while the
// circuit is open.
func (b *mediumBreaker) Allow() (done func(err error), err error) {
	d, err := b.cb.Allow()
	if err != nil {
		return nil, ErrDurableUnavailable
	}
	return d, nil
}

// State returns the current circuit state.
func (b *mediumBreaker) State() gobreaker.State {
	return b.cb.State()
}
