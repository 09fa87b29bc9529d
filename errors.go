package tiercache

import "errors"

// Standard errors for cache operations.
//
// Use errors.Is to check for these errors:
//
//	var profile Profile
//	ok, err := c.Get(ctx, key, &profile)
//	if errors.Is(err, tiercache.ErrTooLarge) {
//		// entry cannot fit even after eviction
//	}
var (
	// ErrNotFound is returned by tier stores when a key does not exist.
	// The facade translates it to a plain miss; callers of Get see
	// (false, nil) rather than this error.
	ErrNotFound = errors.New("tiercache: key not found")

	// ErrClosed is returned when operations are attempted on a closed cache.
	ErrClosed = errors.New("tiercache: cache is closed")

	// ErrInvalidKey is returned when a key is empty, oversized, or contains
	// control characters. The key is rejected before reaching any tier.
	ErrInvalidKey = errors.New("tiercache: invalid key")

	// ErrTooLarge is returned by Set when an entry still cannot fit within
	// the tier budget after evicting everything evictable.
	ErrTooLarge = errors.New("tiercache: entry too large for tier")

	// ErrEncode is returned when value serialization fails.
	ErrEncode = errors.New("tiercache: encode failed")

	// ErrDecode is returned when a stored payload cannot be deserialized.
	// Reads treat it as a miss and drop the corrupt entry.
	ErrDecode = errors.New("tiercache: decode failed")

	// ErrDurableUnavailable is returned when the durable backing medium
	// cannot be reached. The cache degrades to an in-memory substitute.
	ErrDurableUnavailable = errors.New("tiercache: durable medium unavailable")

	// ErrUnknownTier is returned when a Tier value is not one of the
	// declared constants.
	ErrUnknownTier = errors.New("tiercache: unknown tier")
)
