package tiercache

import "context"

// tierStore is the contract each tier's backing store implements.
// All implementations must be safe for concurrent use.
//
// Entries handed out are copies; mutating a returned Entry never affects
// resident data. Writes are atomic with respect to readers and the
// sweeper: no caller ever observes a half-written entry.
type tierStore interface {
	// Put inserts or replaces the entry. Replacing releases the previous
	// entry's bytes from the tier accounting.
	Put(ctx context.Context, e *Entry) error

	// Get returns the entry for key.
	// Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) (*Entry, error)

	// Touch records a read at the given time for recency-based eviction.
	// Missing keys are ignored.
	Touch(ctx context.Context, key string, now int64) error

	// Delete removes the entry for key, reporting whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// SizeBytes returns the tier's current payload byte total.
	SizeBytes() int64

	// Len returns the number of resident entries.
	Len() int

	// Entries returns a snapshot of all resident entries.
	Entries(ctx context.Context) ([]*Entry, error)

	// Close releases the store's resources.
	Close() error
}

// expiryDeleter is an optional fast path for stores that can delete
// expired entries without the caller scanning every entry. Returns the
// deleted keys so the tag index can be decayed. A limit of 0 means
// unbounded.
type expiryDeleter interface {
	DeleteExpired(ctx context.Context, now int64, limit int) ([]string, error)
}

// victimScanner is an optional fast path for stores that can produce
// eviction candidates already ordered lowest priority first, then least
// recently accessed. Victims carry at least Key and SizeBytes; payloads
// may be omitted.
type victimScanner interface {
	Victims(ctx context.Context) ([]*Entry, error)
}

// tagScanner is implemented by stores that persist tags alongside entries
// and can resolve tag membership without the in-memory index. Used by tag
// invalidation to reach entries written before a process restart.
type tagScanner interface {
	KeysWithTags(ctx context.Context, tags []string) ([]string, error)
}
