// Package tiercache provides a tiered client-side cache.
//
// Values are stored across three tiers with different durability and size
// characteristics:
//   - Volatile: fastest and smallest, in-memory, gone on restart
//   - Scoped: mid-lifetime and mid-size, in-memory
//   - Durable: slowest and largest, backed by SQLite with an in-memory
//     fallback when the database is unavailable
//
// The default hybrid mode reads Volatile first and falls back to Durable,
// promoting hits; writes mirror into both. Each tier enforces a byte
// budget by evicting lowest-priority, least-recently-accessed entries
// first, a background sweeper purges expired entries, and a tag index
// supports bulk invalidation.
//
// All operations are safe for concurrent use, and cache failures are
// never fatal to the caller: a failed Set means "value not cached" and a
// corrupt payload reads as a miss.
//
// Basic usage:
//
//	c, err := tiercache.New(context.Background(), tiercache.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Close()
//
//	key := tiercache.GenerateKey("messages", "chan42", map[string]any{"page": 1})
//
//	err = c.SetWithOptions(ctx, key, page, tiercache.SetOptions{
//		TTL:  5 * time.Minute,
//		Tags: []string{"chan42"},
//	})
//
//	var cached MessagePage
//	found, err := c.Get(ctx, key, &cached)
//
//	// Drop everything related to the channel at once.
//	_, _ = c.InvalidateByTags(ctx, "chan42")
package tiercache
