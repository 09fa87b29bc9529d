package tiercache

import (
	"context"
	"sort"
)

// victimLess orders eviction candidates: lowest priority first, then
// least recently accessed. Priority dominates recency.
func victimLess(a, b *Entry) bool {
	ar, br := a.Priority.rank(), b.Priority.rank()
	if ar != br {
		return ar < br
	}
	return a.LastAccessedAt < b.LastAccessedAt
}

// evictionEngine enforces per-tier byte budgets. makeRoom runs under the
// facade's per-tier write lock, so a victim scan never races another
// insert into the same tier.
type evictionEngine struct {
	stats *statsCollector
	tags  *tagIndex
}

// makeRoom evicts entries from the tier until need more bytes fit within
// budget. Entries leave lowest priority first, then least recently
// accessed. Returns ErrTooLarge when the entry cannot fit even with the
// tier empty; nothing is evicted in that case.
func (ev *evictionEngine) makeRoom(ctx context.Context, tier Tier, store tierStore, budget, need int64) error {
	if need > budget {
		return ErrTooLarge
	}
	if store.SizeBytes()+need <= budget {
		return nil
	}

	victims, err := victimsOf(ctx, store)
	if err != nil {
		return err
	}

	var (
		freed   int64
		evicted int
	)
	for _, v := range victims {
		if store.SizeBytes()+need <= budget {
			break
		}
		did, err := store.Delete(ctx, v.Key)
		if err != nil {
			return err
		}
		if !did {
			continue
		}
		ev.tags.RemoveKey(tier, v.Key)
		freed += v.SizeBytes
		evicted++
	}
	ev.stats.evicted(tier, EvictCapacity, evicted)

	if store.SizeBytes()+need > budget {
		return ErrTooLarge
	}
	if evicted > 0 {
		logger().Debug().
			Str("tier", string(tier)).
			Int("evicted", evicted).
			Int64("freed_bytes", freed).
			Msg("evicted entries to make room")
	}
	return nil
}

// victimsOf uses the store's ordered scan when it has one, and otherwise
// snapshots and sorts.
func victimsOf(ctx context.Context, store tierStore) ([]*Entry, error) {
	if vs, ok := store.(victimScanner); ok {
		return vs.Victims(ctx)
	}
	entries, err := store.Entries(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return victimLess(entries[i], entries[j])
	})
	return entries, nil
}
