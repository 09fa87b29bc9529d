package tiercache

import (
	"sync"

	"github.com/samber/lo"
)

// tagIndex maps tags to the keys carrying them. Buckets are kept per tier
// so removing a key's volatile copy never drops the reverse mappings of
// its durable copy.
//
// The index is owned by the facade; stores never touch it. Every entry
// removal path (delete, eviction, sweep, tag invalidation) goes through
// RemoveKey so the invariant holds: a resident entry's tags are always
// resolvable back to its key.
type tagIndex struct {
	mu    sync.Mutex
	tiers map[Tier]*tagBucket
}

type tagBucket struct {
	tagToKeys map[string]map[string]struct{}
	keyToTags map[string]map[string]struct{}
}

func newTagBucket() *tagBucket {
	return &tagBucket{
		tagToKeys: make(map[string]map[string]struct{}),
		keyToTags: make(map[string]map[string]struct{}),
	}
}

func newTagIndex() *tagIndex {
	return &tagIndex{
		tiers: map[Tier]*tagBucket{
			TierVolatile: newTagBucket(),
			TierScoped:   newTagBucket(),
			TierDurable:  newTagBucket(),
		},
	}
}

// AddTags registers key under each tag in the tier's bucket. Empty tags
// are ignored.
func (ti *tagIndex) AddTags(tier Tier, key string, tags []string) {
	if len(tags) == 0 {
		return
	}

	ti.mu.Lock()
	defer ti.mu.Unlock()
	b := ti.tiers[tier]
	if b == nil {
		return
	}

	for _, tag := range tags {
		if tag == "" {
			continue
		}
		keys := b.tagToKeys[tag]
		if keys == nil {
			keys = make(map[string]struct{})
			b.tagToKeys[tag] = keys
		}
		keys[key] = struct{}{}

		keyTags := b.keyToTags[key]
		if keyTags == nil {
			keyTags = make(map[string]struct{})
			b.keyToTags[key] = keyTags
		}
		keyTags[tag] = struct{}{}
	}
}

// RemoveKey drops the key from every tag bucket it belongs to in the
// tier. Idempotent.
func (ti *tagIndex) RemoveKey(tier Tier, key string) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	b := ti.tiers[tier]
	if b == nil {
		return
	}

	for tag := range b.keyToTags[key] {
		keys := b.tagToKeys[tag]
		delete(keys, key)
		if len(keys) == 0 {
			delete(b.tagToKeys, tag)
		}
	}
	delete(b.keyToTags, key)
}

// RemoveKeys drops several keys at once, as produced by a sweep pass.
func (ti *tagIndex) RemoveKeys(tier Tier, keys []string) {
	for _, key := range keys {
		ti.RemoveKey(tier, key)
	}
}

// KeysForTags returns the union of keys carrying any of the tags in the
// tier.
func (ti *tagIndex) KeysForTags(tier Tier, tags []string) []string {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	b := ti.tiers[tier]
	if b == nil {
		return nil
	}

	union := make(map[string]struct{})
	for _, tag := range tags {
		for key := range b.tagToKeys[tag] {
			union[key] = struct{}{}
		}
	}
	return lo.Keys(union)
}

// ClearTier drops every mapping for the tier.
func (ti *tagIndex) ClearTier(tier Tier) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	if ti.tiers[tier] != nil {
		ti.tiers[tier] = newTagBucket()
	}
}

// TagCount returns the number of distinct tags indexed for the tier.
func (ti *tagIndex) TagCount(tier Tier) int {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	b := ti.tiers[tier]
	if b == nil {
		return 0
	}
	return len(b.tagToKeys)
}
