package tiercache

import (
	"context"
	"time"
)

// Namespace is a thin, typed namespacing layer over GenerateKey and the
// facade. Every entry it writes carries a namespace tag, so a whole
// namespace can be dropped with one tag invalidation.
type Namespace[T any] struct {
	cache *Cache
	name  string
	opts  SetOptions
}

// NewNamespace builds a typed namespace. The SetOptions apply to every
// write; the namespace tag is added automatically.
func NewNamespace[T any](c *Cache, name string, opts SetOptions) *Namespace[T] {
	opts.Tags = append(opts.Tags, nsTag(name))
	return &Namespace[T]{cache: c, name: name, opts: opts}
}

func nsTag(name string) string { return "ns:" + name }

// Key builds the canonical key for an identifier and optional params.
func (n *Namespace[T]) Key(identifier string, params map[string]any) string {
	return GenerateKey(n.name, identifier, params)
}

// Get retrieves the value for the identifier and params.
func (n *Namespace[T]) Get(ctx context.Context, identifier string, params map[string]any) (T, bool, error) {
	var out T
	found, err := n.cache.GetWithOptions(ctx, n.Key(identifier, params), &out, GetOptions{Tier: n.opts.Tier})
	return out, found, err
}

// Set stores the value for the identifier and params. Extra tags are
// registered alongside the namespace tag.
func (n *Namespace[T]) Set(ctx context.Context, identifier string, params map[string]any, value T, extraTags ...string) error {
	opts := n.opts
	if len(extraTags) > 0 {
		opts.Tags = append(append([]string{}, n.opts.Tags...), extraTags...)
	}
	return n.cache.SetWithOptions(ctx, n.Key(identifier, params), value, opts)
}

// Fetch returns the cached value or loads, caches, and returns it,
// coalescing concurrent loads per key.
func (n *Namespace[T]) Fetch(ctx context.Context, identifier string, params map[string]any, loader func(context.Context) (T, error)) (T, error) {
	return Fetch(ctx, n.cache, n.Key(identifier, params), n.opts, loader)
}

// Invalidate removes the entry for the identifier and params.
func (n *Namespace[T]) Invalidate(ctx context.Context, identifier string, params map[string]any) error {
	return n.cache.Delete(ctx, n.Key(identifier, params))
}

// InvalidateAll drops every entry in the namespace via its tag. Returns
// the number of entries removed.
func (n *Namespace[T]) InvalidateAll(ctx context.Context) (int, error) {
	return n.cache.InvalidateByTags(ctx, nsTag(n.name))
}

// NewAPICache namespaces cached API responses: hybrid placement so
// responses survive a restart, short TTL so they stay fresh.
func NewAPICache[T any](c *Cache) *Namespace[T] {
	return NewNamespace[T](c, "api", SetOptions{
		Tier: TierHybrid,
		TTL:  5 * time.Minute,
	})
}

// NewProfileCache namespaces per-entity profiles: hybrid placement, high
// priority so profiles outlast bulk data under pressure, long TTL.
func NewProfileCache[T any](c *Cache) *Namespace[T] {
	return NewNamespace[T](c, "profile", SetOptions{
		Tier:     TierHybrid,
		Priority: PriorityHigh,
		TTL:      12 * time.Hour,
	})
}

// NewListCache namespaces paginated lists: volatile only and low
// priority, since pages are cheap to refetch and churn fast.
func NewListCache[T any](c *Cache) *Namespace[T] {
	return NewNamespace[T](c, "list", SetOptions{
		Tier:     TierVolatile,
		Priority: PriorityLow,
		TTL:      time.Minute,
	})
}
