// Package singleflight coalesces concurrent calls for the same key so the
// underlying work runs at most once while every caller shares the result.
package singleflight

import (
	"context"
	"sync"
)

// Group deduplicates in-flight calls per key. The zero value is ready to
// use. The first caller for a key becomes the leader and runs fn; the
// rest wait for the leader's result.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done chan struct{} // closed once val and err are published
	val  V
	err  error
}

// Do runs fn once for key, however many goroutines call it concurrently.
//
// A follower whose ctx is canceled unblocks alone with ctx.Err(); the
// leader keeps running. Canceling the work itself requires threading a
// context into fn.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (V, error) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()

		select {
		case <-c.done:
			return c.val, c.err
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}

	c := &call[V]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	// Publishing val and err happens-before close(done), so followers
	// reading after <-done observe the final values.
	c.val, c.err = fn()
	close(c.done)

	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()

	return c.val, c.err
}
