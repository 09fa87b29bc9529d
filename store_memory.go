package tiercache

import (
	"context"
	"sync"
	"sync/atomic"
)

// memoryStore backs the Volatile and Scoped tiers, and stands in for the
// durable medium when it is unavailable. A single RWMutex per store is
// enough at typical entry counts (low thousands); separate stores mean
// operations on different tiers never block each other.
type memoryStore struct {
	name string

	mu      sync.RWMutex
	entries map[string]*Entry
	size    int64

	closed atomic.Bool
}

func newMemoryStore(name string) *memoryStore {
	return &memoryStore{
		name:    name,
		entries: make(map[string]*Entry),
	}
}

func (s *memoryStore) Put(_ context.Context, e *Entry) error {
	if s.closed.Load() {
		return ErrClosed
	}
	cp := e.clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.entries[cp.Key]; ok {
		s.size -= old.SizeBytes
	}
	s.entries[cp.Key] = cp
	s.size += cp.SizeBytes
	return nil
}

func (s *memoryStore) Get(_ context.Context, key string) (*Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return e.clone(), nil
}

func (s *memoryStore) Touch(_ context.Context, key string, now int64) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		e.touch(now)
	}
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	s.size -= old.SizeBytes
	delete(s.entries, key)
	return true, nil
}

func (s *memoryStore) Clear(_ context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Entry)
	s.size = 0
	return nil
}

func (s *memoryStore) SizeBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

func (s *memoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns metadata-only copies; payloads are omitted.
func (s *memoryStore) Entries(_ context.Context) ([]*Entry, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.meta())
	}
	return out, nil
}

// DeleteExpired removes entries whose TTL has elapsed at now, returning
// the deleted keys. A limit of 0 deletes all expired entries in one pass.
func (s *memoryStore) DeleteExpired(_ context.Context, now int64, limit int) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key, e := range s.entries {
		if !e.expired(now) {
			continue
		}
		s.size -= e.SizeBytes
		delete(s.entries, key)
		keys = append(keys, key)
		if limit > 0 && len(keys) >= limit {
			break
		}
	}
	return keys, nil
}

func (s *memoryStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.size = 0
	return nil
}
