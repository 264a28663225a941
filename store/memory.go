package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/krisalay/query-cache/types"
)

/*
This file is the in-process default backend. This is NOT a normal map.

- Reads should be very fast and should NOT require locks
- Writes are less frequent and can afford extra work

To achieve this, we use a technique called: "Copy-On-Write" (COW)

- Readers always see an immutable snapshot
- Writers create a NEW copy of the map under a mutex
- The new map replaces the old one atomically

The store has no capacity bound and performs no eviction of its own.
Expired entries are removed externally, by the engine's sweep, or never.
*/
type MemoryStore[T any] struct {

	// data holds the current map[string]types.Entry[T]. atomic.Value lets
	// us swap the entire map atomically while readers access it lock-free.
	data atomic.Value

	// writeMu serializes writers. Readers never take it.
	writeMu sync.Mutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore[T any]() *MemoryStore[T] {
	s := &MemoryStore[T]{}
	s.data.Store(make(map[string]types.Entry[T]))
	return s
}

var _ Store[string] = (*MemoryStore[string])(nil)
var _ Lister[string] = (*MemoryStore[string])(nil)

func (s *MemoryStore[T]) snapshot() map[string]types.Entry[T] {
	return s.data.Load().(map[string]types.Entry[T])
}

/*
Write inserts or replaces the entry for key. This is where copy-on-write
happens:

1. Load the current map
2. Create a NEW map with every existing entry
3. Add the new entry
4. Atomically replace the old map

Entries are stored by value, so a published snapshot is never mutated after
readers can see it.
*/
func (s *MemoryStore[T]) Write(ctx context.Context, key string, value T, ttl TTL) error {
	now := time.Now()
	ent := types.Entry[T]{
		Data:      value,
		Timestamp: now,
		StaleAt:   ttl.StaleAt(now),
		ExpiresAt: ttl.ExpiresAt(now),
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	old := s.snapshot()
	n := make(map[string]types.Entry[T], len(old)+1)
	for k, v := range old {
		n[k] = v
	}
	n[key] = ent
	s.data.Store(n)
	return nil
}

// Read retrieves the entry for key from the current snapshot. No lazy
// expiry: an entry past its ExpiresAt is still returned, and the caller
// decides what that means.
func (s *MemoryStore[T]) Read(ctx context.Context, key string) (*types.Entry[T], bool, error) {
	ent, ok := s.snapshot()[key]
	if !ok {
		return nil, false, nil
	}
	return &ent, true, nil
}

// Remove deletes the entry for key. Just like Write, this copies the map.
// Removing an absent key is a no-op.
func (s *MemoryStore[T]) Remove(ctx context.Context, key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	old := s.snapshot()
	if _, ok := old[key]; !ok {
		return nil
	}
	n := make(map[string]types.Entry[T], len(old))
	for k, v := range old {
		if k != key {
			n[k] = v
		}
	}
	s.data.Store(n)
	return nil
}

// Entries returns the current snapshot. Because the underlying map is
// replaced, never mutated, handing it out directly would be safe for
// readers — but we copy anyway so a caller that mutates its result cannot
// corrupt a published snapshot.
func (s *MemoryStore[T]) Entries(ctx context.Context) (map[string]types.Entry[T], error) {
	cur := s.snapshot()
	n := make(map[string]types.Entry[T], len(cur))
	for k, v := range cur {
		n[k] = v
	}
	return n, nil
}

// Len reports how many entries are stored.
func (s *MemoryStore[T]) Len() int {
	return len(s.snapshot())
}
