package store

import (
	"context"
	"time"

	"github.com/krisalay/query-cache/types"
)

/*
This file defines the contract between the cache engine and whatever medium
holds the entries.

The engine does not care where entries live. In-memory map, Redis, any
key-value database: as long as the three operations below behave the same,
the engine behaves the same. Only latency and persistence change.
*/

/*
Store is the contract every backend must follow.

Write replaces any existing entry for the key, atomically from the caller's
point of view. Remove is idempotent: removing an absent key is not an error.
A backend MAY evict expired entries on Read (Redis does this natively) but
is not required to; the engine never assumes it.
*/
type Store[T any] interface {

	// Write persists value under key, computing the staleness and expiry
	// instants from the optional windows in ttl.
	Write(ctx context.Context, key string, value T, ttl TTL) error

	// Read returns the current entry for key, or ok=false when absent.
	Read(ctx context.Context, key string) (entry *types.Entry[T], ok bool, err error)

	// Remove deletes the entry for key.
	Remove(ctx context.Context, key string) error
}

/*
Lister is an optional capability: backends that can enumerate everything
they hold implement it. The engine uses it for the auto-expiry sweep and
for the introspection snapshot. External backends (Redis) stay opaque and
simply do not implement it.
*/
type Lister[T any] interface {

	// Entries returns a snapshot of every key and its entry.
	Entries(ctx context.Context) (map[string]types.Entry[T], error)
}

/*
TTL carries the two optional windows of a write.

A nil duration means the corresponding instant is never reached: the value
never goes stale, or never expires. A zero (or negative) duration is a real
window that has already closed — write a value with StaleIn of zero and the
very next read sees it as stale.
*/
type TTL struct {

	// StaleIn is how long after the write the value stays fresh.
	StaleIn *time.Duration

	// CacheIn is how long after the write the value may be served at
	// all. Past this window the entry must be treated as absent.
	CacheIn *time.Duration
}

// Dur is a small helper for building a TTL from literals.
func Dur(d time.Duration) *time.Duration { return &d }

// StaleAt resolves the staleness instant relative to now. Zero means never.
func (t TTL) StaleAt(now time.Time) time.Time {
	if t.StaleIn == nil {
		return time.Time{}
	}
	return now.Add(*t.StaleIn)
}

// ExpiresAt resolves the expiry instant relative to now. Zero means never.
func (t TTL) ExpiresAt(now time.Time) time.Time {
	if t.CacheIn == nil {
		return time.Time{}
	}
	return now.Add(*t.CacheIn)
}
