package types

import "time"

/*
Entry is what the store keeps per key: the last value that was successfully
fetched (or manually written) plus the instants that drive the staleness
state machine.

The two deadline fields use the zero time as "never":
- StaleAt zero   => the value never goes stale
- ExpiresAt zero => the value never expires

Staleness and expiry are evaluated lazily at read time. Nothing in the
system depends on a timer firing; an entry whose deadlines have passed
simply reads as stale or absent the next time someone asks.
*/
type Entry[T any] struct {

	// Data is the last successfully fetched or manually written value.
	Data T

	// Timestamp records when Data was captured.
	Timestamp time.Time

	// StaleAt is the instant after which Data is still displayable but
	// due for a refresh. Zero means never stale.
	StaleAt time.Time

	// ExpiresAt is the instant after which Data must be treated as
	// absent. Zero means never expires.
	ExpiresAt time.Time
}

// StaleBy reports whether the entry has gone stale as of now.
func (e *Entry[T]) StaleBy(now time.Time) bool {
	return !e.StaleAt.IsZero() && now.After(e.StaleAt)
}

// ExpiredBy reports whether the entry has expired as of now.
func (e *Entry[T]) ExpiredBy(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}
