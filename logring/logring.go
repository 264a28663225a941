/*
Package logring keeps the last N log records in memory for inspection
tooling. Oldest records are dropped once capacity is reached; the buffer
never grows.
*/
package logring

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 256

// Record is one captured log line.
type Record struct {
	Time    time.Time
	Level   slog.Level
	Message string
}

// Ring is a bounded, concurrency-safe buffer of records.
type Ring struct {
	mu   sync.Mutex
	buf  []Record
	head int // index of the oldest record once the buffer wrapped
	full bool
}

// New creates a ring holding at most capacity records.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]Record, 0, capacity)}
}

// Append adds a record, displacing the oldest one when full.
func (r *Ring) Append(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full && len(r.buf) < cap(r.buf) {
		r.buf = append(r.buf, rec)
		if len(r.buf) == cap(r.buf) {
			r.full = true
		}
		return
	}
	r.buf[r.head] = rec
	r.head = (r.head + 1) % len(r.buf)
}

// Records returns a copy of the buffer, oldest first.
func (r *Ring) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Record, 0, len(r.buf))
	for i := 0; i < len(r.buf); i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}

// Len reports how many records are currently held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}
