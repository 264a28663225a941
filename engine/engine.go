package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/krisalay/query-cache/broadcast"
	"github.com/krisalay/query-cache/store"
	"github.com/krisalay/query-cache/types"
)

/*
Engine is the "brain" of the cache system. It owns one store and decides,
per key, whether to serve the cached value, refetch, or fall back to stale
data — and it tells every watcher about the outcome.

It decides:
- when an entry counts as stale or expired
- when the fetch operation must be invoked
- what a failed fetch turns into (stale fallback vs bare error)
- when expired entries are swept

It does NOT:
  - deduplicate concurrent fetches for one key (both run, last writer wins;
    coalescing is the client's opt-in concern)
  - retry, time out, or cancel the fetch operation

Failure policy: Fetch never returns an error value of its own. A failed
fetch operation always lands in QueryResult.Err, alongside stale data when
any exists.
*/
type Engine[T any] struct {

	// Store is the backend holding the entries. Any store.Store works;
	// the sweep and the introspection snapshot additionally need the
	// store to implement store.Lister.
	Store store.Store[T]

	// Metrics records cache lifecycle events. Never nil.
	Metrics types.Metrics

	// autoExpire turns on the eager expiry sweep at the start of Fetch
	// and Invalidate. There is no background timer: expiry is enforced
	// on access or not at all.
	autoExpire bool

	mu       sync.Mutex
	channels map[string]*broadcast.Broadcaster[types.QueryResult[T]]
}

// Option configures an Engine at construction.
type Option func(*settings)

type settings struct {
	autoExpire bool
	metrics    types.Metrics
}

// WithAutoExpiry enables the eager sweep that removes entries whose expiry
// instant has passed, at the start of every Fetch and Invalidate.
func WithAutoExpiry() Option {
	return func(s *settings) { s.autoExpire = true }
}

// WithMetrics installs a metrics sink. Defaults to types.NoopMetrics.
func WithMetrics(m types.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// New creates an engine over the given store.
func New[T any](st store.Store[T], opts ...Option) *Engine[T] {
	cfg := settings{}
	for _, opt := range opts {
		opt(&cfg)
	}

	// Ensure metrics is always non-nil, so the hot path never checks.
	if cfg.metrics == nil {
		cfg.metrics = types.NoopMetrics{}
	}

	return &Engine[T]{
		Store:      st,
		Metrics:    cfg.metrics,
		autoExpire: cfg.autoExpire,
		channels:   make(map[string]*broadcast.Broadcaster[types.QueryResult[T]]),
	}
}

/*
Fetch is the fetch-or-serve decision for one key.

 1. Sweep expired entries when auto-expiry is on.
 2. Read the current entry. A failed read counts as absent, and the read
    error is attached to whatever result this call produces.
 3. An entry past its expiry instant counts as absent; an entry past its
    staleness instant counts as stale.
 4. Present and neither expired nor stale: serve it, fn is not invoked.
 5. Otherwise invoke fn. Success: persist and serve fresh.
 6. Failure with a prior entry: serve the old value flagged stale, with the
    error attached. Failure with nothing cached: error only.

Every outcome, including the cached serve, is broadcast on the key's
channel so watchers stay in sync with one-shot callers.
*/
func (e *Engine[T]) Fetch(ctx context.Context, key string, fn types.FetchFunc[T], ttl store.TTL) types.QueryResult[T] {
	if e.autoExpire {
		e.sweep(ctx)
	}

	now := time.Now()
	ent, ok, rerr := e.Store.Read(ctx, key)
	if rerr != nil {
		// A broken backend reads as a miss, but the failure must not
		// vanish: it rides along on whatever result this call produces.
		rerr = fmt.Errorf("read %q: %w", key, rerr)
		ent, ok = nil, false
	}
	if ok && ent.ExpiredBy(now) {
		// Past its cache window: must be treated as absent, even as a
		// fallback value.
		ent = nil
		ok = false
	}

	if ok && !ent.StaleBy(now) {
		e.Metrics.Hit()
		res := types.QueryResult[T]{Data: &ent.Data}
		e.publish(key, res)
		return res
	}

	e.Metrics.Miss()
	fresh, err := fn(ctx)
	if err == nil {
		res := types.QueryResult[T]{Data: &fresh, Err: rerr}
		if werr := e.Store.Write(ctx, key, fresh, ttl); werr != nil {
			// The value is good; only persistence failed. Serve it and
			// surface the store problem alongside.
			res.Err = errors.Join(rerr, fmt.Errorf("persist %q: %w", key, werr))
		}
		e.publish(key, res)
		return res
	}

	if ok {
		// Always display something if anything was ever cached.
		e.Metrics.Stale()
		res := types.QueryResult[T]{Data: &ent.Data, Stale: true, Err: err}
		e.publish(key, res)
		return res
	}

	res := types.QueryResult[T]{Err: errors.Join(rerr, err)}
	e.publish(key, res)
	return res
}

// Invalidate removes the stored entry and broadcasts an empty stale result,
// whether or not an entry existed. The next Fetch for the key starts from
// nothing.
func (e *Engine[T]) Invalidate(ctx context.Context, key string) error {
	if e.autoExpire {
		e.sweep(ctx)
	}
	err := e.Store.Remove(ctx, key)
	e.publish(key, types.QueryResult[T]{Stale: true})
	return err
}

// Watch returns the key's broadcast channel, creating it on first use. The
// same broadcaster is shared by every watcher of the key and survives any
// number of Watch calls; subscribers see only events published after they
// join.
func (e *Engine[T]) Watch(key string) *broadcast.Broadcaster[types.QueryResult[T]] {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.channels[key]
	if !ok {
		b = broadcast.New[types.QueryResult[T]]()
		e.channels[key] = b
	}
	return b
}

// SetData broadcasts a result directly, without touching the store. Meant
// for optimistic or manual UI updates; a later Fetch is unaffected because
// nothing was persisted.
func (e *Engine[T]) SetData(key string, data T, stale bool) {
	e.publish(key, types.QueryResult[T]{Data: &data, Stale: stale})
}

// KeysAndStates is the introspection snapshot: every key the store holds
// mapped to the result a Fetch would currently serve from cache. Backends
// that cannot enumerate themselves (Redis) yield an empty snapshot.
func (e *Engine[T]) KeysAndStates(ctx context.Context) (map[string]types.QueryResult[T], error) {
	if e.autoExpire {
		e.sweep(ctx)
	}

	lister, ok := e.Store.(store.Lister[T])
	if !ok {
		return map[string]types.QueryResult[T]{}, nil
	}

	entries, err := lister.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	now := time.Now()
	out := make(map[string]types.QueryResult[T], len(entries))
	for key, ent := range entries {
		if ent.ExpiredBy(now) {
			continue
		}
		data := ent.Data
		out[key] = types.QueryResult[T]{Data: &data, Stale: ent.StaleBy(now)}
	}
	return out, nil
}

// Dispose closes every broadcast channel and clears the registry. The store
// and its contents are untouched.
func (e *Engine[T]) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, b := range e.channels {
		b.Close()
	}
	e.channels = make(map[string]*broadcast.Broadcaster[types.QueryResult[T]])
}

// publish delivers a result to the key's watchers, if any exist. No channel
// is created just to drop an event nobody would see.
func (e *Engine[T]) publish(key string, res types.QueryResult[T]) {
	e.mu.Lock()
	b := e.channels[key]
	e.mu.Unlock()

	if b != nil {
		b.Publish(res)
	}
}

// sweep removes every entry whose expiry instant has passed. Only works on
// stores that can enumerate themselves; Redis expires server-side instead.
func (e *Engine[T]) sweep(ctx context.Context) {
	lister, ok := e.Store.(store.Lister[T])
	if !ok {
		return
	}
	entries, err := lister.Entries(ctx)
	if err != nil {
		return
	}
	now := time.Now()
	for key, ent := range entries {
		if ent.ExpiredBy(now) {
			if e.Store.Remove(ctx, key) == nil {
				e.Metrics.Expire()
			}
		}
	}
}
