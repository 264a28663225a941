package querycache

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/krisalay/query-cache/broadcast"
	"github.com/krisalay/query-cache/engine"
	"github.com/krisalay/query-cache/middleware"
	"github.com/krisalay/query-cache/store"
	"github.com/krisalay/query-cache/strategy"
	"github.com/krisalay/query-cache/types"
)

/*
Client is the main orchestrator. It connects:
- one cache engine (fetch-or-serve decisions, result broadcasts)
- a refetch strategy (when to revalidate in the background)
- per-key state channels (loading flag layered on top of results)
- an optional middleware chain and optional fetch coalescing

One Client handles one value type; run several for heterogeneous data.
*/
type Client[T any] struct {

	// engine owns the store and the result channels.
	engine *engine.Engine[T]

	// hooks run around Query and InvalidateQuery, first-to-last before,
	// last-to-first after.
	hooks middleware.Chain

	// coalesce routes concurrent Query calls for one key through a
	// single fetch. Off by default: without it, two concurrent queries
	// both invoke the fetch operation and the last writer wins.
	coalesce bool
	sf       singleflight.Group

	mu              sync.Mutex
	disposed        bool
	defaultStrategy strategy.RefetchStrategy
	states          map[string]*broadcast.Broadcaster[types.QueryState[T]]
	resultSubs      map[string]*broadcast.Subscription[types.QueryResult[T]]
}

// ErrDisposed is returned by every operation attempted after Dispose. A
// disposed client is dead for good; build a new one over the same store to
// pick the entries back up.
var ErrDisposed = errors.New("querycache: client disposed")

// Option configures a Client at construction.
type Option[T any] func(*Client[T])

// WithDefaultStrategy sets the strategy used when Query names none.
// The initial default is StaleWhileRevalidate.
func WithDefaultStrategy[T any](s strategy.RefetchStrategy) Option[T] {
	return func(c *Client[T]) { c.defaultStrategy = s }
}

// WithCoalescing shares one in-flight fetch between concurrent Query calls
// for the same key.
func WithCoalescing[T any]() Option[T] {
	return func(c *Client[T]) { c.coalesce = true }
}

// WithHooks appends middleware hooks to the chain.
func WithHooks[T any](hooks ...middleware.Hook) Option[T] {
	return func(c *Client[T]) { c.hooks = append(c.hooks, hooks...) }
}

// New creates a client over an engine. The client owns the engine from now
// on: Dispose tears both down.
func New[T any](eng *engine.Engine[T], opts ...Option[T]) *Client[T] {
	c := &Client[T]{
		engine:          eng,
		defaultStrategy: strategy.StaleWhileRevalidate,
		states:          make(map[string]*broadcast.Broadcaster[types.QueryState[T]]),
		resultSubs:      make(map[string]*broadcast.Subscription[types.QueryResult[T]]),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Querier[string] = (*Client[string])(nil)

// Engine exposes the owned engine for callers that need the lower-level
// result channels or the introspection snapshot.
func (c *Client[T]) Engine() *engine.Engine[T] {
	return c.engine
}

/*
Query runs one fetch-or-serve round for key.

State channel traffic: a loading snapshot goes out before the engine is
consulted, the settled snapshot after. Watchers attached via WatchQuery
additionally receive the engine's own result broadcast republished as a
settled state, so they may observe the settled snapshot twice per query.
Snapshots are idempotent for rendering purposes.

The strategy argument is optional; without it the client default applies.
Only the background-revalidation facet influences this call: a stale result
under a revalidating strategy re-invokes fn in the background, and that
outcome reaches observers purely through the broadcast path.
*/
func (c *Client[T]) Query(ctx context.Context, key string, fn types.FetchFunc[T], ttl store.TTL, strat ...strategy.RefetchStrategy) types.QueryResult[T] {
	if c.isDisposed() {
		return types.QueryResult[T]{Err: ErrDisposed}
	}
	eff := c.effectiveStrategy(strat...)

	c.hooks.Before(ctx, middleware.OpQuery, key)
	c.publishState(key, types.QueryState[T]{Key: key, Loading: true})

	res := c.fetch(ctx, key, fn, ttl)

	c.publishState(key, types.StateOf(key, res))

	if res.Stale && eff.TriggersBackgroundRevalidation() {
		c.engine.Metrics.Refetch()
		bgCtx := context.WithoutCancel(ctx)
		go func() {
			// Fire and forget. A failure here was already surfaced once
			// through the original result's error path; watchers learn
			// the outcome through the normal broadcasts.
			c.fetch(bgCtx, key, fn, ttl)
		}()
	}

	c.hooks.After(ctx, middleware.OpQuery, key, res.Err)
	return res
}

func (c *Client[T]) fetch(ctx context.Context, key string, fn types.FetchFunc[T], ttl store.TTL) types.QueryResult[T] {
	if !c.coalesce {
		return c.engine.Fetch(ctx, key, fn, ttl)
	}
	v, _, _ := c.sf.Do(key, func() (any, error) {
		return c.engine.Fetch(ctx, key, fn, ttl), nil
	})
	return v.(types.QueryResult[T])
}

// InvalidateQuery delegates to the engine. Watchers receive the empty stale
// broadcast through the republish path.
func (c *Client[T]) InvalidateQuery(ctx context.Context, key string) error {
	if c.isDisposed() {
		return ErrDisposed
	}
	c.hooks.Before(ctx, middleware.OpInvalidate, key)
	err := c.engine.Invalidate(ctx, key)
	c.hooks.After(ctx, middleware.OpInvalidate, key, err)
	return err
}

/*
WatchQuery returns the shared state channel for key, creating it on first
use. Creation also subscribes the client to the engine's result channel for
the key and starts republishing every result as a settled state, so
engine-level events (SetData, invalidation, background revalidations)
reach state watchers too. Subsequent calls return the same channel without
re-subscribing.
*/
func (c *Client[T]) WatchQuery(key string) *broadcast.Broadcaster[types.QueryState[T]] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		// Nothing will ever be published again; hand out a channel that
		// closes immediately instead of resurrecting the registry.
		b := broadcast.New[types.QueryState[T]]()
		b.Close()
		return b
	}

	if b, ok := c.states[key]; ok {
		return b
	}

	b := broadcast.New[types.QueryState[T]]()
	c.states[key] = b

	sub := c.engine.Watch(key).Subscribe()
	c.resultSubs[key] = sub

	go func() {
		for res := range sub.C() {
			b.Publish(types.StateOf(key, res))
		}
	}()

	return b
}

// SetQueryData broadcasts a result for key without touching the store.
// A later Query is unaffected; use Prime when the value must survive the
// next refetch decision.
func (c *Client[T]) SetQueryData(key string, data T, stale bool) {
	if c.isDisposed() {
		return
	}
	c.engine.SetData(key, data, stale)
}

// Prime writes value through the store AND broadcasts it fresh, so the
// next Query serves it subject to the given TTL windows.
func (c *Client[T]) Prime(ctx context.Context, key string, value T, ttl store.TTL) error {
	if c.isDisposed() {
		return ErrDisposed
	}
	if err := c.engine.Store.Write(ctx, key, value, ttl); err != nil {
		return err
	}
	c.engine.SetData(key, value, false)
	return nil
}

// SetDefaultRefetchStrategy replaces the default used by Query calls that
// name no strategy.
func (c *Client[T]) SetDefaultRefetchStrategy(s strategy.RefetchStrategy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultStrategy = s
}

// Dispose closes all state channels, cancels the internal republish
// subscriptions, clears the registries, and disposes the owned engine.
// Every later operation on this client fails with ErrDisposed. Stored
// entries survive; a new client over the same store picks them up.
func (c *Client[T]) Dispose() {
	c.mu.Lock()
	c.disposed = true
	states := c.states
	subs := c.resultSubs
	c.states = make(map[string]*broadcast.Broadcaster[types.QueryState[T]])
	c.resultSubs = make(map[string]*broadcast.Subscription[types.QueryResult[T]])
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	for _, b := range states {
		b.Close()
	}
	c.engine.Dispose()
}

func (c *Client[T]) isDisposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

func (c *Client[T]) effectiveStrategy(strat ...strategy.RefetchStrategy) strategy.RefetchStrategy {
	if len(strat) > 0 && strat[0].Valid() {
		return strat[0]
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.defaultStrategy
}

// publishState delivers a state to the key's watchers, if the channel
// exists. No channel is created just to drop an event nobody would see.
func (c *Client[T]) publishState(key string, st types.QueryState[T]) {
	c.mu.Lock()
	b := c.states[key]
	c.mu.Unlock()

	if b != nil {
		b.Publish(st)
	}
}
