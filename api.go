package querycache

import (
	"context"

	"github.com/krisalay/query-cache/broadcast"
	"github.com/krisalay/query-cache/store"
	"github.com/krisalay/query-cache/strategy"
	"github.com/krisalay/query-cache/types"
)

/*
Querier defines the PUBLIC API of the query cache.
This is a contract that guarantees certain behaviors without exposing
internals. The staleness machinery, broadcast registries, and refetch
orchestration are hidden behind this interface.
*/
type Querier[T any] interface {

	/*
		Query answers "do we have fresh data, stale data, or nothing" for
		one key, fetching when needed.

		BEHAVIOR:
		---------
		1. Broadcasts a loading snapshot on the key's state channel
		2. Delegates the fetch-or-serve decision to the engine
		3. Broadcasts the settled snapshot
		4. If the result is stale and the effective strategy revalidates
		   in the background, re-invokes the fetch fire-and-forget
		5. Returns the settled result to the caller

		The returned result never hides a fetch failure behind a raised
		error: failures travel in the result's Err field, next to stale
		fallback data when any exists.
	*/
	Query(ctx context.Context, key string, fn types.FetchFunc[T], ttl store.TTL, strat ...strategy.RefetchStrategy) types.QueryResult[T]

	/*
		InvalidateQuery removes the stored entry for key and broadcasts
		an empty stale result, so the next Query starts from nothing.

		This operation is idempotent: invalidating an absent key behaves
		identically, broadcast included.
	*/
	InvalidateQuery(ctx context.Context, key string) error

	/*
		WatchQuery returns the key's state channel, creating it exactly
		once. Every caller watching the same key shares one channel.
		Subscribers see events published after they join; nothing is
		replayed for late joiners.
	*/
	WatchQuery(key string) *broadcast.Broadcaster[types.QueryState[T]]

	/*
		SetDefaultRefetchStrategy replaces the strategy used by Query
		calls that do not name one.
	*/
	SetDefaultRefetchStrategy(s strategy.RefetchStrategy)

	/*
		Dispose closes all state channels, clears the registries, and
		disposes the owned engine. Stored entries are untouched. After
		Dispose, operations fail with ErrDisposed and WatchQuery hands
		out channels that are already closed.
	*/
	Dispose()
}
