/*
Package querycache is a key-addressed, time-aware data cache with reactive
change notification. For a logical query identified by an opaque string key
it answers: do we have fresh data, stale data, or nothing, and should we go
fetch — and it notifies every observer of the key whenever the answer
changes.

A Client orchestrates one engine over one store:

	st := store.NewMemoryStore[User]()
	c := querycache.New[User](engine.New[User](st, engine.WithAutoExpiry()))
	defer c.Dispose()

	ttl := store.TTL{StaleIn: store.Dur(time.Minute), CacheIn: store.Dur(time.Hour)}
	res := c.Query(ctx, "user:42", loadUser, ttl)

	sub := c.WatchQuery("user:42").Subscribe()
	for state := range sub.C() {
		render(state)
	}

Swap store.NewMemoryStore for redisstore.New to persist entries across
processes; the engine behavior is identical.
*/
package querycache
