package types

import "context"

/*
FetchFunc is the contract between the cache and the outside world.

When the engine decides the cached value cannot be served (missing, expired,
or stale), it calls the FetchFunc supplied with that request:

 1. Engine checks the store → value missing or stale
 2. Engine calls fn(ctx)
 3. fn fetches from DB / API / wherever
 4. Engine persists the result in the store
 5. Engine returns and broadcasts the result

The function is supplied per call, never persisted. It receives no key
because the caller already closed over everything it needs. Timeouts and
retries are its own responsibility; the engine imposes none.
*/
type FetchFunc[T any] func(ctx context.Context) (T, error)
