package types

/*
QueryResult is the snapshot the engine produces for every fetch, invalidate,
or manual write. It is a pure value: produced, broadcast, and forgotten.

Data and Err are independently optional. A result can carry stale data AND
an error at the same time: when a refetch fails but a previous value exists,
the consumer gets both and decides what to show.
*/
type QueryResult[T any] struct {

	// Data is the value, when one is available. Nil when the key has
	// never produced a value (first fetch failed, or invalidation).
	Data *T

	// Err is the fetch failure, when one occurred. The engine never
	// raises for a failed fetch; the failure always travels here.
	Err error

	// Stale marks the data as displayable-but-due-for-refresh. It is
	// also set on invalidation broadcasts, which carry no data at all.
	Stale bool
}

/*
QueryState is the richer snapshot the query client broadcasts: a QueryResult
plus the key it belongs to and an explicit loading flag.

When Loading is true the snapshot is a transient "request in flight" marker;
Data and Err then reflect the previous settled result, or absence thereof.
*/
type QueryState[T any] struct {
	Key     string
	Data    *T
	Err     error
	Stale   bool
	Loading bool
}

// StateOf lifts a settled result into a query state for the given key.
func StateOf[T any](key string, res QueryResult[T]) QueryState[T] {
	return QueryState[T]{
		Key:   key,
		Data:  res.Data,
		Err:   res.Err,
		Stale: res.Stale,
	}
}
