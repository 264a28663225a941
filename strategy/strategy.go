/*
Package strategy defines the refetch policies a query may run under.

A strategy is pure policy: an immutable name plus three derived boolean
facets. It holds no state and has no lifecycle. The query client consults
only the background-revalidation facet when executing a query; the other
two facets are surface for consumers that want to branch on policy
themselves (force a fetch, hide stale values).
*/
package strategy

// RefetchStrategy is a simple identifier for the supported policies.
type RefetchStrategy string

const (
	// AlwaysFetch: every query should go to the source, cache or not.
	AlwaysFetch RefetchStrategy = "always-fetch"

	// StaleWhileRevalidate: serve stale data immediately and refresh it
	// in the background. The classic SWR policy.
	StaleWhileRevalidate RefetchStrategy = "stale-while-revalidate"

	// StaleOnly: stale data may be shown, and nobody refreshes it behind
	// the scenes.
	StaleOnly RefetchStrategy = "stale-only"

	// FetchIfEmpty: fetch only when nothing is cached; stale values are
	// not meant for display.
	FetchIfEmpty RefetchStrategy = "fetch-if-empty"

	// CacheOnly: whatever the cache has, fresh or stale, is the answer.
	CacheOnly RefetchStrategy = "cache-only"
)

/*
Facet table:

	strategy               immediate fetch   stale display   background revalidation
	AlwaysFetch            yes               no              no
	StaleWhileRevalidate   no                yes             yes
	StaleOnly              no                yes             no
	FetchIfEmpty           no                no              no
	CacheOnly              no                yes             no
*/

// RequiresImmediateFetch reports whether the policy demands a source fetch
// regardless of cache contents.
func (s RefetchStrategy) RequiresImmediateFetch() bool {
	return s == AlwaysFetch
}

// AllowsStaleDisplay reports whether stale data is acceptable to show.
func (s RefetchStrategy) AllowsStaleDisplay() bool {
	switch s {
	case StaleWhileRevalidate, StaleOnly, CacheOnly:
		return true
	}
	return false
}

// TriggersBackgroundRevalidation reports whether a stale result should kick
// off a fire-and-forget refresh.
func (s RefetchStrategy) TriggersBackgroundRevalidation() bool {
	return s == StaleWhileRevalidate
}

// Valid reports whether s is one of the five known policies.
func (s RefetchStrategy) Valid() bool {
	switch s {
	case AlwaysFetch, StaleWhileRevalidate, StaleOnly, FetchIfEmpty, CacheOnly:
		return true
	}
	return false
}
