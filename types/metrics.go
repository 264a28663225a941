package types

// This file defines how the cache reports what it is doing.

/*
Metrics is an interface that defines what the cache wants to measure.
Each method represents an event in the cache lifecycle. The engine calls
these methods whenever something happens.
*/
type Metrics interface {

	// Hit is called when a fetch is answered from the store without
	// invoking the fetch operation.
	Hit()

	// Miss is called when the fetch operation has to be invoked because
	// the key was missing, expired, or stale.
	Miss()

	// Stale is called when a fetch falls back to stale data because the
	// fetch operation failed.
	Stale()

	// Expire is called for every entry removed by the auto-expiry sweep.
	Expire()

	// Refetch is called when a background revalidation is triggered.
	Refetch()
}

/*
NoopMetrics is a "do nothing" implementation of Metrics.

Not every user of the cache cares about metrics, and we do not want
"if metrics != nil" conditions on every path. The engine substitutes this
implementation when none is configured, so metric calls are always safe.
*/
type NoopMetrics struct{}

// All methods below intentionally do nothing.
func (NoopMetrics) Hit()     {}
func (NoopMetrics) Miss()    {}
func (NoopMetrics) Stale()   {}
func (NoopMetrics) Expire()  {}
func (NoopMetrics) Refetch() {}
