/*
Package middleware is the hook chain the query client runs around its
operations.

Rather than wrapping the whole client in a decorator that re-implements its
interface, cross-cutting concerns (logging, tracing, auditing) register a
Hook and get called before and after each operation. Hooks observe; they
cannot alter the operation or its result.
*/
package middleware

import "context"

// Op names the client operation a hook is observing.
type Op string

const (
	OpQuery      Op = "query"
	OpInvalidate Op = "invalidate"
)

// Hook receives a callback on either side of an operation.
type Hook interface {

	// Before runs ahead of the operation.
	Before(ctx context.Context, op Op, key string)

	// After runs once the operation settled. err is the fetch or store
	// failure the result carries, nil on success.
	After(ctx context.Context, op Op, key string, err error)
}

// Chain is an ordered list of hooks. Before runs first-to-last, After runs
// last-to-first, so the first hook brackets everything.
type Chain []Hook

func (c Chain) Before(ctx context.Context, op Op, key string) {
	for _, h := range c {
		h.Before(ctx, op, key)
	}
}

func (c Chain) After(ctx context.Context, op Op, key string, err error) {
	for i := len(c) - 1; i >= 0; i-- {
		c[i].After(ctx, op, key, err)
	}
}
