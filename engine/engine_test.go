package engine_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krisalay/query-cache/engine"
	"github.com/krisalay/query-cache/store"
	"github.com/krisalay/query-cache/types"
)

//
// ================= HELPERS =================
//

// recMetrics counts lifecycle events for assertions.
type recMetrics struct {
	hits, misses, stale, expired, refetch atomic.Int64
}

func (m *recMetrics) Hit()     { m.hits.Add(1) }
func (m *recMetrics) Miss()    { m.misses.Add(1) }
func (m *recMetrics) Stale()   { m.stale.Add(1) }
func (m *recMetrics) Expire()  { m.expired.Add(1) }
func (m *recMetrics) Refetch() { m.refetch.Add(1) }

func newTestEngine(opts ...engine.Option) (*engine.Engine[string], *store.MemoryStore[string]) {
	st := store.NewMemoryStore[string]()
	return engine.New[string](st, opts...), st
}

// counter returns a fetch function that counts invocations and serves the
// given values in sequence, repeating the last one.
func counter(calls *atomic.Int64, values ...string) types.FetchFunc[string] {
	return func(ctx context.Context) (string, error) {
		n := calls.Add(1)
		i := int(n) - 1
		if i >= len(values) {
			i = len(values) - 1
		}
		return values[i], nil
	}
}

func failing(calls *atomic.Int64, err error) types.FetchFunc[string] {
	return func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "", err
	}
}

// faultStore wraps a real store and injects backend failures.
type faultStore struct {
	store.Store[string]
	readErr  error
	writeErr error
}

func (s *faultStore) Read(ctx context.Context, key string) (*types.Entry[string], bool, error) {
	if s.readErr != nil {
		return nil, false, s.readErr
	}
	return s.Store.Read(ctx, key)
}

func (s *faultStore) Write(ctx context.Context, key string, value string, ttl store.TTL) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	return s.Store.Write(ctx, key, value, ttl)
}

func freshTTL() store.TTL {
	return store.TTL{StaleIn: store.Dur(time.Minute), CacheIn: store.Dur(time.Hour)}
}

func staleTTL() store.TTL {
	return store.TTL{StaleIn: store.Dur(0)}
}

// drain collects every event currently buffered on ch without blocking.
func drain[T any](ch <-chan T) []T {
	var out []T
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, v)
		default:
			return out
		}
	}
}

//
// ================= FETCH =================
//

func TestFirstFetchInvokesOperationOnce(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine()

	var calls atomic.Int64
	res := e.Fetch(ctx, "k", counter(&calls, "hello"), freshTTL())

	require.NotNil(t, res.Data)
	assert.Equal(t, "hello", *res.Data)
	assert.False(t, res.Stale)
	assert.NoError(t, res.Err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestFreshEntryServedWithoutInvoking(t *testing.T) {
	ctx := context.Background()
	m := &recMetrics{}
	e, _ := newTestEngine(engine.WithMetrics(m))

	var calls atomic.Int64
	fn := counter(&calls, "hello")

	e.Fetch(ctx, "k", fn, freshTTL())
	for i := 0; i < 3; i++ {
		res := e.Fetch(ctx, "k", fn, freshTTL())
		require.NotNil(t, res.Data)
		assert.Equal(t, "hello", *res.Data)
		assert.False(t, res.Stale)
	}

	assert.EqualValues(t, 1, calls.Load(), "operation must not run while fresh")
	assert.EqualValues(t, 3, m.hits.Load())
	assert.EqualValues(t, 1, m.misses.Load())
}

func TestStaleEntryRefetched(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine()

	var calls atomic.Int64
	fn := counter(&calls, "A", "B")

	first := e.Fetch(ctx, "k", fn, staleTTL())
	require.NotNil(t, first.Data)
	assert.Equal(t, "A", *first.Data)

	time.Sleep(time.Millisecond) // let the zero stale window close

	second := e.Fetch(ctx, "k", fn, staleTTL())
	require.NotNil(t, second.Data)
	assert.Equal(t, "B", *second.Data)
	assert.False(t, second.Stale, "a successful refetch is fresh")
	assert.EqualValues(t, 2, calls.Load())
}

func TestFallbackOnFailedRefetch(t *testing.T) {
	ctx := context.Background()
	m := &recMetrics{}
	e, _ := newTestEngine(engine.WithMetrics(m))

	var calls atomic.Int64
	e.Fetch(ctx, "k", counter(&calls, "v"), staleTTL())
	time.Sleep(time.Millisecond)

	boom := errors.New("upstream down")
	res := e.Fetch(ctx, "k", failing(&calls, boom), staleTTL())

	require.NotNil(t, res.Data, "anything ever cached must stay visible")
	assert.Equal(t, "v", *res.Data)
	assert.True(t, res.Stale)
	assert.ErrorIs(t, res.Err, boom)
	assert.EqualValues(t, 1, m.stale.Load())
}

func TestFirstFetchFailureHasNoData(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine()

	boom := errors.New("nope")
	var calls atomic.Int64
	res := e.Fetch(ctx, "k", failing(&calls, boom), freshTTL())

	assert.Nil(t, res.Data)
	assert.ErrorIs(t, res.Err, boom)
	assert.False(t, res.Stale)
}

func TestRepeatedFailuresKeepLastKnownValue(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine()

	var calls atomic.Int64
	e.Fetch(ctx, "k", counter(&calls, "v"), staleTTL())
	time.Sleep(time.Millisecond)

	for i := 0; i < 4; i++ {
		res := e.Fetch(ctx, "k", failing(&calls, errors.New("still down")), staleTTL())
		require.NotNil(t, res.Data)
		assert.Equal(t, "v", *res.Data)
		assert.True(t, res.Stale)
		assert.Error(t, res.Err)
	}
}

func TestFreshThenFailingFetchScenario(t *testing.T) {
	// fetch("k", hello, staleTime=1s, cacheTime=2s) then an immediate
	// second fetch with a failing operation: the cached value is fresh,
	// so the failing operation must not even run.
	ctx := context.Background()
	e, _ := newTestEngine()

	ttl := store.TTL{StaleIn: store.Dur(time.Second), CacheIn: store.Dur(2 * time.Second)}
	var calls atomic.Int64
	res := e.Fetch(ctx, "k", counter(&calls, "hello"), ttl)
	require.NotNil(t, res.Data)
	assert.Equal(t, "hello", *res.Data)
	assert.False(t, res.Stale)

	var failCalls atomic.Int64
	res = e.Fetch(ctx, "k", failing(&failCalls, errors.New("boom")), ttl)
	require.NotNil(t, res.Data)
	assert.Equal(t, "hello", *res.Data)
	assert.False(t, res.Stale)
	assert.NoError(t, res.Err)
	assert.EqualValues(t, 0, failCalls.Load())
}

func TestExpiredEntryNotUsedAsFallback(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine()

	require.NoError(t, st.Write(ctx, "k", "old", store.TTL{CacheIn: store.Dur(time.Millisecond)}))
	time.Sleep(10 * time.Millisecond)

	var calls atomic.Int64
	res := e.Fetch(ctx, "k", failing(&calls, errors.New("boom")), freshTTL())

	assert.Nil(t, res.Data, "an expired value must be treated as absent")
	assert.Error(t, res.Err)
}

func TestFailedStoreReadSurfacesInResult(t *testing.T) {
	ctx := context.Background()
	down := errors.New("connection refused")
	fs := &faultStore{Store: store.NewMemoryStore[string](), readErr: down}
	e := engine.New[string](fs)

	var calls atomic.Int64
	res := e.Fetch(ctx, "k", counter(&calls, "hello"), freshTTL())

	assert.EqualValues(t, 1, calls.Load(), "an unreadable backend counts as a miss")
	require.NotNil(t, res.Data)
	assert.Equal(t, "hello", *res.Data)
	assert.ErrorIs(t, res.Err, down, "the read failure must not be swallowed")
}

func TestFailedReadAndFailedFetchBothReported(t *testing.T) {
	ctx := context.Background()
	readErr := errors.New("connection refused")
	fetchErr := errors.New("upstream down")
	fs := &faultStore{Store: store.NewMemoryStore[string](), readErr: readErr}
	e := engine.New[string](fs)

	var calls atomic.Int64
	res := e.Fetch(ctx, "k", failing(&calls, fetchErr), freshTTL())

	assert.Nil(t, res.Data)
	assert.ErrorIs(t, res.Err, readErr)
	assert.ErrorIs(t, res.Err, fetchErr)
}

func TestFailedPersistStillServesFreshValue(t *testing.T) {
	ctx := context.Background()
	full := errors.New("store full")
	fs := &faultStore{Store: store.NewMemoryStore[string](), writeErr: full}
	e := engine.New[string](fs)

	var calls atomic.Int64
	res := e.Fetch(ctx, "k", counter(&calls, "hello"), freshTTL())

	require.NotNil(t, res.Data)
	assert.Equal(t, "hello", *res.Data)
	assert.ErrorIs(t, res.Err, full)
}

//
// ================= INVALIDATE =================
//

func TestInvalidateIsIdempotentAndAlwaysBroadcasts(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine()

	var calls atomic.Int64
	e.Fetch(ctx, "k", counter(&calls, "v"), freshTTL())

	sub := e.Watch("k").Subscribe()
	defer sub.Cancel()

	require.NoError(t, e.Invalidate(ctx, "k"))
	require.NoError(t, e.Invalidate(ctx, "k"))

	assert.Equal(t, 0, st.Len())

	events := drain(sub.C())
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Nil(t, ev.Data)
		assert.True(t, ev.Stale)
	}
}

func TestInvalidateForcesNextFetch(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine()

	var calls atomic.Int64
	fn := counter(&calls, "A", "B")

	e.Fetch(ctx, "k", fn, freshTTL())
	require.NoError(t, e.Invalidate(ctx, "k"))

	res := e.Fetch(ctx, "k", fn, freshTTL())
	require.NotNil(t, res.Data)
	assert.Equal(t, "B", *res.Data)
	assert.EqualValues(t, 2, calls.Load())
}

//
// ================= WATCH / SETDATA =================
//

func TestWatcherSeesNothingBeforeFirstActivity(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine()

	sub := e.Watch("k").Subscribe()
	defer sub.Cancel()

	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, drain(sub.C()))

	var calls atomic.Int64
	e.Fetch(ctx, "k", counter(&calls, "v"), freshTTL())
	assert.Len(t, drain(sub.C()), 1)
}

func TestCachedServeStillBroadcasts(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine()

	var calls atomic.Int64
	fn := counter(&calls, "v")
	e.Fetch(ctx, "k", fn, freshTTL())

	sub := e.Watch("k").Subscribe()
	defer sub.Cancel()

	e.Fetch(ctx, "k", fn, freshTTL())
	events := drain(sub.C())
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Data)
	assert.Equal(t, "v", *events[0].Data)
	assert.EqualValues(t, 1, calls.Load())
}

func TestWatchReturnsSharedChannel(t *testing.T) {
	e, _ := newTestEngine()
	assert.Same(t, e.Watch("k"), e.Watch("k"))

	a := e.Watch("k").Subscribe()
	b := e.Watch("k").Subscribe()
	defer a.Cancel()
	defer b.Cancel()

	e.SetData("k", "pushed", false)
	require.Len(t, drain(a.C()), 1)
	require.Len(t, drain(b.C()), 1)
}

func TestSetDataBroadcastsWithoutPersisting(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine()

	sub := e.Watch("k").Subscribe()
	defer sub.Cancel()

	e.SetData("k", "optimistic", true)

	events := drain(sub.C())
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Data)
	assert.Equal(t, "optimistic", *events[0].Data)
	assert.True(t, events[0].Stale)

	assert.Equal(t, 0, st.Len(), "SetData must not touch the store")

	var calls atomic.Int64
	res := e.Fetch(ctx, "k", counter(&calls, "fetched"), freshTTL())
	require.NotNil(t, res.Data)
	assert.Equal(t, "fetched", *res.Data)
	assert.EqualValues(t, 1, calls.Load(), "a later fetch is unaffected by SetData")
}

//
// ================= AUTO-EXPIRY / INTROSPECTION =================
//

func TestAutoExpirySweepRemovesExpiredEntries(t *testing.T) {
	ctx := context.Background()
	m := &recMetrics{}
	st := store.NewMemoryStore[string]()
	e := engine.New[string](st, engine.WithAutoExpiry(), engine.WithMetrics(m))

	require.NoError(t, st.Write(ctx, "k", "v", store.TTL{CacheIn: store.Dur(time.Millisecond)}))
	require.NoError(t, st.Write(ctx, "keep", "v", store.TTL{CacheIn: store.Dur(time.Hour)}))
	time.Sleep(10 * time.Millisecond)

	snap, err := e.KeysAndStates(ctx)
	require.NoError(t, err)
	assert.NotContains(t, snap, "k")
	assert.Contains(t, snap, "keep")
	assert.Equal(t, 1, st.Len())
	assert.EqualValues(t, 1, m.expired.Load())
}

func TestSweepRunsAtFetchWhenEnabled(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore[string]()
	e := engine.New[string](st, engine.WithAutoExpiry())

	require.NoError(t, st.Write(ctx, "dead", "v", store.TTL{CacheIn: store.Dur(time.Millisecond)}))
	time.Sleep(10 * time.Millisecond)

	var calls atomic.Int64
	e.Fetch(ctx, "other", counter(&calls, "x"), freshTTL())

	_, ok, err := st.Read(ctx, "dead")
	require.NoError(t, err)
	assert.False(t, ok, "fetch on any key sweeps expired entries")
}

func TestKeysAndStatesReflectsStaleness(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine()

	require.NoError(t, st.Write(ctx, "fresh", "a", store.TTL{StaleIn: store.Dur(time.Minute)}))
	require.NoError(t, st.Write(ctx, "stale", "b", store.TTL{StaleIn: store.Dur(0)}))
	time.Sleep(time.Millisecond)

	snap, err := e.KeysAndStates(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 2)
	assert.False(t, snap["fresh"].Stale)
	assert.True(t, snap["stale"].Stale)
	require.NotNil(t, snap["stale"].Data)
	assert.Equal(t, "b", *snap["stale"].Data)
}

//
// ================= DISPOSE =================
//

func TestDisposeClosesChannelsButKeepsStore(t *testing.T) {
	ctx := context.Background()
	e, st := newTestEngine()

	var calls atomic.Int64
	e.Fetch(ctx, "k", counter(&calls, "v"), freshTTL())

	sub := e.Watch("k").Subscribe()
	e.Dispose()

	_, open := <-sub.C()
	assert.False(t, open, "dispose must close watcher channels")
	assert.Equal(t, 1, st.Len(), "dispose must not clear the store")
}
