package querycache_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	querycache "github.com/krisalay/query-cache"
	"github.com/krisalay/query-cache/engine"
	"github.com/krisalay/query-cache/store"
)

func newBenchmarkClient() *querycache.Client[string] {
	st := store.NewMemoryStore[string]()
	return querycache.New[string](engine.New[string](st))
}

//
// ================= HOT PATH: FRESH SERVE =================
//

func BenchmarkQueryFresh(b *testing.B) {
	ctx := context.Background()
	c := newBenchmarkClient()
	defer c.Dispose()

	ttl := store.TTL{StaleIn: store.Dur(time.Hour)}
	fn := func(ctx context.Context) (string, error) { return "v", nil }
	c.Query(ctx, "k", fn, ttl)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Query(ctx, "k", fn, ttl)
	}
}

//
// ================= PARALLEL READERS =================
//

func BenchmarkQueryFreshParallel(b *testing.B) {
	ctx := context.Background()
	c := newBenchmarkClient()
	defer c.Dispose()

	ttl := store.TTL{StaleIn: store.Dur(time.Hour)}
	fn := func(ctx context.Context) (string, error) { return "v", nil }
	for i := 0; i < 16; i++ {
		c.Query(ctx, fmt.Sprintf("k%d", i), fn, ttl)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			c.Query(ctx, fmt.Sprintf("k%d", i%16), fn, ttl)
			i++
		}
	})
}
