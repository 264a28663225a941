// qcdemo walks through the query cache end to end: fresh fetch, cached
// serve, stale-while-revalidate, failure fallback, manual invalidation, and
// the introspection surfaces (keys-and-states snapshot, log ring, metrics).
//
// By default everything runs against the in-memory store. Point it at a
// Redis server to exercise the persistent backend instead:
//
//	QC_REDIS_ADDR=localhost:6379 qcdemo
//	qcdemo --redis-addr localhost:6379 --metrics-addr :9109
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/spf13/cobra"

	querycache "github.com/krisalay/query-cache"
	"github.com/krisalay/query-cache/engine"
	"github.com/krisalay/query-cache/logring"
	"github.com/krisalay/query-cache/metrics"
	"github.com/krisalay/query-cache/middleware"
	"github.com/krisalay/query-cache/redisstore"
	"github.com/krisalay/query-cache/store"
	"github.com/krisalay/query-cache/strategy"
	"github.com/krisalay/query-cache/types"
)

type config struct {
	RedisAddr   string `env:"QC_REDIS_ADDR" env-default:""`
	MetricsAddr string `env:"QC_METRICS_ADDR" env-default:""`
}

func main() {
	var cfg config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:   "qcdemo",
		Short: "Scripted walkthrough of the query cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}
	root.Flags().StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address; empty uses the in-memory store")
	root.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "listen address for the Prometheus endpoint; empty disables it")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config) error {
	// Keep the tail of cache activity in memory; dumped at the end.
	ring := logring.New(64)
	logger := slog.New(logring.NewHandler(ring, slog.LevelDebug))

	st, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	prom := metrics.NewPrometheus("querycache")
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", prom.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				fmt.Fprintln(os.Stderr, "metrics endpoint:", err)
			}
		}()
		fmt.Println("metrics on", cfg.MetricsAddr+"/metrics")
	}

	eng := engine.New[string](st, engine.WithAutoExpiry(), engine.WithMetrics(prom))
	client := querycache.New[string](eng,
		querycache.WithHooks[string](middleware.Logging(logger)),
	)
	defer client.Dispose()

	// One observer for everything that happens to "greeting".
	sub := client.WatchQuery("greeting").Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for state := range sub.C() {
			fmt.Printf("WATCH  → %s\n", describe(state))
		}
	}()

	ttl := store.TTL{StaleIn: store.Dur(time.Second), CacheIn: store.Dur(5 * time.Second)}
	// Shared with the background revalidation goroutine.
	var calls atomic.Int64
	fetchHello := func(ctx context.Context) (string, error) {
		return fmt.Sprintf("hello #%d", calls.Add(1)), nil
	}

	fmt.Println("--- first query: nothing cached, fetch runs")
	res := client.Query(ctx, "greeting", fetchHello, ttl)
	fmt.Printf("RESULT → data=%q stale=%v\n", *res.Data, res.Stale)

	fmt.Println("--- immediate second query: fresh, fetch NOT run")
	res = client.Query(ctx, "greeting", fetchHello, ttl)
	fmt.Printf("RESULT → data=%q stale=%v (fetch calls so far: %d)\n", *res.Data, res.Stale, calls.Load())

	fmt.Println("--- after the stale window: stale-while-revalidate")
	time.Sleep(1200 * time.Millisecond)
	res = client.Query(ctx, "greeting", fetchHello, ttl, strategy.StaleWhileRevalidate)
	fmt.Printf("RESULT → data=%q stale=%v\n", *res.Data, res.Stale)
	time.Sleep(100 * time.Millisecond) // let the background refetch land

	fmt.Println("--- failing fetch: last known value survives, flagged stale")
	time.Sleep(1200 * time.Millisecond)
	res = client.Query(ctx, "greeting", func(ctx context.Context) (string, error) {
		return "", errors.New("upstream down")
	}, ttl, strategy.StaleOnly)
	fmt.Printf("RESULT → data=%q stale=%v err=%v\n", *res.Data, res.Stale, res.Err)

	fmt.Println("--- invalidate: next query starts from nothing")
	if err := client.InvalidateQuery(ctx, "greeting"); err != nil {
		return err
	}
	res = client.Query(ctx, "greeting", fetchHello, ttl)
	fmt.Printf("RESULT → data=%q stale=%v (fetch calls total: %d)\n", *res.Data, res.Stale, calls.Load())

	fmt.Println("--- introspection snapshot")
	snap, err := client.Engine().KeysAndStates(ctx)
	if err != nil {
		return err
	}
	if len(snap) == 0 {
		fmt.Println("SNAP   → store is opaque (external backend) or empty")
	}
	for key, state := range snap {
		fmt.Printf("SNAP   → %s: data=%q stale=%v\n", key, *state.Data, state.Stale)
	}

	sub.Cancel()
	<-done

	fmt.Println("--- captured log ring")
	for _, rec := range ring.Records() {
		fmt.Printf("LOG    → %s %s %s\n", rec.Time.Format(time.TimeOnly), rec.Level, rec.Message)
	}
	return nil
}

func buildStore(ctx context.Context, cfg config) (store.Store[string], func(), error) {
	if cfg.RedisAddr == "" {
		fmt.Println("using in-memory store")
		return store.NewMemoryStore[string](), func() {}, nil
	}

	rs := redisstore.New[string](redisstore.Config{Addr: cfg.RedisAddr})
	if err := rs.Ping(ctx); err != nil {
		rs.Close()
		return nil, nil, fmt.Errorf("redis at %s: %w", cfg.RedisAddr, err)
	}
	fmt.Println("using redis store at", cfg.RedisAddr)
	return rs, func() { rs.Close() }, nil
}

func describe(st types.QueryState[string]) string {
	switch {
	case st.Loading:
		return fmt.Sprintf("loading key=%s", st.Key)
	case st.Err != nil && st.Data != nil:
		return fmt.Sprintf("stale-with-error key=%s data=%q err=%v", st.Key, *st.Data, st.Err)
	case st.Err != nil:
		return fmt.Sprintf("error key=%s err=%v", st.Key, st.Err)
	case st.Data == nil:
		return fmt.Sprintf("invalidated key=%s", st.Key)
	default:
		return fmt.Sprintf("settled key=%s data=%q stale=%v", st.Key, *st.Data, st.Stale)
	}
}
