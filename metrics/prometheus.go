/*
Package metrics provides a Prometheus implementation of types.Metrics, for
deployments that want the cache's hit/miss/stale behavior on a dashboard.

The collectors live in an own registry so embedding applications keep full
control over what they expose; Handler serves exactly this registry.
*/
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/krisalay/query-cache/types"
)

// Prometheus counts cache lifecycle events as prometheus counters.
type Prometheus struct {
	registry *prometheus.Registry

	hits    prometheus.Counter
	misses  prometheus.Counter
	stale   prometheus.Counter
	expired prometheus.Counter
	refetch prometheus.Counter
}

// NewPrometheus creates the collectors under the given namespace and
// registers them in a fresh registry.
func NewPrometheus(namespace string) *Prometheus {
	registry := prometheus.NewRegistry()

	p := &Prometheus{
		registry: registry,

		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hits_total",
			Help:      "Fetches answered from the store without invoking the fetch operation",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "misses_total",
			Help:      "Fetches that had to invoke the fetch operation",
		}),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_servings_total",
			Help:      "Fetch failures answered with stale fallback data",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expirations_total",
			Help:      "Entries removed by the auto-expiry sweep",
		}),
		refetch: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_refetches_total",
			Help:      "Background revalidations triggered by stale results",
		}),
	}

	registry.MustRegister(p.hits, p.misses, p.stale, p.expired, p.refetch)
	return p
}

var _ types.Metrics = (*Prometheus)(nil)

func (p *Prometheus) Hit()     { p.hits.Inc() }
func (p *Prometheus) Miss()    { p.misses.Inc() }
func (p *Prometheus) Stale()   { p.stale.Inc() }
func (p *Prometheus) Expire()  { p.expired.Inc() }
func (p *Prometheus) Refetch() { p.refetch.Inc() }

// Registry exposes the backing registry for callers that merge it into
// their own exposition.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the cache metrics in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
