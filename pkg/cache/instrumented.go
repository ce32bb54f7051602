package cache

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for instrumented caches. A single instance is shared by every cache
// registered against the same registerer; series are split by cache name.
type Metrics struct {
	fetchedKeys *prometheus.CounterVec
	hits        *prometheus.CounterVec
	storedKeys  *prometheus.CounterVec
}

// NewMetrics registers the cache metrics with reg. A nil registerer yields
// unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		fetchedKeys: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "ch_grafana_cache",
			Name:      "query_cache_fetched_keys_total",
			Help:      "Total count of keys requested from the query cache.",
		}, []string{"name"}),
		hits: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "ch_grafana_cache",
			Name:      "query_cache_hits_total",
			Help:      "Total count of keys found in the query cache.",
		}, []string{"name"}),
		storedKeys: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "ch_grafana_cache",
			Name:      "query_cache_stored_keys_total",
			Help:      "Total count of keys written to the query cache.",
		}, []string{"name"}),
	}
}

// Instrument returns an instrumented cache.
func Instrument[V any](name string, c Cache[V], m *Metrics) Cache[V] {
	return &instrumentedCache[V]{
		Cache: c,

		fetchedKeys: m.fetchedKeys.WithLabelValues(name),
		hits:        m.hits.WithLabelValues(name),
		storedKeys:  m.storedKeys.WithLabelValues(name),
	}
}

type instrumentedCache[V any] struct {
	Cache[V]

	fetchedKeys, hits, storedKeys prometheus.Counter
}

func (i *instrumentedCache[V]) Store(ctx context.Context, key string, value V) {
	i.storedKeys.Inc()
	i.Cache.Store(ctx, key, value)
}

func (i *instrumentedCache[V]) Fetch(ctx context.Context, key string) (V, bool) {
	v, ok := i.Cache.Fetch(ctx, key)
	i.fetchedKeys.Inc()
	if ok {
		i.hits.Inc()
	}
	return v, ok
}
