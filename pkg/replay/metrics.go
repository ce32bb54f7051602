package replay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ch_grafana_cache"

type metrics struct {
	combinations  prometheus.Gauge
	completed     prometheus.Counter
	failures      prometheus.Counter
	queries       prometheus.Counter
	bytes         prometheus.Counter
	queryDuration prometheus.Histogram
	lastSuccess   prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		combinations: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "replay_combinations",
			Help:      "Number of variable combinations to replay.",
		}),
		completed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replay_completed_combinations_total",
			Help:      "Number of variable combinations whose panel queries were all replayed.",
		}),
		failures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replay_failures_total",
			Help:      "Number of replays aborted by a failing panel query.",
		}),
		queries: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replay_queries_total",
			Help:      "Number of panel queries replayed.",
		}),
		bytes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replay_received_bytes_total",
			Help:      "Number of bytes received while replaying panel queries.",
		}),
		queryDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "replay_query_duration_seconds",
			Help:      "Time spent replaying a single panel query.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}),
		lastSuccess: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "replay_last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last replay that went through every combination.",
		}),
	}
}
