package clickhouse

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/grafana/ch-grafana-cache/pkg/cache"
)

const namespace = "ch_grafana_cache"

type metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	receivedBytes   *prometheus.CounterVec
	retries         *prometheus.CounterVec
	cache           *cache.Metrics
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clickhouse_requests_total",
			Help:      "Number of requests sent to ClickHouse.",
		}, []string{"format", "status_code"}),
		requestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "clickhouse_request_duration_seconds",
			Help:      "Time until ClickHouse returned response headers.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"format", "status_code"}),
		receivedBytes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clickhouse_received_bytes_total",
			Help:      "Number of response body bytes received from ClickHouse.",
		}, []string{"format"}),
		retries: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clickhouse_retries_total",
			Help:      "Number of requests retried after a transient failure.",
		}, []string{"reason"}),
		cache: cache.NewMetrics(reg),
	}
}
