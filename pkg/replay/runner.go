package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/ch-grafana-cache/pkg/clickhouse"
	"github.com/grafana/ch-grafana-cache/pkg/grafana"
	"github.com/grafana/ch-grafana-cache/pkg/variables"
)

// Executor runs a query for its side effects.
type Executor interface {
	QueryNative(ctx context.Context, query string) (clickhouse.QueryOutput, error)
}

// PanelError reports a panel query that could not be replayed.
type PanelError struct {
	PanelID    int
	PanelTitle string
	Assignment variables.Assignment
	Err        error
}

func (e *PanelError) Error() string {
	return fmt.Sprintf("panel %d %q: %v", e.PanelID, e.PanelTitle, e.Err)
}

func (e *PanelError) Unwrap() error {
	return e.Err
}

// Stats sums up a replay.
type Stats struct {
	Combinations int
	Queries      int
	// Bytes received from ClickHouse.
	Bytes int64
	// Rows read by ClickHouse, as reported in the query summaries.
	Rows     uint64
	Duration time.Duration
}

// Runner replays the panel queries of a dashboard.
type Runner struct {
	client  Executor
	logger  log.Logger
	metrics *metrics
}

// NewRunner makes a new Runner. Metrics are registered on reg when it is not
// nil.
func NewRunner(client Executor, reg prometheus.Registerer, logger log.Logger) *Runner {
	return &Runner{
		client:  client,
		logger:  logger,
		metrics: newMetrics(reg),
	}
}

// Run substitutes every assignment into every panel query of d and sends the
// result to ClickHouse, one query at a time. It stops at the first failure.
func (r *Runner) Run(ctx context.Context, d *grafana.Dashboard, assignments []variables.Assignment) (Stats, error) {
	var (
		stats = Stats{Combinations: len(assignments)}
		start = time.Now()
	)
	r.metrics.combinations.Set(float64(len(assignments)))

	for i, a := range assignments {
		var (
			combinationStart = time.Now()
			output           clickhouse.QueryOutput
		)
		for _, p := range d.Panels {
			for _, template := range p.Queries() {
				out, err := r.replay(ctx, template, a)
				if err != nil {
					r.metrics.failures.Inc()
					stats.Duration = time.Since(start)
					return stats, &PanelError{PanelID: p.ID, PanelTitle: p.Title, Assignment: a, Err: err}
				}
				output.Add(out)
				stats.Queries++
			}
		}

		stats.Bytes += output.Bytes
		stats.Rows += output.ReadRows
		r.metrics.completed.Inc()
		level.Info(r.logger).Log(
			"msg", "replayed combination",
			"combination", fmt.Sprintf("%d/%d", i+1, len(assignments)),
			"assignment", a,
			"duration", time.Since(combinationStart),
			"size", humanize.Bytes(uint64(output.Bytes)),
			"read_rows", output.ReadRows,
		)
	}

	stats.Duration = time.Since(start)
	r.metrics.lastSuccess.SetToCurrentTime()
	return stats, nil
}

func (r *Runner) replay(ctx context.Context, template string, a variables.Assignment) (clickhouse.QueryOutput, error) {
	query, err := variables.Substitute(template, a)
	if err != nil {
		return clickhouse.QueryOutput{}, err
	}

	start := time.Now()
	out, err := r.client.QueryNative(ctx, query)
	r.metrics.queryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return clickhouse.QueryOutput{}, err
	}
	r.metrics.queries.Inc()
	r.metrics.bytes.Add(float64(out.Bytes))
	return out, nil
}
