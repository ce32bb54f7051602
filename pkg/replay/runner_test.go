package replay

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/grafana/ch-grafana-cache/pkg/clickhouse"
	"github.com/grafana/ch-grafana-cache/pkg/grafana"
	"github.com/grafana/ch-grafana-cache/pkg/variables"
)

type mockExecutor struct {
	queries []string
	failOn  string
}

func (m *mockExecutor) QueryNative(_ context.Context, query string) (clickhouse.QueryOutput, error) {
	if m.failOn != "" && strings.Contains(query, m.failOn) {
		return clickhouse.QueryOutput{}, &clickhouse.StatusError{StatusCode: 400, Status: "400 Bad Request", Body: "Code: 62. DB::Exception: Syntax error"}
	}
	m.queries = append(m.queries, query)
	return clickhouse.QueryOutput{Bytes: int64(len(query)), ReadRows: 10}, nil
}

var dashboard = &grafana.Dashboard{
	Title: "HTTP overview",
	Panels: []grafana.Panel{
		{ID: 1, Title: "Requests", Targets: []grafana.Target{
			{RefID: "A", RawSQL: "SELECT count() FROM requests WHERE env = '${env}'"},
			{RefID: "B"},
			{RefID: "C", RawSQL: "SELECT avg(duration) FROM requests WHERE env = '${env}' AND route = '${route}'"},
		}},
		{ID: 2, Title: "Notes", Type: "text"},
		{ID: 3, Title: "Errors", Targets: []grafana.Target{
			{RefID: "A", RawSQL: "SELECT count() FROM errors WHERE route = '${route}'"},
		}},
	},
}

func TestRunner_Run(t *testing.T) {
	exec := &mockExecutor{}
	reg := prometheus.NewRegistry()
	r := NewRunner(exec, reg, log.NewNopLogger())

	assignments := []variables.Assignment{
		{"env": "prod", "route": "/a"},
		{"env": "dev", "route": "/b"},
	}
	stats, err := r.Run(context.Background(), dashboard, assignments)
	require.NoError(t, err)

	expected := []string{
		"SELECT count() FROM requests WHERE env = 'prod'",
		"SELECT avg(duration) FROM requests WHERE env = 'prod' AND route = '/a'",
		"SELECT count() FROM errors WHERE route = '/a'",
		"SELECT count() FROM requests WHERE env = 'dev'",
		"SELECT avg(duration) FROM requests WHERE env = 'dev' AND route = '/b'",
		"SELECT count() FROM errors WHERE route = '/b'",
	}
	require.Equal(t, expected, exec.queries)

	var bytes int64
	for _, q := range expected {
		bytes += int64(len(q))
	}
	require.Equal(t, 2, stats.Combinations)
	require.Equal(t, 6, stats.Queries)
	require.Equal(t, bytes, stats.Bytes)
	require.Equal(t, uint64(60), stats.Rows)
	require.Positive(t, stats.Duration)

	require.Equal(t, float64(6), testutil.ToFloat64(r.metrics.queries))
	require.Equal(t, float64(2), testutil.ToFloat64(r.metrics.completed))
	require.Equal(t, float64(bytes), testutil.ToFloat64(r.metrics.bytes))
	require.Equal(t, float64(0), testutil.ToFloat64(r.metrics.failures))
}

func TestRunner_NoQueries(t *testing.T) {
	exec := &mockExecutor{}
	r := NewRunner(exec, nil, log.NewNopLogger())

	stats, err := r.Run(context.Background(), &grafana.Dashboard{Panels: []grafana.Panel{{ID: 1, Type: "text"}}}, []variables.Assignment{{}})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Combinations)
	require.Zero(t, stats.Queries)
	require.Empty(t, exec.queries)
}

func TestRunner_UndeclaredVariable(t *testing.T) {
	exec := &mockExecutor{}
	r := NewRunner(exec, nil, log.NewNopLogger())

	d := &grafana.Dashboard{Panels: []grafana.Panel{
		{ID: 7, Title: "Broken", Targets: []grafana.Target{{RawSQL: "SELECT * FROM t WHERE c = '${C}'"}}},
	}}
	for _, a := range []variables.Assignment{{}, {"A": "x"}, {"A": "y", "B": "z"}} {
		_, err := r.Run(context.Background(), d, []variables.Assignment{a})

		var panelErr *PanelError
		require.True(t, errors.As(err, &panelErr))
		require.Equal(t, 7, panelErr.PanelID)
		require.Equal(t, a, panelErr.Assignment)

		var substErr *variables.SubstitutionError
		require.True(t, errors.As(err, &substErr))
		require.Equal(t, []string{"C"}, substErr.Missing)
	}
	require.Empty(t, exec.queries, "no query is sent when substitution fails")
}

func TestRunner_FailFast(t *testing.T) {
	exec := &mockExecutor{failOn: "errors"}
	reg := prometheus.NewRegistry()
	r := NewRunner(exec, reg, log.NewNopLogger())

	stats, err := r.Run(context.Background(), dashboard, []variables.Assignment{
		{"env": "prod", "route": "/a"},
		{"env": "dev", "route": "/b"},
	})
	require.EqualError(t, err, `panel 3 "Errors": 400 Bad Request: Code: 62. DB::Exception: Syntax error`)

	var statusErr *clickhouse.StatusError
	require.True(t, errors.As(err, &statusErr))

	require.Equal(t, 2, stats.Queries)
	require.Len(t, exec.queries, 2, "the second combination is never started")
	require.Equal(t, float64(1), testutil.ToFloat64(r.metrics.failures))
	require.Equal(t, float64(0), testutil.ToFloat64(r.metrics.completed))
}
