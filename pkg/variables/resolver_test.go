package variables

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"

	"github.com/grafana/ch-grafana-cache/pkg/clickhouse"
	"github.com/grafana/ch-grafana-cache/pkg/grafana"
)

// mockQuerier answers tabular queries from a fixed table and records every
// call.
type mockQuerier struct {
	results map[string][]clickhouse.Row
	err     error

	queries []string
	native  []string
}

func (m *mockQuerier) Query(_ context.Context, query string, _ bool) ([]clickhouse.Row, error) {
	m.queries = append(m.queries, query)
	if m.err != nil {
		return nil, m.err
	}
	rows, ok := m.results[query]
	if !ok {
		return nil, fmt.Errorf("unexpected query %q", query)
	}
	return rows, nil
}

func (m *mockQuerier) QueryNative(_ context.Context, query string) (clickhouse.QueryOutput, error) {
	m.native = append(m.native, query)
	return clickhouse.QueryOutput{Bytes: 42}, nil
}

var (
	clickhouseDS = &grafana.Datasource{Type: "grafana-clickhouse-datasource", UID: "ch"}

	staticA = grafana.Variable{Name: "A", Options: []string{"x", "y"}}
	dbB     = grafana.Variable{
		Name:       "B",
		Query:      "SELECT v FROM t WHERE a='${A}'",
		Datasource: clickhouseDS,
	}
)

func newMockQuerier() *mockQuerier {
	return &mockQuerier{results: map[string][]clickhouse.Row{
		"SELECT v FROM t WHERE a='x'": {{"v1"}},
		"SELECT v FROM t WHERE a='y'": {{"v2"}, {"v3"}},
		"SELECT v FROM t WHERE a='z'": {{"v4"}},
	}}
}

func TestResolver_Static(t *testing.T) {
	q := newMockQuerier()
	r := NewResolver(q, nil, log.NewNopLogger())

	values, err := r.Variants(context.Background(), staticA, Assignment{})
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y"}, values)
	require.Empty(t, q.queries)
	require.Empty(t, q.native)

	values, err = r.Variants(context.Background(), grafana.Variable{Name: "empty"}, Assignment{})
	require.NoError(t, err)
	require.Empty(t, values)
}

func TestResolver_ClickHouse(t *testing.T) {
	q := newMockQuerier()
	r := NewResolver(q, nil, log.NewNopLogger())

	values, err := r.Variants(context.Background(), dbB, Assignment{"A": "y"})
	require.NoError(t, err)
	require.Equal(t, []string{"v2", "v3"}, values)

	require.Equal(t, []string{"SELECT v FROM t WHERE a='y'"}, q.queries)
	require.Equal(t, []string{"SELECT v FROM t WHERE a='${A}'"}, q.native, "native warm up uses the template")
}

func TestResolver_DuplicatesAreKept(t *testing.T) {
	q := &mockQuerier{results: map[string][]clickhouse.Row{
		"SELECT v FROM t": {{"a"}, {"b"}, {"a"}},
	}}
	r := NewResolver(q, nil, log.NewNopLogger())

	values, err := r.Variants(context.Background(), grafana.Variable{Name: "V", Query: "SELECT v FROM t", Datasource: clickhouseDS}, Assignment{})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "a"}, values)
}

func TestResolver_Override(t *testing.T) {
	q := newMockQuerier()
	r := NewResolver(q, Overrides{"B": {"o2", "o1"}, "A": {}}, log.NewNopLogger())

	values, err := r.Variants(context.Background(), dbB, Assignment{"A": "x"})
	require.NoError(t, err)
	require.Equal(t, []string{"o2", "o1"}, values)

	values, err = r.Variants(context.Background(), staticA, Assignment{})
	require.NoError(t, err)
	require.Empty(t, values)

	require.Empty(t, q.queries)
	require.Empty(t, q.native)
}

func TestResolver_Errors(t *testing.T) {
	transportErr := &clickhouse.StatusError{StatusCode: 500, Status: "500 Internal Server Error", Body: "boom"}

	tests := map[string]struct {
		variable   grafana.Variable
		assignment Assignment
		querier    *mockQuerier
		check      func(t *testing.T, err error)
	}{
		"two columns": {
			variable: grafana.Variable{Name: "B", Query: "SELECT a, b FROM t", Datasource: clickhouseDS},
			querier:  &mockQuerier{results: map[string][]clickhouse.Row{"SELECT a, b FROM t": {{"1", "2"}}}},
			check: func(t *testing.T, err error) {
				var shapeErr *ShapeError
				require.True(t, errors.As(err, &shapeErr))
				require.Equal(t, &ShapeError{Variable: "B", Columns: 2}, shapeErr)
			},
		},
		"unsupported datasource": {
			variable: grafana.Variable{Name: "cluster", Query: "label_values(up, cluster)", Datasource: &grafana.Datasource{Type: "prometheus", UID: "prom"}},
			querier:  newMockQuerier(),
			check: func(t *testing.T, err error) {
				var unsupported *UnsupportedVariableError
				require.True(t, errors.As(err, &unsupported))
				require.Equal(t, "cluster", unsupported.Variable)
				require.EqualError(t, err, "unsupported datasource prom (prometheus) for variable cluster")
			},
		},
		"missing dependency": {
			variable:   dbB,
			assignment: Assignment{},
			querier:    newMockQuerier(),
			check: func(t *testing.T, err error) {
				var substErr *SubstitutionError
				require.True(t, errors.As(err, &substErr))
				require.Equal(t, []string{"A"}, substErr.Missing)
			},
		},
		"transport": {
			variable:   dbB,
			assignment: Assignment{"A": "x"},
			querier:    &mockQuerier{err: transportErr},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, transportErr)
			},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			r := NewResolver(tc.querier, nil, log.NewNopLogger())
			values, err := r.Variants(context.Background(), tc.variable, tc.assignment)
			require.Error(t, err)
			require.Nil(t, values)
			tc.check(t, err)
		})
	}
}
