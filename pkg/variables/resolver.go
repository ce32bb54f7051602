package variables

import (
	"context"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/grafana/ch-grafana-cache/pkg/clickhouse"
	"github.com/grafana/ch-grafana-cache/pkg/grafana"
)

// Querier runs queries against ClickHouse.
type Querier interface {
	Query(ctx context.Context, query string, useCache bool) ([]clickhouse.Row, error)
	QueryNative(ctx context.Context, query string) (clickhouse.QueryOutput, error)
}

// ShapeError is returned when a variable query yields more than one column.
type ShapeError struct {
	Variable string
	Columns  int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("query of variable %s returned %d columns, expected a single one", e.Variable, e.Columns)
}

// UnsupportedVariableError is returned for variables backed by a datasource
// other than ClickHouse.
type UnsupportedVariableError struct {
	Variable   string
	Datasource string
}

func (e *UnsupportedVariableError) Error() string {
	return fmt.Sprintf("unsupported datasource %s for variable %s", e.Datasource, e.Variable)
}

// Resolver computes the candidate values of dashboard variables.
type Resolver struct {
	client    Querier
	overrides Overrides
	logger    log.Logger
}

// NewResolver makes a new Resolver. Variables listed in overrides are never
// resolved against the database.
func NewResolver(client Querier, overrides Overrides, logger log.Logger) *Resolver {
	return &Resolver{
		client:    client,
		overrides: overrides,
		logger:    logger,
	}
}

// Variants returns the candidate values of v given the values already chosen
// for the variables declared before it.
//
// For ClickHouse variables the substituted query is run through the cache,
// then the unsubstituted template is sent once more in the Native format.
// Grafana queries with the Native format, so the second call populates the
// server side cache entry read when the dashboard is opened.
func (r *Resolver) Variants(ctx context.Context, v grafana.Variable, a Assignment) ([]string, error) {
	if values, ok := r.overrides[v.Name]; ok {
		level.Debug(r.logger).Log("msg", "using override", "variable", v.Name, "values", len(values))
		return append([]string(nil), values...), nil
	}

	switch v.Kind() {
	case grafana.KindStatic:
		return append([]string(nil), v.Options...), nil

	case grafana.KindClickHouse:
		query, err := Substitute(v.Query, a)
		if err != nil {
			return nil, err
		}
		level.Debug(r.logger).Log("msg", "resolving variable", "variable", v.Name, "assignment", a, "query", query)

		rows, err := r.client.Query(ctx, query, true)
		if err != nil {
			return nil, err
		}
		if _, err := r.client.QueryNative(ctx, v.Query); err != nil {
			return nil, err
		}

		if len(rows) > 0 && rows[0].NumCols() > 1 {
			return nil, &ShapeError{Variable: v.Name, Columns: rows[0].NumCols()}
		}
		values := make([]string, 0, len(rows))
		for _, row := range rows {
			values = append(values, row...)
		}
		return values, nil

	default:
		return nil, &UnsupportedVariableError{Variable: v.Name, Datasource: v.Datasource.String()}
	}
}
