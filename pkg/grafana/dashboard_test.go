package grafana

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	d, err := LoadFile("testdata/dashboard.json")
	require.NoError(t, err)

	assert.Equal(t, "http-overview", d.UID)
	assert.Equal(t, "HTTP overview", d.Title)

	expectedVariables := []Variable{
		{
			Name:    "env",
			Type:    "custom",
			Query:   "prod,staging",
			Options: []string{"prod", "staging"},
		},
		{
			Name:       "service",
			Type:       "query",
			Query:      "SELECT DISTINCT service FROM requests WHERE env = '${env}'",
			Datasource: &Datasource{Type: "grafana-clickhouse-datasource", UID: "ch-main"},
		},
		{
			Name:       "route",
			Type:       "query",
			Query:      "SELECT DISTINCT route FROM requests WHERE env = '${env}' AND service = '${service}'",
			Datasource: &Datasource{Type: "vertamedia-clickhouse-datasource", UID: "ch-legacy"},
		},
		{
			Name:       "cluster",
			Type:       "query",
			Query:      "label_values(up, cluster)",
			Datasource: &Datasource{Type: "prometheus", UID: "prom"},
		},
		{
			Name:       "region",
			Type:       "query",
			Query:      "regions.*",
			Datasource: &Datasource{UID: "Graphite"},
		},
	}
	require.Equal(t, expectedVariables, d.Variables)

	expectedPanels := []Panel{
		{ID: 1, Title: "Requests", Type: "timeseries", Targets: []Target{
			{RefID: "A", RawSQL: "SELECT count() FROM requests WHERE env = '${env}' AND service = '${service}'"},
			{RefID: "B"},
		}},
		{ID: 2, Title: "Notes", Type: "text"},
		{ID: 3, Title: "Details", Type: "row"},
		{ID: 4, Title: "Latency", Type: "timeseries", Targets: []Target{
			{RefID: "A", RawSQL: "SELECT quantile(0.99)(duration) FROM requests WHERE route = '${route}'"},
		}},
	}
	require.Equal(t, expectedPanels, d.Panels)
}

func TestVariable_Kind(t *testing.T) {
	d, err := LoadFile("testdata/dashboard.json")
	require.NoError(t, err)

	kinds := map[string]Kind{}
	for _, v := range d.Variables {
		kinds[v.Name] = v.Kind()
	}
	require.Equal(t, map[string]Kind{
		"env":     KindStatic,
		"service": KindClickHouse,
		"route":   KindClickHouse,
		"cluster": KindUnsupported,
		"region":  KindUnsupported,
	}, kinds)

	require.Equal(t, KindClickHouse, Variable{Datasource: &Datasource{Type: "ClickHouse"}}.Kind())
}

func TestDashboard_Queries(t *testing.T) {
	d, err := LoadFile("testdata/dashboard.json")
	require.NoError(t, err)

	require.Equal(t, []string{
		"SELECT DISTINCT service FROM requests WHERE env = '${env}'",
		"SELECT DISTINCT route FROM requests WHERE env = '${env}' AND service = '${service}'",
	}, d.VariableQueries())

	require.Equal(t, []string{
		"SELECT count() FROM requests WHERE env = '${env}' AND service = '${service}'",
		"SELECT quantile(0.99)(duration) FROM requests WHERE route = '${route}'",
	}, d.PanelQueries())

	require.Empty(t, d.Panels[1].Queries())
}

func TestParse(t *testing.T) {
	tests := map[string]struct {
		input    string
		expected *Dashboard
		err      bool
	}{
		"bare dashboard": {
			input: `{"title": "bare", "templating": {"list": [{"name": "a", "options": [{"value": "x"}]}]}}`,
			expected: &Dashboard{
				Title:     "bare",
				Variables: []Variable{{Name: "a", Options: []string{"x"}}},
			},
		},
		"null datasource": {
			input: `{"title": "t", "templating": {"list": [{"name": "a", "query": "", "datasource": null}]}}`,
			expected: &Dashboard{
				Title:     "t",
				Variables: []Variable{{Name: "a"}},
			},
		},
		"query object with query field": {
			input: `{"templating": {"list": [{"name": "a", "query": {"query": "SELECT 1"}, "datasource": {"type": "clickhouse"}}]}}`,
			expected: &Dashboard{
				Variables: []Variable{{Name: "a", Query: "SELECT 1", Datasource: &Datasource{Type: "clickhouse"}}},
			},
		},
		"no templating": {
			input:    `{"dashboard": {"title": "empty"}}`,
			expected: &Dashboard{Title: "empty", Variables: []Variable{}},
		},
		"invalid json": {
			input: `{"title": `,
			err:   true,
		},
		"invalid query": {
			input: `{"templating": {"list": [{"name": "a", "query": 42}]}}`,
			err:   true,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			d, err := Parse([]byte(tc.input))
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, d)
		})
	}
}

func TestDatasource_String(t *testing.T) {
	var none *Datasource
	require.Equal(t, "<none>", none.String())
	require.Equal(t, "Graphite", (&Datasource{UID: "Graphite"}).String())
	require.Equal(t, "prom (prometheus)", (&Datasource{Type: "prometheus", UID: "prom"}).String())
}
