package grafana

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind tells how the candidate values of a variable are obtained.
type Kind int

const (
	// KindStatic variables have no datasource and list their options.
	KindStatic Kind = iota
	// KindClickHouse variables run their query against ClickHouse.
	KindClickHouse
	// KindUnsupported variables use any other datasource.
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindClickHouse:
		return "clickhouse"
	default:
		return "unsupported"
	}
}

// Dashboard is the subset of a Grafana dashboard model needed to replay its
// queries. It is not modified after being decoded.
type Dashboard struct {
	UID       string
	Title     string
	Variables []Variable
	// Panels holds every panel in document order. Panels nested in a
	// collapsed row follow the row itself.
	Panels []Panel
}

// Variable is a dashboard template variable. Variables may only reference
// the ones declared before them.
type Variable struct {
	Name       string
	Type       string
	Query      string
	Options    []string
	Datasource *Datasource
}

// Kind returns how the variable is resolved.
func (v Variable) Kind() Kind {
	switch {
	case v.Datasource == nil:
		return KindStatic
	case strings.Contains(strings.ToLower(v.Datasource.Type), "clickhouse"):
		return KindClickHouse
	default:
		return KindUnsupported
	}
}

// Datasource references the datasource a variable or panel queries. Old
// dashboards only carry the datasource name, which ends up in UID.
type Datasource struct {
	Type string `json:"type"`
	UID  string `json:"uid"`
}

func (d *Datasource) String() string {
	if d == nil {
		return "<none>"
	}
	if d.Type == "" {
		return d.UID
	}
	return fmt.Sprintf("%s (%s)", d.UID, d.Type)
}

// UnmarshalJSON accepts both a datasource name and a {type, uid} reference.
func (d *Datasource) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*d = Datasource{UID: name}
		return nil
	}
	type raw Datasource
	return json.Unmarshal(data, (*raw)(d))
}

// Panel is a dashboard panel and the SQL of its targets.
type Panel struct {
	ID      int
	Title   string
	Type    string
	Targets []Target
}

// Target is one query of a panel.
type Target struct {
	RefID  string `json:"refId"`
	RawSQL string `json:"rawSql"`
}

// Queries returns the SQL of every target that has one.
func (p Panel) Queries() []string {
	var out []string
	for _, t := range p.Targets {
		if t.RawSQL != "" {
			out = append(out, t.RawSQL)
		}
	}
	return out
}

func (p Panel) String() string {
	return fmt.Sprintf("panel %d %q", p.ID, p.Title)
}

// VariableQueries returns the query templates of the ClickHouse variables.
func (d *Dashboard) VariableQueries() []string {
	var out []string
	for _, v := range d.Variables {
		if v.Kind() == KindClickHouse {
			out = append(out, v.Query)
		}
	}
	return out
}

// PanelQueries returns the query templates of every panel target.
func (d *Dashboard) PanelQueries() []string {
	var out []string
	for _, p := range d.Panels {
		out = append(out, p.Queries()...)
	}
	return out
}

// Parse decodes a dashboard, either bare or wrapped in the envelope returned
// by the Grafana dashboards API.
func Parse(data []byte) (*Dashboard, error) {
	var envelope struct {
		Dashboard jsoniter.RawMessage `json:"dashboard"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, errors.Wrap(err, "decoding dashboard")
	}
	if len(envelope.Dashboard) > 0 && string(envelope.Dashboard) != "null" {
		data = envelope.Dashboard
	}

	var raw jsonDashboard
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decoding dashboard")
	}
	return raw.dashboard(), nil
}

type jsonDashboard struct {
	UID        string      `json:"uid"`
	Title      string      `json:"title"`
	Panels     []jsonPanel `json:"panels"`
	Templating struct {
		List []jsonVariable `json:"list"`
	} `json:"templating"`
}

type jsonVariable struct {
	Name       string      `json:"name"`
	Type       string      `json:"type"`
	Query      jsonQuery   `json:"query"`
	Datasource *Datasource `json:"datasource"`
	Options    []struct {
		Value string `json:"value"`
	} `json:"options"`
}

type jsonPanel struct {
	ID      int         `json:"id"`
	Title   string      `json:"title"`
	Type    string      `json:"type"`
	Targets []Target    `json:"targets"`
	Panels  []jsonPanel `json:"panels"`
}

// jsonQuery is a variable query. Depending on the datasource plugin and its
// version Grafana stores it as a plain string or as an object.
type jsonQuery string

func (q *jsonQuery) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*q = jsonQuery(s)
		return nil
	}
	var obj struct {
		Query  string `json:"query"`
		RawSQL string `json:"rawSql"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.RawSQL != "" {
		*q = jsonQuery(obj.RawSQL)
	} else {
		*q = jsonQuery(obj.Query)
	}
	return nil
}

func (d jsonDashboard) dashboard() *Dashboard {
	out := &Dashboard{
		UID:       d.UID,
		Title:     d.Title,
		Variables: make([]Variable, 0, len(d.Templating.List)),
	}
	for _, v := range d.Templating.List {
		variable := Variable{
			Name:       v.Name,
			Type:       v.Type,
			Query:      string(v.Query),
			Datasource: v.Datasource,
		}
		for _, o := range v.Options {
			variable.Options = append(variable.Options, o.Value)
		}
		out.Variables = append(out.Variables, variable)
	}
	out.Panels = flattenPanels(nil, d.Panels)
	return out
}

func flattenPanels(dst []Panel, panels []jsonPanel) []Panel {
	for _, p := range panels {
		dst = append(dst, Panel{ID: p.ID, Title: p.Title, Type: p.Type, Targets: p.Targets})
		dst = flattenPanels(dst, p.Panels)
	}
	return dst
}
