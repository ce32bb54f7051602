package variables

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-kit/log/level"

	"github.com/grafana/ch-grafana-cache/pkg/grafana"
)

// Overrides replaces the candidate values of the named variables.
type Overrides map[string][]string

// UnknownOverridesError lists override names matching no dashboard variable.
type UnknownOverridesError struct {
	Names []string
}

func (e *UnknownOverridesError) Error() string {
	return fmt.Sprintf("overrides reference unknown variables: %s", strings.Join(e.Names, ", "))
}

// Validate checks every override names one of vars.
func (o Overrides) Validate(vars []grafana.Variable) error {
	declared := make(map[string]struct{}, len(vars))
	for _, v := range vars {
		declared[v.Name] = struct{}{}
	}

	var unknown []string
	for name := range o {
		if _, ok := declared[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return &UnknownOverridesError{Names: unknown}
}

// Enumerate returns every assignment of values to vars reachable through
// Variants. Variables are expanded one at a time in declaration order, each
// resolved once per assignment of the variables before it. The first failure
// aborts the enumeration.
//
// With no variables a single empty assignment is returned.
func Enumerate(ctx context.Context, r *Resolver, vars []grafana.Variable) ([]Assignment, error) {
	if err := r.overrides.Validate(vars); err != nil {
		return nil, err
	}

	combinations := []Assignment{{}}
	for _, v := range vars {
		next := make([]Assignment, 0, len(combinations))
		for _, a := range combinations {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			values, err := r.Variants(ctx, v, a)
			if err != nil {
				return nil, fmt.Errorf("resolving variable %s: %w", v.Name, err)
			}
			for _, value := range values {
				extended := a.Clone()
				extended[v.Name] = value
				next = append(next, extended)
			}
		}
		combinations = next
		level.Debug(r.logger).Log("msg", "expanded variable", "variable", v.Name, "kind", v.Kind(), "combinations", len(combinations))
	}
	return combinations, nil
}
