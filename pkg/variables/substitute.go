package variables

import (
	"fmt"
	"strings"

	"github.com/grafana/regexp"
)

// missingPlaceholder replaces unresolved tokens so the scan can continue.
const missingPlaceholder = "ERROR"

var variableRE = regexp.MustCompile(`\$\{(.*?)\}`)

// SubstitutionError lists every variable referenced by a template that the
// assignment did not provide, in order of appearance.
type SubstitutionError struct {
	Missing []string
}

func (e *SubstitutionError) Error() string {
	lines := make([]string, 0, len(e.Missing))
	for _, name := range e.Missing {
		lines = append(lines, fmt.Sprintf("variable %s not found", name))
	}
	return "encountered substitution errors:\n  " + strings.Join(lines, "\n  ")
}

// Substitute replaces every ${name} token in template with its value from
// the assignment. Substituted text is not scanned again. All missing names
// are reported together in a single *SubstitutionError.
func Substitute(template string, assignment Assignment) (string, error) {
	var missing []string

	out := variableRE.ReplaceAllStringFunc(template, func(token string) string {
		name := token[2 : len(token)-1]
		if value, ok := assignment[name]; ok {
			return value
		}
		missing = append(missing, name)
		return missingPlaceholder
	})

	if len(missing) > 0 {
		return "", &SubstitutionError{Missing: missing}
	}
	return out, nil
}

// References returns the distinct variable names referenced by template, in
// order of first appearance.
func References(template string) []string {
	var (
		seen  = map[string]struct{}{}
		names []string
	)
	for _, m := range variableRE.FindAllStringSubmatch(template, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}
