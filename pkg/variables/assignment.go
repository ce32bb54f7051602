package variables

import (
	"sort"
	"strings"
)

// Assignment maps a variable name to the single value chosen for it.
type Assignment map[string]string

// Clone returns a copy that can be extended without touching the receiver.
func (a Assignment) Clone() Assignment {
	c := make(Assignment, len(a)+1)
	for k, v := range a {
		c[k] = v
	}
	return c
}

// String renders the assignment as sorted name=value pairs.
func (a Assignment) String() string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteByte('{')
	for i, name := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(a[name])
	}
	b.WriteByte('}')
	return b.String()
}
