package clickhouse

import (
	"errors"
	"strings"
)

const (
	lineDelimiter  = "\n"
	fieldDelimiter = "\t"
)

var errInconsistentColumns = errors.New("inconsistent column sizes")

// Row is one line of a TabSeparated result, one entry per column.
type Row []string

// NumCols returns the number of columns in the row.
func (r Row) NumCols() int {
	return len(r)
}

// parseTabSeparated splits a TabSeparated body into rows. Values are kept as
// sent by the server, escape sequences included. Every row must have the
// same number of columns as the first one.
func parseTabSeparated(body string) ([]Row, error) {
	if body == "" {
		return nil, nil
	}

	lines := strings.Split(strings.TrimSuffix(body, lineDelimiter), lineDelimiter)
	rows := make([]Row, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		rows = append(rows, Row(strings.Split(line, fieldDelimiter)))
	}

	for _, r := range rows[1:] {
		if r.NumCols() != rows[0].NumCols() {
			return nil, errInconsistentColumns
		}
	}
	return rows, nil
}

func cloneRows(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = append(Row(nil), r...)
	}
	return out
}
