package clickhouse

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"
)

const (
	summaryHeader = "X-ClickHouse-Summary"
	queryIDHeader = "X-ClickHouse-Query-Id"
	cacheHeader   = "X-Cache"
)

// QueryOutput describes a query executed for its side effects only.
type QueryOutput struct {
	// Bytes received in the response body.
	Bytes int64
	// Reported by the server in the summary header, zero when absent.
	ReadRows   uint64
	ReadBytes  uint64
	ResultRows uint64
}

// Add accumulates other into o.
func (o *QueryOutput) Add(other QueryOutput) {
	o.Bytes += other.Bytes
	o.ReadRows += other.ReadRows
	o.ReadBytes += other.ReadBytes
	o.ResultRows += other.ResultRows
}

// summary mirrors the X-ClickHouse-Summary header, which encodes every
// counter as a JSON string.
type summary struct {
	ReadRows   uint64 `json:"read_rows,string"`
	ReadBytes  uint64 `json:"read_bytes,string"`
	ResultRows uint64 `json:"result_rows,string"`
}

func parseSummary(h http.Header) (summary, bool) {
	raw := h.Get(summaryHeader)
	if raw == "" {
		return summary{}, false
	}
	var s summary
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(raw, &s); err != nil {
		return summary{}, false
	}
	return s, true
}
