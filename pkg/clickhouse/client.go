package clickhouse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/grafana/dskit/backoff"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/config"
	"github.com/prometheus/common/version"
	"golang.org/x/time/rate"

	"github.com/grafana/ch-grafana-cache/pkg/cache"
)

const (
	formatTabSeparated = "TabSeparated"
	formatNative       = "Native"

	queryIDParam = "query_id"

	// maxErrMsgLen caps how much of an error response is kept.
	maxErrMsgLen = 64 * 1024
)

var userAgent = fmt.Sprintf("ch-grafana-cache/%s", version.Version)

// StatusError is returned when ClickHouse answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.Status, e.Body)
}

// Client executes queries against the ClickHouse HTTP interface. Results of
// TabSeparated queries can be cached by their exact text for the lifetime of
// the client; the cache is safe for concurrent use.
type Client struct {
	cfg     Config
	logger  log.Logger
	client  *http.Client
	cache   cache.Cache[[]Row]
	limiter *rate.Limiter
	metrics *metrics
}

// New makes a new Client.
func New(cfg Config, reg prometheus.Registerer, logger log.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.BackoffConfig == (backoff.Config{}) {
		cfg.BackoffConfig = defaultBackoffConfig
	}

	httpCfg := config.DefaultHTTPClientConfig
	httpCfg.BasicAuth = &config.BasicAuth{
		Username: cfg.Username,
		Password: config.Secret(cfg.Password.String()),
	}
	if err := httpCfg.Validate(); err != nil {
		return nil, err
	}

	client, err := config.NewClientFromConfig(httpCfg, "clickhouse")
	if err != nil {
		return nil, err
	}
	m := newMetrics(reg)
	client.Transport = newRetryTransport(client.Transport, cfg.BackoffConfig, m.retries, logger)
	client.Timeout = cfg.Timeout

	limit := rate.Inf
	if cfg.QueriesPerSecond > 0 {
		limit = rate.Limit(cfg.QueriesPerSecond)
	}

	return &Client{
		cfg:     cfg,
		logger:  log.With(logger, "component", "clickhouse", "host", cfg.URL.Host),
		client:  client,
		cache:   cache.Instrument[[]Row]("query", cache.NewMemory[[]Row](), m.cache),
		limiter: rate.NewLimiter(limit, 1),
		metrics: m,
	}, nil
}

// Query runs query and parses the TabSeparated result. With useCache set, a
// result previously obtained for the exact same text is returned without a
// round trip, and a fresh result is remembered. The lock protecting the
// cache is never held while the query is in flight, so two concurrent misses
// for the same text both reach the server.
func (c *Client) Query(ctx context.Context, query string, useCache bool) ([]Row, error) {
	if useCache {
		if rows, ok := c.cache.Fetch(ctx, query); ok {
			return cloneRows(rows), nil
		}
	}

	level.Debug(c.logger).Log("msg", "sending query", "format", formatTabSeparated)
	resp, err := c.send(ctx, query, formatTabSeparated)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	level.Debug(c.logger).Log("msg", "received response", "query_id", resp.Header.Get(queryIDHeader), "hit", resp.Header.Get(cacheHeader) == "HIT")

	body, err := io.ReadAll(resp.Body)
	c.metrics.receivedBytes.WithLabelValues(formatTabSeparated).Add(float64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	rows, err := parseTabSeparated(string(body))
	if err != nil {
		return nil, err
	}

	if useCache {
		c.cache.Store(ctx, query, cloneRows(rows))
	}
	return rows, nil
}

// QueryNative runs query requesting the Native format and consumes the whole
// response without decoding it. Reading the body to the end is what lets the
// server complete the query and populate its own cache. It is never served
// from the local cache.
func (c *Client) QueryNative(ctx context.Context, query string) (QueryOutput, error) {
	level.Debug(c.logger).Log("msg", "sending query", "format", formatNative)
	resp, err := c.send(ctx, query, formatNative)
	if err != nil {
		return QueryOutput{}, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(io.Discard, resp.Body)
	c.metrics.receivedBytes.WithLabelValues(formatNative).Add(float64(n))
	if err != nil {
		return QueryOutput{}, fmt.Errorf("reading response: %w", err)
	}

	out := QueryOutput{Bytes: n}
	if s, ok := parseSummary(resp.Header); ok {
		out.ReadRows, out.ReadBytes, out.ResultRows = s.ReadRows, s.ReadBytes, s.ResultRows
	}
	level.Debug(c.logger).Log("msg", "received response", "query_id", resp.Header.Get(queryIDHeader), "bytes", n, "read_rows", out.ReadRows)
	return out, nil
}

// CachedQueries returns how many distinct query texts are cached.
func (c *Client) CachedQueries() int {
	return c.cache.Len()
}

// send posts query and returns the response when the status is 2xx. The
// caller must close the body.
func (c *Client) send(ctx context.Context, query, format string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, query, format)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.requests.WithLabelValues(format, "error").Inc()
		return nil, err
	}
	status := strconv.Itoa(resp.StatusCode)
	c.metrics.requests.WithLabelValues(format, status).Inc()
	c.metrics.requestDuration.WithLabelValues(format, status).Observe(time.Since(start).Seconds())

	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		buf, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrMsgLen)) // nolint
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(buf)),
		}
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, query, format string) (*http.Request, error) {
	u := *c.cfg.URL.URL
	params := u.Query()
	params.Set("default_format", format)
	params.Set(queryIDParam, uuid.NewString())
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(query))
	if err != nil {
		return nil, err
	}
	// Stream the query text rather than announcing its length upfront.
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	return req, nil
}

// URL returns the ClickHouse endpoint with credentials redacted.
func (c *Client) URL() string {
	return c.cfg.URL.URL.Redacted()
}
