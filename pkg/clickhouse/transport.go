package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/grafana/dskit/backoff"
	"github.com/prometheus/client_golang/prometheus"
)

// drainLimit caps how much of a discarded response is read so the
// connection can be reused.
const drainLimit = 4096

// retryTransport retries connection errors and retryable status codes with
// exponential backoff. Any other response is passed through untouched.
type retryTransport struct {
	next       http.RoundTripper
	cfg        backoff.Config
	maxRetries int
	logger     log.Logger
	retries    *prometheus.CounterVec
}

func newRetryTransport(next http.RoundTripper, cfg backoff.Config, retries *prometheus.CounterVec, logger log.Logger) *retryTransport {
	maxRetries := cfg.MaxRetries
	// dskit counts attempts rather than retries, and treats zero as unlimited.
	cfg.MaxRetries = maxRetries + 1
	return &retryTransport{
		next:       next,
		cfg:        cfg,
		maxRetries: maxRetries,
		logger:     logger,
		retries:    retries,
	}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	b := backoff.New(ctx, t.cfg)

	r := req
	for attempt := 0; ; attempt++ {
		resp, err := t.next.RoundTrip(r)

		reason, retry := retryReason(resp, err)
		if !retry || attempt >= t.maxRetries || ctx.Err() != nil {
			return resp, err
		}
		if resp != nil {
			_, _ = io.CopyN(io.Discard, resp.Body, drainLimit)
			_ = resp.Body.Close()
		}

		level.Warn(t.logger).Log("msg", "transient error querying clickhouse, will retry", "attempt", attempt+1, "reason", reason, "err", err)
		t.retries.WithLabelValues(reason).Inc()

		b.Wait()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if r, err = rewind(req); err != nil {
			return nil, err
		}
	}
}

// retryReason reports whether a round trip outcome is transient, and a short
// label describing why.
func retryReason(resp *http.Response, err error) (string, bool) {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", false
		}
		return "network", true
	}
	switch code := resp.StatusCode; {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code/100 == 5:
		return strconv.Itoa(code), true
	default:
		return "", false
	}
}

// rewind returns a copy of req with a fresh body and query id so it can be
// sent again. ClickHouse refuses a query id still in use by the previous
// attempt.
func rewind(req *http.Request) (*http.Request, error) {
	r := req.Clone(req.Context())
	if params := r.URL.Query(); params.Has(queryIDParam) {
		params.Set(queryIDParam, uuid.NewString())
		r.URL.RawQuery = params.Encode()
	}
	if req.Body == nil || req.Body == http.NoBody {
		return r, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("cannot retry %s %s: request body is not replayable", req.Method, req.URL.Redacted())
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	r.Body = body
	return r, nil
}
