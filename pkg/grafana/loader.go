package grafana

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/flagext"
	"github.com/pkg/errors"
	"github.com/prometheus/common/config"
	"github.com/prometheus/common/version"
)

const maxErrMsgLen = 1024

var userAgent = fmt.Sprintf("ch-grafana-cache/%s", version.Version)

// LoadFile reads a dashboard from a JSON file.
func LoadFile(filename string) (*Dashboard, error) {
	buf, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "reading dashboard file")
	}
	d, err := Parse(buf)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", filename)
	}
	return d, nil
}

// ClientConfig describes how to reach the Grafana HTTP API.
type ClientConfig struct {
	URL   flagext.URLValue
	Token flagext.Secret
}

// Client fetches dashboards from the Grafana HTTP API.
type Client struct {
	cfg    ClientConfig
	client *http.Client
	logger log.Logger
}

// NewClient makes a new Client. The token, if any, is sent as a bearer
// token.
func NewClient(cfg ClientConfig, logger log.Logger) (*Client, error) {
	if cfg.URL.URL == nil {
		return nil, errors.New("grafana url is required")
	}

	httpCfg := config.DefaultHTTPClientConfig
	if cfg.Token.String() != "" {
		httpCfg.Authorization = &config.Authorization{
			Type:        "Bearer",
			Credentials: config.Secret(cfg.Token.String()),
		}
	}
	if err := httpCfg.Validate(); err != nil {
		return nil, err
	}
	client, err := config.NewClientFromConfig(httpCfg, "grafana", config.WithUserAgent(userAgent))
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:    cfg,
		client: client,
		logger: log.With(logger, "component", "grafana"),
	}, nil
}

// Dashboard fetches the dashboard with the given uid.
func (c *Client) Dashboard(ctx context.Context, uid string) (*Dashboard, error) {
	u := *c.cfg.URL.URL
	u.Path = path.Join(u.Path, "api/dashboards/uid", uid)

	level.Debug(c.logger).Log("msg", "fetching dashboard", "uid", uid, "url", u.Redacted())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching dashboard %s", uid)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		buf, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrMsgLen)) // nolint
		return nil, fmt.Errorf("fetching dashboard %s: server returned HTTP status %s: %s", uid, resp.Status, strings.TrimSpace(string(buf)))
	}

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "reading dashboard %s", uid)
	}
	return Parse(buf)
}
