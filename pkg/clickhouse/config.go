package clickhouse

import (
	"errors"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/grafana/dskit/backoff"
	"github.com/grafana/dskit/flagext"
)

const (
	// Default backoff schedule: 100ms, 200ms, 400ms before the request is
	// given up on.
	MinBackoff = 100 * time.Millisecond
	MaxBackoff = 10 * time.Second
	MaxRetries = 3
)

var defaultBackoffConfig = backoff.Config{
	MinBackoff: MinBackoff,
	MaxBackoff: MaxBackoff,
	MaxRetries: MaxRetries,
}

// Config describes how to reach the ClickHouse HTTP interface.
type Config struct {
	URL      flagext.URLValue `yaml:"url"`
	Username string           `yaml:"username"`
	Password flagext.Secret   `yaml:"password"`

	// Timeout applies to a whole request including reading the response.
	// Zero disables it.
	Timeout time.Duration `yaml:"timeout"`

	// QueriesPerSecond caps the rate of requests sent to ClickHouse, cached
	// results excepted. Zero disables it.
	QueriesPerSecond float64 `yaml:"queries_per_second"`

	// BackoffConfig.MaxRetries is the number of retries after the first
	// attempt, applied to transient failures only. A zero value uses
	// MinBackoff, MaxBackoff and MaxRetries.
	BackoffConfig backoff.Config `yaml:"backoff_config"`
}

// RegisterFlags registers the ClickHouse flags on app. Every flag falls back
// to an environment variable so credentials stay off the command line.
func (c *Config) RegisterFlags(app *kingpin.Application) {
	app.Flag("clickhouse.url", "URL of the ClickHouse HTTP endpoint.").Envar("CLICKHOUSE_URL").SetValue(&c.URL)
	app.Flag("clickhouse.username", "ClickHouse username.").Envar("CLICKHOUSE_USERNAME").Default("default").StringVar(&c.Username)
	app.Flag("clickhouse.password", "ClickHouse password.").Envar("CLICKHOUSE_PASSWORD").SetValue(&c.Password)
	app.Flag("clickhouse.timeout", "Maximum time to wait for a single query, zero means no limit.").Default("0s").DurationVar(&c.Timeout)
	app.Flag("clickhouse.queries-per-second", "Maximum number of queries sent per second, zero means no limit.").Default("0").Float64Var(&c.QueriesPerSecond)
	app.Flag("clickhouse.max-retries", "Maximum number of retries on transient failures.").Default("3").IntVar(&c.BackoffConfig.MaxRetries)
	app.Flag("clickhouse.min-backoff", "Initial backoff time between retries.").Default("100ms").DurationVar(&c.BackoffConfig.MinBackoff)
	app.Flag("clickhouse.max-backoff", "Maximum backoff time between retries.").Default("10s").DurationVar(&c.BackoffConfig.MaxBackoff)
}

// Validate checks the config is usable to build a client.
func (c *Config) Validate() error {
	if c.URL.URL == nil || c.URL.String() == "" {
		return errors.New("clickhouse url is required")
	}
	if c.BackoffConfig.MaxRetries < 0 {
		return errors.New("clickhouse max retries must not be negative")
	}
	if c.QueriesPerSecond < 0 {
		return errors.New("clickhouse queries per second must not be negative")
	}
	return nil
}

// UnmarshalYAML implement Yaml Unmarshaler. Values already present on c,
// usually from flags, are kept unless the document overrides them.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type raw Config
	cfg := raw(*c)
	if cfg.Username == "" {
		cfg.Username = "default"
	}
	if cfg.BackoffConfig == (backoff.Config{}) {
		cfg.BackoffConfig = defaultBackoffConfig
	}

	if err := unmarshal(&cfg); err != nil {
		return err
	}

	*c = Config(cfg)
	return nil
}
