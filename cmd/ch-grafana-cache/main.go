package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/multierror"
	"github.com/prometheus/client_golang/prometheus"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/common/version"

	"github.com/grafana/ch-grafana-cache/pkg/cfg"
	"github.com/grafana/ch-grafana-cache/pkg/clickhouse"
	"github.com/grafana/ch-grafana-cache/pkg/grafana"
	util_log "github.com/grafana/ch-grafana-cache/pkg/util/log"
	"github.com/grafana/ch-grafana-cache/pkg/variables"
)

const appName = "ch-grafana-cache"

// Config is the content of the configuration file.
type Config struct {
	ClickHouse clickhouse.Config   `yaml:"clickhouse"`
	Overrides  variables.Overrides `yaml:"overrides"`
}

// Validate implements cfg.Validator.
func (c *Config) Validate() error {
	errs := multierror.New()
	for name, values := range c.Overrides {
		if len(values) == 0 {
			errs.Add(fmt.Errorf("override of variable %s has no values", name))
		}
	}
	return errs.Err()
}

// app holds the state shared by every command.
type app struct {
	cfg     Config
	logCfg  util_log.Config
	grafana grafana.ClientConfig

	configFile     string
	configExpand   bool
	dashboardUID   string
	dashboardFile  string
	pushgatewayURL string

	stdout io.Writer
	stderr io.Writer
	logger log.Logger
	reg    *prometheus.Registry
}

func (a *app) registerFlags(k *kingpin.Application) {
	k.Flag("config.file", "YAML configuration file with the clickhouse and overrides sections. Its values take precedence over flags.").StringVar(&a.configFile)
	k.Flag("config.expand-env", "Expand ${VAR} references in the configuration file using environment variables.").BoolVar(&a.configExpand)
	k.Flag("grafana.url", "URL of the Grafana instance serving the dashboard.").Envar("GRAFANA_URL").SetValue(&a.grafana.URL)
	k.Flag("grafana.token", "Service account token used to fetch the dashboard.").Envar("GRAFANA_TOKEN").SetValue(&a.grafana.Token)
	k.Flag("dashboard", "UID of the dashboard to fetch from Grafana.").StringVar(&a.dashboardUID)
	k.Flag("dashboard.file", "Read the dashboard from a JSON file instead of Grafana.").StringVar(&a.dashboardFile)
	k.Flag("metrics.pushgateway-url", "Push run metrics to this Prometheus Pushgateway once done.").StringVar(&a.pushgatewayURL)
	a.cfg.ClickHouse.RegisterFlags(k)
	a.logCfg.RegisterFlags(k)
}

// setup builds the logger and applies the configuration file on top of the
// flags. Every command calls it first.
func (a *app) setup(needsClickHouse bool) error {
	a.logger = util_log.NewLogger(a.logCfg, log.NewSyncWriter(a.stderr), a.reg)

	if err := cfg.Unmarshal(&a.cfg, cfg.YAML(a.configFile, a.configExpand, true), cfg.Validate()); err != nil {
		return err
	}

	errs := multierror.New()
	if (a.dashboardUID == "") == (a.dashboardFile == "") {
		errs.Add(errors.New("exactly one of --dashboard or --dashboard.file is required"))
	}
	if a.dashboardUID != "" && a.grafana.URL.URL == nil {
		errs.Add(errors.New("--grafana.url is required to fetch a dashboard"))
	}
	if needsClickHouse {
		errs.Add(a.cfg.ClickHouse.Validate())
	}
	return errs.Err()
}

func (a *app) loadDashboard(ctx context.Context) (*grafana.Dashboard, error) {
	if a.dashboardFile != "" {
		return grafana.LoadFile(a.dashboardFile)
	}
	client, err := grafana.NewClient(a.grafana, a.logger)
	if err != nil {
		return nil, err
	}
	return client.Dashboard(ctx, a.dashboardUID)
}

// run parses args and executes the selected command.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{
		stdout: stdout,
		stderr: stderr,
		logger: log.NewLogfmtLogger(log.NewSyncWriter(stderr)),
		reg:    prometheus.NewRegistry(),
	}
	a.reg.MustRegister(versioncollector.NewCollector("ch_grafana_cache"))

	k := kingpin.New(appName, "Warms the ClickHouse query cache behind a Grafana dashboard by replaying its queries for every combination of its variables.")
	k.Version(version.Print(appName))
	k.HelpFlag.Short('h')
	k.UsageWriter(stdout)
	k.ErrorWriter(stderr)
	a.registerFlags(k)

	addPrintCommand(ctx, k, a)
	addCombinationsCommand(ctx, k, a)
	addExecuteCommand(ctx, k, a)

	_, err := k.Parse(args)
	return err
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		level.Error(log.NewLogfmtLogger(os.Stderr)).Log("msg", "ch-grafana-cache failed", "err", err)
		cancel()
		os.Exit(1)
	}
}
