package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/grafana/ch-grafana-cache/pkg/clickhouse"
	"github.com/grafana/ch-grafana-cache/pkg/grafana"
	"github.com/grafana/ch-grafana-cache/pkg/replay"
	"github.com/grafana/ch-grafana-cache/pkg/variables"
)

const pushJob = "ch_grafana_cache"

// combinationsCommand prints every combination of the dashboard variables.
type combinationsCommand struct {
	app *app
}

func addCombinationsCommand(ctx context.Context, k *kingpin.Application, a *app) {
	cmd := &combinationsCommand{app: a}
	k.Command("combinations", "Resolve the dashboard variables and print every combination of their values.").Action(func(_ *kingpin.ParseContext) error {
		return cmd.run(ctx)
	})
}

func (cmd *combinationsCommand) run(ctx context.Context) error {
	_, _, assignments, err := cmd.app.enumerate(ctx)
	if err != nil {
		return err
	}
	for _, a := range assignments {
		fmt.Fprintln(cmd.app.stdout, a)
	}
	return nil
}

// executeCommand replays the panel queries for every combination.
type executeCommand struct {
	app *app
}

func addExecuteCommand(ctx context.Context, k *kingpin.Application, a *app) {
	cmd := &executeCommand{app: a}
	k.Command("execute", "Replay every panel query for every combination of the dashboard variables.").Action(func(_ *kingpin.ParseContext) error {
		return cmd.run(ctx)
	})
}

func (cmd *executeCommand) run(ctx context.Context) error {
	a := cmd.app
	d, client, assignments, err := a.enumerate(ctx)
	if err != nil {
		return err
	}

	level.Info(a.logger).Log("msg", "replaying panel queries", "dashboard", d.Title, "combinations", len(assignments), "panels", len(d.Panels))
	stats, runErr := replay.NewRunner(client, a.reg, a.logger).Run(ctx, d, assignments)
	if runErr == nil {
		printStats(a.stdout, stats)
	}

	if err := a.push(ctx, d); err != nil {
		level.Warn(a.logger).Log("msg", "failed to push metrics", "err", err)
	}
	return runErr
}

func printStats(w io.Writer, stats replay.Stats) {
	color.New(color.Bold).Fprintln(w, "Done:")
	fmt.Fprintf(w, "\tcombinations: %d, queries: %d, duration: %v\n", stats.Combinations, stats.Queries, stats.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "\treceived: %v, rows read by ClickHouse: %s\n", humanize.Bytes(uint64(stats.Bytes)), humanize.Comma(int64(stats.Rows)))
}

// enumerate loads the dashboard and resolves every combination of its
// variables.
func (a *app) enumerate(ctx context.Context) (*grafana.Dashboard, *clickhouse.Client, []variables.Assignment, error) {
	if err := a.setup(true); err != nil {
		return nil, nil, nil, err
	}
	d, err := a.loadDashboard(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	client, err := clickhouse.New(a.cfg.ClickHouse, a.reg, a.logger)
	if err != nil {
		return nil, nil, nil, err
	}

	start := time.Now()
	level.Info(a.logger).Log("msg", "resolving variables", "dashboard", d.Title, "variables", len(d.Variables), "clickhouse", client.URL())
	resolver := variables.NewResolver(client, a.cfg.Overrides, a.logger)
	assignments, err := variables.Enumerate(ctx, resolver, d.Variables)
	if err != nil {
		return nil, nil, nil, err
	}
	level.Info(a.logger).Log("msg", "resolved variables", "combinations", len(assignments), "cached_queries", client.CachedQueries(), "duration", time.Since(start))
	return d, client, assignments, nil
}

// push sends the metrics of the run to the Pushgateway, if one is set.
func (a *app) push(ctx context.Context, d *grafana.Dashboard) error {
	if a.pushgatewayURL == "" {
		return nil
	}
	pusher := push.New(a.pushgatewayURL, pushJob).Gatherer(a.reg)
	if d.UID != "" {
		pusher = pusher.Grouping("dashboard", d.UID)
	}
	return pusher.PushContext(ctx)
}
