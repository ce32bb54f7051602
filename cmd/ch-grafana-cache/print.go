package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"

	"github.com/grafana/ch-grafana-cache/pkg/grafana"
	"github.com/grafana/ch-grafana-cache/pkg/variables"
)

// printCommand prints the variables and panel queries of a dashboard.
type printCommand struct {
	app *app
}

func addPrintCommand(ctx context.Context, k *kingpin.Application, a *app) {
	cmd := &printCommand{app: a}
	k.Command("print", "Print the variables and panel queries of the dashboard.").Action(func(_ *kingpin.ParseContext) error {
		return cmd.run(ctx)
	})
}

func (cmd *printCommand) run(ctx context.Context) error {
	if err := cmd.app.setup(false); err != nil {
		return err
	}
	d, err := cmd.app.loadDashboard(ctx)
	if err != nil {
		return err
	}
	printDashboard(cmd.app.stdout, d)
	return nil
}

func printDashboard(w io.Writer, d *grafana.Dashboard) {
	bold := color.New(color.Bold)
	heading := color.New(color.FgCyan, color.Bold)

	bold.Fprintf(w, "Dashboard: %s", d.Title)
	if d.UID != "" {
		fmt.Fprintf(w, " (%s)", d.UID)
	}
	fmt.Fprintln(w)

	heading.Fprintf(w, "\nVariables (%d):\n", len(d.Variables))
	for _, v := range d.Variables {
		bold.Fprintf(w, "  %s", v.Name)
		fmt.Fprintf(w, " [%s]\n", v.Kind())
		switch v.Kind() {
		case grafana.KindStatic:
			fmt.Fprintf(w, "    options: %s\n", strings.Join(v.Options, ", "))
		case grafana.KindClickHouse:
			printQuery(w, v.Query)
		default:
			fmt.Fprintf(w, "    datasource: %s\n", v.Datasource)
		}
	}

	heading.Fprintf(w, "\nPanels (%d):\n", len(d.Panels))
	for _, p := range d.Panels {
		queries := p.Queries()
		if len(queries) == 0 {
			continue
		}
		bold.Fprintf(w, "  %s", p)
		fmt.Fprintf(w, " [%s]\n", p.Type)
		for _, q := range queries {
			printQuery(w, q)
		}
	}
}

func printQuery(w io.Writer, query string) {
	for _, line := range strings.Split(strings.TrimSpace(query), "\n") {
		fmt.Fprintf(w, "    %s\n", line)
	}
	if refs := variables.References(query); len(refs) > 0 {
		color.New(color.Faint).Fprintf(w, "    depends on: %s\n", strings.Join(refs, ", "))
	}
}
