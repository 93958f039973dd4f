package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/liftoffhq/liftoff/internal/liftoff"
	"github.com/liftoffhq/liftoff/internal/liftoff/provision"
	"github.com/liftoffhq/liftoff/pkg/iojson"
)

type RunsCmd struct {
	flags *Flags
	app   *liftoff.App

	// Command-specific flags
	limit      int
	jsonOutput bool
}

// NewRunsCmd creates a new runs command
func NewRunsCmd(flags *Flags, app *liftoff.App) *RunsCmd {
	return &RunsCmd{flags: flags, app: app}
}

// Register adds the runs command to the application
func (cmd *RunsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "runs",
		Usage:     "List past provisioning runs",
		UsageText: "liftoff runs [--limit n] [--json]",
		Description: `Lists provisioning run history, newest first. Rolled-back runs show
the step that failed and any resources that could not be cleaned up.

Use --json for one JSON record per line.`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "limit",
				Usage:       "maximum number of runs to show",
				Value:       20,
				Destination: &cmd.limit,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output one JSON record per line",
				Destination: &cmd.jsonOutput,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *RunsCmd) run(ctx context.Context, c *cli.Command) error {
	runs, err := cmd.app.Runs.List(ctx, cmd.limit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	if len(runs) == 0 {
		if !cmd.jsonOutput {
			fmt.Fprintf(os.Stderr, "No runs recorded\n")
		}
		return nil
	}

	out := c.Root().Writer

	if cmd.jsonOutput {
		for _, run := range runs {
			if err := iojson.WriteLine(out, cmd.buildRunInfo(run)); err != nil {
				return fmt.Errorf("encode run: %w", err)
			}
		}
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPROJECT\tSTATUS\tITEMS\tWHEN")

	for _, run := range runs {
		items := fmt.Sprintf("%d", run.Counts.ItemsCreated)
		if run.Counts.ItemsReused > 0 {
			items = fmt.Sprintf("%d (+%d reused)", run.Counts.ItemsCreated, run.Counts.ItemsReused)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			run.ID, run.Project, run.Status, items, run.StartedAt.Format(time.DateTime))
	}

	_ = w.Flush()

	var leaked []provision.RunRecord
	for _, run := range runs {
		if len(run.Leaks) > 0 {
			leaked = append(leaked, run)
		}
	}
	if len(leaked) > 0 {
		_, _ = fmt.Fprintln(out)
		fmt.Fprintf(os.Stderr, "%d run(s) left resources behind:\n", len(leaked))
		for _, run := range leaked {
			for _, leak := range run.Leaks {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", run.ID, leak)
			}
		}
	}

	return nil
}

// runInfo is the JSON output format for liftoff runs --json.
type runInfo struct {
	ID           string   `json:"id"`
	Project      string   `json:"project"`
	Workspace    string   `json:"workspace"`
	Status       string   `json:"status"`
	Error        string   `json:"error,omitempty"`
	ItemsCreated int      `json:"items_created"`
	ItemsReused  int      `json:"items_reused"`
	Labels       int      `json:"labels_created"`
	Relations    int      `json:"relations"`
	OrphansMoved int      `json:"orphans_moved"`
	Leaks        []string `json:"leaks,omitempty"`
	StartedAt    string   `json:"started_at"`
	FinishedAt   string   `json:"finished_at"`
}

func (cmd *RunsCmd) buildRunInfo(run provision.RunRecord) runInfo {
	return runInfo{
		ID:           run.ID,
		Project:      run.Project,
		Workspace:    run.Workspace,
		Status:       run.Status,
		Error:        run.Error,
		ItemsCreated: run.Counts.ItemsCreated,
		ItemsReused:  run.Counts.ItemsReused,
		Labels:       run.Counts.LabelsCreated,
		Relations:    run.Counts.Relations,
		OrphansMoved: run.Counts.OrphansMoved,
		Leaks:        run.Leaks,
		StartedAt:    run.StartedAt.Format(time.RFC3339),
		FinishedAt:   run.FinishedAt.Format(time.RFC3339),
	}
}
