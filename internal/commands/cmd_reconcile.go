package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/liftoffhq/liftoff/internal/liftoff"
	"github.com/liftoffhq/liftoff/internal/liftoff/provision"
	"github.com/liftoffhq/liftoff/internal/printer"
	"github.com/liftoffhq/liftoff/pkg/iojson"
)

type ReconcileCmd struct {
	flags *Flags
	app   *liftoff.App

	// Command-specific flags
	groupKey string
	format   string
	yes      bool
}

// NewReconcileCmd creates a new reconcile command
func NewReconcileCmd(flags *Flags, app *liftoff.App) *ReconcileCmd {
	return &ReconcileCmd{flags: flags, app: app}
}

// Register adds the reconcile command to the application
func (cmd *ReconcileCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "reconcile",
		Usage:     "Re-home orphaned work items in a tracker group",
		UsageText: "liftoff reconcile [options]",
		Description: `Sweeps work items in the group that belong to no container. Items
carrying a version label (v1, v2.3, ...) move into a "Release vX"
container; the rest move into "Needs Triage". Containers are created
on first use. After moving, missing blocking relations from the
built-in dependency rules are restored and the first unblocked
backlog item per touched container is started.

Individual failures are logged and counted; the sweep itself always
completes.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "group-key",
				Usage:       "tracker group key (defaults to tracker.group_key)",
				Destination: &cmd.groupKey,
			},
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
			&cli.BoolFlag{
				Name:        "yes",
				Aliases:     []string{"y"},
				Usage:       "skip the confirmation prompt",
				Destination: &cmd.yes,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ReconcileCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)
	cfg := cmd.flags.Config

	key := firstNonEmpty(cmd.groupKey, cfg.Tracker.GroupKey)
	if key == "" {
		return fmt.Errorf("group key is required (set --group-key or tracker.group_key)")
	}

	group, found, err := cmd.app.Tracker.FindGroup(ctx, key)
	if err != nil {
		return fmt.Errorf("find group: %w", err)
	}
	if !found {
		return fmt.Errorf("group %q not found in tracker", key)
	}

	if !cmd.yes {
		ok, err := promptConfirmer{}.Confirm(ctx, fmt.Sprintf("Reconcile group %s?", group.Name),
			"Orphaned items will be moved into release or triage containers.")
		if err != nil {
			return fmt.Errorf("confirm: %w", err)
		}
		if !ok {
			p.Infof("Reconcile cancelled")
			return nil
		}
	}

	rec := provision.NewReconciler(cmd.app.Tracker, cfg.RetryPolicy(), provision.NewPacer(cfg.WriteInterval()))
	report := rec.Reconcile(ctx, group.ID)

	if cmd.format == "json" {
		out := struct {
			Group      string   `json:"group"`
			Orphans    int      `json:"orphans"`
			Moved      int      `json:"moved"`
			Containers []string `json:"containers,omitempty"`
			Relations  int      `json:"relations"`
			Started    []string `json:"started,omitempty"`
			Errors     int      `json:"errors"`
		}{
			Group:      group.Name,
			Orphans:    report.Orphans,
			Moved:      report.Moved,
			Containers: report.Containers,
			Relations:  report.Relations,
			Started:    report.Started,
			Errors:     report.Errors,
		}
		return iojson.WriteWith(c.Root().Writer, os.Stderr, out)
	}

	if report.Orphans == 0 {
		p.Successf("No orphaned items in %s", group.Name)
		return nil
	}

	details := []string{
		fmt.Sprintf("%d orphan(s) found, %d moved", report.Orphans, report.Moved),
	}
	if len(report.Containers) > 0 {
		details = append(details, fmt.Sprintf("Containers: %s", strings.Join(report.Containers, ", ")))
	}
	if report.Relations > 0 {
		details = append(details, fmt.Sprintf("Relations restored: %d", report.Relations))
	}
	for _, title := range report.Started {
		details = append(details, fmt.Sprintf("Started: %s", title))
	}
	p.Success(fmt.Sprintf("Reconciled %s", group.Name), details...)

	if report.Errors > 0 {
		p.Warnf("%d item(s) could not be processed; see the log for details", report.Errors)
	}

	return nil
}
