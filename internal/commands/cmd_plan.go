package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/liftoffhq/liftoff/internal/core/workitem"
	"github.com/liftoffhq/liftoff/internal/liftoff"
	"github.com/liftoffhq/liftoff/internal/printer"
	"github.com/liftoffhq/liftoff/pkg/iojson"
)

type PlanCmd struct {
	flags *Flags
	app   *liftoff.App

	// Command-specific flags
	name     string
	planFile string
	format   string
}

// NewPlanCmd creates a new plan command
func NewPlanCmd(flags *Flags, app *liftoff.App) *PlanCmd {
	return &PlanCmd{flags: flags, app: app}
}

// Register adds the plan command to the application
func (cmd *PlanCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "plan",
		Usage:     "Preview the work-item plan without touching the tracker",
		UsageText: "liftoff plan [options] [name]",
		Description: `Resolves the work-item plan the way 'liftoff new' would and prints the
result: items in creation order, their dependencies after resolution,
and which item auto-start would pick. Nothing is created.

Dependency resolution uses inference when a completion service is
configured, otherwise the built-in rules.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "name",
				Aliases:     []string{"n"},
				Usage:       "project name used by the built-in plan",
				Destination: &cmd.name,
			},
			&cli.StringFlag{
				Name:        "plan",
				Usage:       "path to a YAML work-item plan replacing the built-in one",
				Destination: &cmd.planFile,
			},
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *PlanCmd) run(ctx context.Context, c *cli.Command) error {
	if cmd.name == "" {
		cmd.name = c.Args().First()
	}
	if cmd.name == "" {
		cmd.name = "Untitled Project"
	}

	var items []workitem.Item
	var err error
	if cmd.planFile != "" {
		items, err = workitem.LoadPlan(cmd.planFile)
		if err != nil {
			return fmt.Errorf("load plan: %w", err)
		}
	} else {
		items = workitem.Plan(cmd.name)
	}

	if err := workitem.Validate(items); err != nil {
		return fmt.Errorf("validate plan: %w", err)
	}

	resolved, err := cmd.app.Resolver.Resolve(ctx, items)
	if err != nil {
		return fmt.Errorf("resolve dependencies: %w", err)
	}

	cycle := workitem.DetectCycle(resolved)
	first := workitem.FirstUnblocked(resolved)

	if cmd.format == "json" {
		return cmd.writeJSON(c, resolved, cycle, first)
	}

	cmd.writeText(ctx, resolved, cycle, first)
	return nil
}

func (cmd *PlanCmd) writeText(ctx context.Context, items []workitem.Item, cycle []string, first int) {
	p := printer.Ctx(ctx)

	p.Section(fmt.Sprintf("Plan: %s (%d items)", cmd.name, len(items)))

	for i, item := range items {
		line := fmt.Sprintf("%2d. %s [%s]", i+1, item.Title, item.Priority)
		if len(item.Labels) > 0 {
			line += "  " + strings.Join(item.Labels, ", ")
		}
		p.Printf("%s", line)
		if len(item.DependsOn) > 0 {
			p.Printf("      after: %s", strings.Join(item.DependsOn, "; "))
		}
	}

	p.Printf("")
	if len(cycle) > 0 {
		p.Warnf("Dependency cycle: %s (the tracker may reject these relations)", strings.Join(cycle, " -> "))
	}
	if first >= 0 {
		p.Infof("Auto-start would pick: %s", items[first].Title)
	} else {
		p.Warnf("No unblocked item; auto-start would have nothing to pick")
	}
}

func (cmd *PlanCmd) writeJSON(c *cli.Command, items []workitem.Item, cycle []string, first int) error {
	type planItem struct {
		Title      string   `json:"title"`
		Priority   string   `json:"priority"`
		Labels     []string `json:"labels,omitempty"`
		DependsOn  []string `json:"depends_on,omitempty"`
		Category   string   `json:"category,omitempty"`
		Complexity string   `json:"complexity,omitempty"`
	}

	out := struct {
		Project        string     `json:"project"`
		Items          []planItem `json:"items"`
		Cycle          []string   `json:"cycle,omitempty"`
		FirstUnblocked string     `json:"first_unblocked,omitempty"`
	}{
		Project: cmd.name,
		Cycle:   cycle,
	}
	for _, item := range items {
		out.Items = append(out.Items, planItem{
			Title:      item.Title,
			Priority:   item.Priority.String(),
			Labels:     item.Labels,
			DependsOn:  item.DependsOn,
			Category:   item.Category,
			Complexity: item.Complexity,
		})
	}
	if first >= 0 {
		out.FirstUnblocked = items[first].Title
	}

	return iojson.WriteWith(c.Root().Writer, os.Stderr, out)
}
