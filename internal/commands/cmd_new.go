package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/urfave/cli/v3"

	"github.com/liftoffhq/liftoff/internal/core/workitem"
	"github.com/liftoffhq/liftoff/internal/liftoff"
	"github.com/liftoffhq/liftoff/internal/liftoff/provision"
	"github.com/liftoffhq/liftoff/internal/printer"
	"github.com/liftoffhq/liftoff/pkg/tmpl"
)

type NewCmd struct {
	flags *Flags
	app   *liftoff.App

	// Command-specific flags
	name        string
	description string
	dir         string
	remote      string
	groupName   string
	groupKey    string
	planFile    string
	deploy      bool
	noStart     bool
	yes         bool
}

// NewNewCmd creates a new new command
func NewNewCmd(flags *Flags, app *liftoff.App) *NewCmd {
	return &NewCmd{flags: flags, app: app}
}

// Register adds the new command to the application
func (cmd *NewCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "new",
		Usage:     "Provision a new project",
		UsageText: "liftoff new [options] [name]",
		Description: `Provisions a project end to end: creates the workspace directory,
renders the application scaffold, publishes it to the code host, and
sets up the issue tracker with a seeded work-item plan.

Tracker setup creates the group if it is missing, a container for this
project, any labels the plan references, the work items in plan order,
and blocking relations from dependency resolution. The first unblocked
item is moved to started unless --no-start is given.

If a step fails, everything created during the run is rolled back in
reverse order. Groups cannot be deleted and are reported as manual
cleanup instead.

When the name is omitted, an interactive form prompts for input.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "name",
				Aliases:     []string{"n"},
				Usage:       "project name used for the workspace and tracker container",
				Destination: &cmd.name,
			},
			&cli.StringFlag{
				Name:        "description",
				Usage:       "short project description for the scaffold and tracker",
				Destination: &cmd.description,
			},
			&cli.StringFlag{
				Name:        "dir",
				Aliases:     []string{"d"},
				Usage:       "target directory (defaults to ./<slug>)",
				Destination: &cmd.dir,
			},
			&cli.StringFlag{
				Name:        "remote",
				Aliases:     []string{"r"},
				Usage:       "code host remote URL; omit to skip publishing",
				Destination: &cmd.remote,
			},
			&cli.StringFlag{
				Name:        "group-name",
				Usage:       "tracker group name (defaults to tracker.group_name or the project name)",
				Destination: &cmd.groupName,
			},
			&cli.StringFlag{
				Name:        "group-key",
				Usage:       "tracker group key (defaults to tracker.group_key or is derived from the name)",
				Destination: &cmd.groupKey,
			},
			&cli.StringFlag{
				Name:        "plan",
				Usage:       "path to a YAML work-item plan replacing the built-in one",
				Destination: &cmd.planFile,
			},
			&cli.BoolFlag{
				Name:        "deploy",
				Usage:       "provision a site on the deployment platform after setup",
				Destination: &cmd.deploy,
			},
			&cli.BoolFlag{
				Name:        "no-start",
				Usage:       "leave every work item in the backlog",
				Destination: &cmd.noStart,
			},
			&cli.BoolFlag{
				Name:        "yes",
				Aliases:     []string{"y"},
				Usage:       "skip confirmation prompts",
				Destination: &cmd.yes,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *NewCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	if cmd.name == "" {
		cmd.name = c.Args().First()
	}

	// Show interactive form if name not provided via flag or argument
	if cmd.name == "" {
		if cmd.yes {
			return fmt.Errorf("project name is required with --yes")
		}
		if err := cmd.runForm(); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return nil
			}
			return fmt.Errorf("form: %w", err)
		}
	}

	if cmd.deploy && cmd.app.Deploy == nil {
		return fmt.Errorf("--deploy requires deploy to be enabled in config")
	}

	req, err := cmd.buildRequest()
	if err != nil {
		return err
	}

	deps := provision.Deps{
		Tracker:    cmd.app.Tracker,
		CodeHost:   cmd.app.CodeHost,
		Resolver:   cmd.app.Resolver,
		Scaffolder: cmd.app.Scaffolder,
		Confirmer:  cmd.confirmer(),
		Runs:       cmd.app.Runs,
	}
	if cmd.app.Deploy != nil {
		deps.Deploy = cmd.app.Deploy
	}

	orch := provision.NewOrchestrator(cmd.flags.Config, deps)

	summary, err := orch.Run(ctx, req)
	if err != nil {
		if summary != nil {
			printRollback(p, summary.Rollback)
		}
		if errors.Is(err, provision.ErrUserCancelled) {
			p.Infof("Provisioning cancelled")
			return nil
		}
		return err
	}

	printSummary(p, summary)

	return nil
}

func (cmd *NewCmd) confirmer() provision.Confirmer {
	if cmd.yes {
		return autoConfirmer{}
	}
	return promptConfirmer{}
}

// buildRequest turns flags and config into a provisioning request. Flag values
// win over config values, which win over defaults derived from the name.
func (cmd *NewCmd) buildRequest() (provision.Request, error) {
	cfg := cmd.flags.Config
	slug := tmpl.Slugify(cmd.name)

	dir := cmd.dir
	if dir == "" {
		dir = slug
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return provision.Request{}, fmt.Errorf("resolve target dir: %w", err)
	}

	items, err := cmd.loadItems()
	if err != nil {
		return provision.Request{}, err
	}

	return provision.Request{
		ProjectName: cmd.name,
		Slug:        slug,
		Description: cmd.description,
		TargetDir:   dir,
		RemoteURL:   cmd.remote,
		GroupName:   firstNonEmpty(cmd.groupName, cfg.Tracker.GroupName, cmd.name),
		GroupKey:    firstNonEmpty(cmd.groupKey, cfg.Tracker.GroupKey, deriveGroupKey(cmd.name)),
		Items:       items,
		AutoStart:   cfg.AutoStart() && !cmd.noStart,
		Deploy:      cmd.deploy,
	}, nil
}

func (cmd *NewCmd) loadItems() ([]workitem.Item, error) {
	if cmd.planFile != "" {
		items, err := workitem.LoadPlan(cmd.planFile)
		if err != nil {
			return nil, fmt.Errorf("load plan: %w", err)
		}
		return items, nil
	}
	return workitem.Plan(cmd.name), nil
}

func (cmd *NewCmd) runForm() error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Project name").
				Description("Used for the workspace directory and the tracker container").
				Validate(validateName).
				Value(&cmd.name),
			huh.NewText().
				Title("Description").
				Description("One or two sentences; lands in the README and the tracker").
				Value(&cmd.description),
			huh.NewInput().
				Title("Remote URL").
				Description("Code host remote; leave empty to skip publishing").
				Value(&cmd.remote),
		),
	).Run()
}

func validateName(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// deriveGroupKey builds a tracker group key from the project name: the first
// letters of up to eight words, or the leading letters of a one-word name.
// Falls back to "PRJ" when the name has no usable characters.
func deriveGroupKey(name string) string {
	words := strings.FieldsFunc(strings.ToUpper(name), func(r rune) bool {
		return (r < 'A' || r > 'Z') && (r < '0' || r > '9')
	})

	if len(words) == 1 {
		word := words[0]
		if len(word) > 3 {
			word = word[:3]
		}
		if len(word) >= 2 {
			return word
		}
	}

	var b strings.Builder
	for _, word := range words {
		b.WriteByte(word[0])
		if b.Len() == 8 {
			break
		}
	}
	if b.Len() >= 2 {
		return b.String()
	}

	return "PRJ"
}

func printSummary(p *printer.Printer, s *provision.Summary) {
	elapsed := s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond)

	details := []string{
		fmt.Sprintf("Workspace: %s (%d files)", s.Workspace, s.FilesWritten),
	}
	if s.CommitHash != "" {
		details = append(details, fmt.Sprintf("Published: %s (%s)", s.RemoteURL, shortHash(s.CommitHash)))
	}

	trackerLine := fmt.Sprintf("Tracker: group %s", s.GroupName)
	if s.Build != nil {
		trackerLine += fmt.Sprintf(", %d items, %d relations", s.Build.CreatedItems, s.Build.Relations)
		if s.Build.ReusedItems > 0 {
			trackerLine += fmt.Sprintf(" (%d reused)", s.Build.ReusedItems)
		}
	}
	details = append(details, trackerLine)

	if s.Build != nil && s.Build.StartedTitle != "" {
		details = append(details, fmt.Sprintf("Started: %s", s.Build.StartedTitle))
	}
	if s.Reconcile != nil && s.Reconcile.Moved > 0 {
		details = append(details, fmt.Sprintf("Reconciled: %d orphaned item(s) re-homed", s.Reconcile.Moved))
	}
	if s.SiteDomain != "" {
		details = append(details, fmt.Sprintf("Site: https://%s", s.SiteDomain))
	}
	details = append(details, fmt.Sprintf("Run: %s (%s)", s.RunID, elapsed))

	p.Success(fmt.Sprintf("%s provisioned", s.Project), details...)
}

func printRollback(p *printer.Printer, rb *provision.RollbackReport) {
	if rb == nil {
		return
	}

	if n := len(rb.Cleaned); n > 0 {
		p.Infof("Rolled back %d resource(s)", n)
	}
	for _, failed := range rb.Failed {
		p.Warnf("Rollback incomplete: %s", failed)
	}
	for _, manual := range rb.Manual {
		p.Warnf("Manual cleanup needed: %s", manual)
	}
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}
