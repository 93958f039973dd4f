package commands

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/liftoffhq/liftoff/internal/core/doctor"
	"github.com/liftoffhq/liftoff/internal/liftoff"
	"github.com/liftoffhq/liftoff/internal/printer"
	"github.com/liftoffhq/liftoff/pkg/iojson"
)

type DoctorCmd struct {
	flags   *Flags
	app     *liftoff.App
	format  string
	autofix bool
}

func NewDoctorCmd(flags *Flags, app *liftoff.App) *DoctorCmd {
	return &DoctorCmd{flags: flags, app: app}
}

func (cmd *DoctorCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "doctor",
		Usage:       "Run health checks on your liftoff setup",
		UsageText:   "liftoff doctor [options]",
		Description: "Runs diagnostic checks on configuration, tokens, the data directory, git identity, and scaffold hooks.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
			&cli.BoolFlag{
				Name:        "autofix",
				Usage:       "automatically fix issues (e.g., create the data directory)",
				Destination: &cmd.autofix,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *DoctorCmd) run(ctx context.Context, c *cli.Command) error {
	results := cmd.app.Doctor.RunChecks(ctx, cmd.flags.ConfigPath, cmd.autofix)

	if cmd.format == "json" {
		return cmd.outputJSON(c, results)
	}

	return cmd.outputText(ctx, results)
}

func (cmd *DoctorCmd) outputJSON(c *cli.Command, results []doctor.Result) error {
	passed, warned, failed := doctor.Summary(results)

	out := struct {
		Healthy bool            `json:"healthy"`
		Summary summaryJSON     `json:"summary"`
		Checks  []doctor.Result `json:"checks"`
	}{
		Healthy: failed == 0,
		Summary: summaryJSON{Passed: passed, Warned: warned, Failed: failed},
		Checks:  results,
	}

	return iojson.WriteWith(c.Root().Writer, os.Stderr, out)
}

type summaryJSON struct {
	Passed int `json:"passed"`
	Warned int `json:"warned"`
	Failed int `json:"failed"`
}

func (cmd *DoctorCmd) outputText(ctx context.Context, results []doctor.Result) error {
	p := printer.Ctx(ctx)

	p.Printf("")
	p.Section("Liftoff Doctor")
	p.Printf("")

	for _, result := range results {
		p.Header(result.Name)

		for _, item := range result.Items {
			switch item.Status {
			case doctor.StatusPass:
				p.CheckItem(item.Label, item.Detail)
			case doctor.StatusWarn:
				p.WarnItem(item.Label, item.Detail)
			case doctor.StatusFail:
				p.FailItem(item.Label, item.Detail)
			}
		}

		p.Printf("")
	}

	passed, warned, failed := doctor.Summary(results)
	p.Summary(passed, warned, failed)

	if !cmd.autofix {
		fixable := doctor.CountFixable(results)
		if fixable > 0 {
			p.Printf("")
			p.Infof("Run 'liftoff doctor --autofix' to fix %d issue(s)", fixable)
		}
	}

	if failed > 0 {
		return cli.Exit("", 1)
	}

	return nil
}
