package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	initcmd "github.com/liftoffhq/liftoff/internal/commands/init"
)

type InitCmd struct {
	flags *Flags
	yes   bool
	force bool
}

func NewInitCmd(flags *Flags) *InitCmd {
	return &InitCmd{flags: flags}
}

func (cmd *InitCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "init",
		Usage:     "Initialize liftoff configuration with an interactive wizard",
		UsageText: "liftoff init [options]",
		Description: `Sets up liftoff for first-time use with an interactive wizard.

The wizard will:
  - Generate ~/.config/liftoff/config.yaml with sensible defaults
  - Prefill the commit identity from your global git config
  - Optionally enable dependency inference and deployment

Tokens are never written to the file; export LIFTOFF_TRACKER_TOKEN and
friends instead.

Use --yes to accept all defaults without prompts.
Use --force to overwrite existing configuration.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "yes",
				Aliases:     []string{"y"},
				Usage:       "accept defaults without prompting",
				Destination: &cmd.yes,
			},
			&cli.BoolFlag{
				Name:        "force",
				Aliases:     []string{"f"},
				Usage:       "overwrite existing configuration",
				Destination: &cmd.force,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *InitCmd) run(ctx context.Context, c *cli.Command) error {
	wizard := initcmd.NewWizard(initcmd.WizardOptions{
		ConfigPath: cmd.flags.ConfigPath,
		Yes:        cmd.yes,
		Force:      cmd.force,
	})
	return wizard.Run(ctx)
}
