package initcmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"gopkg.in/yaml.v3"

	"github.com/liftoffhq/liftoff/internal/clients/codehost"
	"github.com/liftoffhq/liftoff/internal/core/config"
	"github.com/liftoffhq/liftoff/internal/core/doctor"
	"github.com/liftoffhq/liftoff/internal/printer"
)

// WizardOptions configures the wizard behavior.
type WizardOptions struct {
	ConfigPath string
	Yes        bool // skip prompts, use defaults
	Force      bool // overwrite existing config
}

// Wizard orchestrates the init process.
type Wizard struct {
	opts WizardOptions
}

// NewWizard creates a new init wizard.
func NewWizard(opts WizardOptions) *Wizard {
	return &Wizard{opts: opts}
}

// Run executes the wizard.
func (w *Wizard) Run(ctx context.Context) error {
	p := printer.Ctx(ctx)

	// Check for existing config
	if ConfigExists(w.opts.ConfigPath) && !w.opts.Force {
		if w.opts.Yes {
			return fmt.Errorf("config exists at %s; use --force to overwrite", w.opts.ConfigPath)
		}

		var overwrite bool
		err := huh.NewConfirm().
			Title("Config file already exists").
			Description(w.opts.ConfigPath + "\nOverwrite? (a backup will be created)").
			Value(&overwrite).
			Run()
		if err != nil {
			return err
		}
		if !overwrite {
			p.Infof("Init cancelled")
			return nil
		}
	}

	cfg := config.DefaultConfig()

	// Prefill commit identity from the global git config when available.
	if ident, err := codehost.GlobalIdentity(); err == nil {
		cfg.Git.AuthorName = ident.Name
		cfg.Git.AuthorEmail = ident.Email
	}

	if !w.opts.Yes {
		if err := w.promptUser(&cfg); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				p.Infof("Init cancelled")
				return nil
			}
			return err
		}
	}

	// Backup existing config if needed
	if ConfigExists(w.opts.ConfigPath) {
		backupPath, err := BackupConfig(w.opts.ConfigPath)
		if err != nil {
			return fmt.Errorf("backup config: %w", err)
		}
		if backupPath != "" {
			p.Successf("Backed up config to: %s", backupPath)
		}
	}

	if err := WriteConfig(&cfg, w.opts.ConfigPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	p.Successf("Created config: %s", w.opts.ConfigPath)

	// Show the new config the way doctor sees it
	p.Printf("")
	result := doctor.NewConfigCheck(&cfg, w.opts.ConfigPath).Run(ctx)

	p.Section(result.Name)
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

	w.printNextSteps(p, &cfg)

	return nil
}

func (w *Wizard) promptUser(cfg *config.Config) error {
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Tracker base URL").
				Description("Issue tracker API endpoint; leave empty to set it later").
				Validate(validateURLOrEmpty).
				Value(&cfg.Tracker.BaseURL),
			huh.NewInput().
				Title("Tracker group name").
				Description("Group that receives new projects; leave empty to use the project name").
				Value(&cfg.Tracker.GroupName),
			huh.NewInput().
				Title("Tracker group key").
				Description("2-8 uppercase letters or digits; leave empty to derive it per project").
				Validate(validateGroupKeyOrEmpty).
				Value(&cfg.Tracker.GroupKey),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable dependency inference?").
				Description("Uses a completion service to infer work-item dependencies; falls back to rules").
				Value(&cfg.Completion.Enabled),
			huh.NewConfirm().
				Title("Enable deployment?").
				Description("Provisions a site on the deployment platform after publishing").
				Value(&cfg.Deploy.Enabled),
		),
	).Run()
	if err != nil {
		return err
	}

	if cfg.Completion.Enabled {
		err := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Completion base URL").
				Validate(validateURLOrEmpty).
				Value(&cfg.Completion.BaseURL),
			huh.NewInput().
				Title("Completion model").
				Value(&cfg.Completion.Model),
		)).Run()
		if err != nil {
			return err
		}
	}

	if cfg.Deploy.Enabled {
		err := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Deploy base URL").
				Validate(validateURLOrEmpty).
				Value(&cfg.Deploy.BaseURL),
			huh.NewInput().
				Title("Deploy server").
				Description("Server name or ID on the deployment platform").
				Value(&cfg.Deploy.Server),
			huh.NewInput().
				Title("Site domain suffix").
				Description("Sites are created as <slug><suffix>, e.g. .sites.example.com").
				Value(&cfg.Deploy.DomainSuffix),
		)).Run()
		if err != nil {
			return err
		}
	}

	return nil
}

// WriteConfig marshals the configuration to YAML at path, creating parent
// directories as needed. Tokens are read from the environment at load time;
// the generated file only documents the fields.
func WriteConfig(cfg *config.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

func (w *Wizard) printNextSteps(p *printer.Printer, cfg *config.Config) {
	p.Printf("")
	p.Section("Next Steps")

	step := 1
	p.Printf("  %d. Export your tracker token: export LIFTOFF_TRACKER_TOKEN=...", step)
	step++

	if cfg.Completion.Enabled {
		p.Printf("  %d. Export your completion token: export LIFTOFF_COMPLETION_TOKEN=...", step)
		step++
	}

	if cfg.Deploy.Enabled {
		p.Printf("  %d. Export your deploy token: export LIFTOFF_DEPLOY_TOKEN=...", step)
		step++
	}

	p.Printf("  %d. Run 'liftoff doctor' to verify your setup", step)
	step++
	p.Printf("  %d. Run 'liftoff new' to provision your first project", step)
}

func validateURLOrEmpty(s string) error {
	if s == "" {
		return nil
	}
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return fmt.Errorf("must start with http:// or https://")
	}
	return nil
}

func validateGroupKeyOrEmpty(s string) error {
	if s == "" {
		return nil
	}
	if len(s) < 2 || len(s) > 8 {
		return fmt.Errorf("must be 2-8 characters")
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return fmt.Errorf("uppercase letters and digits only")
		}
	}
	return nil
}
