package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/liftoffhq/liftoff/internal/commands"
	"github.com/liftoffhq/liftoff/internal/core/config"
	"github.com/liftoffhq/liftoff/internal/core/logging"
	"github.com/liftoffhq/liftoff/internal/data/db"
	"github.com/liftoffhq/liftoff/internal/data/stores"
	"github.com/liftoffhq/liftoff/internal/liftoff"
	"github.com/liftoffhq/liftoff/internal/liftoff/sweep"
	"github.com/liftoffhq/liftoff/internal/liftoff/updatecheck"
	"github.com/liftoffhq/liftoff/internal/printer"
	"github.com/liftoffhq/liftoff/internal/scaffold"
	"github.com/liftoffhq/liftoff/pkg/executil"
	"github.com/liftoffhq/liftoff/pkg/logutils"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	// When installed via `go install module@version`, init() populates
	// these from runtime/debug.BuildInfo instead.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	v, c, d := version, commit, date

	// When installed via `go install module@version`, ldflags aren't set
	// so version remains "dev". Fall back to runtime/debug.BuildInfo which
	// Go populates automatically with the module version and VCS metadata.
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if mv := info.Main.Version; mv != "" && mv != "(devel)" {
				v = mv
			}
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					c = s.Value
				case "vcs.time":
					d = s.Value
				}
			}
		}
	}

	short := c
	if len(c) > 7 {
		short = c[:7]
	}

	return fmt.Sprintf("%s (%s) %s", v, short, d)
}

func main() {
	ctx := context.Background()

	// Tokens are usually exported in the shell; a .env in the working
	// directory works too.
	_ = godotenv.Load()

	var (
		logCloser   func()
		liftoffApp  = &liftoff.App{}
		database    *db.DB
		sweepCancel context.CancelFunc
	)

	flags := &commands.Flags{}

	app := &cli.Command{
		Name:      "liftoff",
		Usage:     "Provision new projects end to end",
		UsageText: "liftoff [global options] command [command options]",
		Description: `Liftoff scaffolds a project workspace, publishes it to your code host,
and seeds your issue tracker with a dependency-ordered work plan. If
anything fails along the way, everything the run created is rolled
back.

Run 'liftoff init' once to generate a config, then 'liftoff new' to
provision a project.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("LIFTOFF_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (defaults to <data-dir>/liftoff.log)",
				Sources:     cli.EnvVars("LIFTOFF_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("LIFTOFF_CONFIG"),
				Value:       commands.DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "path to data directory",
				Sources:     cli.EnvVars("LIFTOFF_DATA_DIR"),
				Value:       commands.DefaultDataDir(),
				Destination: &flags.DataDir,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			// Always log to a file; use explicit path or default to <datadir>/liftoff.log
			logFile := flags.LogFile
			if logFile == "" {
				logFile = filepath.Join(flags.DataDir, "liftoff.log")
			}

			logger, closer, err := logutils.New(flags.LogLevel, logFile)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger.Hook(logging.ContextHook{})
			logCloser = closer

			// User-facing output goes to stderr so stdout stays parseable
			ctx = printer.WithCtx(ctx, printer.New(os.Stderr))

			cfg, err := config.Load(flags.ConfigPath, flags.DataDir)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			flags.Config = cfg

			// Open database connection
			if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
				return ctx, fmt.Errorf("create data dir: %w", err)
			}
			database, err = db.Open(cfg.DataDir, db.DefaultOpenOptions())
			if err != nil {
				return ctx, fmt.Errorf("open database: %w", err)
			}

			// Create stores
			kvStore := stores.NewKVStore(database)
			runStore := stores.NewRunStore(database)

			// Start background KV sweep goroutine
			sweepCtx, cancel := context.WithCancel(context.Background())
			sweepCancel = cancel
			go sweep.Start(sweepCtx, kvStore, 5*time.Minute)

			scaffolder, err := scaffold.New(scaffold.Options{
				Exclude: cfg.Scaffold.Exclude,
				Hooks:   cfg.Scaffold.Hooks,
				Runner:  executil.RealRunner{},
			})
			if err != nil {
				return ctx, fmt.Errorf("load scaffold assets: %w", err)
			}

			// Populate the pre-allocated App struct (commands already hold a pointer to it)
			*liftoffApp = *liftoff.NewApp(cfg, database, kvStore, runStore, scaffolder)

			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			// Stop background sweep
			if sweepCancel != nil {
				sweepCancel()
			}

			// Close database connection
			if database != nil {
				if err := database.Close(); err != nil {
					log.Error().Err(err).Msg("failed to close database")
					return err
				}
			}

			// Close log file
			if logCloser != nil {
				logCloser()
			}
			return nil
		},
	}

	app = commands.NewNewCmd(flags, liftoffApp).Register(app)
	app = commands.NewPlanCmd(flags, liftoffApp).Register(app)
	app = commands.NewReconcileCmd(flags, liftoffApp).Register(app)
	app = commands.NewRunsCmd(flags, liftoffApp).Register(app)
	app = commands.NewDoctorCmd(flags, liftoffApp).Register(app)
	app = commands.NewConfigValidateCmd(flags).Register(app)
	app = commands.NewInitCmd(flags).Register(app)

	exitCode := 0
	runErr := app.Run(ctx, os.Args)
	if runErr != nil {
		fmt.Println()
		fmt.Println(runErr.Error())
		exitCode = 1
	}

	if runErr == nil {
		notifyUpdate(ctx, liftoffApp)
	}

	os.Exit(exitCode)
}

// notifyUpdate prints a hint when a newer release exists. The result is
// cached, so most invocations never touch the network.
func notifyUpdate(ctx context.Context, app *liftoff.App) {
	if app.KV == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	result, err := updatecheck.Check(ctx, app.KV, version)
	if err != nil || result == nil {
		return
	}

	fmt.Fprintf(os.Stderr, "\nliftoff %s is available (you have %s). See https://github.com/liftoffhq/liftoff/releases\n",
		result.Latest, result.Current)
}
