// Package liftoff wires clients, stores, and services into the App consumed
// by the CLI commands.
package liftoff

import (
	"github.com/liftoffhq/liftoff/internal/clients/codehost"
	"github.com/liftoffhq/liftoff/internal/clients/completion"
	"github.com/liftoffhq/liftoff/internal/clients/deploy"
	"github.com/liftoffhq/liftoff/internal/clients/tracker"
	"github.com/liftoffhq/liftoff/internal/core/config"
	"github.com/liftoffhq/liftoff/internal/core/kv"
	"github.com/liftoffhq/liftoff/internal/data/db"
	"github.com/liftoffhq/liftoff/internal/data/stores"
	"github.com/liftoffhq/liftoff/internal/liftoff/provision"
	"github.com/liftoffhq/liftoff/internal/scaffold"
)

// App is the central entry point for all liftoff operations.
// Commands consume App instead of cherry-picking raw dependencies.
type App struct {
	Config     *config.Config
	DB         *db.DB
	KV         kv.KV
	Runs       *stores.RunStore
	Tracker    *tracker.Client
	CodeHost   *codehost.Client
	Deploy     *deploy.Client // nil unless deploy is enabled
	Resolver   provision.Resolver
	Scaffolder *scaffold.Scaffolder
	Doctor     *DoctorService
}

// NewApp constructs an App from explicit dependencies.
func NewApp(
	cfg *config.Config,
	database *db.DB,
	kvStore kv.KV,
	runs *stores.RunStore,
	scaffolder *scaffold.Scaffolder,
) *App {
	app := &App{
		Config:     cfg,
		DB:         database,
		KV:         kvStore,
		Runs:       runs,
		Tracker:    tracker.New(cfg.Tracker.BaseURL, cfg.Tracker.Token),
		CodeHost:   codehost.New(commitIdentity(cfg.Git), cfg.Git.Token),
		Resolver:   newResolver(cfg, kvStore),
		Scaffolder: scaffolder,
		Doctor:     NewDoctorService(cfg),
	}

	if cfg.Deploy.Enabled {
		app.Deploy = deploy.New(cfg.Deploy.BaseURL, cfg.Deploy.Token)
	}

	return app
}

// newResolver picks dependency inference when the completion service is
// configured, falling back to the built-in rule table otherwise.
func newResolver(cfg *config.Config, kvStore kv.KV) provision.Resolver {
	rules := provision.NewRuleResolver(nil)

	if !cfg.Completion.Enabled || cfg.Completion.Token == "" {
		return rules
	}

	client := completion.New(cfg.Completion.BaseURL, cfg.Completion.Token, cfg.Completion.Model)
	cache := kv.Scoped[map[string][]string](kvStore, "inference")
	return provision.NewInferenceResolver(client, rules, cache)
}

// commitIdentity resolves the author for scaffold commits: config first,
// then the global git config.
func commitIdentity(git config.GitConfig) codehost.Identity {
	if git.AuthorName != "" && git.AuthorEmail != "" {
		return codehost.Identity{Name: git.AuthorName, Email: git.AuthorEmail}
	}

	if global, err := codehost.GlobalIdentity(); err == nil && global.Name != "" && global.Email != "" {
		return global
	}

	return codehost.Identity{Name: git.AuthorName, Email: git.AuthorEmail}
}
