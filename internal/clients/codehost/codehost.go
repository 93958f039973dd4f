// Package codehost publishes the scaffolded workspace to the remote code
// host: repository init, the initial commit, remote wiring, and the first
// push. Operations here run once per provisioning step and are not retried;
// a failed push fails the run.
package codehost

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/rs/zerolog"

	"github.com/liftoffhq/liftoff/internal/core/logging"
)

// DefaultRemote is the remote name used for the published repository.
const DefaultRemote = "origin"

// Identity signs the initial commit.
type Identity struct {
	Name  string
	Email string
}

// Client performs git operations on the local workspace.
type Client struct {
	identity Identity
	token    string
	log      zerolog.Logger
}

// New returns a Client. The token, when set, authenticates pushes over HTTPS.
func New(identity Identity, token string) *Client {
	if identity.Name == "" {
		identity.Name = "liftoff"
	}
	if identity.Email == "" {
		identity.Email = "liftoff@localhost"
	}
	return &Client{
		identity: identity,
		token:    token,
		log:      logging.Component("codehost"),
	}
}

// InitRepo initializes a repository in dir with the given default branch.
func (c *Client) InitRepo(ctx context.Context, dir, defaultBranch string) error {
	_, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{
			DefaultBranch: plumbing.NewBranchReferenceName(defaultBranch),
		},
	})
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}

	c.log.Debug().Str("dir", dir).Str("branch", defaultBranch).Msg("initialized repository")
	return nil
}

// CommitAll stages everything in dir and commits it.
func (c *Client) CommitAll(ctx context.Context, dir, message string) (string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return "", fmt.Errorf("open repository: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("get worktree: %w", err)
	}

	if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("stage changes: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  c.identity.Name,
			Email: c.identity.Email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	return hash.String(), nil
}

// AddRemote wires the named remote to url.
func (c *Client) AddRemote(ctx context.Context, dir, name, url string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}

	_, err = repo.CreateRemote(&config.RemoteConfig{
		Name: name,
		URLs: []string{url},
	})
	if err != nil {
		return fmt.Errorf("add remote %s: %w", name, err)
	}

	c.log.Debug().Str("remote", name).Str("url", url).Msg("added remote")
	return nil
}

// Push pushes the branch to the named remote.
func (c *Client) Push(ctx context.Context, dir, remote, branch string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}

	opts := &git.PushOptions{
		RemoteName: remote,
		RefSpecs: []config.RefSpec{
			config.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch)),
		},
	}
	if c.token != "" {
		opts.Auth = &http.BasicAuth{Username: "liftoff", Password: c.token}
	}

	if err := repo.PushContext(ctx, opts); err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil
		}
		return fmt.Errorf("push %s to %s: %w", branch, remote, err)
	}
	return nil
}

// GlobalIdentity reads user.name and user.email from the global git config.
// Used by doctor checks; missing values come back empty, not as errors.
func GlobalIdentity() (Identity, error) {
	cfg, err := config.LoadConfig(config.GlobalScope)
	if err != nil {
		return Identity{}, fmt.Errorf("load global git config: %w", err)
	}
	return Identity{Name: cfg.User.Name, Email: cfg.User.Email}, nil
}
