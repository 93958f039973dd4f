package doctor

import (
	"context"
	"fmt"

	"github.com/liftoffhq/liftoff/internal/clients/codehost"
	"github.com/liftoffhq/liftoff/internal/core/config"
)

// globalIdentityFunc reads the global git identity.
// Package-level variable to allow test overrides.
var globalIdentityFunc = codehost.GlobalIdentity

// GitIdentityCheck verifies that scaffold commits will carry a useful author.
// Mirrors the wiring in main: config first, then the global git config, then
// the built-in fallback.
type GitIdentityCheck struct {
	git config.GitConfig
}

// NewGitIdentityCheck creates a new git identity check.
func NewGitIdentityCheck(git config.GitConfig) *GitIdentityCheck {
	return &GitIdentityCheck{git: git}
}

func (c *GitIdentityCheck) Name() string {
	return "Git Identity"
}

func (c *GitIdentityCheck) Run(_ context.Context) Result {
	result := Result{Name: c.Name()}

	if c.git.AuthorName != "" && c.git.AuthorEmail != "" {
		result.Items = append(result.Items, CheckItem{
			Label:  "author",
			Status: StatusPass,
			Detail: fmt.Sprintf("%s <%s>", c.git.AuthorName, c.git.AuthorEmail),
		})
		return result
	}

	global, err := globalIdentityFunc()
	if err == nil && global.Name != "" && global.Email != "" {
		result.Items = append(result.Items, CheckItem{
			Label:  "author",
			Status: StatusPass,
			Detail: fmt.Sprintf("%s <%s> (global git config)", global.Name, global.Email),
		})
		return result
	}

	result.Items = append(result.Items, CheckItem{
		Label:  "author",
		Status: StatusWarn,
		Detail: "not configured; commits will be authored as liftoff <liftoff@localhost>",
	})
	return result
}
