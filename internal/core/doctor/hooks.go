package doctor

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/liftoffhq/liftoff/internal/core/config"
	"github.com/liftoffhq/liftoff/pkg/tmpl"
)

// lookPathFunc is the function used to find executables on PATH.
// Package-level variable to allow test overrides.
var lookPathFunc = exec.LookPath

// HooksCheck verifies that configured scaffold hooks can run: the shell is on
// PATH and every hook command template renders.
type HooksCheck struct {
	scaffold config.ScaffoldConfig
}

// NewHooksCheck creates a new scaffold hooks check.
func NewHooksCheck(scaffold config.ScaffoldConfig) *HooksCheck {
	return &HooksCheck{scaffold: scaffold}
}

func (c *HooksCheck) Name() string {
	return "Scaffold Hooks"
}

func (c *HooksCheck) Run(_ context.Context) Result {
	result := Result{Name: c.Name()}

	if len(c.scaffold.Hooks) == 0 {
		result.Items = append(result.Items, CheckItem{
			Label:  "hooks",
			Status: StatusPass,
			Detail: "none configured",
		})
		return result
	}

	if path, err := lookPathFunc("sh"); err != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "sh",
			Status: StatusFail,
			Detail: "not found on PATH (hooks run through sh)",
		})
	} else {
		result.Items = append(result.Items, CheckItem{
			Label:  "sh",
			Status: StatusPass,
			Detail: path,
		})
	}

	data := config.HookTemplateData{
		Name: "test-project",
		Slug: "test-project",
		Dir:  "/tmp/test-project",
		Vars: c.scaffold.Vars,
	}
	for i, hook := range c.scaffold.Hooks {
		label := fmt.Sprintf("hooks[%d]", i)
		if _, err := tmpl.Render(hook, data); err != nil {
			result.Items = append(result.Items, CheckItem{
				Label:  label,
				Status: StatusFail,
				Detail: fmt.Sprintf("template error: %v", err),
			})
			continue
		}
		result.Items = append(result.Items, CheckItem{
			Label:  label,
			Status: StatusPass,
			Detail: hook,
		})
	}

	return result
}
