package doctor

import (
	"context"
	"os"

	"github.com/liftoffhq/liftoff/internal/core/config"
)

// ConfigCheck verifies the configuration file and the credentials it resolves.
type ConfigCheck struct {
	cfg        *config.Config
	configPath string
}

// NewConfigCheck creates a new configuration check.
func NewConfigCheck(cfg *config.Config, configPath string) *ConfigCheck {
	return &ConfigCheck{cfg: cfg, configPath: configPath}
}

func (c *ConfigCheck) Name() string {
	return "Configuration"
}

func (c *ConfigCheck) Run(_ context.Context) Result {
	result := Result{Name: c.Name()}

	result.Items = append(result.Items, c.configFileItem())

	if err := c.cfg.ValidateDeep(c.configPath); err != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "schema",
			Status: StatusFail,
			Detail: err.Error(),
		})
	} else {
		result.Items = append(result.Items, CheckItem{
			Label:  "schema",
			Status: StatusPass,
		})
	}

	result.Items = append(result.Items, c.tokenItems()...)

	return result
}

func (c *ConfigCheck) configFileItem() CheckItem {
	if c.configPath == "" {
		return CheckItem{Label: "config file", Status: StatusPass, Detail: "using defaults"}
	}

	if _, err := os.Stat(c.configPath); os.IsNotExist(err) {
		return CheckItem{
			Label:  "config file",
			Status: StatusWarn,
			Detail: c.configPath + " not found, using defaults (run 'liftoff init')",
		}
	}

	return CheckItem{Label: "config file", Status: StatusPass, Detail: c.configPath}
}

func (c *ConfigCheck) tokenItems() []CheckItem {
	var items []CheckItem

	if c.cfg.Tracker.Token == "" {
		items = append(items, CheckItem{
			Label:  "tracker token",
			Status: StatusFail,
			Detail: "not set (set tracker.token or LIFTOFF_TRACKER_TOKEN)",
		})
	} else {
		items = append(items, CheckItem{Label: "tracker token", Status: StatusPass})
	}

	switch {
	case !c.cfg.Completion.Enabled:
		items = append(items, CheckItem{
			Label:  "completion token",
			Status: StatusPass,
			Detail: "inference disabled, dependency rules apply",
		})
	case c.cfg.Completion.Token == "":
		items = append(items, CheckItem{
			Label:  "completion token",
			Status: StatusWarn,
			Detail: "not set; inference will fall back to rules",
		})
	default:
		items = append(items, CheckItem{Label: "completion token", Status: StatusPass})
	}

	switch {
	case !c.cfg.Deploy.Enabled:
		items = append(items, CheckItem{
			Label:  "deploy token",
			Status: StatusPass,
			Detail: "deploy disabled",
		})
	case c.cfg.Deploy.Token == "":
		items = append(items, CheckItem{
			Label:  "deploy token",
			Status: StatusFail,
			Detail: "deploy is enabled but no token is set (set deploy.token or LIFTOFF_DEPLOY_TOKEN)",
		})
	default:
		items = append(items, CheckItem{Label: "deploy token", Status: StatusPass})
	}

	return items
}
