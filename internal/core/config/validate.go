package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hay-kot/criterio"
	"github.com/rs/zerolog"

	"github.com/liftoffhq/liftoff/pkg/tmpl"
)

// HookTemplateData defines available fields for scaffold hook command templates.
type HookTemplateData struct {
	Name string // Project name as given by the user
	Slug string // Slugified project name
	Dir  string // Absolute path to the workspace directory
	Vars map[string]any
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// Validate checks that the configuration is structurally valid.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("log_level", c.LogLevel, validLogLevel),
		criterio.Run("data_dir", c.DataDir, notEmpty),
		criterio.Run("tracker.base_url", c.Tracker.BaseURL, validURLIfSet),
		criterio.Run("tracker.group_key", c.Tracker.GroupKey, validGroupKeyIfSet),
		criterio.Run("completion.base_url", c.Completion.BaseURL, validURLIfSet),
		criterio.Run("deploy.base_url", c.Deploy.BaseURL, validURLIfSet),
		c.validateDeploy(),
		c.validateProvision(),
		c.validateScaffold(),
	)
}

// ValidateDeep performs comprehensive validation including file accessibility.
// This calls Validate() first for basic structural validation, then adds I/O
// checks. The configPath argument specifies the config file location to
// validate (empty string skips the config file check).
func (c *Config) ValidateDeep(configPath string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return criterio.ValidateStruct(
		validateConfigFile(configPath),
		criterio.Run("data_dir", c.DataDir, isDirectoryOrNotExist),
	)
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	if c.Tracker.Token == "" {
		warnings = append(warnings, ValidationWarning{
			Category: "Tracker",
			Message:  "no tracker token configured; set tracker.token or LIFTOFF_TRACKER_TOKEN",
		})
	}
	if c.Deploy.Enabled && c.Deploy.Token == "" {
		warnings = append(warnings, ValidationWarning{
			Category: "Deploy",
			Message:  "deploy is enabled but no token is configured; set deploy.token or LIFTOFF_DEPLOY_TOKEN",
		})
	}
	if c.Completion.Enabled && c.Completion.Token == "" {
		warnings = append(warnings, ValidationWarning{
			Category: "Completion",
			Message:  "completion is enabled but no token is configured; dependency inference will fall back to rules",
		})
	}

	return warnings
}

func (c *Config) validateDeploy() error {
	if !c.Deploy.Enabled {
		return nil
	}

	var errs criterio.FieldErrorsBuilder
	if c.Deploy.BaseURL == "" {
		errs = errs.Append("deploy.base_url", fmt.Errorf("required when deploy is enabled"))
	}
	if c.Deploy.Server == "" {
		errs = errs.Append("deploy.server", fmt.Errorf("required when deploy is enabled"))
	}
	return errs.ToError()
}

func (c *Config) validateProvision() error {
	var errs criterio.FieldErrorsBuilder
	if c.Provision.MaxAttempts < 1 {
		errs = errs.Append("provision.max_attempts", fmt.Errorf("must be at least 1"))
	}
	if c.Provision.InitialDelayMS < 0 {
		errs = errs.Append("provision.initial_delay_ms", fmt.Errorf("cannot be negative"))
	}
	if c.Provision.WriteIntervalMS < 0 {
		errs = errs.Append("provision.write_interval_ms", fmt.Errorf("cannot be negative"))
	}
	return errs.ToError()
}

// validateScaffold checks exclude globs and hook command templates.
func (c *Config) validateScaffold() error {
	var errs criterio.FieldErrorsBuilder
	for i, pattern := range c.Scaffold.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			errs = errs.Append(fmt.Sprintf("scaffold.exclude[%d]", i), fmt.Errorf("invalid glob pattern %q", pattern))
		}
	}
	for i, hook := range c.Scaffold.Hooks {
		if err := validateTemplate(hook, hookValidationData(c.Scaffold.Vars)); err != nil {
			errs = errs.Append(fmt.Sprintf("scaffold.hooks[%d]", i), fmt.Errorf("template error: %w", err))
		}
	}
	return errs.ToError()
}

func validateConfigFile(configPath string) error {
	if configPath == "" {
		return nil
	}

	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil // not found is fine, using defaults
	}
	if err != nil {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("cannot access: %w", err))
	}
	if info.IsDir() {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
	}
	return nil
}

func validLogLevel(level string) error {
	if level == "" {
		return nil
	}
	if _, err := zerolog.ParseLevel(level); err != nil {
		return fmt.Errorf("unknown level %q", level)
	}
	return nil
}

func notEmpty(s string) error {
	if s == "" {
		return fmt.Errorf("cannot be empty")
	}
	return nil
}

func validURLIfSet(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("URL is missing a host")
	}
	return nil
}

// validGroupKeyIfSet checks the tracker group key shape: short, uppercase
// letters and digits, the way tracker UIs display issue identifiers.
func validGroupKeyIfSet(key string) error {
	if key == "" {
		return nil
	}
	if len(key) < 2 || len(key) > 8 {
		return fmt.Errorf("must be 2-8 characters")
	}
	for _, r := range key {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return fmt.Errorf("must contain only uppercase letters and digits")
		}
	}
	return nil
}

// isDirectoryOrNotExist validates that a path is a directory or doesn't exist.
func isDirectoryOrNotExist(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil // will be created
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exists but is not a directory")
	}
	return nil
}

// hookValidationData constructs test data for hook template validation.
// Placeholder values are used since output is discarded.
func hookValidationData(vars map[string]any) HookTemplateData {
	return HookTemplateData{
		Name: "test-project",
		Slug: "test-project",
		Dir:  "/tmp/test-project",
		Vars: vars,
	}
}

// validateTemplate checks if a template string is valid.
func validateTemplate(tmplStr string, data any) error {
	_, err := tmpl.Render(tmplStr, data)
	return err
}
