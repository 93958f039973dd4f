package config

import (
	"path/filepath"
	"testing"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a Config with all required fields set for testing.
func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	return &cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig(t)
	cfg.Tracker = TrackerConfig{
		BaseURL:   "https://tracker.example.com",
		GroupName: "Platform",
		GroupKey:  "PLT",
	}
	cfg.Scaffold = ScaffoldConfig{
		Exclude: []string{"docs/**", "web/*.css"},
		Hooks:   []string{"echo {{ .Slug | shq }}"},
	}

	assert.NoError(t, cfg.Validate())
}

func TestValidate_MissingDataDir(t *testing.T) {
	cfg := DefaultConfig()

	err := cfg.Validate()

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Contains(t, fieldErrs[0].Field, "data_dir")
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := validConfig(t)
	cfg.LogLevel = "verbose"

	err := cfg.Validate()

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Contains(t, fieldErrs[0].Field, "log_level")
	assert.Contains(t, fieldErrs[0].Err.Error(), "unknown level")
}

func TestValidate_BadTrackerURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"missing scheme", "tracker.example.com"},
		{"bad scheme", "ftp://tracker.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			cfg.Tracker.BaseURL = tt.url

			err := cfg.Validate()

			var fieldErrs criterio.FieldErrors
			require.ErrorAs(t, err, &fieldErrs)
			assert.Contains(t, fieldErrs[0].Field, "tracker.base_url")
		})
	}
}

func TestValidate_BadGroupKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"lowercase", "plt"},
		{"too short", "P"},
		{"too long", "PLATFORM9"},
		{"punctuation", "PL-T"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			cfg.Tracker.GroupKey = tt.key

			err := cfg.Validate()

			var fieldErrs criterio.FieldErrors
			require.ErrorAs(t, err, &fieldErrs)
			assert.Contains(t, fieldErrs[0].Field, "tracker.group_key")
		})
	}
}

func TestValidate_DeployEnabledRequiresServer(t *testing.T) {
	cfg := validConfig(t)
	cfg.Deploy.Enabled = true
	cfg.Deploy.BaseURL = "https://deploy.example.com"

	err := cfg.Validate()

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Contains(t, fieldErrs[0].Field, "deploy.server")
}

func TestValidate_DeployDisabledSkipsChecks(t *testing.T) {
	cfg := validConfig(t)
	cfg.Deploy.Enabled = false
	cfg.Deploy.BaseURL = ""
	cfg.Deploy.Server = ""

	assert.NoError(t, cfg.Validate())
}

func TestValidate_ProvisionBounds(t *testing.T) {
	cfg := validConfig(t)
	cfg.Provision.MaxAttempts = 0
	cfg.Provision.InitialDelayMS = -1

	err := cfg.Validate()

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Len(t, fieldErrs, 2)
	assert.Contains(t, fieldErrs[0].Field, "provision.max_attempts")
	assert.Contains(t, fieldErrs[1].Field, "provision.initial_delay_ms")
}

func TestValidate_BadExcludeGlob(t *testing.T) {
	cfg := validConfig(t)
	cfg.Scaffold.Exclude = []string{"docs/**", "[bad"}

	err := cfg.Validate()

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Len(t, fieldErrs, 1)
	assert.Contains(t, fieldErrs[0].Field, "scaffold.exclude[1]")
	assert.Contains(t, fieldErrs[0].Err.Error(), "invalid glob")
}

func TestValidate_BadHookTemplate(t *testing.T) {
	cfg := validConfig(t)
	cfg.Scaffold.Hooks = []string{"echo {{ .Slug }", "echo {{ .Missing }}"}

	err := cfg.Validate()

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Len(t, fieldErrs, 2)
	assert.Contains(t, fieldErrs[0].Field, "scaffold.hooks[0]")
	assert.Contains(t, fieldErrs[0].Err.Error(), "template error")
}

func TestValidate_HookTemplateWithVars(t *testing.T) {
	cfg := validConfig(t)
	cfg.Scaffold.Vars = map[string]any{"org": "acme"}
	cfg.Scaffold.Hooks = []string{"echo {{ .Vars.org }}/{{ .Slug }}"}

	assert.NoError(t, cfg.Validate())
}

func TestValidateDeep_ConfigPathIsDirectory(t *testing.T) {
	cfg := validConfig(t)

	err := cfg.ValidateDeep(t.TempDir())

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Contains(t, fieldErrs[0].Field, "config_file")
}

func TestValidateDeep_MissingConfigFileIsFine(t *testing.T) {
	cfg := validConfig(t)

	assert.NoError(t, cfg.ValidateDeep(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestValidateDeep_DataDirIsFile(t *testing.T) {
	cfg := validConfig(t)
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, writeTestFile(file, "x"))
	cfg.DataDir = file

	err := cfg.ValidateDeep("")

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Contains(t, fieldErrs[0].Field, "data_dir")
}

func TestWarnings(t *testing.T) {
	cfg := validConfig(t)
	cfg.Deploy.Enabled = true
	cfg.Deploy.BaseURL = "https://deploy.example.com"
	cfg.Deploy.Server = "web-01"

	warnings := cfg.Warnings()

	categories := make([]string, 0, len(warnings))
	for _, w := range warnings {
		categories = append(categories, w.Category)
	}
	assert.Contains(t, categories, "Tracker", "missing tracker token should warn")
	assert.Contains(t, categories, "Deploy", "deploy enabled without token should warn")
}

func TestWarnings_CleanConfig(t *testing.T) {
	cfg := validConfig(t)
	cfg.Tracker.Token = "tok"
	cfg.Deploy.Enabled = false
	cfg.Completion.Enabled = false

	assert.Empty(t, cfg.Warnings())
}
