// Package config handles configuration loading and validation for liftoff.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/liftoffhq/liftoff/internal/retry"
)

// Config holds the application configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	Tracker    TrackerConfig    `yaml:"tracker"`
	Completion CompletionConfig `yaml:"completion"`
	Deploy     DeployConfig     `yaml:"deploy"`
	Git        GitConfig        `yaml:"git"`
	Scaffold   ScaffoldConfig   `yaml:"scaffold"`
	Provision  ProvisionConfig  `yaml:"provision"`

	DataDir string `yaml:"-"` // set by caller, not from config file
}

// TrackerConfig points liftoff at the issue tracker workspace.
type TrackerConfig struct {
	BaseURL   string `yaml:"base_url"`
	Token     string `yaml:"token"`
	GroupName string `yaml:"group_name"`
	GroupKey  string `yaml:"group_key"`
}

// CompletionConfig configures the completion service used for dependency
// inference. When disabled, provisioning falls back to the built-in
// dependency rules.
type CompletionConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	Model   string `yaml:"model"`
}

// DeployConfig configures the optional deployment platform.
type DeployConfig struct {
	Enabled      bool   `yaml:"enabled"`
	BaseURL      string `yaml:"base_url"`
	Token        string `yaml:"token"`
	Server       string `yaml:"server"`
	DomainSuffix string `yaml:"domain_suffix"`
	ProjectType  string `yaml:"project_type"`
}

// GitConfig holds commit identity and code host settings.
type GitConfig struct {
	DefaultBranch string `yaml:"default_branch"`
	AuthorName    string `yaml:"author_name"`
	AuthorEmail   string `yaml:"author_email"`
	Token         string `yaml:"token"`
}

// ScaffoldConfig tunes template rendering.
type ScaffoldConfig struct {
	// Exclude lists glob patterns of scaffold files to skip.
	Exclude []string `yaml:"exclude"`
	// Hooks are shell command templates run in the workspace after rendering.
	Hooks []string `yaml:"hooks"`
	// Vars are extra template variables available as {{ .Vars.key }}.
	Vars map[string]any `yaml:"vars"`
	// VarsFiles are YAML files merged into Vars, relative to the config file.
	VarsFiles []string `yaml:"vars_files"`
}

// ProvisionConfig tunes remote call behavior during provisioning.
type ProvisionConfig struct {
	MaxAttempts     int   `yaml:"max_attempts"`
	InitialDelayMS  int   `yaml:"initial_delay_ms"`
	WriteIntervalMS int   `yaml:"write_interval_ms"`
	AutoStart       *bool `yaml:"auto_start"`
}

// RetryPolicy converts the provision settings into a retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:  c.Provision.MaxAttempts,
		InitialDelay: time.Duration(c.Provision.InitialDelayMS) * time.Millisecond,
	}
}

// WriteInterval returns the pause inserted between consecutive remote writes.
func (c *Config) WriteInterval() time.Duration {
	return time.Duration(c.Provision.WriteIntervalMS) * time.Millisecond
}

// AutoStart reports whether the first unblocked work item should be moved
// to the started state after provisioning. Defaults to true.
func (c *Config) AutoStart() bool {
	if c.Provision.AutoStart == nil {
		return true
	}
	return *c.Provision.AutoStart
}

// BackupsDir returns the path where tracker exports are written.
func (c *Config) BackupsDir() string {
	return filepath.Join(c.DataDir, "backups")
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Completion: CompletionConfig{
			BaseURL: "https://api.openai.com",
			Model:   "gpt-4o-mini",
		},
		Deploy: DeployConfig{
			ProjectType: "static",
		},
		Git: GitConfig{
			DefaultBranch: "main",
		},
		Provision: ProvisionConfig{
			MaxAttempts:     3,
			InitialDelayMS:  1000,
			WriteIntervalMS: 250,
		},
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	cfg.applyDefaults()
	cfg.expandSecrets()

	if len(cfg.Scaffold.VarsFiles) > 0 {
		fileVars, err := loadVarsFiles(filepath.Dir(configPath), cfg.Scaffold.VarsFiles)
		if err != nil {
			return nil, err
		}
		// Inline vars override file vars for the same keys.
		mergeMaps(fileVars, cfg.Scaffold.Vars)
		cfg.Scaffold.Vars = fileVars
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.Completion.BaseURL == "" {
		c.Completion.BaseURL = defaults.Completion.BaseURL
	}
	if c.Completion.Model == "" {
		c.Completion.Model = defaults.Completion.Model
	}
	if c.Deploy.ProjectType == "" {
		c.Deploy.ProjectType = defaults.Deploy.ProjectType
	}
	if c.Git.DefaultBranch == "" {
		c.Git.DefaultBranch = defaults.Git.DefaultBranch
	}
	if c.Provision.MaxAttempts == 0 {
		c.Provision.MaxAttempts = defaults.Provision.MaxAttempts
	}
	if c.Provision.InitialDelayMS == 0 {
		c.Provision.InitialDelayMS = defaults.Provision.InitialDelayMS
	}
	if c.Provision.WriteIntervalMS == 0 {
		c.Provision.WriteIntervalMS = defaults.Provision.WriteIntervalMS
	}
}

// expandSecrets resolves ${ENV} references in token fields and falls back to
// the LIFTOFF_* environment variables when a token is unset. Tokens never
// have a baked-in default.
func (c *Config) expandSecrets() {
	c.Tracker.Token = expandSecret(c.Tracker.Token, "LIFTOFF_TRACKER_TOKEN")
	c.Completion.Token = expandSecret(c.Completion.Token, "LIFTOFF_COMPLETION_TOKEN")
	c.Deploy.Token = expandSecret(c.Deploy.Token, "LIFTOFF_DEPLOY_TOKEN")
	c.Git.Token = expandSecret(c.Git.Token, "LIFTOFF_GIT_TOKEN")
}

func expandSecret(value, envKey string) string {
	value = strings.TrimSpace(os.ExpandEnv(value))
	if value == "" {
		value = os.Getenv(envKey)
	}
	return value
}
