// Package config handles configuration loading for triage. It supports XDG
// config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for triage.
type Config struct {
	Providers ProvidersConfig `mapstructure:"providers"`
	Router    RouterConfig    `mapstructure:"router"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Coder     CoderConfig     `mapstructure:"coder"`
	Server    ServerConfig    `mapstructure:"server"`
	Session   SessionConfig   `mapstructure:"session"`
	TUI       TUIConfig       `mapstructure:"tui"`
}

// ProvidersConfig selects LLM backends per routing role. A role left empty
// uses Default.
type ProvidersConfig struct {
	// Default names the backend used for every role without an override:
	// anthropic, openai, or gemini.
	Default    string `mapstructure:"default"`
	Classifier string `mapstructure:"classifier"`
	Refiner    string `mapstructure:"refiner"`
	Answerer   string `mapstructure:"answerer"`

	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	MaxTokens  int    `mapstructure:"max_tokens"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// RouterConfig holds routing loop settings.
type RouterConfig struct {
	// MaxClarificationRounds caps the clarify loop per conversation.
	MaxClarificationRounds int `mapstructure:"max_clarification_rounds"`
}

// RetryConfig holds LLM retry settings.
type RetryConfig struct {
	MaxRetries    int           `mapstructure:"max_retries"`
	InitialDelay  time.Duration `mapstructure:"initial_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	BackoffFactor float64       `mapstructure:"backoff_factor"`
}

// CoderConfig holds coding CLI settings.
type CoderConfig struct {
	// Command is the agentic coding CLI binary name.
	Command string `mapstructure:"command"`
	// Model overrides the CLI's default model when set.
	Model string `mapstructure:"model"`
	// Workdir is the working directory for coding tasks.
	Workdir string `mapstructure:"workdir"`
	// SkipPermissions disables the CLI's permission prompts.
	SkipPermissions bool `mapstructure:"skip_permissions"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// SessionConfig holds session persistence settings.
type SessionConfig struct {
	// DBPath is the SQLite database file. Empty disables persistence.
	DBPath string `mapstructure:"db_path"`
}

// TUIConfig holds interactive display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// Load loads configuration from XDG paths, project overrides, and environment
// variables. Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY)
// 2. Project config (.triage.yaml in current directory or a parent)
// 3. User config (~/.config/triage/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("providers.anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("providers.openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("providers.gemini.api_key", "GEMINI_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.expand()
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.expand()
	return cfg, nil
}

// expand resolves ${VAR} references in credential fields.
func (c *Config) expand() {
	c.Providers.Anthropic.APIKey = os.ExpandEnv(c.Providers.Anthropic.APIKey)
	c.Providers.OpenAI.APIKey = os.ExpandEnv(c.Providers.OpenAI.APIKey)
	c.Providers.Gemini.APIKey = os.ExpandEnv(c.Providers.Gemini.APIKey)
}

// Backend returns the backend name assigned to a role, falling back to the
// default backend.
func (p *ProvidersConfig) Backend(role string) string {
	var assigned string
	switch role {
	case "classifier":
		assigned = p.Classifier
	case "refiner":
		assigned = p.Refiner
	case "answerer":
		assigned = p.Answerer
	}
	if assigned == "" {
		return p.Default
	}
	return assigned
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("providers.default", "anthropic")

	v.SetDefault("router.max_clarification_rounds", 3)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.initial_delay", "500ms")
	v.SetDefault("retry.max_delay", "10s")
	v.SetDefault("retry.backoff_factor", 2.0)

	v.SetDefault("coder.command", "claude")

	v.SetDefault("server.addr", ":8420")

	v.SetDefault("tui.refresh_rate", "100ms")
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Providers: ProvidersConfig{Default: "anthropic"},
		Router:    RouterConfig{MaxClarificationRounds: 3},
		Retry: RetryConfig{
			MaxRetries:    3,
			InitialDelay:  500 * time.Millisecond,
			MaxDelay:      10 * time.Second,
			BackoffFactor: 2.0,
		},
		Coder:  CoderConfig{Command: "claude"},
		Server: ServerConfig{Addr: ":8420"},
		TUI:    TUIConfig{RefreshRate: 100 * time.Millisecond},
	}
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// getUserConfigDir returns the XDG config directory for triage.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "triage")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "triage")
	}
	return filepath.Join(home, ".config", "triage")
}

// findProjectConfig searches for .triage.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".triage.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}
