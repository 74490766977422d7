package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"triage/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Print the effective configuration after merging defaults, the user
config (~/.config/triage/config.yaml), the project config (.triage.yaml), and
environment variables. API keys are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		if path := config.GetProjectConfigPath(); path != "" {
			fmt.Fprintf(os.Stderr, "# project config: %s\n", path)
		}
		fmt.Fprintf(os.Stderr, "# user config: %s\n", config.GetUserConfigPath())

		masked := *cfg
		masked.Providers.Anthropic.APIKey = maskKey(cfg.Providers.Anthropic.APIKey)
		masked.Providers.OpenAI.APIKey = maskKey(cfg.Providers.OpenAI.APIKey)
		masked.Providers.Gemini.APIKey = maskKey(cfg.Providers.Gemini.APIKey)

		out, err := yaml.Marshal(renderable(&masked))
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	return "****"
}

// renderable converts the config to a map keyed the way the YAML files are,
// since the struct tags are mapstructure rather than yaml.
func renderable(cfg *config.Config) map[string]any {
	return map[string]any{
		"providers": map[string]any{
			"default":    cfg.Providers.Default,
			"classifier": cfg.Providers.Classifier,
			"refiner":    cfg.Providers.Refiner,
			"answerer":   cfg.Providers.Answerer,
			"anthropic": map[string]any{
				"api_key":     cfg.Providers.Anthropic.APIKey,
				"model":       cfg.Providers.Anthropic.Model,
				"max_tokens":  cfg.Providers.Anthropic.MaxTokens,
				"use_bedrock": cfg.Providers.Anthropic.UseBedrock,
				"aws_region":  cfg.Providers.Anthropic.AWSRegion,
				"aws_profile": cfg.Providers.Anthropic.AWSProfile,
			},
			"openai": map[string]any{
				"api_key":    cfg.Providers.OpenAI.APIKey,
				"model":      cfg.Providers.OpenAI.Model,
				"max_tokens": cfg.Providers.OpenAI.MaxTokens,
			},
			"gemini": map[string]any{
				"api_key":    cfg.Providers.Gemini.APIKey,
				"model":      cfg.Providers.Gemini.Model,
				"max_tokens": cfg.Providers.Gemini.MaxTokens,
			},
		},
		"router": map[string]any{
			"max_clarification_rounds": cfg.Router.MaxClarificationRounds,
		},
		"retry": map[string]any{
			"max_retries":    cfg.Retry.MaxRetries,
			"initial_delay":  cfg.Retry.InitialDelay.String(),
			"max_delay":      cfg.Retry.MaxDelay.String(),
			"backoff_factor": cfg.Retry.BackoffFactor,
		},
		"coder": map[string]any{
			"command":          cfg.Coder.Command,
			"model":            cfg.Coder.Model,
			"workdir":          cfg.Coder.Workdir,
			"skip_permissions": cfg.Coder.SkipPermissions,
		},
		"server": map[string]any{
			"addr": cfg.Server.Addr,
		},
		"session": map[string]any{
			"db_path": cfg.Session.DBPath,
		},
		"tui": map[string]any{
			"refresh_rate": cfg.TUI.RefreshRate.String(),
		},
	}
}
