package main

import (
	"fmt"

	"triage/internal/coder"
	"triage/internal/config"
	"triage/internal/llm"
	"triage/internal/router"
	"triage/internal/session"
)

// buildProvider constructs the LLM backend assigned to a routing role and
// wraps it with retry behavior.
func buildProvider(cfg *config.Config, role string) (llm.Provider, error) {
	var (
		p   llm.Provider
		err error
	)
	backend := cfg.Providers.Backend(role)
	switch backend {
	case "anthropic":
		p, err = llm.NewAnthropic(llm.AnthropicConfig{
			APIKey:     cfg.Providers.Anthropic.APIKey,
			Model:      cfg.Providers.Anthropic.Model,
			MaxTokens:  cfg.Providers.Anthropic.MaxTokens,
			UseBedrock: cfg.Providers.Anthropic.UseBedrock,
			AWSRegion:  cfg.Providers.Anthropic.AWSRegion,
			AWSProfile: cfg.Providers.Anthropic.AWSProfile,
		})
	case "openai":
		p, err = llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:    cfg.Providers.OpenAI.APIKey,
			Model:     cfg.Providers.OpenAI.Model,
			MaxTokens: cfg.Providers.OpenAI.MaxTokens,
		})
	case "gemini":
		p, err = llm.NewGemini(llm.GeminiConfig{
			APIKey:    cfg.Providers.Gemini.APIKey,
			Model:     cfg.Providers.Gemini.Model,
			MaxTokens: cfg.Providers.Gemini.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unknown backend %q for role %s", backend, role)
	}
	if err != nil {
		return nil, fmt.Errorf("build %s provider for %s: %w", backend, role, err)
	}

	return llm.WithRetry(p, llm.RetryConfig{
		MaxRetries:    cfg.Retry.MaxRetries,
		InitialDelay:  cfg.Retry.InitialDelay,
		MaxDelay:      cfg.Retry.MaxDelay,
		BackoffFactor: cfg.Retry.BackoffFactor,
		Jitter:        true,
	}), nil
}

// buildOrchestrator wires the classifier, refiner, answerer, and code
// executor from configuration.
func buildOrchestrator(cfg *config.Config) (*router.Orchestrator, error) {
	classifierGen, err := buildProvider(cfg, "classifier")
	if err != nil {
		return nil, err
	}
	refinerGen, err := buildProvider(cfg, "refiner")
	if err != nil {
		return nil, err
	}
	answererGen, err := buildProvider(cfg, "answerer")
	if err != nil {
		return nil, err
	}

	executor := coder.NewExecutor(coder.ProcessOptions{
		Command:         cfg.Coder.Command,
		Model:           cfg.Coder.Model,
		Workdir:         cfg.Coder.Workdir,
		SkipPermissions: cfg.Coder.SkipPermissions,
	})

	return router.NewOrchestrator(
		router.NewClassifier(classifierGen),
		router.NewRefiner(refinerGen),
		router.NewAnswerer(answererGen),
		executor,
		router.Config{MaxClarificationRounds: cfg.Router.MaxClarificationRounds},
	), nil
}

// openSessionStore opens the configured session database, or returns nil when
// persistence is disabled.
func openSessionStore(cfg *config.Config) (*session.Store, error) {
	if cfg.Session.DBPath == "" {
		return nil, nil
	}
	path := cfg.Session.DBPath
	if path == "default" {
		path = session.DefaultDBPath()
	}
	return session.Open(path)
}

// loadValidatedConfig loads and validates configuration for a command.
func loadValidatedConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
