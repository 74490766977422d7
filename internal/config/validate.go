package config

import (
	"fmt"
	"strings"
)

// ConfigurationError reports an invalid configuration at startup, before any
// conversation is accepted.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

var validBackends = map[string]bool{
	"anthropic": true,
	"openai":    true,
	"gemini":    true,
}

// Validate checks the configuration for values that would make the router
// unable to start.
func (c *Config) Validate() error {
	if !validBackends[c.Providers.Default] {
		return &ConfigurationError{
			Field:  "providers.default",
			Reason: fmt.Sprintf("unknown backend %q (want anthropic, openai, or gemini)", c.Providers.Default),
		}
	}
	for role, backend := range map[string]string{
		"providers.classifier": c.Providers.Classifier,
		"providers.refiner":    c.Providers.Refiner,
		"providers.answerer":   c.Providers.Answerer,
	} {
		if backend != "" && !validBackends[backend] {
			return &ConfigurationError{
				Field:  role,
				Reason: fmt.Sprintf("unknown backend %q (want anthropic, openai, or gemini)", backend),
			}
		}
	}

	if c.Router.MaxClarificationRounds < 1 {
		return &ConfigurationError{
			Field:  "router.max_clarification_rounds",
			Reason: "must be at least 1",
		}
	}

	if c.Retry.MaxRetries < 0 {
		return &ConfigurationError{Field: "retry.max_retries", Reason: "must not be negative"}
	}
	if c.Retry.BackoffFactor < 1.0 {
		return &ConfigurationError{Field: "retry.backoff_factor", Reason: "must be at least 1.0"}
	}

	if strings.TrimSpace(c.Coder.Command) == "" {
		return &ConfigurationError{Field: "coder.command", Reason: "must not be empty"}
	}

	return nil
}
