// Package llm provides the external text-generation capability behind the
// router's leaf components, with interchangeable Anthropic, OpenAI, and
// Gemini backends and a bounded-retry wrapper.
package llm

import "context"

// Provider is a text-in/text-out language model capability.
type Provider interface {
	// Generate returns the model's text response for a system prompt and a
	// user prompt. Blocking; honors ctx cancellation and deadlines.
	Generate(ctx context.Context, system, prompt string) (string, error)
	// Name identifies the backend for logging.
	Name() string
}

// DefaultMaxTokens bounds response length when a backend config leaves it unset.
const DefaultMaxTokens = 4096
