package router

import (
	"context"
	"fmt"
)

// TextGenerator is the external text-generation capability the leaf
// components call. internal/llm provides the real implementations; tests
// substitute deterministic fakes.
type TextGenerator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

const classifierSystemPrompt = `You are a task router. Classify user requests into one of three categories:

1. CLARIFY - The request is too vague or ambiguous to act on.
   Examples: "I want to build something", "Help me with my project".

2. CODE - The request involves coding, development, or technical implementation.
   Examples: "Build a web app for inventory management", "Fix this bug in my React component".

3. ANSWER - The request asks for information, explanation, or guidance.
   Examples: "What is the best way to deploy a web app?", "Explain how authentication works".

Respond with only: CLARIFY, CODE, or ANSWER`

// Classifier maps a conversation transcript onto a route. It is stateless;
// every call is purely a function of the transcript.
type Classifier struct {
	gen TextGenerator
}

// NewClassifier creates a classifier over the given text capability.
func NewClassifier(gen TextGenerator) *Classifier {
	return &Classifier{gen: gen}
}

// Classify returns the route for the transcript. Output outside the closed
// route set comes back as RouteUnset; the orchestrator applies its fallback.
func (c *Classifier) Classify(ctx context.Context, turns []Turn) (Route, error) {
	prompt := fmt.Sprintf("Conversation so far:\n%s\nHow should the latest user request be routed?", Transcript(turns))

	resp, err := c.gen.Generate(ctx, classifierSystemPrompt, prompt)
	if err != nil {
		return RouteUnset, fmt.Errorf("classify: %w", err)
	}

	return ParseRoute(resp), nil
}
