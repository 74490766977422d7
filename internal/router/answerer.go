package router

import (
	"context"
	"fmt"
	"strings"
)

const answererSystemPrompt = `You are a helpful assistant. Provide clear, accurate answers to the user's question. Structure your response well and include practical examples when relevant. For technical questions, cover both the concept and practical guidance.`

// Answerer produces a single direct answer for requests that need information
// rather than code. Stateless beyond its input.
type Answerer struct {
	gen TextGenerator
}

// NewAnswerer creates an answerer over the given text capability.
func NewAnswerer(gen TextGenerator) *Answerer {
	return &Answerer{gen: gen}
}

// Answer returns the answer text for the transcript's latest question.
func (a *Answerer) Answer(ctx context.Context, turns []Turn) (string, error) {
	prompt := fmt.Sprintf("Conversation so far:\n%s\nAnswer the user's question.", Transcript(turns))

	resp, err := a.gen.Generate(ctx, answererSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("answer: %w", err)
	}
	return strings.TrimSpace(resp), nil
}
