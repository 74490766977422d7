package router

import (
	"context"
	"fmt"
	"strings"
)

const (
	clarifyPrefix  = "CLARIFIED:"
	questionPrefix = "QUESTION:"
)

const refinerClarifySystemPrompt = `You are a clarification specialist. Decide whether the user's request is clear enough to proceed, or whether one more follow-up question is needed.

A request is clear enough when you can tell:
1. What the user wants to accomplish
2. The general domain or context (web app, CLI, data analysis, ...)
3. Any specific requirements or constraints

Respond in exactly one of these formats:
- "CLARIFIED: <one-line summary of the request>" if ready to proceed
- "QUESTION: <one focused follow-up question>" if more clarification is needed

Ask at most one question at a time.`

const refinerPolishSystemPrompt = `You are a prompt refinement specialist. Turn a clarified user request into a clear, actionable task description for a coding assistant.

A good task description:
1. Is specific and actionable
2. Includes requirements and constraints gathered in the conversation
3. Names the technology stack when the user specified one
4. Is well-structured and easy to follow

Respond with the task description only.`

// FollowUp is a clarification question the refiner wants answered before the
// request can proceed.
type FollowUp struct {
	Question string
}

// Refiner drives the clarification loop and polishes specified requests into
// execution-ready task descriptions. Both operations are pure functions of
// the transcript; neither mutates its input.
type Refiner struct {
	gen TextGenerator
}

// NewRefiner creates a refiner over the given text capability.
func NewRefiner(gen TextGenerator) *Refiner {
	return &Refiner{gen: gen}
}

// AskOrAccept inspects the transcript and either returns a follow-up question
// or nil to signal the request is sufficiently specified. Unrecognized model
// output is treated as accepted, proceeding with whatever context exists.
func (r *Refiner) AskOrAccept(ctx context.Context, turns []Turn, roundsSoFar int) (*FollowUp, error) {
	prompt := fmt.Sprintf(
		"Conversation so far:\n%s\nFollow-up rounds already used: %d\n\nIs this request clear enough to proceed?",
		Transcript(turns), roundsSoFar)

	resp, err := r.gen.Generate(ctx, refinerClarifySystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("ask or accept: %w", err)
	}

	trimmed := strings.TrimSpace(resp)
	if strings.HasPrefix(trimmed, questionPrefix) {
		q := strings.TrimSpace(strings.TrimPrefix(trimmed, questionPrefix))
		if q != "" {
			return &FollowUp{Question: q}, nil
		}
	}

	// CLARIFIED or anything else: accepted.
	return nil, nil
}

// Polish produces the refined task description for the code tool (or for
// contextualizing a direct answer).
func (r *Refiner) Polish(ctx context.Context, turns []Turn) (string, error) {
	prompt := fmt.Sprintf(
		"Conversation so far:\n%s\nRefine the user's request into a clear, actionable task description.",
		Transcript(turns))

	resp, err := r.gen.Generate(ctx, refinerPolishSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("polish: %w", err)
	}

	task := strings.TrimSpace(resp)
	if task == "" {
		return "", fmt.Errorf("polish: empty task description")
	}
	return task, nil
}
