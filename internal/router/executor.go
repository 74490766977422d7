package router

import "context"

// ExecPhase is the coarse phase tag on a progress event from the code tool.
// The orchestrator forwards it as opaque metadata and never branches on it.
type ExecPhase string

const (
	// PhaseThinking tags reasoning output from the tool.
	PhaseThinking ExecPhase = "thinking"
	// PhaseActing tags tool actions (file edits, commands).
	PhaseActing ExecPhase = "acting"
)

// ExecEvent is one element of the code tool's event sequence. The sequence is
// finite, single-pass, and terminated by exactly one event with Terminal set.
type ExecEvent struct {
	// Phase and Description carry progress information on non-terminal events.
	Phase       ExecPhase
	Description string

	// Terminal marks the final event of the sequence.
	Terminal bool
	// Result holds the artifact summary on a successful terminal event.
	Result string
	// Failed indicates the tool reported a terminal failure; Diagnostic
	// carries the tool's own diagnostic text, never reinterpreted.
	Failed     bool
	Diagnostic string
}

// CodeExecutor runs a polished task description through the external
// code-generation tool. The returned channel is closed after the terminal
// event; abandoning it early must not corrupt the executor.
type CodeExecutor interface {
	Execute(ctx context.Context, task string) (<-chan ExecEvent, error)
}
