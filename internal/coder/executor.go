package coder

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"

	"triage/internal/router"
)

// taskProcess is the subprocess seam, satisfied by *Process and by test fakes.
type taskProcess interface {
	Start(ctx context.Context, task string) error
	Lines() <-chan streamLine
	Wait() error
	Kill()
	Stderr() string
}

// Executor runs coding tasks through a CLI subprocess. It implements
// router.CodeExecutor: each Execute call yields a finite event stream ending
// in exactly one terminal event.
type Executor struct {
	opts       ProcessOptions
	newProcess func() taskProcess
}

// NewExecutor creates an executor that spawns the configured CLI per task.
func NewExecutor(opts ProcessOptions) *Executor {
	return &Executor{
		opts:       opts,
		newProcess: func() taskProcess { return NewProcess(opts) },
	}
}

// Execute implements router.CodeExecutor.
func (e *Executor) Execute(ctx context.Context, task string) (<-chan router.ExecEvent, error) {
	if strings.TrimSpace(task) == "" {
		return nil, fmt.Errorf("empty task")
	}

	proc := e.newProcess()
	if err := proc.Start(ctx, task); err != nil {
		return nil, fmt.Errorf("launch coding process: %w", err)
	}

	out := make(chan router.ExecEvent, 100)
	go e.pump(ctx, proc, out)
	return out, nil
}

// pump translates subprocess output into executor events and appends the
// single terminal event once the process exits.
func (e *Executor) pump(ctx context.Context, proc taskProcess, out chan<- router.ExecEvent) {
	defer close(out)

	var (
		result      string
		gotResult   bool
		resultIsErr bool
		diagnostics []string
	)

	for line := range proc.Lines() {
		switch line.Kind {
		case streamAssistant:
			if line.ToolAction != "" {
				emit(ctx, out, router.ExecEvent{Phase: router.PhaseActing, Description: line.ToolAction})
			} else if line.Text != "" {
				emit(ctx, out, router.ExecEvent{Phase: router.PhaseThinking, Description: summarize(line.Text)})
			}
		case streamResult:
			result = line.Text
			gotResult = true
			resultIsErr = line.IsError
		case streamError:
			diagnostics = append(diagnostics, line.Err)
		}

		if ctx.Err() != nil {
			proc.Kill()
			return
		}
	}

	waitErr := proc.Wait()
	if ctx.Err() != nil {
		return
	}

	switch {
	case waitErr != nil:
		emit(ctx, out, router.ExecEvent{
			Terminal:   true,
			Failed:     true,
			Diagnostic: joinDiagnostics(waitErr.Error(), diagnostics),
		})
	case gotResult && resultIsErr:
		emit(ctx, out, router.ExecEvent{
			Terminal:   true,
			Failed:     true,
			Diagnostic: joinDiagnostics(result, diagnostics),
		})
	case gotResult:
		emit(ctx, out, router.ExecEvent{Terminal: true, Result: result})
	default:
		log.Printf("[coder] process exited cleanly without a result event")
		emit(ctx, out, router.ExecEvent{
			Terminal:   true,
			Failed:     true,
			Diagnostic: joinDiagnostics("process produced no result", diagnostics),
		})
	}
}

func emit(ctx context.Context, out chan<- router.ExecEvent, ev router.ExecEvent) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}

// summarize reduces a multi-line assistant message to a single progress line.
func summarize(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return shorten(strings.TrimSpace(text), 80)
}

func joinDiagnostics(primary string, extra []string) string {
	parts := []string{primary}
	for _, d := range extra {
		if d != "" && d != primary {
			parts = append(parts, d)
		}
	}
	return strings.Join(parts, "\n")
}

// CheckCLI verifies the coding CLI is installed and on PATH. Called at
// startup so a missing binary fails fast instead of at first delegation.
func CheckCLI(command string) error {
	if command == "" {
		command = DefaultCommand
	}
	if _, err := exec.LookPath(command); err != nil {
		return fmt.Errorf("%s CLI not found in PATH: %w", command, err)
	}
	return nil
}
