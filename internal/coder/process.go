// Package coder runs delegated coding tasks through an agentic CLI
// subprocess and adapts its streamed output to the router's executor
// contract.
package coder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"sync"
)

// DefaultCommand is the agentic coding CLI invoked when none is configured.
const DefaultCommand = "claude"

// streamKind identifies a parsed line from the CLI's stream-json output.
type streamKind string

const (
	streamSystem    streamKind = "system"
	streamAssistant streamKind = "assistant"
	streamUser      streamKind = "user"
	streamResult    streamKind = "result"
	streamError     streamKind = "error"
)

// streamLine is one parsed event from the subprocess's stdout.
type streamLine struct {
	Kind       streamKind
	Text       string
	Err        string
	ToolAction string
	IsError    bool
}

// ProcessOptions configures a coding subprocess.
type ProcessOptions struct {
	// Command is the CLI binary to run. Empty means DefaultCommand.
	Command string
	// Model overrides the CLI's default model when non-empty.
	Model string
	// Workdir is the working directory for the subprocess.
	Workdir string
	// AllowedTools restricts tool use. Empty means the built-in default set.
	AllowedTools string
	// SkipPermissions passes --dangerously-skip-permissions to the CLI.
	SkipPermissions bool
}

// Process manages one coding CLI subprocess for a single task.
type Process struct {
	opts ProcessOptions

	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser

	cancel    context.CancelFunc
	lines     chan streamLine
	stderrBuf []byte

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// NewProcess creates a process with the given options. Start must be called
// before Lines produces anything.
func NewProcess(opts ProcessOptions) *Process {
	if opts.Command == "" {
		opts.Command = DefaultCommand
	}
	if opts.AllowedTools == "" {
		opts.AllowedTools = "Read,Write,Edit,Bash,Glob,Grep,WebFetch"
	}
	return &Process{
		opts:  opts,
		lines: make(chan streamLine, 100),
		done:  make(chan struct{}),
	}
}

// Start launches the subprocess with the given task as its prompt.
func (p *Process) Start(ctx context.Context, task string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("process already started")
	}

	ctx, p.cancel = context.WithCancel(ctx)

	args := []string{
		"--output-format", "stream-json",
		"--print",
		"--verbose",
		"--allowedTools", p.opts.AllowedTools,
	}
	if p.opts.Model != "" {
		args = append(args, "--model", p.opts.Model)
	}
	if p.opts.SkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	args = append(args, "-p", task)

	p.cmd = exec.CommandContext(ctx, p.opts.Command, args...)
	if p.opts.Workdir != "" {
		p.cmd.Dir = p.opts.Workdir
	}

	var err error
	p.stdout, err = p.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	p.stderr, err = p.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.opts.Command, err)
	}
	p.started = true

	go p.readStderr(ctx)
	go p.readStdout(ctx)

	return nil
}

// Lines returns the channel of parsed stream events. Closed when the
// subprocess's stdout is exhausted.
func (p *Process) Lines() <-chan streamLine {
	return p.lines
}

// Wait blocks until the subprocess exits and returns its exit error, with
// captured stderr appended when present.
func (p *Process) Wait() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return fmt.Errorf("process not started")
	}
	p.mu.Unlock()

	<-p.done

	err := p.cmd.Wait()
	if err != nil {
		stderr := p.Stderr()
		if stderr != "" {
			return fmt.Errorf("%s exited: %v; stderr: %s", p.opts.Command, err, stderr)
		}
		return fmt.Errorf("%s exited: %v", p.opts.Command, err)
	}
	return nil
}

// Kill terminates the subprocess.
func (p *Process) Kill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	if p.started && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// Stderr returns stderr output captured so far.
func (p *Process) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.stderrBuf)
}

func (p *Process) readStdout(ctx context.Context) {
	defer close(p.lines)
	defer close(p.done)

	scanner := bufio.NewScanner(p.stdout)
	// Assistant turns with embedded file contents can exceed the default
	// scanner limit.
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		line, err := parseStreamLine(raw)
		if err != nil {
			line = streamLine{Kind: streamError, Err: fmt.Sprintf("parse output: %v", err)}
		}

		select {
		case p.lines <- line:
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		p.lines <- streamLine{Kind: streamError, Err: fmt.Sprintf("read output: %v", err)}
	}
}

func (p *Process) readStderr(ctx context.Context) {
	scanner := bufio.NewScanner(p.stderr)
	buf := make([]byte, 16*1024)
	scanner.Buffer(buf, 256*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		p.mu.Lock()
		p.stderrBuf = append(p.stderrBuf, line...)
		p.stderrBuf = append(p.stderrBuf, '\n')
		p.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
	}
}

// parseStreamLine parses one stream-json line from the CLI.
func parseStreamLine(data []byte) (streamLine, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return streamLine{}, fmt.Errorf("unmarshal event: %w", err)
	}

	line := streamLine{}
	if t, ok := raw["type"].(string); ok {
		line.Kind = streamKind(t)
	}

	switch line.Kind {
	case streamSystem, streamAssistant, streamUser:
		line.Text = extractText(raw)
		if line.Kind == streamAssistant {
			line.ToolAction = extractToolAction(raw)
		}
	case streamResult:
		if result, ok := raw["result"].(string); ok {
			line.Text = result
		} else if content, ok := raw["content"].(string); ok {
			line.Text = content
		}
		if isErr, ok := raw["is_error"].(bool); ok {
			line.IsError = isErr
		}
	case streamError:
		if msg, ok := raw["error"].(string); ok {
			line.Err = msg
		} else if msg, ok := raw["message"].(string); ok {
			line.Err = msg
		}
	}

	return line, nil
}

// extractText pulls assistant text from the nested message format, falling
// back to flat fields older CLI versions used.
func extractText(raw map[string]any) string {
	if msg, ok := raw["message"].(map[string]any); ok {
		if content, ok := msg["content"].([]any); ok {
			for _, item := range content {
				block, ok := item.(map[string]any)
				if !ok {
					continue
				}
				if t, _ := block["type"].(string); t == "text" {
					if text, ok := block["text"].(string); ok {
						return text
					}
				}
			}
		}
	}
	if msg, ok := raw["message"].(string); ok {
		return msg
	}
	if content, ok := raw["content"].(string); ok {
		return content
	}
	return ""
}

// extractToolAction finds a tool_use block and renders it for progress
// display. Returns empty when the event carries no tool use.
func extractToolAction(raw map[string]any) string {
	if msg, ok := raw["message"].(map[string]any); ok {
		if content, ok := msg["content"].([]any); ok {
			if action := toolActionFromBlocks(content); action != "" {
				return action
			}
		}
	}
	if content, ok := raw["content"].([]any); ok {
		if action := toolActionFromBlocks(content); action != "" {
			return action
		}
	}
	return ""
}

func toolActionFromBlocks(content []any) string {
	for _, item := range content {
		block, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := block["type"].(string); t == "tool_use" {
			return formatToolAction(block)
		}
	}
	return ""
}

func formatToolAction(block map[string]any) string {
	name, _ := block["name"].(string)
	if name == "" {
		return ""
	}
	input, _ := block["input"].(map[string]any)

	switch name {
	case "Read":
		if path, ok := input["file_path"].(string); ok {
			return "Reading " + shorten(filepath.Base(path), 24)
		}
		return "Reading file"
	case "Edit":
		if path, ok := input["file_path"].(string); ok {
			return "Editing " + shorten(filepath.Base(path), 24)
		}
		return "Editing file"
	case "Write":
		if path, ok := input["file_path"].(string); ok {
			return "Writing " + shorten(filepath.Base(path), 24)
		}
		return "Writing file"
	case "Bash":
		if cmd, ok := input["command"].(string); ok {
			return "Running " + shorten(firstWord(cmd), 24)
		}
		return "Running command"
	case "Glob", "Grep":
		if pattern, ok := input["pattern"].(string); ok {
			return "Searching " + shorten(pattern, 20)
		}
		return "Searching"
	case "WebFetch":
		return "Fetching URL"
	default:
		return name
	}
}

func firstWord(s string) string {
	for i, c := range s {
		if c == ' ' || c == '\n' {
			return s[:i]
		}
	}
	return s
}

func shorten(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
