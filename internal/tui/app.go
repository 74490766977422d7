// Package tui provides the interactive chat interface. One conversation is
// shown at a time; clarification questions suspend the conversation and the
// next submitted line resumes it.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"triage/internal/router"
)

// Processor advances a conversation by one user turn. Satisfied by
// *router.Orchestrator.
type Processor interface {
	Process(ctx context.Context, input string, prior *router.ConversationState, sink router.Sink) (*router.ConversationState, error)
}

// routerEventMsg wraps a router event for the update loop.
type routerEventMsg router.Event

// processDoneMsg signals that Process returned.
type processDoneMsg struct {
	state *router.ConversationState
}

// App is the chat model for interactive mode.
type App struct {
	proc Processor

	input    textinput.Model
	view     viewport.Model
	spin     spinner.Model
	lines    []string
	state    *router.ConversationState
	busy     bool
	quitting bool
	width    int
	height   int

	events chan tea.Msg
}

// NewApp creates the interactive chat model.
func NewApp(proc Processor) *App {
	input := textinput.New()
	input.Placeholder = "Describe what you need..."
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = spinnerStyle

	return &App{
		proc:   proc,
		input:  input,
		view:   viewport.New(80, 20),
		spin:   spin,
		events: make(chan tea.Msg, 100),
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			a.quitting = true
			return a, tea.Quit
		case "enter":
			if a.busy {
				return a, nil
			}
			text := strings.TrimSpace(a.input.Value())
			if text == "" {
				return a, nil
			}
			a.input.Reset()
			return a, a.submit(text)
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.view.Width = msg.Width
		a.view.Height = msg.Height - 4
		a.input.Width = msg.Width - 4
		a.refresh()

	case routerEventMsg:
		a.appendLine(renderEvent(router.Event(msg)))
		return a, a.waitForEvent()

	case processDoneMsg:
		a.busy = false
		a.state = msg.state
		if msg.state != nil && msg.state.Terminal() {
			// A finished conversation is not resumable; the next line
			// starts fresh.
			a.state = nil
		}
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)
	a.view, cmd = a.view.Update(msg)
	cmds = append(cmds, cmd)
	return a, tea.Batch(cmds...)
}

// submit starts processing one user turn in the background and begins
// draining its events.
func (a *App) submit(text string) tea.Cmd {
	a.busy = true
	a.appendLine(userStyle.Render("you: ") + text)

	prior := a.state
	sink := router.SinkFunc(func(ev router.Event) {
		a.events <- routerEventMsg(ev)
	})

	go func() {
		state, _ := a.proc.Process(context.Background(), text, prior, sink)
		a.events <- processDoneMsg{state: state}
	}()

	return tea.Batch(a.spin.Tick, a.waitForEvent())
}

// waitForEvent delivers the next background message to the update loop.
func (a *App) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return <-a.events
	}
}

func (a *App) appendLine(line string) {
	a.lines = append(a.lines, line)
	a.refresh()
}

func (a *App) refresh() {
	a.view.SetContent(strings.Join(a.lines, "\n"))
	a.view.GotoBottom()
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("triage"))
	b.WriteString("\n")
	b.WriteString(a.view.View())
	b.WriteString("\n")
	if a.busy {
		b.WriteString(a.spin.View() + " working...")
	} else {
		b.WriteString(a.input.View())
	}
	return b.String()
}

// renderEvent formats one router event as a transcript line.
func renderEvent(ev router.Event) string {
	switch ev.Type {
	case router.EventProgress:
		return progressStyle.Render(fmt.Sprintf("  [%s] %s", ev.Phase, ev.Description))
	case router.EventFollowUp:
		return questionStyle.Render("triage: ") + ev.Question
	case router.EventResult:
		return resultStyle.Render("triage: ") + ev.Text
	case router.EventFailure:
		return failureStyle.Render(fmt.Sprintf("error (%s): %s", ev.Kind, ev.Message))
	default:
		return ev.Description
	}
}
