package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"triage/internal/router"
)

var (
	dimColor      = color.New(color.Faint)
	questionColor = color.New(color.FgYellow, color.Bold)
	resultColor   = color.New(color.FgGreen)
	errorColor    = color.New(color.FgRed)
)

var runShowSteps bool

var runCmd = &cobra.Command{
	Use:   "run <request>",
	Short: "Process a single request",
	Long: `Process one request and print the outcome.

Progress from delegated coding tasks streams to the terminal as it happens.
If the request needs clarification, the question is printed and the reply is
read from stdin, up to the configured round cap.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(strings.Join(args, " "))
	},
}

func init() {
	runCmd.Flags().BoolVar(&runShowSteps, "steps", false, "Print the processing log after the run")
}

func runOnce(input string) error {
	cfg, err := loadValidatedConfig()
	if err != nil {
		return err
	}
	if err := checkCoderCLI(cfg.Coder.Command); err != nil {
		return err
	}

	orch, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}

	store, err := openSessionStore(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink := router.SinkFunc(printEvent)
	reader := bufio.NewReader(os.Stdin)

	var state *router.ConversationState
	for {
		state, err = orch.Process(ctx, input, state, sink)
		if store != nil && state != nil {
			if saveErr := store.Save(state); saveErr != nil {
				dimColor.Printf("warning: could not save session: %v\n", saveErr)
			}
		}
		if err != nil {
			printSteps(state)
			return err
		}
		if state.Status != router.StatusAwaitingInput {
			printSteps(state)
			return nil
		}

		// A follow-up question was printed by the sink; read the reply.
		fmt.Print("> ")
		reply, readErr := reader.ReadString('\n')
		if readErr != nil {
			return fmt.Errorf("read clarification reply: %w", readErr)
		}
		input = strings.TrimSpace(reply)
	}
}

func printSteps(state *router.ConversationState) {
	if !runShowSteps || state == nil {
		return
	}
	dimColor.Printf("\nprocessing steps:\n")
	for i, step := range state.ProcessingLog {
		dimColor.Printf("  %2d. %s\n", i+1, step)
	}
}

// formatEvent renders one router event as a display line and reports whether
// it belongs on stderr.
func formatEvent(ev router.Event) (line string, toStderr bool) {
	switch ev.Type {
	case router.EventProgress:
		return dimColor.Sprintf("  [%s] %s", ev.Phase, ev.Description), false
	case router.EventFollowUp:
		return questionColor.Sprint(ev.Question), false
	case router.EventResult:
		return resultColor.Sprint(ev.Text), false
	case router.EventFailure:
		return errorColor.Sprintf("error (%s): %s", ev.Kind, ev.Message), true
	default:
		return "", false
	}
}

func printEvent(ev router.Event) {
	line, toStderr := formatEvent(ev)
	if line == "" {
		return
	}
	if toStderr {
		fmt.Fprintln(os.Stderr, line)
	} else {
		fmt.Println(line)
	}
}
