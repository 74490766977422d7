package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"triage/internal/coder"
	"triage/internal/tui"
)

var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Route natural-language requests to the right handler",
	Long: `Triage classifies each request as a coding task, an informational
question, or one that needs clarification first. Coding tasks are polished
into a precise description and delegated to an agentic coding CLI; questions
are answered directly; vague requests go through a bounded clarification
exchange before proceeding.

With no arguments, launches an interactive chat session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func runInteractive() error {
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

	app := tui.NewApp(orch)
	_, err = tea.NewProgram(app, tea.WithAltScreen()).Run()
	return err
}

// checkCoderCLI verifies the coding CLI is installed before accepting work.
func checkCoderCLI(command string) error {
	if err := coder.CheckCLI(command); err != nil {
		return fmt.Errorf("%w\n\n"+
			"Triage delegates coding tasks to an agentic coding CLI.\n"+
			"Install the default with:\n"+
			"  npm install -g @anthropic-ai/claude-code\n"+
			"or point coder.command at another CLI in your config", err)
	}
	return nil
}
