package tui

import (
	"strings"
	"testing"

	"triage/internal/router"
)

func TestRenderEvent(t *testing.T) {
	cases := []struct {
		name string
		ev   router.Event
		want string
	}{
		{
			"progress",
			router.Event{Type: router.EventProgress, Phase: "acting", Description: "Writing main.go"},
			"[acting] Writing main.go",
		},
		{
			"follow_up",
			router.Event{Type: router.EventFollowUp, Question: "Which file?"},
			"Which file?",
		},
		{
			"result",
			router.Event{Type: router.EventResult, Text: "All done."},
			"All done.",
		},
		{
			"failure",
			router.Event{Type: router.EventFailure, Kind: router.KindExecution, Message: "exit 1"},
			"execution_failure",
		},
	}
	for _, c := range cases {
		got := renderEvent(c.ev)
		if !strings.Contains(got, c.want) {
			t.Errorf("%s: renderEvent = %q, want it to contain %q", c.name, got, c.want)
		}
	}
}
