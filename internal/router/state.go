package router

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Speaker identifies who produced a conversation turn.
type Speaker string

const (
	// SpeakerUser is the human requester.
	SpeakerUser Speaker = "user"
	// SpeakerAssistant is the system side of the conversation.
	SpeakerAssistant Speaker = "assistant"
)

// Turn is one message in the conversation transcript.
type Turn struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Status describes where a conversation is in its lifecycle.
type Status string

const (
	// StatusActive means the conversation is mid-processing.
	StatusActive Status = "active"
	// StatusAwaitingInput means a follow-up question is pending and the
	// caller must supply the next user turn before processing can resume.
	StatusAwaitingInput Status = "awaiting_input"
	// StatusDone means processing finished with a final result.
	StatusDone Status = "done"
	// StatusFailed means processing terminated with an error.
	StatusFailed Status = "failed"
)

// ConversationState is the record threaded through a single request's
// processing. It is owned exclusively by the Orchestrator while Process runs;
// between suspensions the caller may persist and reload it, but must not
// mutate it.
type ConversationState struct {
	// SessionID identifies the conversation across suspensions.
	SessionID string `json:"session_id"`
	// Turns is the append-only conversation transcript, in insertion order.
	Turns []Turn `json:"turns"`
	// ProcessingLog records human-readable stage descriptions. It exists for
	// observability only and never drives control flow.
	ProcessingLog []string `json:"processing_log"`
	// Route is set exactly once by the classifier step.
	Route Route `json:"route"`
	// ClarificationRounds counts refiner rounds; bounded by the configured cap.
	ClarificationRounds int `json:"clarification_rounds"`
	// RefinedTask is the polished task description, absent until the refiner
	// produces it.
	RefinedTask string `json:"refined_task,omitempty"`
	// PendingQuestion is the follow-up awaiting a user reply while the
	// conversation is suspended.
	PendingQuestion string `json:"pending_question,omitempty"`
	// FinalResult is set exactly once, at successful termination.
	FinalResult string `json:"final_result,omitempty"`
	// Err is set exactly once, at failed termination. Mutually exclusive
	// with FinalResult.
	Err *Failure `json:"error,omitempty"`
	// Status is the lifecycle position.
	Status Status `json:"status"`
	// StartedAt is when the conversation was created.
	StartedAt time.Time `json:"started_at"`
}

// NewConversationState creates a fresh state for one request.
func NewConversationState() *ConversationState {
	return &ConversationState{
		SessionID: uuid.New().String(),
		Status:    StatusActive,
		StartedAt: time.Now(),
	}
}

// Terminal reports whether processing has finished, successfully or not.
func (s *ConversationState) Terminal() bool {
	return s.Status == StatusDone || s.Status == StatusFailed
}

// appendTurn adds one message to the transcript. Turns are never mutated or
// reordered afterwards.
func (s *ConversationState) appendTurn(sp Speaker, text string) {
	s.Turns = append(s.Turns, Turn{Speaker: sp, Text: text, At: time.Now()})
}

// logStep appends a stage description to the processing log.
func (s *ConversationState) logStep(format string, args ...interface{}) {
	s.ProcessingLog = append(s.ProcessingLog, fmt.Sprintf(format, args...))
}

// LastAssistantTurn returns the text of the most recent assistant turn, or ""
// if the assistant has not spoken yet.
func (s *ConversationState) LastAssistantTurn() string {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].Speaker == SpeakerAssistant {
			return s.Turns[i].Text
		}
	}
	return ""
}

// Transcript renders the turns as a plain-text conversation for prompting.
func Transcript(turns []Turn) string {
	var b []byte
	for _, t := range turns {
		b = append(b, t.Speaker...)
		b = append(b, ": "...)
		b = append(b, t.Text...)
		b = append(b, '\n')
	}
	return string(b)
}
