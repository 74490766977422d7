package router

import "time"

// EventType represents the type of event forwarded to the caller's sink.
type EventType string

const (
	// EventProgress is an intermediate update from the code-execution tool.
	EventProgress EventType = "progress"
	// EventFollowUp carries a clarification question; the conversation
	// suspends after emitting it.
	EventFollowUp EventType = "follow_up"
	// EventResult is the single terminal success event of a conversation.
	EventResult EventType = "result"
	// EventFailure is the single terminal failure event of a conversation.
	EventFailure EventType = "failure"
)

// Event is one entry in the output stream a transport delivers to the caller.
// For a code route the stream is zero-or-more progress events followed by
// exactly one result or failure; for an answer route it is the terminal event
// alone; for a clarify round it is one follow-up.
type Event struct {
	Type EventType `json:"type"`
	// Phase is the coarse tool phase tag (thinking/acting) on progress
	// events. Opaque metadata; nothing branches on it.
	Phase string `json:"phase,omitempty"`
	// Description is the human-readable progress text.
	Description string `json:"description,omitempty"`
	// Question is the clarification question on follow-up events.
	Question string `json:"question,omitempty"`
	// Text is the final result on result events.
	Text string `json:"text,omitempty"`
	// Kind and Message describe the failure on failure events.
	Kind      FailureKind `json:"kind,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Sink receives events as the orchestrator produces them. Delivery is
// at-least-once; implementations must tolerate re-emission of a pending
// follow-up when a suspended conversation is replayed.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Emit implements Sink.
func (f SinkFunc) Emit(e Event) { f(e) }

// discard swallows events for callers that only want the terminal state.
type discard struct{}

func (discard) Emit(Event) {}

// DiscardSink returns a sink that drops every event.
func DiscardSink() Sink { return discard{} }

func progressEvent(phase, description string) Event {
	return Event{Type: EventProgress, Phase: phase, Description: description, Timestamp: time.Now()}
}

func followUpEvent(question string) Event {
	return Event{Type: EventFollowUp, Question: question, Timestamp: time.Now()}
}

func resultEvent(text string) Event {
	return Event{Type: EventResult, Text: text, Timestamp: time.Now()}
}

func failureEvent(f *Failure) Event {
	return Event{Type: EventFailure, Kind: f.Kind, Message: f.Message, Timestamp: time.Now()}
}
