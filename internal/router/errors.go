package router

import "fmt"

// FailureKind identifies which stage of request processing failed.
type FailureKind string

const (
	// KindInvalidInput indicates empty or malformed user input. No external
	// call is ever made for this kind.
	KindInvalidInput FailureKind = "invalid_input"
	// KindClassification indicates the classifier exhausted its retry budget.
	KindClassification FailureKind = "classification_failure"
	// KindRefinement indicates the refiner exhausted its retry budget in
	// either the ask-or-accept or the polish operation.
	KindRefinement FailureKind = "refinement_failure"
	// KindExecution indicates the code tool reported a terminal failure or
	// produced output the orchestrator could not interpret.
	KindExecution FailureKind = "execution_failure"
	// KindInterrupted indicates cancellation while the code tool was streaming.
	KindInterrupted FailureKind = "interrupted"
	// KindAnswer indicates the direct-answer call exhausted its retry budget.
	KindAnswer FailureKind = "answer_failure"
)

// Failure is the terminal error record of a conversation. The message is the
// diagnostic text the failing stage produced, passed through verbatim.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func newFailure(kind FailureKind, format string, args ...interface{}) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
