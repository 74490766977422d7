package router

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// DefaultMaxClarificationRounds bounds the clarification loop when no
// override is configured.
const DefaultMaxClarificationRounds = 3

// RouteClassifier decides which terminal path a request takes.
type RouteClassifier interface {
	Classify(ctx context.Context, turns []Turn) (Route, error)
}

// TaskRefiner drives clarification and produces the refined task description.
type TaskRefiner interface {
	AskOrAccept(ctx context.Context, turns []Turn, roundsSoFar int) (*FollowUp, error)
	Polish(ctx context.Context, turns []Turn) (string, error)
}

// DirectAnswerer answers informational requests in a single call.
type DirectAnswerer interface {
	Answer(ctx context.Context, turns []Turn) (string, error)
}

// Config contains tunables for the Orchestrator.
type Config struct {
	// MaxClarificationRounds caps the clarification loop. Reaching the cap
	// forces exit, treating the request as specified with whatever context
	// has been gathered. Defaults to DefaultMaxClarificationRounds.
	MaxClarificationRounds int
}

// Orchestrator owns the routing state machine. It is stateless across
// requests: all mutable state lives in the per-request ConversationState, so
// concurrent Process calls on the same Orchestrator share nothing.
type Orchestrator struct {
	classifier RouteClassifier
	refiner    TaskRefiner
	answerer   DirectAnswerer
	executor   CodeExecutor
	maxRounds  int
}

// NewOrchestrator wires the four leaf capabilities into an orchestrator.
func NewOrchestrator(classifier RouteClassifier, refiner TaskRefiner, answerer DirectAnswerer, executor CodeExecutor, cfg Config) *Orchestrator {
	maxRounds := cfg.MaxClarificationRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxClarificationRounds
	}
	return &Orchestrator{
		classifier: classifier,
		refiner:    refiner,
		answerer:   answerer,
		executor:   executor,
		maxRounds:  maxRounds,
	}
}

// Process advances a conversation by one user turn. With a nil prior it
// starts a fresh conversation; with a prior state it resumes from whatever
// stage the state implies. The returned state is terminal unless a
// clarification question suspended the conversation (StatusAwaitingInput),
// in which case the caller invokes Process again with the user's reply.
//
// The returned error mirrors state.Err for failed terminations; callers that
// only inspect the state may ignore it.
func (o *Orchestrator) Process(ctx context.Context, input string, prior *ConversationState, sink Sink) (*ConversationState, error) {
	if sink == nil {
		sink = DiscardSink()
	}
	input = strings.TrimSpace(input)

	state := prior
	if state == nil {
		state = NewConversationState()
	} else if state.Terminal() {
		return state, fmt.Errorf("conversation %s already terminated", state.SessionID)
	}

	// Replaying a suspended conversation without a new user turn must not
	// grow the transcript; re-emit the pending question and hand control
	// back to the caller.
	if input == "" && state.Status == StatusAwaitingInput {
		sink.Emit(followUpEvent(state.PendingQuestion))
		return state, nil
	}

	if input == "" {
		f := newFailure(KindInvalidInput, "empty user input")
		return state, o.failState(state, sink, f)
	}

	if state.Status == StatusAwaitingInput {
		state.Status = StatusActive
		state.PendingQuestion = ""
	}
	state.appendTurn(SpeakerUser, input)

	if state.Route == RouteUnset {
		if err := o.classify(ctx, state, sink); err != nil {
			return state, err
		}
	}

	switch state.Route {
	case RouteClarify:
		suspended, err := o.clarify(ctx, state, sink)
		if err != nil {
			return state, err
		}
		if suspended {
			return state, nil
		}
		return state, o.polishAndExecute(ctx, state, sink)
	case RouteCode:
		return state, o.polishAndExecute(ctx, state, sink)
	case RouteAnswer:
		return state, o.answer(ctx, state, sink)
	default:
		// Unreachable: classify never leaves an invalid route behind.
		f := newFailure(KindClassification, "invalid route %q", state.Route)
		return state, o.failState(state, sink, f)
	}
}

// classify runs the classifier step and sets state.Route exactly once.
func (o *Orchestrator) classify(ctx context.Context, state *ConversationState, sink Sink) error {
	state.logStep("classification: analyzing request")

	route, err := o.classifier.Classify(ctx, state.Turns)
	if err != nil {
		return o.failState(state, sink, newFailure(KindClassification, "%v", err))
	}

	if !route.Valid() {
		state.logStep("classification: warning: out-of-domain classifier output, defaulting to answer")
		route = RouteAnswer
	}
	state.Route = route
	state.logStep("classification: route=%s", route)
	return nil
}

// clarify runs the clarification loop. It returns suspended=true when a
// follow-up question was emitted and the conversation awaits the next user
// turn. Reaching the round cap forces exit without a failure; the request
// proceeds with whatever context has been gathered.
func (o *Orchestrator) clarify(ctx context.Context, state *ConversationState, sink Sink) (suspended bool, err error) {
	for state.ClarificationRounds < o.maxRounds {
		state.logStep("clarification: round %d", state.ClarificationRounds+1)

		followUp, askErr := o.refiner.AskOrAccept(ctx, state.Turns, state.ClarificationRounds)
		state.ClarificationRounds++
		if askErr != nil {
			return false, o.failState(state, sink, newFailure(KindRefinement, "%v", askErr))
		}

		if followUp == nil {
			state.logStep("clarification: request specified after %d rounds", state.ClarificationRounds)
			return false, nil
		}

		state.appendTurn(SpeakerAssistant, followUp.Question)
		state.PendingQuestion = followUp.Question
		state.Status = StatusAwaitingInput
		state.logStep("clarification: asked follow-up question")
		sink.Emit(followUpEvent(followUp.Question))
		return true, nil
	}

	state.logStep("clarification: round cap %d reached, proceeding with gathered context", o.maxRounds)
	return false, nil
}

// polishAndExecute converges the clarify and code paths: polish the
// transcript into a refined task, then drain the code tool's event stream.
func (o *Orchestrator) polishAndExecute(ctx context.Context, state *ConversationState, sink Sink) error {
	state.logStep("refinement: polishing task description")

	task, err := o.refiner.Polish(ctx, state.Turns)
	if err != nil {
		return o.failState(state, sink, newFailure(KindRefinement, "%v", err))
	}
	state.RefinedTask = task
	state.logStep("refinement: task description ready")

	state.logStep("execution: starting code tool")
	events, err := o.executor.Execute(ctx, task)
	if err != nil {
		return o.failState(state, sink, newFailure(KindExecution, "%v", err))
	}

	for {
		select {
		case <-ctx.Done():
			return o.failState(state, sink, newFailure(KindInterrupted, "canceled during execution: %v", ctx.Err()))
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return o.failState(state, sink, newFailure(KindInterrupted, "canceled during execution: %v", ctx.Err()))
				}
				return o.failState(state, sink, newFailure(KindExecution, "event stream ended without a terminal event"))
			}
			if !ev.Terminal {
				state.logStep("execution: [%s] %s", ev.Phase, ev.Description)
				sink.Emit(progressEvent(string(ev.Phase), ev.Description))
				continue
			}
			if ev.Failed {
				// The tool's diagnostic passes through verbatim.
				return o.failState(state, sink, &Failure{Kind: KindExecution, Message: ev.Diagnostic})
			}
			state.logStep("execution: completed")
			o.finish(state, sink, ev.Result)
			return nil
		}
	}
}

// answer runs the direct-answer path.
func (o *Orchestrator) answer(ctx context.Context, state *ConversationState, sink Sink) error {
	state.logStep("answer: generating direct answer")

	text, err := o.answerer.Answer(ctx, state.Turns)
	if err != nil {
		return o.failState(state, sink, newFailure(KindAnswer, "%v", err))
	}

	state.logStep("answer: completed")
	o.finish(state, sink, text)
	return nil
}

func (o *Orchestrator) finish(state *ConversationState, sink Sink, result string) {
	state.FinalResult = result
	state.Status = StatusDone
	state.logStep("done")
	sink.Emit(resultEvent(result))
}

func (o *Orchestrator) failState(state *ConversationState, sink Sink, f *Failure) error {
	state.Err = f
	state.Status = StatusFailed
	state.logStep("failed: %s", f.Error())
	log.Printf("[router] session %s failed: %s", state.SessionID, f.Error())
	sink.Emit(failureEvent(f))
	return f
}
