package router

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// Fakes for the four leaf capabilities. All state machine tests run against
// these; no external call is ever made.

type fakeClassifier struct {
	route Route
	raw   Route // returned as-is, may be invalid
	err   error
	calls int
}

func (f *fakeClassifier) Classify(ctx context.Context, turns []Turn) (Route, error) {
	f.calls++
	if f.err != nil {
		return RouteUnset, f.err
	}
	if f.raw != "" {
		return f.raw, nil
	}
	return f.route, nil
}

type fakeRefiner struct {
	questions   []string // questions to ask before accepting
	askErr      error
	polished    string
	polishErr   error
	askCalls    int
	polishCalls int
}

func (f *fakeRefiner) AskOrAccept(ctx context.Context, turns []Turn, roundsSoFar int) (*FollowUp, error) {
	f.askCalls++
	if f.askErr != nil {
		return nil, f.askErr
	}
	if f.askCalls <= len(f.questions) {
		return &FollowUp{Question: f.questions[f.askCalls-1]}, nil
	}
	return nil, nil
}

func (f *fakeRefiner) Polish(ctx context.Context, turns []Turn) (string, error) {
	f.polishCalls++
	if f.polishErr != nil {
		return "", f.polishErr
	}
	return f.polished, nil
}

type fakeAnswerer struct {
	text  string
	err   error
	calls int
}

func (f *fakeAnswerer) Answer(ctx context.Context, turns []Turn) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeExecutor struct {
	events   []ExecEvent
	startErr error
	calls    int
	// hang leaves the channel open without ever sending a terminal event,
	// for cancellation tests.
	hang bool
}

func (f *fakeExecutor) Execute(ctx context.Context, task string) (<-chan ExecEvent, error) {
	f.calls++
	if f.startErr != nil {
		return nil, f.startErr
	}
	ch := make(chan ExecEvent, len(f.events)+1)
	for _, ev := range f.events {
		ch <- ev
	}
	if !f.hang {
		close(ch)
	}
	return ch, nil
}

type collectSink struct {
	events []Event
}

func (s *collectSink) Emit(e Event) { s.events = append(s.events, e) }

func (s *collectSink) byType(t EventType) []Event {
	var out []Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestOrchestrator(c *fakeClassifier, r *fakeRefiner, a *fakeAnswerer, e *fakeExecutor, maxRounds int) *Orchestrator {
	return NewOrchestrator(c, r, a, e, Config{MaxClarificationRounds: maxRounds})
}

func assertTerminalInvariant(t *testing.T, state *ConversationState) {
	t.Helper()
	hasResult := state.FinalResult != ""
	hasErr := state.Err != nil
	if hasResult == hasErr {
		t.Fatalf("terminal state must have exactly one of final result / error, got result=%q err=%v",
			state.FinalResult, state.Err)
	}
}

func TestProcessEmptyInput(t *testing.T) {
	classifier := &fakeClassifier{route: RouteAnswer}
	refiner := &fakeRefiner{}
	answerer := &fakeAnswerer{text: "hi"}
	executor := &fakeExecutor{}
	orch := newTestOrchestrator(classifier, refiner, answerer, executor, 3)

	sink := &collectSink{}
	state, err := orch.Process(context.Background(), "   ", nil, sink)
	if err == nil {
		t.Fatal("expected error for empty input")
	}

	var f *Failure
	if !errors.As(err, &f) || f.Kind != KindInvalidInput {
		t.Fatalf("expected invalid_input failure, got %v", err)
	}
	if state.Err == nil || state.Err.Kind != KindInvalidInput {
		t.Fatalf("expected state error invalid_input, got %v", state.Err)
	}
	if len(state.Turns) != 0 {
		t.Errorf("expected no turns appended, got %d", len(state.Turns))
	}
	if classifier.calls+refiner.askCalls+refiner.polishCalls+answerer.calls+executor.calls != 0 {
		t.Error("expected no external capability calls for empty input")
	}
	if got := sink.byType(EventFailure); len(got) != 1 {
		t.Errorf("expected exactly one failure event, got %d", len(got))
	}
	assertTerminalInvariant(t, state)
}

func TestProcessAnswerRoute(t *testing.T) {
	classifier := &fakeClassifier{route: RouteAnswer}
	answerer := &fakeAnswerer{text: "JWT is a signed token format."}
	orch := newTestOrchestrator(classifier, &fakeRefiner{}, answerer, &fakeExecutor{}, 3)

	sink := &collectSink{}
	state, err := orch.Process(context.Background(), "What is JWT?", nil, sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if state.Route != RouteAnswer {
		t.Errorf("expected route answer, got %q", state.Route)
	}
	if state.FinalResult != "JWT is a signed token format." {
		t.Errorf("unexpected final result %q", state.FinalResult)
	}
	if answerer.calls != 1 {
		t.Errorf("expected exactly one answerer call, got %d", answerer.calls)
	}
	// Answer route: exactly one terminal event, zero progress events.
	if got := sink.byType(EventProgress); len(got) != 0 {
		t.Errorf("expected no progress events on answer route, got %d", len(got))
	}
	if got := sink.byType(EventResult); len(got) != 1 {
		t.Errorf("expected exactly one result event, got %d", len(got))
	}
	assertTerminalInvariant(t, state)
}

func TestProcessCodeRoute(t *testing.T) {
	classifier := &fakeClassifier{route: RouteCode}
	refiner := &fakeRefiner{polished: "Build a CSV summarizer in Python."}
	executor := &fakeExecutor{events: []ExecEvent{
		{Phase: PhaseThinking, Description: "planning the script"},
		{Phase: PhaseActing, Description: "Writing summarize.py"},
		{Terminal: true, Result: "created summarize.py"},
	}}
	orch := newTestOrchestrator(classifier, refiner, &fakeAnswerer{}, executor, 3)

	sink := &collectSink{}
	state, err := orch.Process(context.Background(), "Create a Python script to analyze CSV data", nil, sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if state.Route != RouteCode {
		t.Errorf("expected route code, got %q", state.Route)
	}
	if state.RefinedTask != "Build a CSV summarizer in Python." {
		t.Errorf("unexpected refined task %q", state.RefinedTask)
	}
	if state.FinalResult != "created summarize.py" {
		t.Errorf("unexpected final result %q", state.FinalResult)
	}
	if refiner.polishCalls != 1 {
		t.Errorf("expected one polish call, got %d", refiner.polishCalls)
	}
	if refiner.askCalls != 0 {
		t.Errorf("expected no ask calls on direct code route, got %d", refiner.askCalls)
	}

	// Stream shape: progress events strictly precede the single terminal event.
	if len(sink.events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(sink.events))
	}
	if sink.events[0].Type != EventProgress || sink.events[1].Type != EventProgress {
		t.Error("expected leading progress events")
	}
	if sink.events[2].Type != EventResult {
		t.Errorf("expected trailing result event, got %q", sink.events[2].Type)
	}
	assertTerminalInvariant(t, state)
}

func TestProcessClassifierFailure(t *testing.T) {
	classifier := &fakeClassifier{err: errors.New("api unavailable after 3 retries")}
	orch := newTestOrchestrator(classifier, &fakeRefiner{}, &fakeAnswerer{}, &fakeExecutor{}, 3)

	state, err := orch.Process(context.Background(), "do something", nil, nil)
	if err == nil {
		t.Fatal("expected classification failure")
	}

	var f *Failure
	if !errors.As(err, &f) || f.Kind != KindClassification {
		t.Fatalf("expected classification_failure, got %v", err)
	}
	// Only the initial user turn was appended.
	if len(state.Turns) != 1 {
		t.Errorf("expected exactly 1 turn, got %d", len(state.Turns))
	}
	assertTerminalInvariant(t, state)
}

func TestProcessOutOfDomainClassifierFallsBackToAnswer(t *testing.T) {
	classifier := &fakeClassifier{raw: Route("ESCALATE")}
	answerer := &fakeAnswerer{text: "fallback answer"}
	orch := newTestOrchestrator(classifier, &fakeRefiner{}, answerer, &fakeExecutor{}, 3)

	state, err := orch.Process(context.Background(), "hmm", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Route != RouteAnswer {
		t.Errorf("expected fallback route answer, got %q", state.Route)
	}

	var warned bool
	for _, entry := range state.ProcessingLog {
		if strings.Contains(entry, "warning") {
			warned = true
		}
	}
	if !warned {
		t.Error("expected a warning entry in the processing log")
	}
}

func TestProcessClarifyLoopToCode(t *testing.T) {
	classifier := &fakeClassifier{route: RouteClarify}
	refiner := &fakeRefiner{
		questions: []string{"What kind of thing do you want to build?"},
		polished:  "Build a to-do list web app.",
	}
	executor := &fakeExecutor{events: []ExecEvent{
		{Phase: PhaseActing, Description: "Writing app.go"},
		{Terminal: true, Result: "to-do app scaffolded"},
	}}
	orch := newTestOrchestrator(classifier, refiner, &fakeAnswerer{}, executor, 3)

	sink := &collectSink{}
	state, err := orch.Process(context.Background(), "I want to build something", nil, sink)
	if err != nil {
		t.Fatalf("unexpected error on first turn: %v", err)
	}

	// First turn suspends on a follow-up question.
	if state.Status != StatusAwaitingInput {
		t.Fatalf("expected awaiting_input, got %q", state.Status)
	}
	if state.PendingQuestion == "" {
		t.Error("expected a pending question")
	}
	if state.ClarificationRounds != 1 {
		t.Errorf("expected 1 clarification round, got %d", state.ClarificationRounds)
	}
	if got := sink.byType(EventFollowUp); len(got) != 1 {
		t.Fatalf("expected one follow-up event, got %d", len(got))
	}
	turnsAfterSuspend := len(state.Turns)

	// Second turn: user replies, refiner accepts, code path runs.
	state, err = orch.Process(context.Background(), "a to-do list web app", state, sink)
	if err != nil {
		t.Fatalf("unexpected error on resume: %v", err)
	}
	if state.Status != StatusDone {
		t.Fatalf("expected done, got %q", state.Status)
	}
	if state.FinalResult != "to-do app scaffolded" {
		t.Errorf("unexpected final result %q", state.FinalResult)
	}
	if state.RefinedTask == "" {
		t.Error("expected refined task to be set before execution")
	}
	if len(state.Turns) != turnsAfterSuspend+1 {
		t.Errorf("expected exactly one new turn on resume, got %d -> %d", turnsAfterSuspend, len(state.Turns))
	}
	if refiner.askCalls != 2 {
		t.Errorf("expected 2 ask calls (question + accept), got %d", refiner.askCalls)
	}
	assertTerminalInvariant(t, state)
}

func TestProcessClarifyRoundCapForcesExit(t *testing.T) {
	const maxRounds = 3
	classifier := &fakeClassifier{route: RouteClarify}
	refiner := &fakeRefiner{
		// More questions than the cap allows; the refiner never accepts.
		questions: []string{"q1?", "q2?", "q3?", "q4?", "q5?"},
		polished:  "best-effort task from partial context",
	}
	executor := &fakeExecutor{events: []ExecEvent{
		{Terminal: true, Result: "done anyway"},
	}}
	orch := newTestOrchestrator(classifier, refiner, &fakeAnswerer{}, executor, maxRounds)

	state, err := orch.Process(context.Background(), "vague", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; state.Status == StatusAwaitingInput; i++ {
		if i > maxRounds {
			t.Fatal("clarification loop did not terminate at the cap")
		}
		state, err = orch.Process(context.Background(), "still vague", state, nil)
		if err != nil {
			t.Fatalf("unexpected error on round %d: %v", i, err)
		}
	}

	if state.ClarificationRounds != maxRounds {
		t.Errorf("expected exactly %d rounds at exit, got %d", maxRounds, state.ClarificationRounds)
	}
	if state.Status != StatusDone {
		t.Fatalf("expected forced exit to complete the code path, got %q", state.Status)
	}
	if refiner.polishCalls != 1 {
		t.Errorf("expected polish to still run after forced exit, got %d calls", refiner.polishCalls)
	}
	if state.FinalResult != "done anyway" {
		t.Errorf("unexpected final result %q", state.FinalResult)
	}
}

func TestProcessReplayDoesNotDoubleAppend(t *testing.T) {
	classifier := &fakeClassifier{route: RouteClarify}
	refiner := &fakeRefiner{questions: []string{"which one?"}}
	orch := newTestOrchestrator(classifier, refiner, &fakeAnswerer{}, &fakeExecutor{}, 3)

	state, err := orch.Process(context.Background(), "ambiguous", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	turns := len(state.Turns)
	rounds := state.ClarificationRounds

	// Replay with no new user turn: state must not change.
	sink := &collectSink{}
	replayed, err := orch.Process(context.Background(), "", state, sink)
	if err != nil {
		t.Fatalf("unexpected error on replay: %v", err)
	}
	if len(replayed.Turns) != turns {
		t.Errorf("replay grew turns from %d to %d", turns, len(replayed.Turns))
	}
	if replayed.ClarificationRounds != rounds {
		t.Errorf("replay changed rounds from %d to %d", rounds, replayed.ClarificationRounds)
	}
	// The pending question is re-emitted (at-least-once delivery).
	if got := sink.byType(EventFollowUp); len(got) != 1 {
		t.Errorf("expected pending question re-emission, got %d follow-ups", len(got))
	}
}

func TestProcessExecutorTerminalFailure(t *testing.T) {
	classifier := &fakeClassifier{route: RouteCode}
	refiner := &fakeRefiner{polished: "task"}
	executor := &fakeExecutor{events: []ExecEvent{
		{Phase: PhaseActing, Description: "Running tests"},
		{Terminal: true, Failed: true, Diagnostic: "build failed: undefined symbol main.run"},
	}}
	orch := newTestOrchestrator(classifier, refiner, &fakeAnswerer{}, executor, 3)

	state, err := orch.Process(context.Background(), "build it", nil, nil)
	if err == nil {
		t.Fatal("expected execution failure")
	}

	var f *Failure
	if !errors.As(err, &f) || f.Kind != KindExecution {
		t.Fatalf("expected execution_failure, got %v", err)
	}
	// Diagnostic text passes through verbatim.
	if f.Message != "build failed: undefined symbol main.run" {
		t.Errorf("diagnostic was reinterpreted: %q", f.Message)
	}
	assertTerminalInvariant(t, state)
}

func TestProcessExecutorStreamEndsWithoutTerminal(t *testing.T) {
	classifier := &fakeClassifier{route: RouteCode}
	refiner := &fakeRefiner{polished: "task"}
	executor := &fakeExecutor{events: []ExecEvent{
		{Phase: PhaseThinking, Description: "thinking"},
	}}
	orch := newTestOrchestrator(classifier, refiner, &fakeAnswerer{}, executor, 3)

	_, err := orch.Process(context.Background(), "build it", nil, nil)
	var f *Failure
	if !errors.As(err, &f) || f.Kind != KindExecution {
		t.Fatalf("expected execution_failure for truncated stream, got %v", err)
	}
}

func TestProcessCancellationDuringExecution(t *testing.T) {
	classifier := &fakeClassifier{route: RouteCode}
	refiner := &fakeRefiner{polished: "task"}
	executor := &fakeExecutor{
		events: []ExecEvent{{Phase: PhaseActing, Description: "working"}},
		hang:   true,
	}
	orch := newTestOrchestrator(classifier, refiner, &fakeAnswerer{}, executor, 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var state *ConversationState
	var err error
	go func() {
		state, err = orch.Process(ctx, "build it", nil, nil)
		close(done)
	}()
	cancel()
	<-done

	var f *Failure
	if !errors.As(err, &f) || f.Kind != KindInterrupted {
		t.Fatalf("expected interrupted, got %v", err)
	}
	if state.Err == nil || state.Err.Kind != KindInterrupted {
		t.Errorf("expected interrupted recorded on state, got %v", state.Err)
	}
}

func TestProcessAnswerFailure(t *testing.T) {
	classifier := &fakeClassifier{route: RouteAnswer}
	answerer := &fakeAnswerer{err: errors.New("rate limited after retries")}
	orch := newTestOrchestrator(classifier, &fakeRefiner{}, answerer, &fakeExecutor{}, 3)

	state, err := orch.Process(context.Background(), "what is x?", nil, nil)
	var f *Failure
	if !errors.As(err, &f) || f.Kind != KindAnswer {
		t.Fatalf("expected answer_failure, got %v", err)
	}
	assertTerminalInvariant(t, state)
}

func TestProcessTerminalStateRejected(t *testing.T) {
	classifier := &fakeClassifier{route: RouteAnswer}
	answerer := &fakeAnswerer{text: "42"}
	orch := newTestOrchestrator(classifier, &fakeRefiner{}, answerer, &fakeExecutor{}, 3)

	state, err := orch.Process(context.Background(), "what?", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = orch.Process(context.Background(), "again", state, nil)
	if err == nil {
		t.Fatal("expected error when resuming a terminal conversation")
	}
}

func TestProcessRouteRecordedOnce(t *testing.T) {
	classifier := &fakeClassifier{route: RouteClarify}
	refiner := &fakeRefiner{questions: []string{"q?"}, polished: "task"}
	executor := &fakeExecutor{events: []ExecEvent{{Terminal: true, Result: "ok"}}}
	orch := newTestOrchestrator(classifier, refiner, &fakeAnswerer{}, executor, 3)

	state, _ := orch.Process(context.Background(), "vague", nil, nil)
	routeAtSuspend := state.Route

	state, _ = orch.Process(context.Background(), "details", state, nil)
	if state.Route != routeAtSuspend {
		t.Errorf("route changed after classification: %q -> %q", routeAtSuspend, state.Route)
	}
	if classifier.calls != 1 {
		t.Errorf("expected classifier to run exactly once, got %d calls", classifier.calls)
	}
}
