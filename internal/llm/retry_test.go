package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

type scriptedProvider struct {
	errs  []error
	resp  string
	calls int
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Generate(ctx context.Context, system, prompt string) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	return s.resp, nil
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestRetrySucceedsAfterTransientErrors(t *testing.T) {
	p := &scriptedProvider{
		errs: []error{
			errors.New("429 too many requests"),
			errors.New("connection reset by peer"),
		},
		resp: "ok",
	}
	r := WithRetry(p, fastRetry())

	got, err := r.Generate(context.Background(), "", "hello")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q, want ok", got)
	}
	if p.calls != 3 {
		t.Errorf("provider called %d times, want 3", p.calls)
	}
}

func TestRetryGivesUpAfterMaxRetries(t *testing.T) {
	p := &scriptedProvider{
		errs: []error{
			errors.New("503 service unavailable"),
			errors.New("503 service unavailable"),
			errors.New("503 service unavailable"),
			errors.New("503 service unavailable"),
		},
	}
	r := WithRetry(p, fastRetry())

	_, err := r.Generate(context.Background(), "", "hello")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if p.calls != 4 {
		t.Errorf("provider called %d times, want 4 (initial + 3 retries)", p.calls)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	p := &scriptedProvider{
		errs: []error{errors.New("401 unauthorized")},
	}
	r := WithRetry(p, fastRetry())

	_, err := r.Generate(context.Background(), "", "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if p.calls != 1 {
		t.Errorf("provider called %d times, want 1 (no retry on auth failure)", p.calls)
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	p := &scriptedProvider{
		errs: []error{errors.New("timeout")},
	}
	cfg := fastRetry()
	cfg.InitialDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	r := WithRetry(p, cfg)

	done := make(chan error, 1)
	go func() {
		_, err := r.Generate(ctx, "", "hello")
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("got %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Generate did not return after cancellation")
	}
}

func TestZeroMaxRetriesMeansSingleAttempt(t *testing.T) {
	p := &scriptedProvider{
		errs: []error{errors.New("503 service unavailable")},
	}
	cfg := fastRetry()
	cfg.MaxRetries = 0
	r := WithRetry(p, cfg)

	_, err := r.Generate(context.Background(), "", "hello")
	if err == nil {
		t.Fatal("expected the transient error to surface without retrying")
	}
	if p.calls != 1 {
		t.Errorf("provider called %d times, want 1", p.calls)
	}
}

func TestWithRetryKeepsCallerDelays(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 5, InitialDelay: 50 * time.Millisecond}
	r := WithRetry(&scriptedProvider{}, cfg)

	if r.cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", r.cfg.MaxRetries)
	}
	if r.cfg.InitialDelay != 50*time.Millisecond {
		t.Errorf("InitialDelay = %v, want 50ms (caller value discarded)", r.cfg.InitialDelay)
	}
	// Unset fields pick up defaults individually.
	def := DefaultRetryConfig()
	if r.cfg.MaxDelay != def.MaxDelay {
		t.Errorf("MaxDelay = %v, want default %v", r.cfg.MaxDelay, def.MaxDelay)
	}
	if r.cfg.BackoffFactor != def.BackoffFactor {
		t.Errorf("BackoffFactor = %v, want default %v", r.cfg.BackoffFactor, def.BackoffFactor)
	}
}

func TestWithRetryNegativeMaxRetriesUsesDefault(t *testing.T) {
	r := WithRetry(&scriptedProvider{}, RetryConfig{MaxRetries: -1})
	if r.cfg.MaxRetries != DefaultRetryConfig().MaxRetries {
		t.Errorf("MaxRetries = %d, want default", r.cfg.MaxRetries)
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"request timed out", true},
		{"rate limit exceeded", true},
		{"429 too many requests", true},
		{"500 internal server error", true},
		{"overloaded_error", true},
		{"connection refused", true},
		{"401 unauthorized", false},
		{"403 forbidden", false},
		{"400 bad request", false},
		{"model not found", false},
		{"something inexplicable", false},
	}
	for _, c := range cases {
		if got := isTransient(errors.New(c.msg)); got != c.want {
			t.Errorf("isTransient(%q) = %v, want %v", c.msg, got, c.want)
		}
	}
	if isTransient(nil) {
		t.Error("isTransient(nil) should be false")
	}
}

func TestTokenTracker(t *testing.T) {
	tr := NewTokenTracker()
	tr.Add(100, 50)
	tr.Add(20, 10)

	in, out := tr.Total()
	if in != 120 || out != 60 {
		t.Errorf("Total() = (%d, %d), want (120, 60)", in, out)
	}
	if tr.Calls() != 2 {
		t.Errorf("Calls() = %d, want 2", tr.Calls())
	}
}
