package llm

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"
)

// RetryConfig controls the bounded retry behavior of a Retrying provider.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// DefaultRetryConfig returns sensible retry settings for LLM calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// Retrying wraps a Provider with bounded exponential backoff for transient
// failures. Non-transient failures (auth, bad request) return immediately.
type Retrying struct {
	inner Provider
	cfg   RetryConfig
}

// WithRetry wraps a provider with retry behavior. Zero-valued fields fall
// back to DefaultRetryConfig individually; MaxRetries of exactly 0 means a
// single attempt with no retries, while a negative value selects the default.
func WithRetry(inner Provider, cfg RetryConfig) *Retrying {
	def := DefaultRetryConfig()
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = def.BackoffFactor
	}
	return &Retrying{inner: inner, cfg: cfg}
}

// Name implements Provider.
func (r *Retrying) Name() string { return r.inner.Name() }

// Generate implements Provider.
func (r *Retrying) Generate(ctx context.Context, system, prompt string) (string, error) {
	delay := r.cfg.InitialDelay

	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := delay
			if r.cfg.Jitter {
				wait += time.Duration(rand.Int63n(int64(delay)/2 + 1))
			}
			log.Printf("[llm] %s: retrying in %v (attempt %d/%d): %v",
				r.inner.Name(), wait.Round(time.Millisecond), attempt, r.cfg.MaxRetries, lastErr)

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}

			delay = time.Duration(float64(delay) * r.cfg.BackoffFactor)
			if delay > r.cfg.MaxDelay {
				delay = r.cfg.MaxDelay
			}
		}

		result, err := r.inner.Generate(ctx, system, prompt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isTransient(err) {
			return "", err
		}
	}

	return "", fmt.Errorf("%s: giving up after %d retries: %w", r.inner.Name(), r.cfg.MaxRetries, lastErr)
}

// isTransient reports whether an error is worth retrying. Provider SDKs
// surface failures as opaque errors, so classification is by message.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	permanent := []string{
		"unauthorized", "401", "forbidden", "403",
		"invalid request", "bad request", "400",
		"not found", "404",
	}
	for _, p := range permanent {
		if strings.Contains(msg, p) {
			return false
		}
	}

	transient := []string{
		"timeout", "timed out", "deadline exceeded",
		"connection refused", "connection reset", "broken pipe", "eof",
		"rate limit", "too many requests", "429",
		"overloaded", "internal server error", "bad gateway",
		"service unavailable", "gateway timeout",
		"500", "502", "503", "504", "529",
		"temporary", "unavailable",
	}
	for _, t := range transient {
		if strings.Contains(msg, t) {
			return true
		}
	}
	return false
}
