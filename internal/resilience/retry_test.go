package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func quickRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	var calls int
	err := Do(context.Background(), quickRetry(3), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("upstream hiccup"), 503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	var calls int
	err := Do(context.Background(), quickRetry(3), func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("always down"), 500)
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_NonTransientError_NoRetry(t *testing.T) {
	var calls int
	err := Do(context.Background(), quickRetry(3), func(_ context.Context) error {
		calls++
		return errors.New("bad request: malformed body")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call for non-transient error, got %d", calls)
	}
}

func TestDo_QuotaError_NoRetry(t *testing.T) {
	// Quota exhaustion must surface immediately: the caller rotates
	// credentials instead of retrying a spent key.
	var calls int
	err := Do(context.Background(), quickRetry(5), func(_ context.Context) error {
		calls++
		return NewQuotaError(errors.New("monthly limit reached"), "websearch")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call for quota error, got %d", calls)
	}
	if !IsQuotaExhausted(err) {
		t.Error("expected error to classify as quota exhaustion")
	}
}

func TestDo_ContextCancelled_StopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	cfg := quickRetry(5)
	cfg.InitialBackoff = 50 * time.Millisecond

	err := Do(ctx, cfg, func(_ context.Context) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return NewTransientError(errors.New("down"), 500)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls > 3 {
		t.Errorf("expected <= 3 calls after cancel, got %d", calls)
	}
}

func TestDo_CustomShouldRetry(t *testing.T) {
	var calls int
	cfg := quickRetry(3)
	cfg.ShouldRetry = func(err error) bool {
		return err.Error() == "retry me"
	}

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("retry me")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestDoVal_ReturnsValueAfterRetry(t *testing.T) {
	var calls int
	val, err := DoVal(context.Background(), quickRetry(3), func(_ context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", NewTransientError(errors.New("down"), 502)
		}
		return "fragment", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "fragment" {
		t.Errorf("expected %q, got %q", "fragment", val)
	}
}

func TestDoVal_ReturnsZeroOnFailure(t *testing.T) {
	val, err := DoVal(context.Background(), quickRetry(2), func(_ context.Context) (int, error) {
		return 42, NewTransientError(errors.New("down"), 500)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if val != 0 {
		t.Errorf("expected zero value on failure, got %d", val)
	}
}

func TestComputeBackoff_ExponentialGrowthAndCap(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
		Multiplier:     2.0,
		JitterFraction: 0,
	})

	want := []time.Duration{100, 200, 400, 500, 500}
	for i, w := range want {
		if got := computeBackoff(i, cfg); got != w*time.Millisecond {
			t.Errorf("attempt %d: expected %v, got %v", i, w*time.Millisecond, got)
		}
	}
}

func TestComputeBackoff_WithJitter(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.5,
	})

	seen := make(map[time.Duration]bool)
	for i := 0; i < 100; i++ {
		d := computeBackoff(0, cfg)
		seen[d] = true
		if d < 500*time.Millisecond || d > 1500*time.Millisecond {
			t.Errorf("delay %v outside [500ms, 1500ms]", d)
		}
	}
	if len(seen) < 2 {
		t.Error("expected jitter to produce varying delays")
	}
}
