package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPolicyDelay_ExponentialSequence(t *testing.T) {
	p := DefaultPolicy()
	if got := p.Delay(1); got != 1500*time.Millisecond {
		t.Fatalf("delay after attempt 1: got %v want %v", got, 1500*time.Millisecond)
	}
	if got := p.Delay(2); got != 3000*time.Millisecond {
		t.Fatalf("delay after attempt 2: got %v want %v", got, 3000*time.Millisecond)
	}
}

func TestPolicyDelay_DegenerateInputs(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, Multiplier: 0}
	if got := p.Delay(3); got != 100*time.Millisecond {
		t.Fatalf("non-positive multiplier should mean constant delay: got %v", got)
	}
	p.BaseDelay = 0
	if got := p.Delay(2); got != 0 {
		t.Fatalf("zero base delay: got %v want 0", got)
	}
	if got := p.Delay(0); got != 0 {
		t.Fatalf("attempt clamped to 1 with zero base: got %v", got)
	}
}

func TestDo_RetriesUpToBoundAndReturnsExhausted(t *testing.T) {
	var attempts int
	var slept []time.Duration
	sleep := func(ctx context.Context, d time.Duration) bool {
		slept = append(slept, d)
		return true
	}
	opErr := errors.New("boom")
	_, err := Do(context.Background(), DefaultPolicy(), sleep, func(ctx context.Context) (int, error) {
		attempts++
		return 0, opErr
	})
	if attempts != 3 {
		t.Fatalf("attempts: got %d want 3", attempts)
	}
	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("expected ExhaustedError, got %T: %v", err, err)
	}
	if ex.Attempts != 3 || !errors.Is(ex, opErr) {
		t.Fatalf("exhausted error mismatch: %+v", ex)
	}
	want := []time.Duration{1500 * time.Millisecond, 3000 * time.Millisecond}
	if len(slept) != len(want) {
		t.Fatalf("sleeps: got %v want %v", slept, want)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Fatalf("sleep %d: got %v want %v", i, slept[i], want[i])
		}
	}
	if slept[0] >= slept[1] {
		t.Fatalf("inter-attempt delays must strictly increase: %v", slept)
	}
}

func TestDo_SucceedsAfterTransientFailure(t *testing.T) {
	var attempts int
	sleep := func(ctx context.Context, d time.Duration) bool { return true }
	out, err := Do(context.Background(), DefaultPolicy(), sleep, func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ok" || attempts != 2 {
		t.Fatalf("got out=%q attempts=%d", out, attempts)
	}
}

func TestDo_CancellationBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var attempts int
	_, err := Do(ctx, DefaultPolicy(), nil, func(ctx context.Context) (int, error) {
		attempts++
		return 0, nil
	})
	if attempts != 0 {
		t.Fatalf("op must not run after cancellation: attempts=%d", attempts)
	}
	var ce *CancelledError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CancelledError, got %T: %v", err, err)
	}
}

func TestDo_CancellationDuringAttemptIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	var attempts int
	sleep := func(ctx context.Context, d time.Duration) bool {
		t.Fatalf("must not sleep after cancellation")
		return false
	}
	_, err := Do(ctx, DefaultPolicy(), sleep, func(ctx context.Context) (int, error) {
		attempts++
		cancel(errors.New("user aborted"))
		return 0, &CancelledError{Cause: ctx.Err()}
	})
	if attempts != 1 {
		t.Fatalf("attempts: got %d want 1", attempts)
	}
	var ce *CancelledError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CancelledError, got %T: %v", err, err)
	}
	if ce.Cause == nil || ce.Cause.Error() != "user aborted" {
		t.Fatalf("cancellation cause lost: %v", ce.Cause)
	}
}

func TestDo_CancellationDuringBackoffSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var attempts int
	sleep := func(ctx context.Context, d time.Duration) bool {
		cancel()
		return false
	}
	_, err := Do(ctx, DefaultPolicy(), sleep, func(ctx context.Context) (int, error) {
		attempts++
		return 0, errors.New("boom")
	})
	if attempts != 1 {
		t.Fatalf("attempts: got %d want 1", attempts)
	}
	if !IsCancelled(err) {
		t.Fatalf("expected cancellation, got %T: %v", err, err)
	}
}

func TestIsCancelled_DistinguishesErrorKinds(t *testing.T) {
	if IsCancelled(errors.New("boom")) {
		t.Fatal("plain error must not classify as cancellation")
	}
	if IsCancelled(&HTTPError{StatusCode: 500}) {
		t.Fatal("HTTP error must not classify as cancellation")
	}
	if !IsCancelled(&CancelledError{}) {
		t.Fatal("CancelledError must classify as cancellation")
	}
	if !IsCancelled(context.Canceled) {
		t.Fatal("context.Canceled must classify as cancellation")
	}
	wrapped := &ExhaustedError{Attempts: 3, Last: &HTTPError{StatusCode: 503}}
	if IsCancelled(wrapped) {
		t.Fatal("exhaustion over HTTP errors must not classify as cancellation")
	}
}
