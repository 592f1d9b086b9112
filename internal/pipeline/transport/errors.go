// Package transport wraps outbound calls to the generation service with
// bounded retry and cooperative cancellation.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// CancelledError marks a caller-initiated cancellation. It is never retried
// and is distinguishable from every other error kind so callers can surface
// "stage aborted" instead of a failure.
type CancelledError struct {
	Cause error
}

func (e *CancelledError) Error() string {
	if e.Cause != nil && strings.TrimSpace(e.Cause.Error()) != "" {
		return "call cancelled: " + e.Cause.Error()
	}
	return "call cancelled"
}

func (e *CancelledError) Unwrap() error { return e.Cause }

// IsCancelled reports whether err is (or wraps) a cancellation.
func IsCancelled(err error) bool {
	var ce *CancelledError
	return errors.As(err, &ce) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// HTTPError is a non-2xx response from the generation service.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "request failed"
	}
	return fmt.Sprintf("generation service error (status=%d): %s", e.StatusCode, msg)
}

// ProtocolError is a response that violated the service contract: undecodable
// JSON, or a batch_results list whose length does not match the submitted
// item count. Both are treated as a whole-batch transport failure.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string { return "generation service protocol error: " + e.Message }

// ExhaustedError is returned once the retry budget for one logical call is
// spent. It wraps the last attempt's error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("call failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// cancelledFromContext builds a CancelledError carrying the context cause
// when one was recorded.
func cancelledFromContext(ctx context.Context, fallback error) *CancelledError {
	if cause := context.Cause(ctx); cause != nil {
		return &CancelledError{Cause: cause}
	}
	return &CancelledError{Cause: fallback}
}
