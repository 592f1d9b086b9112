package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
)

// maxResponseSize caps the response body read from the generation service.
const maxResponseSize = 32 * 1024 * 1024 // 32MB

const (
	stepPath  = "/api/execute-step"
	batchPath = "/api/execute-step-batch"
)

// Caller is the HTTP Generator. One Caller serves the whole engine; each
// logical call carries its own retry state, destroyed when the call returns.
type Caller struct {
	baseURL    string
	httpClient *http.Client
	policy     Policy
	sleep      Sleeper
	logger     *slog.Logger
}

// CallerOption configures a Caller.
type CallerOption func(*Caller)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) CallerOption {
	return func(t *Caller) { t.httpClient = c }
}

// WithPolicy sets the retry policy.
func WithPolicy(p Policy) CallerOption {
	return func(t *Caller) { t.policy = p }
}

// WithSleeper overrides the inter-attempt sleep, for tests.
func WithSleeper(s Sleeper) CallerOption {
	return func(t *Caller) { t.sleep = s }
}

// WithLogger sets the caller's logger.
func WithLogger(l *slog.Logger) CallerOption {
	return func(t *Caller) { t.logger = l }
}

// NewCaller creates a Caller for the generation service at baseURL.
func NewCaller(baseURL string, opts ...CallerOption) *Caller {
	t := &Caller{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		policy:     DefaultPolicy(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ExecuteStep issues one single-item generation call with retry.
func (t *Caller) ExecuteStep(ctx context.Context, req StepRequest) (json.RawMessage, error) {
	callID := ulid.Make().String()
	return Do(ctx, t.policy, t.sleep, func(ctx context.Context) (json.RawMessage, error) {
		raw, err := t.post(ctx, stepPath, req)
		if err != nil {
			t.logger.Warn("step call attempt failed",
				"stage", req.StageID, "call_id", callID, "error", err)
			return nil, err
		}
		return raw, nil
	})
}

// ExecuteBatch issues one batch generation call with retry and enforces the
// alignment contract between the submitted items and the returned results.
func (t *Caller) ExecuteBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	callID := ulid.Make().String()
	return Do(ctx, t.policy, t.sleep, func(ctx context.Context) (*BatchResponse, error) {
		raw, err := t.post(ctx, batchPath, req)
		if err != nil {
			t.logger.Warn("batch call attempt failed",
				"stage", req.StageID, "items", len(req.Items), "call_id", callID, "error", err)
			return nil, err
		}
		var resp BatchResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, &ProtocolError{Message: fmt.Sprintf("decode batch response: %v", err)}
		}
		if len(resp.Results) != len(req.Items) {
			return nil, &ProtocolError{Message: fmt.Sprintf(
				"batch_results length %d does not match %d submitted items",
				len(resp.Results), len(req.Items))}
		}
		// Re-derive the counters locally; the service's numbers are advisory.
		resp.Successful, resp.Failed = 0, 0
		for i := range resp.Results {
			resp.Results[i].Index = i
			if resp.Results[i].Success {
				resp.Successful++
			} else {
				resp.Failed++
			}
		}
		return &resp, nil
	})
}

func (t *Caller) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return nil, cancelledFromContext(ctx, err)
		}
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelledFromContext(ctx, err)
		}
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}
	if !json.Valid(raw) {
		return nil, &ProtocolError{Message: "response body is not valid JSON"}
	}
	return raw, nil
}

// errorMessage extracts the service's error envelope, falling back to a
// truncated body.
func errorMessage(raw []byte) string {
	var envelope struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != "" {
		if envelope.Details != "" && envelope.Details != envelope.Error {
			return envelope.Error + ": " + envelope.Details
		}
		return envelope.Error
	}
	const max = 200
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}
