package transport

import (
	"context"
	"encoding/json"

	"github.com/omegapoint/pipeline/internal/pipeline/model"
)

// PhaseInfo tags a batch call belonging to one phase of a two-phase stage so
// the service (and its progress logs) can weight the phases differently.
type PhaseInfo struct {
	Phase string `json:"phase"` // "4a" or "4b"
}

// StepRequest is the single-item call used by the two non-batched early stages.
type StepRequest struct {
	StageID int               `json:"stepId"`
	Agent   model.AgentConfig `json:"agentConfig"`
	Input   any               `json:"input"`
}

// BatchRequest is one outbound batch call: the full item list for a stage
// invocation, submitted as a single request.
type BatchRequest struct {
	StageID    int               `json:"stepId"`
	Agent      model.AgentConfig `json:"agentConfig"`
	Items      []any             `json:"items"`
	GlobalLens string            `json:"globalLens,omitempty"`
	Phase      *PhaseInfo        `json:"phase_info,omitempty"`
}

// BatchResult is the per-item outcome, order-aligned with the submitted items.
type BatchResult struct {
	Index   int             `json:"item_index"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// BatchResponse is the aggregate answer to one BatchRequest. The orchestrator
// enforces len(Results) == len(items) defensively; a mismatch is a
// ProtocolError, not a partial result.
type BatchResponse struct {
	Results    []BatchResult `json:"batch_results"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
}

// Generator is the outbound interface to the generation service. The real
// implementation is Caller; tests and dev mode use genmock.
type Generator interface {
	ExecuteStep(ctx context.Context, req StepRequest) (json.RawMessage, error)
	ExecuteBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error)
}
