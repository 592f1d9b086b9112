package server

import (
	"time"

	"github.com/omegapoint/pipeline/internal/pipeline/state"
)

// RunStageRequest is the POST /api/stages/{id}/run body.
type RunStageRequest struct {
	// Input carries the raw research goal text. Stage 1 only.
	Input string `json:"input,omitempty"`
	// SelectionID narrows the run to the children of one upstream entity.
	SelectionID string `json:"selection_id,omitempty"`
	// Lens overrides the global lens for this invocation.
	Lens string `json:"lens,omitempty"`
}

// StageStatus is the GET /api/stages/{id} response.
type StageStatus struct {
	Stage               int            `json:"stage"`
	Committed           bool           `json:"committed"`
	Digest              string         `json:"digest,omitempty"`
	Counters            state.Counters `json:"counters"`
	LastInvocationID    string         `json:"last_invocation_id,omitempty"`
	UpdatedAt           *time.Time     `json:"updated_at,omitempty"`
	RunningInvocationID string         `json:"running_invocation_id,omitempty"`
}
