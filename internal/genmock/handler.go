package genmock

import (
	"encoding/json"
	"net/http"

	"github.com/omegapoint/pipeline/internal/pipeline/transport"
)

// Handler serves the generation contract over HTTP: POST /api/execute-step
// and POST /api/execute-step-batch, the surface the real Caller speaks.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/execute-step", b.handleStep)
	mux.HandleFunc("POST /api/execute-step-batch", b.handleBatch)
	return mux
}

type httpStepRequest struct {
	StageID int             `json:"stepId"`
	Input   json.RawMessage `json:"input"`
}

type httpBatchRequest struct {
	StageID int                  `json:"stepId"`
	Items   []json.RawMessage    `json:"items"`
	Phase   *transport.PhaseInfo `json:"phase_info"`
}

func (b *Backend) handleStep(w http.ResponseWriter, r *http.Request) {
	var req httpStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request: "+err.Error())
		return
	}
	out, err := b.generate(req.StageID, nil, req.Input)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleBatch(w http.ResponseWriter, r *http.Request) {
	if n := b.transientFailures.Load(); n > 0 && b.transientFailures.CompareAndSwap(n, n-1) {
		writeError(w, http.StatusBadGateway, "transient upstream failure")
		return
	}

	var req httpBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request: "+err.Error())
		return
	}

	items := make([]any, len(req.Items))
	for i, raw := range req.Items {
		items[i] = json.RawMessage(raw)
	}
	resp, err := b.ExecuteBatch(r.Context(), transport.BatchRequest{
		StageID: req.StageID,
		Items:   items,
		Phase:   req.Phase,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
