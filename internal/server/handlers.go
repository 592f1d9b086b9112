package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/omegapoint/pipeline/internal/pipeline/engine"
	"github.com/omegapoint/pipeline/internal/pipeline/extract"
	"github.com/omegapoint/pipeline/internal/pipeline/state"
	"github.com/omegapoint/pipeline/internal/pipeline/transport"
	"github.com/omegapoint/pipeline/internal/pipeline/validate"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) stageID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id < 1 || id > state.NumStages {
		writeError(w, http.StatusNotFound,
			fmt.Sprintf("stage %q out of range 1..%d", r.PathValue("id"), state.NumStages))
		return 0, false
	}
	return id, true
}

// handleRunStage executes one stage invocation synchronously. A concurrent
// run request for the same stage supersedes the one in flight; cancellation
// and progress remain reachable through their own endpoints while this
// request blocks.
func (s *Server) handleRunStage(w http.ResponseWriter, r *http.Request) {
	stage, ok := s.stageID(w, r)
	if !ok {
		return
	}

	var req RunStageRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
	}

	inv, err := s.engine.RunStage(s.baseCtx, stage, engine.Options{
		Input:       req.Input,
		SelectionID: req.SelectionID,
		Lens:        req.Lens,
		OnProgress:  s.broadcaster.Send,
	})
	if err != nil {
		if transport.IsCancelled(err) {
			// An aborted stage is a state, not a failure.
			writeJSON(w, http.StatusOK, map[string]any{
				"aborted":    true,
				"invocation": inv,
			})
			return
		}
		status := http.StatusInternalServerError
		var missing *extract.MissingUpstreamError
		var selection *extract.SelectionError
		var invalid *validate.Error
		var exhausted *transport.ExhaustedError
		switch {
		case errors.As(err, &missing):
			status = http.StatusConflict
		case errors.As(err, &selection):
			status = http.StatusNotFound
		case errors.As(err, &invalid):
			status = http.StatusUnprocessableEntity
		case errors.As(err, &exhausted):
			status = http.StatusBadGateway
		}
		s.logger.Error("stage run failed", "stage", stage, "error", err)
		writeJSON(w, status, map[string]any{
			"error":      err.Error(),
			"invocation": inv,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"invocation": inv})
}

func (s *Server) handleCancelStage(w http.ResponseWriter, r *http.Request) {
	stage, ok := s.stageID(w, r)
	if !ok {
		return
	}
	if !s.engine.Cancel(stage) {
		writeError(w, http.StatusConflict, fmt.Sprintf("stage %d has no invocation in flight", stage))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true, "stage": stage})
}

func (s *Server) handleStageStatus(w http.ResponseWriter, r *http.Request) {
	stage, ok := s.stageID(w, r)
	if !ok {
		return
	}
	meta, err := s.engine.Table().Meta(stage)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	status := StageStatus{
		Stage:            stage,
		Committed:        meta.Committed,
		Digest:           meta.Digest,
		Counters:         meta.Counters,
		LastInvocationID: meta.InvocationID,
	}
	if meta.Committed {
		t := meta.UpdatedAt
		status.UpdatedAt = &t
	}
	if id, running := s.engine.Running(stage); running {
		status.RunningInvocationID = id
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Table().Snapshot())
}

func (s *Server) handleHierarchy(w http.ResponseWriter, r *http.Request) {
	tree, err := s.engine.Hierarchy()
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	WriteSSE(w, r, s.broadcaster)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
