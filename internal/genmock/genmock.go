// Package genmock is an in-process stand-in for the generation service. It
// answers every stage with small deterministic entities whose ids derive
// from their parents, which makes fan-out, selective re-runs and hierarchy
// reconstruction observable end to end without a live backend.
package genmock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/omegapoint/pipeline/internal/pipeline/model"
	"github.com/omegapoint/pipeline/internal/pipeline/transport"
)

// batchConcurrency bounds parallel item generation inside one batch.
const batchConcurrency = 4

// Backend implements transport.Generator and serves the same contract over
// HTTP for tests that go through the real Caller.
type Backend struct {
	logger *slog.Logger

	// failSubstring marks items as failed when their encoded payload
	// contains it. Empty means every item succeeds.
	failSubstring string

	// transientFailures makes the next N HTTP batch calls answer 502, to
	// exercise the caller's retry path. In-process calls are unaffected.
	transientFailures atomic.Int64
}

// Option configures a Backend.
type Option func(*Backend)

// WithFailSubstring fails every item whose encoded payload contains s.
func WithFailSubstring(s string) Option {
	return func(b *Backend) { b.failSubstring = s }
}

// WithTransientFailures makes the first n HTTP batch calls return 502.
func WithTransientFailures(n int) Option {
	return func(b *Backend) { b.transientFailures.Store(int64(n)) }
}

// WithLogger sets the backend logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) { b.logger = logger }
}

// New builds a mock backend.
func New(opts ...Option) *Backend {
	b := &Backend{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ExecuteStep answers the single-item stages (1 and 2).
func (b *Backend) ExecuteStep(ctx context.Context, req transport.StepRequest) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, &transport.CancelledError{Cause: context.Cause(ctx)}
	}
	raw, err := normalize(req.Input)
	if err != nil {
		return nil, err
	}
	out, err := b.generate(req.StageID, nil, raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// ExecuteBatch answers one batch call, generating items concurrently. Item
// failures are reported in the per-item results; only cancellation aborts
// the whole batch.
func (b *Backend) ExecuteBatch(ctx context.Context, req transport.BatchRequest) (*transport.BatchResponse, error) {
	resp := &transport.BatchResponse{
		Results: make([]transport.BatchResult, len(req.Items)),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, item := range req.Items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return &transport.CancelledError{Cause: context.Cause(ctx)}
			}
			raw, err := normalize(item)
			if err != nil {
				resp.Results[i] = transport.BatchResult{Index: i, Error: err.Error()}
				return nil
			}
			if b.failSubstring != "" && strings.Contains(string(raw), b.failSubstring) {
				resp.Results[i] = transport.BatchResult{Index: i, Error: "injected failure"}
				return nil
			}
			out, err := b.generate(req.StageID, req.Phase, raw)
			if err != nil {
				resp.Results[i] = transport.BatchResult{Index: i, Error: err.Error()}
				return nil
			}
			data, err := json.Marshal(out)
			if err != nil {
				resp.Results[i] = transport.BatchResult{Index: i, Error: err.Error()}
				return nil
			}
			resp.Results[i] = transport.BatchResult{Index: i, Success: true, Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, res := range resp.Results {
		if res.Success {
			resp.Successful++
		} else {
			resp.Failed++
		}
	}
	b.logger.Debug("mock batch answered",
		"stage", req.StageID, "items", len(req.Items),
		"successful", resp.Successful, "failed", resp.Failed)
	return resp, nil
}

// normalize round-trips an item through JSON so in-process typed payloads
// and HTTP raw payloads decode identically.
func normalize(item any) (json.RawMessage, error) {
	if raw, ok := item.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(item)
}

// generate produces the stage-shaped answer for one item.
func (b *Backend) generate(stageID int, phase *transport.PhaseInfo, raw json.RawMessage) (any, error) {
	switch stageID {
	case 1:
		var p model.ObjectivePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return model.Objective{Q0: "How can we achieve: " + p.Goal + "?"}, nil

	case 2:
		return model.GoalPillars{
			Goals: []model.Goal{
				{ID: "G1", Title: "first pillar", Description: "decompose the objective"},
				{ID: "G2", Title: "second pillar", Description: "decompose the objective"},
				{ID: "G3", Title: "third pillar", Description: "decompose the objective"},
			},
			BridgeLexicon: model.BridgeLexicon{
				SystemProperties: []model.SystemProperty{{ID: "SPV1", Name: "stability"}},
				FailureChannels:  []model.FailureChannel{{ID: "FCC1", Name: "degradation"}},
			},
		}, nil

	case 3:
		var p model.RequirementsPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return model.RequirementsResult{RequirementAtoms: []model.RequirementAtom{
			{ID: "RA-" + p.GoalPillar.ID + "-1", Text: "requirement one", GoalID: p.GoalPillar.ID},
			{ID: "RA-" + p.GoalPillar.ID + "-2", Text: "requirement two", GoalID: p.GoalPillar.ID},
		}}, nil

	case 4:
		if phase != nil && phase.Phase == "4b" {
			var p model.DomainScanPayload
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, err
			}
			return model.DomainScanResult{ScientificPillars: []model.ScientificPillar{
				{
					ID:       "S-" + p.TargetGoal.ID + "-" + p.TargetDomain.DomainID,
					Title:    "evidence in " + p.TargetDomain.DomainName,
					DomainID: p.TargetDomain.DomainID,
				},
			}}, nil
		}
		var p model.DomainMappingPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return model.DomainMappingResult{ResearchDomains: []model.ResearchDomain{
			{DomainID: "D-" + p.TargetGoal.ID + "-1", DomainName: "primary domain"},
			{DomainID: "D-" + p.TargetGoal.ID + "-2", DomainName: "adjacent domain"},
		}}, nil

	case 5:
		var p model.MatchingPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		edges := make([]model.GoalEdge, 0, len(p.ScientificToolkit))
		for _, pillar := range p.ScientificToolkit {
			edges = append(edges, model.GoalEdge{
				GoalID:       p.GoalPillar.ID,
				PillarID:     pillar.ID,
				Relationship: "supports",
				Confidence:   0.8,
			})
		}
		return model.MatchingResult{GoalEdges: edges, Mode: "full"}, nil

	case 6:
		var p model.FrontierPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return model.L3Result{L3Questions: []model.L3Question{
			{ID: "L3-" + p.GoalPillar.ID + "-1", Question: "frontier question one", ParentGoalID: p.GoalPillar.ID},
			{ID: "L3-" + p.GoalPillar.ID + "-2", Question: "frontier question two", ParentGoalID: p.GoalPillar.ID},
		}}, nil

	case 7:
		var p model.HypothesesPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return model.HypothesesResult{InstantiationHypotheses: []model.Hypothesis{
			{ID: "IH-" + p.L3Question.ID + "-1", Statement: "hypothesis one", ParentL3ID: p.L3Question.ID},
			{ID: "IH-" + p.L3Question.ID + "-2", Statement: "hypothesis two", ParentL3ID: p.L3Question.ID},
		}}, nil

	case 8:
		var p model.TacticalPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return model.L4Result{L4Questions: []model.L4Question{
			{ID: "L4-" + p.L3Question.ID + "-1", Question: "tactical question", ParentL3ID: p.L3Question.ID},
		}}, nil

	case 9:
		var p model.TasksPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		l4 := p.L4Question.ID
		return model.TasksResult{Tasks: []model.TaskNode{
			{ID: "T-" + l4 + "-1", Title: "mechanistic sub-question", Type: "l5", ParentL4ID: l4, ParentL3ID: p.L4Question.ParentL3ID},
			{ID: "T-" + l4 + "-2", Title: "experiment-ready task", Type: "l6", ParentL4ID: l4, ParentL3ID: p.L4Question.ParentL3ID},
			{ID: "T-" + l4 + "-3", Title: "experiment-ready task", Type: "l6", ParentL4ID: l4, ParentL3ID: p.L4Question.ParentL3ID},
		}}, nil

	case 10:
		var p model.SynthesisPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return model.SynthesisResult{Synthesis: model.ExperimentSynthesis{
			ID:         "EXP-" + p.L4Question.ID,
			ParentL4ID: p.L4Question.ID,
			Verdict:    "unified",
			Title:      "unified experiment",
			Design:     fmt.Sprintf("covers %d l6 tasks", len(p.L6Tasks)),
		}}, nil
	}
	return nil, fmt.Errorf("unknown stage %d", stageID)
}
