package validate

import (
	"errors"
	"testing"

	"github.com/omegapoint/pipeline/internal/pipeline/model"
)

func TestStage_AcceptsWellFormedSlots(t *testing.T) {
	cases := []struct {
		name   string
		stage  int
		output any
	}{
		{"objective", 1, model.Objective{Q0: "q"}},
		{"pillars", 2, model.GoalPillars{Goals: []model.Goal{{ID: "G1"}}}},
		{"requirements", 3, map[string][]model.RequirementAtom{"G1": {{ID: "RA1"}}}},
		{"evidence", 4, map[string]model.DomainEvidence{
			"G1": {DomainMapping: []model.ResearchDomain{}, ScientificPillars: []model.ScientificPillar{}},
		}},
		{"matching", 5, map[string]model.GoalEdgeSet{"G1": {Edges: []model.GoalEdge{}}}},
		{"l3", 6, []model.L3Question{{ID: "Q1", ParentGoalID: "G1"}}},
		{"hypotheses", 7, []model.Hypothesis{{ID: "IH1", ParentL3ID: "Q1"}}},
		{"l4", 8, []model.L4Question{{ID: "Q4", ParentL3ID: "Q1"}}},
		{"tasks", 9, []model.TaskNode{{ID: "T1", ParentL4ID: "Q4", ParentL3ID: "Q1"}}},
		{"synthesis", 10, []model.ExperimentSynthesis{{ParentL4ID: "Q4", Verdict: "unified"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := Stage(tc.stage, tc.output); err != nil {
				t.Fatalf("stage %d rejected valid output: %v", tc.stage, err)
			}
		})
	}
}

func TestStage_RejectsShapeViolations(t *testing.T) {
	cases := []struct {
		name   string
		stage  int
		output any
	}{
		{"objective missing q0", 1, map[string]any{}},
		{"objective empty q0", 1, model.Objective{Q0: ""}},
		{"pillars zero goals", 2, model.GoalPillars{Goals: []model.Goal{}}},
		{"requirements empty map", 3, map[string][]model.RequirementAtom{}},
		{"requirements non-array value", 3, map[string]any{"G1": "oops"}},
		{"evidence missing pillars key", 4, map[string]any{"G1": map[string]any{"domain_mapping": []any{}}}},
		{"l3 missing parent", 6, []map[string]any{{"id": "Q1"}}},
		{"tasks missing l3 parent", 9, []map[string]any{{"id": "T1", "parent_l4_id": "Q4"}}},
		{"synthesis missing verdict", 10, []map[string]any{{"parent_l4_id": "Q4"}}},
		{"unknown stage", 11, map[string]any{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Stage(tc.stage, tc.output)
			var ve *Error
			if !errors.As(err, &ve) {
				t.Fatalf("expected validation error, got %T: %v", err, err)
			}
			if ve.Reason == "" {
				t.Fatal("validation error must carry a reason")
			}
		})
	}
}
