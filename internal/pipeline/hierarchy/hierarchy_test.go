package hierarchy

import (
	"strings"
	"testing"

	"github.com/omegapoint/pipeline/internal/pipeline/model"
)

func TestReconstruct_NestsLeavesUnderBothParentLevels(t *testing.T) {
	l3s := []model.L3Question{
		{ID: "L3A", ParentGoalID: "G1"},
		{ID: "L3B", ParentGoalID: "G2"},
	}
	l4s := []model.L4Question{
		{ID: "L4A1", ParentL3ID: "L3A"},
		{ID: "L4A2", ParentL3ID: "L3A"},
		{ID: "L4B1", ParentL3ID: "L3B"},
	}
	tasks := []model.TaskNode{
		{ID: "T1", Type: "l6", ParentL4ID: "L4A1", ParentL3ID: "L3A"},
		{ID: "T2", Type: "l5", ParentL4ID: "L4A2", ParentL3ID: "L3A"},
		{ID: "T3", Type: "l6", ParentL4ID: "L4B1", ParentL3ID: "L3B"},
		{ID: "T4", Type: "l6", ParentL4ID: "L4A1", ParentL3ID: "L3A"},
	}

	tree := Reconstruct(l3s, l4s, tasks, nil, nil)
	if len(tree.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", tree.Warnings)
	}
	if len(tree.Branches) != 2 {
		t.Fatalf("branches: got %d want 2", len(tree.Branches))
	}

	a := tree.Branches[0]
	if a.Question.ID != "L3A" || len(a.Children) != 2 {
		t.Fatalf("L3A branch wrong: %+v", a)
	}
	leaves := a.Children[0].Leaves
	if len(leaves) != 2 || leaves[0].ID != "T1" || leaves[1].ID != "T4" {
		t.Fatalf("L4A1 leaves wrong (order must be preserved): %+v", leaves)
	}
	if got := len(a.Children[1].Leaves); got != 1 {
		t.Fatalf("L4A2 leaves: got %d want 1", got)
	}

	// No duplication across the whole tree.
	seen := map[string]int{}
	for _, fb := range tree.Branches {
		for _, tb := range fb.Children {
			for _, leaf := range tb.Leaves {
				seen[leaf.ID]++
			}
		}
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("leaf %s appears %d times", id, n)
		}
	}
	if len(seen) != len(tasks) {
		t.Fatalf("leaves placed: got %d want %d", len(seen), len(tasks))
	}
}

func TestReconstruct_OrphanReportedNotDropped(t *testing.T) {
	l3s := []model.L3Question{{ID: "L3A"}}
	l4s := []model.L4Question{{ID: "L4A", ParentL3ID: "L3A"}}
	tasks := []model.TaskNode{
		{ID: "T1", Type: "l6", ParentL4ID: "L4A", ParentL3ID: "L3A"},
		// Parent levels disagree: L4A belongs to L3A, not L3X.
		{ID: "T2", Type: "l6", ParentL4ID: "L4A", ParentL3ID: "L3X"},
		{ID: "T3", Type: "l6", ParentL4ID: "L4MISSING", ParentL3ID: "L3A"},
	}

	tree := Reconstruct(l3s, l4s, tasks, nil, nil)
	if len(tree.Orphans) != 2 {
		t.Fatalf("orphans: got %d want 2 (%+v)", len(tree.Orphans), tree.Orphans)
	}
	if len(tree.Warnings) != 2 {
		t.Fatalf("warnings: got %v", tree.Warnings)
	}
	for _, w := range tree.Warnings {
		if !strings.Contains(w, "T2") && !strings.Contains(w, "T3") {
			t.Fatalf("warning does not name the orphan: %q", w)
		}
	}
	if got := len(tree.Branches[0].Children[0].Leaves); got != 1 {
		t.Fatalf("resolved leaves: got %d want 1", got)
	}
}

func TestReconstruct_UnknownTypeFallsBackToDefaultBucket(t *testing.T) {
	l3s := []model.L3Question{{ID: "L3A"}}
	l4s := []model.L4Question{{ID: "L4A", ParentL3ID: "L3A"}}
	tasks := []model.TaskNode{
		{ID: "T1", Type: "exotic", ParentL4ID: "L4A", ParentL3ID: "L3A"},
	}
	tree := Reconstruct(l3s, l4s, tasks, nil, nil)
	leaf := tree.Branches[0].Children[0].Leaves[0]
	if leaf.Type != defaultTaskType {
		t.Fatalf("type: got %q want %q", leaf.Type, defaultTaskType)
	}
}

func TestReconstruct_SynthesisAttachedToBranch(t *testing.T) {
	l3s := []model.L3Question{{ID: "L3A"}}
	l4s := []model.L4Question{
		{ID: "L4A", ParentL3ID: "L3A"},
		{ID: "L4B", ParentL3ID: "L3A"},
	}
	syntheses := []model.ExperimentSynthesis{
		{ParentL4ID: "L4A", Verdict: "unified", Title: "one experiment"},
	}
	tree := Reconstruct(l3s, l4s, nil, syntheses, nil)
	children := tree.Branches[0].Children
	if children[0].Synthesis == nil || children[0].Synthesis.Verdict != "unified" {
		t.Fatalf("L4A synthesis missing: %+v", children[0])
	}
	if children[1].Synthesis != nil {
		t.Fatalf("L4B must have no synthesis: %+v", children[1])
	}
}
