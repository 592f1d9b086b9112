package state

import (
	"testing"

	"github.com/omegapoint/pipeline/internal/pipeline/model"
)

func TestTable_EmptySlotsUncommitted(t *testing.T) {
	tbl := NewTable()
	for stage := 1; stage <= NumStages; stage++ {
		m, err := tbl.Meta(stage)
		if err != nil {
			t.Fatalf("meta(%d): %v", stage, err)
		}
		if m.Committed {
			t.Fatalf("stage %d committed before any run", stage)
		}
	}
	if _, ok := tbl.Pillars(); ok {
		t.Fatal("pillars present on empty table")
	}
	if _, err := tbl.Meta(0); err == nil {
		t.Fatal("expected range error for stage 0")
	}
	if _, err := tbl.Meta(11); err == nil {
		t.Fatal("expected range error for stage 11")
	}
}

func TestTable_CountersAccumulateAcrossReRuns(t *testing.T) {
	tbl := NewTable()
	tbl.SetRequirements(map[string][]model.RequirementAtom{
		"G1": {{ID: "RA1", Text: "x"}},
	}, Counters{Successful: 2, Failed: 1}, "inv-1")
	tbl.SetRequirements(map[string][]model.RequirementAtom{
		"G1": {{ID: "RA1", Text: "x"}},
		"G3": {{ID: "RA9", Text: "y"}},
	}, Counters{Successful: 1}, "inv-2")

	m, _ := tbl.Meta(3)
	if m.Counters.Successful != 3 || m.Counters.Failed != 1 {
		t.Fatalf("cumulative counters: got %+v", m.Counters)
	}
	if m.InvocationID != "inv-2" {
		t.Fatalf("invocation id: got %q", m.InvocationID)
	}
	if !m.Committed {
		t.Fatal("slot must be committed")
	}
}

func TestTable_DigestStableForEqualValues(t *testing.T) {
	a := NewTable()
	b := NewTable()
	v := map[string][]model.RequirementAtom{
		"G1": {{ID: "RA1", Text: "x"}},
		"G2": {{ID: "RA2", Text: "y"}},
	}
	a.SetRequirements(v, Counters{}, "inv-a")
	b.SetRequirements(map[string][]model.RequirementAtom{
		"G2": {{ID: "RA2", Text: "y"}},
		"G1": {{ID: "RA1", Text: "x"}},
	}, Counters{}, "inv-b")

	ma, _ := a.Meta(3)
	mb, _ := b.Meta(3)
	if ma.Digest == "" || ma.Digest != mb.Digest {
		t.Fatalf("digests differ for equal values: %q vs %q", ma.Digest, mb.Digest)
	}

	b.SetRequirements(map[string][]model.RequirementAtom{
		"G1": {{ID: "RA1", Text: "changed"}},
	}, Counters{}, "inv-c")
	mb2, _ := b.Meta(3)
	if mb2.Digest == ma.Digest {
		t.Fatal("digest did not change for a changed value")
	}
}

func TestTable_SnapshotOmitsEmptySlots(t *testing.T) {
	tbl := NewTable()
	tbl.SetObjective(model.Objective{Q0: "q"}, Counters{Successful: 1}, "inv-1")
	tbl.SetL3Questions([]model.L3Question{{ID: "Q_L3_G1_1", ParentGoalID: "G1"}}, Counters{Successful: 1}, "inv-2")

	snap := tbl.Snapshot()
	if len(snap.Values) != 2 {
		t.Fatalf("snapshot values: got %d want 2 (%v)", len(snap.Values), snap.Values)
	}
	if _, ok := snap.Values["stage1"]; !ok {
		t.Fatal("stage1 missing from snapshot")
	}
	if _, ok := snap.Values["stage6"]; !ok {
		t.Fatal("stage6 missing from snapshot")
	}
	if len(snap.Meta) != NumStages {
		t.Fatalf("meta length: got %d want %d", len(snap.Meta), NumStages)
	}
	if !snap.Meta[0].Committed || snap.Meta[2].Committed {
		t.Fatalf("meta committed flags wrong: %+v", snap.Meta)
	}
}
