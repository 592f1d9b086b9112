// Package state owns the StageOutputTable: one slot per pipeline stage,
// written only by stage aggregation, read by later-stage extractors.
package state

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/omegapoint/pipeline/internal/pipeline/model"
)

// NumStages is the fixed length of the pipeline.
const NumStages = 10

// Counters accumulate per-item success/failure across re-runs of a stage.
// They are additive: a selective re-run adds to the running total.
type Counters struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// SlotMeta describes one committed slot without its value.
type SlotMeta struct {
	Stage        int       `json:"stage"`
	Committed    bool      `json:"committed"`
	Counters     Counters  `json:"counters"`
	Digest       string    `json:"digest,omitempty"`
	InvocationID string    `json:"invocation_id,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Table is the engine's accumulated stage output. All methods are safe for
// concurrent use; the single-flight rule upstream guarantees at most one
// writer per slot at a time, but readers may overlap writers freely.
type Table struct {
	mu sync.RWMutex

	objective    *model.Objective
	pillars      *model.GoalPillars
	requirements map[string][]model.RequirementAtom
	evidence     map[string]model.DomainEvidence
	matching     map[string]model.GoalEdgeSet
	l3s          []model.L3Question
	hypotheses   []model.Hypothesis
	l4s          []model.L4Question
	tasks        []model.TaskNode
	syntheses    []model.ExperimentSynthesis

	meta [NumStages + 1]SlotMeta
}

// NewTable creates an empty table; every slot starts uncommitted.
func NewTable() *Table {
	t := &Table{}
	for i := 1; i <= NumStages; i++ {
		t.meta[i].Stage = i
	}
	return t
}

// Meta returns the slot metadata for a stage.
func (t *Table) Meta(stage int) (SlotMeta, error) {
	if stage < 1 || stage > NumStages {
		return SlotMeta{}, fmt.Errorf("stage %d out of range 1..%d", stage, NumStages)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.meta[stage], nil
}

// commit updates a slot's metadata after its value has been stored. Counters
// are added, never reset, so repeated partial runs present a running total.
func (t *Table) commit(stage int, value any, add Counters, invocationID string) {
	m := &t.meta[stage]
	m.Committed = true
	m.Counters.Successful += add.Successful
	m.Counters.Failed += add.Failed
	m.Digest = digest(value)
	m.InvocationID = invocationID
	m.UpdatedAt = time.Now().UTC()
}

// digest hashes the canonical JSON encoding of a slot value. Map keys
// marshal in sorted order, so equal values always hash equal.
func digest(value any) string {
	b, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	sum := blake3.Sum256(b)
	return fmt.Sprintf("%x", sum[:8])
}

// SetObjective commits the stage-1 slot.
func (t *Table) SetObjective(v model.Objective, add Counters, invocationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.objective = &v
	t.commit(1, v, add, invocationID)
}

// Objective reads the stage-1 slot.
func (t *Table) Objective() (model.Objective, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.objective == nil {
		return model.Objective{}, false
	}
	return *t.objective, true
}

// SetPillars commits the stage-2 slot.
func (t *Table) SetPillars(v model.GoalPillars, add Counters, invocationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pillars = &v
	t.commit(2, v, add, invocationID)
}

// Pillars reads the stage-2 slot.
func (t *Table) Pillars() (model.GoalPillars, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.pillars == nil {
		return model.GoalPillars{}, false
	}
	return *t.pillars, true
}

// SetRequirements commits the stage-3 slot.
func (t *Table) SetRequirements(v map[string][]model.RequirementAtom, add Counters, invocationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requirements = v
	t.commit(3, v, add, invocationID)
}

// Requirements reads the stage-3 slot.
func (t *Table) Requirements() (map[string][]model.RequirementAtom, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.requirements, t.requirements != nil
}

// SetEvidence commits the stage-4 slot.
func (t *Table) SetEvidence(v map[string]model.DomainEvidence, add Counters, invocationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evidence = v
	t.commit(4, v, add, invocationID)
}

// Evidence reads the stage-4 slot.
func (t *Table) Evidence() (map[string]model.DomainEvidence, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.evidence, t.evidence != nil
}

// SetMatching commits the stage-5 slot.
func (t *Table) SetMatching(v map[string]model.GoalEdgeSet, add Counters, invocationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.matching = v
	t.commit(5, v, add, invocationID)
}

// Matching reads the stage-5 slot.
func (t *Table) Matching() (map[string]model.GoalEdgeSet, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.matching, t.matching != nil
}

// SetL3Questions commits the stage-6 slot.
func (t *Table) SetL3Questions(v []model.L3Question, add Counters, invocationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.l3s = v
	t.commit(6, v, add, invocationID)
}

// L3Questions reads the stage-6 slot.
func (t *Table) L3Questions() ([]model.L3Question, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.l3s, t.l3s != nil
}

// SetHypotheses commits the stage-7 slot.
func (t *Table) SetHypotheses(v []model.Hypothesis, add Counters, invocationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hypotheses = v
	t.commit(7, v, add, invocationID)
}

// Hypotheses reads the stage-7 slot.
func (t *Table) Hypotheses() ([]model.Hypothesis, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hypotheses, t.hypotheses != nil
}

// SetL4Questions commits the stage-8 slot.
func (t *Table) SetL4Questions(v []model.L4Question, add Counters, invocationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.l4s = v
	t.commit(8, v, add, invocationID)
}

// L4Questions reads the stage-8 slot.
func (t *Table) L4Questions() ([]model.L4Question, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.l4s, t.l4s != nil
}

// SetTasks commits the stage-9 slot.
func (t *Table) SetTasks(v []model.TaskNode, add Counters, invocationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tasks = v
	t.commit(9, v, add, invocationID)
}

// Tasks reads the stage-9 slot.
func (t *Table) Tasks() ([]model.TaskNode, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tasks, t.tasks != nil
}

// SetSyntheses commits the stage-10 slot.
func (t *Table) SetSyntheses(v []model.ExperimentSynthesis, add Counters, invocationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.syntheses = v
	t.commit(10, v, add, invocationID)
}

// Syntheses reads the stage-10 slot.
func (t *Table) Syntheses() ([]model.ExperimentSynthesis, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.syntheses, t.syntheses != nil
}

// Snapshot renders the whole table in its persistable shape: slot values
// keyed "stage1".."stage10" plus a parallel meta list. Uncommitted slots are
// omitted from the values map. Whatever persists this must round-trip the
// per-stage shapes losslessly.
type Snapshot struct {
	Values map[string]any `json:"values"`
	Meta   []SlotMeta     `json:"meta"`
}

// Snapshot returns a point-in-time view of the table. A stage never observes
// a partially merged slot: commits swap whole values under the write lock.
func (t *Table) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	values := make(map[string]any)
	if t.objective != nil {
		values["stage1"] = *t.objective
	}
	if t.pillars != nil {
		values["stage2"] = *t.pillars
	}
	if t.requirements != nil {
		values["stage3"] = t.requirements
	}
	if t.evidence != nil {
		values["stage4"] = t.evidence
	}
	if t.matching != nil {
		values["stage5"] = t.matching
	}
	if t.l3s != nil {
		values["stage6"] = t.l3s
	}
	if t.hypotheses != nil {
		values["stage7"] = t.hypotheses
	}
	if t.l4s != nil {
		values["stage8"] = t.l4s
	}
	if t.tasks != nil {
		values["stage9"] = t.tasks
	}
	if t.syntheses != nil {
		values["stage10"] = t.syntheses
	}
	meta := make([]SlotMeta, 0, NumStages)
	for i := 1; i <= NumStages; i++ {
		meta = append(meta, t.meta[i])
	}
	return Snapshot{Values: values, Meta: meta}
}
