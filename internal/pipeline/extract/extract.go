// Package extract projects the working set of upstream entities for a stage
// out of the StageOutputTable. Extractors never fabricate entities and never
// mutate the table; each one encodes its own stage dependency.
package extract

import (
	"fmt"

	"github.com/omegapoint/pipeline/internal/pipeline/model"
	"github.com/omegapoint/pipeline/internal/pipeline/state"
)

// MissingUpstreamError reports an absent or empty upstream slot. The stage is
// never dispatched when extraction fails.
type MissingUpstreamError struct {
	Stage int
	What  string
}

func (e *MissingUpstreamError) Error() string {
	return fmt.Sprintf("no %s found from stage %d", e.What, e.Stage)
}

// SelectionError reports a selective re-run filter that matched nothing.
type SelectionError struct {
	What string
	ID   string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("no %s matching id %q", e.What, e.ID)
}

// Objective returns the stage-1 master question.
func Objective(tbl *state.Table) (model.Objective, error) {
	obj, ok := tbl.Objective()
	if !ok || obj.Q0 == "" {
		return model.Objective{}, &MissingUpstreamError{Stage: 1, What: "master objective"}
	}
	return obj, nil
}

// Pillars returns the stage-2 goal pillars and bridge lexicon.
func Pillars(tbl *state.Table) (model.GoalPillars, error) {
	p, ok := tbl.Pillars()
	if !ok || len(p.Goals) == 0 {
		return model.GoalPillars{}, &MissingUpstreamError{Stage: 2, What: "goal pillars"}
	}
	return p, nil
}

// Goals returns the stage-2 goals, optionally narrowed to one goal id.
func Goals(tbl *state.Table, selectionID string) ([]model.Goal, error) {
	p, err := Pillars(tbl)
	if err != nil {
		return nil, err
	}
	if selectionID == "" {
		return p.Goals, nil
	}
	for _, g := range p.Goals {
		if g.ID == selectionID {
			return []model.Goal{g}, nil
		}
	}
	return nil, &SelectionError{What: "goal pillar", ID: selectionID}
}

// Requirements returns the stage-3 map keyed by goal id.
func Requirements(tbl *state.Table) (map[string][]model.RequirementAtom, error) {
	reqs, ok := tbl.Requirements()
	if !ok || len(reqs) == 0 {
		return nil, &MissingUpstreamError{Stage: 3, What: "requirement atoms"}
	}
	return reqs, nil
}

// Evidence returns the stage-4 map keyed by goal id.
func Evidence(tbl *state.Table) (map[string]model.DomainEvidence, error) {
	ev, ok := tbl.Evidence()
	if !ok || len(ev) == 0 {
		return nil, &MissingUpstreamError{Stage: 4, What: "domain evidence"}
	}
	return ev, nil
}

// PillarsFor returns the scientific pillars scanned for one goal. Goals that
// were scanned and produced nothing return an empty, non-nil slice.
func PillarsFor(ev map[string]model.DomainEvidence, goalID string) []model.ScientificPillar {
	entry, ok := ev[goalID]
	if !ok {
		return nil
	}
	if entry.ScientificPillars == nil {
		return []model.ScientificPillar{}
	}
	return entry.ScientificPillars
}

// L3Questions returns the stage-6 frontier questions, optionally narrowed to
// one question id.
func L3Questions(tbl *state.Table, selectionID string) ([]model.L3Question, error) {
	l3s, ok := tbl.L3Questions()
	if !ok || len(l3s) == 0 {
		return nil, &MissingUpstreamError{Stage: 6, What: "L3 questions"}
	}
	if selectionID == "" {
		return l3s, nil
	}
	for _, q := range l3s {
		if q.ID == selectionID {
			return []model.L3Question{q}, nil
		}
	}
	return nil, &SelectionError{What: "L3 question", ID: selectionID}
}

// Hypotheses returns the stage-7 hypotheses grouped under their L3 parent.
func Hypotheses(tbl *state.Table) (map[string][]model.Hypothesis, error) {
	ihs, ok := tbl.Hypotheses()
	if !ok || len(ihs) == 0 {
		return nil, &MissingUpstreamError{Stage: 7, What: "instantiation hypotheses"}
	}
	byL3 := make(map[string][]model.Hypothesis)
	for _, ih := range ihs {
		byL3[ih.ParentL3ID] = append(byL3[ih.ParentL3ID], ih)
	}
	return byL3, nil
}

// L4Questions returns the stage-8 tactical questions, optionally narrowed to
// one question id.
func L4Questions(tbl *state.Table, selectionID string) ([]model.L4Question, error) {
	l4s, ok := tbl.L4Questions()
	if !ok || len(l4s) == 0 {
		return nil, &MissingUpstreamError{Stage: 8, What: "L4 questions"}
	}
	if selectionID == "" {
		return l4s, nil
	}
	for _, q := range l4s {
		if q.ID == selectionID {
			return []model.L4Question{q}, nil
		}
	}
	return nil, &SelectionError{What: "L4 question", ID: selectionID}
}

// L6TasksFor returns the experiment-ready tasks under one L4 branch. L5
// mechanistic sub-questions are not experiment inputs and are skipped.
func L6TasksFor(tbl *state.Table, l4ID string) ([]model.TaskNode, error) {
	tasks, ok := tbl.Tasks()
	if !ok || len(tasks) == 0 {
		return nil, &MissingUpstreamError{Stage: 9, What: "executable tasks"}
	}
	var out []model.TaskNode
	for _, task := range tasks {
		if task.ParentL4ID == l4ID && task.Type == "l6" {
			out = append(out, task)
		}
	}
	return out, nil
}

// GoalByID resolves a goal from a list, used when a batch item needs its
// owning goal's context.
func GoalByID(goals []model.Goal, id string) (model.Goal, bool) {
	for _, g := range goals {
		if g.ID == id {
			return g, true
		}
	}
	return model.Goal{}, false
}
