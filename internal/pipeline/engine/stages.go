package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/omegapoint/pipeline/internal/pipeline/extract"
	"github.com/omegapoint/pipeline/internal/pipeline/model"
	"github.com/omegapoint/pipeline/internal/pipeline/state"
	"github.com/omegapoint/pipeline/internal/pipeline/transport"
	"github.com/omegapoint/pipeline/internal/pipeline/validate"
)

// itemOutcome is the decoded per-item result of one batch dispatch.
type itemOutcome[T any] struct {
	OK    bool
	Value T
	Err   string
}

// dispatchBatch issues one batch call and decodes each successful item into
// T. A successful item whose payload does not decode is downgraded to a
// failure; the invocation counters are derived from the decoded outcomes,
// not the service's own counts.
func dispatchBatch[T any](ctx context.Context, e *Engine, inv *Invocation, opts Options, items []any, phase *transport.PhaseInfo) ([]itemOutcome[T], error) {
	req := transport.BatchRequest{
		StageID:    inv.StageID,
		Agent:      e.agentFor(inv.StageID, opts),
		Items:      items,
		GlobalLens: e.lensFor(opts),
		Phase:      phase,
	}

	phaseName := ""
	if phase != nil {
		phaseName = phase.Phase
	}
	e.emit(opts, Progress{StageID: inv.StageID, Event: "dispatch", Phase: phaseName, Items: len(items)})

	resp, err := e.gen.ExecuteBatch(ctx, req)
	if err != nil {
		return nil, err
	}

	outcomes := make([]itemOutcome[T], len(resp.Results))
	for i, res := range resp.Results {
		if !res.Success {
			outcomes[i] = itemOutcome[T]{Err: res.Error}
			continue
		}
		var v T
		if err := json.Unmarshal(res.Data, &v); err != nil {
			outcomes[i] = itemOutcome[T]{Err: fmt.Sprintf("malformed item payload: %v", err)}
			inv.Warnings = append(inv.Warnings,
				fmt.Sprintf("item %d reported success but its payload did not decode: %v", i, err))
			continue
		}
		outcomes[i] = itemOutcome[T]{OK: true, Value: v}
	}

	inv.Items += len(items)
	for _, o := range outcomes {
		if o.OK {
			inv.Successful++
		} else {
			inv.Failed++
		}
	}
	return outcomes, nil
}

// executeStep issues the single-item call used by stages 1 and 2.
func executeStep[T any](ctx context.Context, e *Engine, inv *Invocation, opts Options, input any) (T, error) {
	var out T
	req := transport.StepRequest{
		StageID: inv.StageID,
		Agent:   e.agentFor(inv.StageID, opts),
		Input:   input,
	}
	e.emit(opts, Progress{StageID: inv.StageID, Event: "dispatch", Items: 1})
	raw, err := e.gen.ExecuteStep(ctx, req)
	if err != nil {
		inv.Items++
		inv.Failed++
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		inv.Items++
		inv.Failed++
		return out, fmt.Errorf("stage %d response did not decode: %w", inv.StageID, err)
	}
	inv.Items++
	inv.Successful++
	return out, nil
}

// truncatedQ0 returns the objective reference string used as shared context
// in downstream payloads.
func (e *Engine) truncatedQ0() (string, error) {
	obj, err := extract.Objective(e.table)
	if err != nil {
		return "", err
	}
	return extract.TruncateObjective(obj.Q0, e.cfg.ObjectiveCharBudget), nil
}

// Stage 1: user goal text -> master objective Q0.
func (e *Engine) runObjective(ctx context.Context, opts Options, inv *Invocation) error {
	if opts.Input == "" {
		return fmt.Errorf("stage 1 requires the raw research goal as input")
	}
	obj, err := executeStep[model.Objective](ctx, e, inv, opts, model.ObjectivePayload{Goal: opts.Input})
	if err != nil {
		return err
	}
	if err := validate.Stage(1, obj); err != nil {
		return err
	}
	e.table.SetObjective(obj, state.Counters{Successful: 1}, inv.ID)
	return nil
}

// Stage 2: Q0 -> goal pillars + bridge lexicon. The objective is sent whole;
// truncation only applies where Q0 is downstream context.
func (e *Engine) runPillars(ctx context.Context, opts Options, inv *Invocation) error {
	obj, err := extract.Objective(e.table)
	if err != nil {
		return err
	}
	pillars, err := executeStep[model.GoalPillars](ctx, e, inv, opts, model.PillarsPayload{Q0: obj.Q0})
	if err != nil {
		return err
	}
	if err := validate.Stage(2, pillars); err != nil {
		return err
	}
	e.table.SetPillars(pillars, state.Counters{Successful: 1}, inv.ID)
	return nil
}

// Stage 3: one item per goal -> requirement atoms, map-aggregated by goal.
func (e *Engine) runRequirements(ctx context.Context, opts Options, inv *Invocation) error {
	q0, err := e.truncatedQ0()
	if err != nil {
		return err
	}
	goals, err := extract.Goals(e.table, opts.SelectionID)
	if err != nil {
		return err
	}

	items := make([]any, len(goals))
	for i, g := range goals {
		items[i] = model.RequirementsPayload{Q0: q0, GoalPillar: extract.MinimizeGoal(g)}
	}

	outcomes, err := dispatchBatch[model.RequirementsResult](ctx, e, inv, opts, items, nil)
	if err != nil {
		return err
	}

	fresh := make(map[string][]model.RequirementAtom)
	for i, o := range outcomes {
		if o.OK {
			fresh[goals[i].ID] = o.Value.RequirementAtoms
		}
	}

	prior, _ := e.table.Requirements()
	merged := mergeMapSlot(prior, fresh)
	if err := validate.Stage(3, merged); err != nil {
		return err
	}
	e.table.SetRequirements(merged, state.Counters{Successful: inv.Successful, Failed: inv.Failed}, inv.ID)
	return nil
}

// Stage 4, two phases: phase A maps each goal to its research domains, phase
// B scans every (goal, domain) pair in a single flat batch. A goal is only
// dropped from the output if its phase A failed AND it already has a
// committed entry to preserve; otherwise it appears with empty evidence so
// downstream stages can tell "no evidence found" from "never scanned".
func (e *Engine) runDomainEvidence(ctx context.Context, opts Options, inv *Invocation) error {
	q0, err := e.truncatedQ0()
	if err != nil {
		return err
	}
	goals, err := extract.Goals(e.table, opts.SelectionID)
	if err != nil {
		return err
	}
	pillars, err := extract.Pillars(e.table)
	if err != nil {
		return err
	}
	reqs, err := extract.Requirements(e.table)
	if err != nil {
		return err
	}
	lexicon := extract.MinimizeLexicon(pillars.BridgeLexicon)

	// Phase A: one domain-mapping item per goal.
	itemsA := make([]any, len(goals))
	for i, g := range goals {
		itemsA[i] = model.DomainMappingPayload{
			Q0Reference:      q0,
			TargetGoal:       extract.MinimizeGoal(g),
			RequirementAtoms: extract.MinimizeRequirements(reqs[g.ID]),
			BridgeLexicon:    lexicon,
		}
	}
	outcomesA, err := dispatchBatch[model.DomainMappingResult](ctx, e, inv, opts, itemsA, &transport.PhaseInfo{Phase: "4a"})
	if err != nil {
		return err
	}
	e.emit(opts, Progress{StageID: 4, Event: "phase_done", Phase: "4a", Items: len(itemsA), Percent: 10})

	// Phase B expansion: one scan item per returned domain, tagged back to
	// its owning goal by position.
	type scanRef struct{ goalIdx int }
	var itemsB []any
	var refs []scanRef
	mappings := make(map[string][]model.ResearchDomain)
	for i, o := range outcomesA {
		if !o.OK {
			continue
		}
		g := goals[i]
		mappings[g.ID] = o.Value.ResearchDomains
		for _, domain := range o.Value.ResearchDomains {
			itemsB = append(itemsB, model.DomainScanPayload{
				Q0Reference:      q0,
				TargetGoal:       extract.MinimizeGoal(g),
				TargetDomain:     domain,
				RequirementAtoms: extract.MinimizeRequirements(reqs[g.ID]),
				BridgeLexicon:    lexicon,
			})
			refs = append(refs, scanRef{goalIdx: i})
		}
	}

	found := make(map[string][]model.ScientificPillar)
	if len(itemsB) > 0 {
		outcomesB, err := dispatchBatch[model.DomainScanResult](ctx, e, inv, opts, itemsB, &transport.PhaseInfo{Phase: "4b"})
		if err != nil {
			return err
		}
		for j, o := range outcomesB {
			if !o.OK {
				continue
			}
			goalID := goals[refs[j].goalIdx].ID
			found[goalID] = append(found[goalID], o.Value.ScientificPillars...)
		}
	}
	e.emit(opts, Progress{StageID: 4, Event: "phase_done", Phase: "4b", Items: len(itemsB), Percent: 100})

	prior, _ := e.table.Evidence()
	fresh := make(map[string]model.DomainEvidence)
	for i, g := range goals {
		if !outcomesA[i].OK {
			if _, committed := prior[g.ID]; committed {
				continue
			}
		}
		entry := model.DomainEvidence{
			DomainMapping:     mappings[g.ID],
			ScientificPillars: found[g.ID],
		}
		if entry.DomainMapping == nil {
			entry.DomainMapping = []model.ResearchDomain{}
		}
		if entry.ScientificPillars == nil {
			entry.ScientificPillars = []model.ScientificPillar{}
		}
		fresh[g.ID] = entry
	}

	merged := mergeMapSlot(prior, fresh)
	if err := validate.Stage(4, merged); err != nil {
		return err
	}
	e.table.SetEvidence(merged, state.Counters{Successful: inv.Successful, Failed: inv.Failed}, inv.ID)
	return nil
}

// Stage 5: strategic matching, one item per goal over its accumulated
// scientific toolkit.
func (e *Engine) runMatching(ctx context.Context, opts Options, inv *Invocation) error {
	goals, err := extract.Goals(e.table, opts.SelectionID)
	if err != nil {
		return err
	}
	pillars, err := extract.Pillars(e.table)
	if err != nil {
		return err
	}
	reqs, err := extract.Requirements(e.table)
	if err != nil {
		return err
	}
	evidence, err := extract.Evidence(e.table)
	if err != nil {
		return err
	}
	lexicon := extract.MinimizeLexicon(pillars.BridgeLexicon)

	items := make([]any, len(goals))
	for i, g := range goals {
		items[i] = model.MatchingPayload{
			GoalPillar:        extract.MinimizeGoal(g),
			RequirementAtoms:  extract.MinimizeRequirements(reqs[g.ID]),
			BridgeLexicon:     lexicon,
			ScientificToolkit: extract.MinimizePillars(extract.PillarsFor(evidence, g.ID)),
		}
	}

	outcomes, err := dispatchBatch[model.MatchingResult](ctx, e, inv, opts, items, nil)
	if err != nil {
		return err
	}

	fresh := make(map[string]model.GoalEdgeSet)
	for i, o := range outcomes {
		if o.OK {
			fresh[goals[i].ID] = model.GoalEdgeSet{Edges: o.Value.GoalEdges, Mode: o.Value.Mode}
		}
	}

	prior, _ := e.table.Matching()
	merged := mergeMapSlot(prior, fresh)
	if err := validate.Stage(5, merged); err != nil {
		return err
	}
	e.table.SetMatching(merged, state.Counters{Successful: inv.Successful, Failed: inv.Failed}, inv.ID)
	return nil
}

// Stage 6: L3 frontier questions per goal, list-aggregated.
func (e *Engine) runFrontier(ctx context.Context, opts Options, inv *Invocation) error {
	goals, err := extract.Goals(e.table, opts.SelectionID)
	if err != nil {
		return err
	}
	pillars, err := extract.Pillars(e.table)
	if err != nil {
		return err
	}
	evidence, err := extract.Evidence(e.table)
	if err != nil {
		return err
	}
	lexicon := extract.MinimizeLexicon(pillars.BridgeLexicon)

	items := make([]any, len(goals))
	for i, g := range goals {
		items[i] = model.FrontierPayload{
			GoalPillar:    extract.MinimizeGoal(g),
			BridgeLexicon: lexicon,
			Pillars:       extract.MinimizePillars(extract.PillarsFor(evidence, g.ID)),
		}
	}

	outcomes, err := dispatchBatch[model.L3Result](ctx, e, inv, opts, items, nil)
	if err != nil {
		return err
	}

	rerun := make(map[string]bool)
	var fresh []model.L3Question
	for i, o := range outcomes {
		if !o.OK {
			continue
		}
		rerun[goals[i].ID] = true
		for _, q := range o.Value.L3Questions {
			if q.ParentGoalID == "" {
				q.ParentGoalID = goals[i].ID
			}
			fresh = append(fresh, q)
		}
	}

	prior, _ := e.table.L3Questions()
	merged := mergeListSlot(prior, rerun, fresh, func(q model.L3Question) string { return q.ParentGoalID })
	if err := validate.Stage(6, merged); err != nil {
		return err
	}
	e.table.SetL3Questions(merged, state.Counters{Successful: inv.Successful, Failed: inv.Failed}, inv.ID)
	return nil
}

// Stage 7: instantiation hypotheses per L3 question.
func (e *Engine) runHypotheses(ctx context.Context, opts Options, inv *Invocation) error {
	l3s, err := extract.L3Questions(e.table, opts.SelectionID)
	if err != nil {
		return err
	}
	pillars, err := extract.Pillars(e.table)
	if err != nil {
		return err
	}
	reqs, err := extract.Requirements(e.table)
	if err != nil {
		return err
	}
	lexicon := extract.MinimizeLexicon(pillars.BridgeLexicon)

	items := make([]any, len(l3s))
	for i, q := range l3s {
		goal, ok := extract.GoalByID(pillars.Goals, q.ParentGoalID)
		if !ok {
			inv.Warnings = append(inv.Warnings,
				fmt.Sprintf("L3 question %s references unknown goal %s", q.ID, q.ParentGoalID))
		}
		items[i] = model.HypothesesPayload{
			L3Question:       extract.MinimizeL3(q),
			Goal:             extract.MinimizeGoal(goal),
			RequirementAtoms: extract.MinimizeRequirements(reqs[q.ParentGoalID]),
			BridgeLexicon:    lexicon,
		}
	}

	outcomes, err := dispatchBatch[model.HypothesesResult](ctx, e, inv, opts, items, nil)
	if err != nil {
		return err
	}

	rerun := make(map[string]bool)
	var fresh []model.Hypothesis
	for i, o := range outcomes {
		if !o.OK {
			continue
		}
		rerun[l3s[i].ID] = true
		for _, ih := range o.Value.InstantiationHypotheses {
			if ih.ParentL3ID == "" {
				ih.ParentL3ID = l3s[i].ID
			}
			fresh = append(fresh, ih)
		}
	}

	prior, _ := e.table.Hypotheses()
	merged := mergeListSlot(prior, rerun, fresh, func(h model.Hypothesis) string { return h.ParentL3ID })
	if err := validate.Stage(7, merged); err != nil {
		return err
	}
	e.table.SetHypotheses(merged, state.Counters{Successful: inv.Successful, Failed: inv.Failed}, inv.ID)
	return nil
}

// Stage 8: L4 tactical questions discriminating the hypotheses under each L3.
func (e *Engine) runTactical(ctx context.Context, opts Options, inv *Invocation) error {
	l3s, err := extract.L3Questions(e.table, opts.SelectionID)
	if err != nil {
		return err
	}
	pillars, err := extract.Pillars(e.table)
	if err != nil {
		return err
	}
	hyps, err := extract.Hypotheses(e.table)
	if err != nil {
		return err
	}

	items := make([]any, len(l3s))
	for i, q := range l3s {
		goal, _ := extract.GoalByID(pillars.Goals, q.ParentGoalID)
		items[i] = model.TacticalPayload{
			L3Question: extract.MinimizeL3(q),
			Goal:       extract.MinimizeGoal(goal),
			Hypotheses: extract.MinimizeHypotheses(hyps[q.ID]),
		}
	}

	outcomes, err := dispatchBatch[model.L4Result](ctx, e, inv, opts, items, nil)
	if err != nil {
		return err
	}

	rerun := make(map[string]bool)
	var fresh []model.L4Question
	for i, o := range outcomes {
		if !o.OK {
			continue
		}
		rerun[l3s[i].ID] = true
		for _, q := range o.Value.L4Questions {
			if q.ParentL3ID == "" {
				q.ParentL3ID = l3s[i].ID
			}
			fresh = append(fresh, q)
		}
	}

	prior, _ := e.table.L4Questions()
	merged := mergeListSlot(prior, rerun, fresh, func(q model.L4Question) string { return q.ParentL3ID })
	if err := validate.Stage(8, merged); err != nil {
		return err
	}
	e.table.SetL4Questions(merged, state.Counters{Successful: inv.Successful, Failed: inv.Failed}, inv.ID)
	return nil
}

// Stage 9: L5/L6 executable tasks per L4 question.
func (e *Engine) runTasks(ctx context.Context, opts Options, inv *Invocation) error {
	l4s, err := extract.L4Questions(e.table, opts.SelectionID)
	if err != nil {
		return err
	}
	l3s, err := extract.L3Questions(e.table, "")
	if err != nil {
		return err
	}
	pillars, err := extract.Pillars(e.table)
	if err != nil {
		return err
	}
	hyps, err := extract.Hypotheses(e.table)
	if err != nil {
		return err
	}

	l3ByID := make(map[string]model.L3Question, len(l3s))
	for _, q := range l3s {
		l3ByID[q.ID] = q
	}

	items := make([]any, len(l4s))
	for i, q := range l4s {
		goal := model.Goal{}
		if l3, ok := l3ByID[q.ParentL3ID]; ok {
			if g, ok := extract.GoalByID(pillars.Goals, l3.ParentGoalID); ok {
				goal = g
			}
		}
		items[i] = model.TasksPayload{
			L4Question: extract.MinimizeL4(q),
			Goal:       extract.MinimizeGoal(goal),
			Hypotheses: extract.MinimizeHypotheses(hyps[q.ParentL3ID]),
		}
	}

	outcomes, err := dispatchBatch[model.TasksResult](ctx, e, inv, opts, items, nil)
	if err != nil {
		return err
	}

	rerun := make(map[string]bool)
	var fresh []model.TaskNode
	for i, o := range outcomes {
		if !o.OK {
			continue
		}
		rerun[l4s[i].ID] = true
		for _, task := range o.Value.Tasks {
			if task.ParentL4ID == "" {
				task.ParentL4ID = l4s[i].ID
			}
			if task.ParentL3ID == "" {
				task.ParentL3ID = l4s[i].ParentL3ID
			}
			fresh = append(fresh, task)
		}
	}

	prior, _ := e.table.Tasks()
	merged := mergeListSlot(prior, rerun, fresh, func(t model.TaskNode) string { return t.ParentL4ID })
	if err := validate.Stage(9, merged); err != nil {
		return err
	}
	e.table.SetTasks(merged, state.Counters{Successful: inv.Successful, Failed: inv.Failed}, inv.ID)
	return nil
}

// Stage 10: experiment synthesis per L4 branch. Branches without L6 tasks
// have nothing to synthesise and are skipped with a warning.
func (e *Engine) runSynthesis(ctx context.Context, opts Options, inv *Invocation) error {
	q0, err := e.truncatedQ0()
	if err != nil {
		return err
	}
	l4s, err := extract.L4Questions(e.table, opts.SelectionID)
	if err != nil {
		return err
	}

	var items []any
	var parents []model.L4Question
	for _, q := range l4s {
		l6, err := extract.L6TasksFor(e.table, q.ID)
		if err != nil {
			return err
		}
		if len(l6) == 0 {
			inv.Warnings = append(inv.Warnings,
				fmt.Sprintf("L4 branch %s has no l6 tasks, skipping synthesis", q.ID))
			continue
		}
		items = append(items, model.SynthesisPayload{
			Q0:         q0,
			L4Question: extract.MinimizeL4(q),
			L6Tasks:    l6,
		})
		parents = append(parents, q)
	}
	if len(items) == 0 {
		return fmt.Errorf("no L4 branch with l6 tasks to synthesise")
	}

	outcomes, err := dispatchBatch[model.SynthesisResult](ctx, e, inv, opts, items, nil)
	if err != nil {
		return err
	}

	rerun := make(map[string]bool)
	var fresh []model.ExperimentSynthesis
	for i, o := range outcomes {
		if !o.OK {
			continue
		}
		s := o.Value.Synthesis
		if s.ParentL4ID == "" {
			s.ParentL4ID = parents[i].ID
		}
		rerun[s.ParentL4ID] = true
		fresh = append(fresh, s)
	}

	prior, _ := e.table.Syntheses()
	merged := mergeListSlot(prior, rerun, fresh, func(s model.ExperimentSynthesis) string { return s.ParentL4ID })
	if err := validate.Stage(10, merged); err != nil {
		return err
	}
	e.table.SetSyntheses(merged, state.Counters{Successful: inv.Successful, Failed: inv.Failed}, inv.ID)
	return nil
}
