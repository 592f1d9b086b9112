package model

// Batch item payloads. One value per upstream entity, built by the payload
// minimizers and owned by a single dispatcher invocation. Field names match
// what the generation service reads; referential identifiers are always kept.

// ObjectivePayload is the stage-1 single-call input.
type ObjectivePayload struct {
	Goal string `json:"goal"`
}

// PillarsPayload is the stage-2 single-call input.
type PillarsPayload struct {
	Q0 string `json:"q0"`
}

// RequirementsPayload is one stage-3 item: derive RAs for one goal pillar.
type RequirementsPayload struct {
	Q0         string `json:"q0"`
	GoalPillar Goal   `json:"goal_pillar"`
}

// DomainMappingPayload is one stage-4 phase-A item.
type DomainMappingPayload struct {
	Q0Reference      string            `json:"Q0_reference"`
	TargetGoal       Goal              `json:"target_goal"`
	RequirementAtoms []RequirementAtom `json:"requirement_atoms"`
	BridgeLexicon    BridgeLexicon     `json:"bridge_lexicon"`
}

// DomainScanPayload is one stage-4 phase-B item: deep-dive one domain of one
// goal. TargetDomain's presence is what distinguishes phase B from phase A
// on the service side.
type DomainScanPayload struct {
	Q0Reference      string            `json:"Q0_reference"`
	TargetGoal       Goal              `json:"target_goal"`
	TargetDomain     ResearchDomain    `json:"target_domain"`
	RequirementAtoms []RequirementAtom `json:"requirement_atoms"`
	BridgeLexicon    BridgeLexicon     `json:"bridge_lexicon"`
}

// MatchingPayload is one stage-5 item: evaluate the G-S links of one goal.
type MatchingPayload struct {
	GoalPillar        Goal               `json:"goal_pillar"`
	RequirementAtoms  []RequirementAtom  `json:"requirement_atoms"`
	BridgeLexicon     BridgeLexicon      `json:"bridge_lexicon"`
	ScientificToolkit []ScientificPillar `json:"scientific_toolkit"`
}

// FrontierPayload is one stage-6 item: seed L3 questions for one goal.
type FrontierPayload struct {
	GoalPillar    Goal               `json:"goal_pillar"`
	BridgeLexicon BridgeLexicon      `json:"bridge_lexicon"`
	Pillars       []ScientificPillar `json:"scientific_pillars"`
}

// HypothesesPayload is one stage-7 item: instantiate hypotheses for one L3.
type HypothesesPayload struct {
	L3Question       L3Question        `json:"l3_question"`
	Goal             Goal              `json:"goal"`
	RequirementAtoms []RequirementAtom `json:"requirement_atoms"`
	BridgeLexicon    BridgeLexicon     `json:"bridge_lexicon"`
}

// TacticalPayload is one stage-8 item: L4 questions discriminating the
// hypotheses under one L3.
type TacticalPayload struct {
	L3Question L3Question   `json:"l3_question"`
	Goal       Goal         `json:"goal"`
	Hypotheses []Hypothesis `json:"instantiation_hypotheses"`
}

// TasksPayload is one stage-9 item: L5/L6 tasks for one L4.
type TasksPayload struct {
	L4Question L4Question   `json:"l4_question"`
	Goal       Goal         `json:"goal"`
	Hypotheses []Hypothesis `json:"instantiation_hypotheses"`
}

// SynthesisPayload is one stage-10 item: one L4 branch with all of its L6
// tasks, judged for a unified experiment.
type SynthesisPayload struct {
	Q0         string     `json:"q0"`
	L4Question L4Question `json:"l4_question"`
	L6Tasks    []TaskNode `json:"l6_tasks"`
}
