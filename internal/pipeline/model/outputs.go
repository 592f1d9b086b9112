package model

// Slot value types. Each stage commits exactly one of these into its
// StageOutputTable slot; the shape is fixed per stage number.

// GoalPillars is the stage-2 slot value.
type GoalPillars struct {
	Goals         []Goal        `json:"goals"`
	BridgeLexicon BridgeLexicon `json:"bridge_lexicon"`
}

// DomainEvidence is the per-goal stage-4 slot entry: the phase-A domain
// mapping plus every phase-B pillar found across this goal's domains. A goal
// whose scan produced nothing still gets an entry with an empty pillar list
// so downstream stages can tell "no evidence found" from "never scanned".
type DomainEvidence struct {
	DomainMapping     []ResearchDomain   `json:"domain_mapping"`
	ScientificPillars []ScientificPillar `json:"scientific_pillars"`
}

// GoalEdgeSet is the per-goal stage-5 slot entry.
type GoalEdgeSet struct {
	Edges []GoalEdge `json:"goal_edges"`
	Mode  string     `json:"mode,omitempty"`
}

// Per-item response envelopes. The generation service answers each batch
// item with stage-shaped JSON; these are the keys the orchestrator reads.

// RequirementsResult is the stage-3 per-item response.
type RequirementsResult struct {
	RequirementAtoms []RequirementAtom `json:"requirement_atoms"`
}

// DomainMappingResult is the stage-4 phase-A per-item response.
type DomainMappingResult struct {
	ResearchDomains []ResearchDomain `json:"research_domains"`
}

// DomainScanResult is the stage-4 phase-B per-item response.
type DomainScanResult struct {
	ScientificPillars []ScientificPillar `json:"scientific_pillars"`
}

// MatchingResult is the stage-5 per-item response.
type MatchingResult struct {
	GoalEdges []GoalEdge `json:"goal_edges"`
	Mode      string     `json:"mode,omitempty"`
}

// L3Result is the stage-6 per-item response.
type L3Result struct {
	L3Questions []L3Question `json:"l3_questions"`
}

// HypothesesResult is the stage-7 per-item response.
type HypothesesResult struct {
	InstantiationHypotheses []Hypothesis `json:"instantiation_hypotheses"`
}

// L4Result is the stage-8 per-item response.
type L4Result struct {
	L4Questions []L4Question `json:"l4_questions"`
}

// TasksResult is the stage-9 per-item response.
type TasksResult struct {
	Tasks []TaskNode `json:"tasks"`
}

// SynthesisResult is the stage-10 per-item response.
type SynthesisResult struct {
	Synthesis ExperimentSynthesis `json:"synthesis"`
}
