// Package model defines the entities that flow between pipeline stages and
// the payload shapes sent to the generation service.
//
// Entities are immutable once a stage has produced them. Stages that need a
// back-reference (parent_goal_id, parent_l3_id, ...) annotate a copy; the
// original slot value is never mutated.
package model

// Objective is the stage-1 output: the user goal distilled to a single
// master question (Q0).
type Objective struct {
	Q0 string `json:"q0"`
}

// Goal is one goal pillar from stage 2.
type Goal struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// SystemProperty is one system property variable (SPV) from the bridge lexicon.
type SystemProperty struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// FailureChannel is one failure channel (FCC) from the bridge lexicon.
type FailureChannel struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// BridgeLexicon is the shared vocabulary produced alongside the goal pillars.
type BridgeLexicon struct {
	SystemProperties []SystemProperty `json:"system_properties,omitempty"`
	FailureChannels  []FailureChannel `json:"failure_channels,omitempty"`
}

// RequirementAtom is one requirement atom (RA) from stage 3, scoped to a goal.
type RequirementAtom struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	GoalID   string `json:"goal_id,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// ResearchDomain is one research domain discovered in stage 4 phase A.
type ResearchDomain struct {
	DomainID        string `json:"domain_id"`
	DomainName      string `json:"domain_name"`
	RelevanceToGoal string `json:"relevance_to_goal,omitempty"`

	// ParentGoalID is annotated by the two-phase controller on its working
	// copy; phase-A output itself does not carry it.
	ParentGoalID string `json:"parent_goal_id,omitempty"`
}

// ScientificPillar is one evidence node (S-node) from stage 4 phase B.
type ScientificPillar struct {
	ID                     string  `json:"id"`
	Title                  string  `json:"title"`
	DomainID               string  `json:"domain_id,omitempty"`
	EvidenceLevel          string  `json:"evidence_level,omitempty"`
	RelationshipToGoal     string  `json:"relationship_to_goal,omitempty"`
	RelationshipConfidence float64 `json:"relationship_confidence,omitempty"`
	GapAnalysis            string  `json:"gap_analysis,omitempty"`
}

// GoalEdge is one evaluated G-S link from stage 5.
type GoalEdge struct {
	GoalID       string  `json:"goal_id"`
	PillarID     string  `json:"pillar_id"`
	Relationship string  `json:"relationship"`
	Confidence   float64 `json:"confidence,omitempty"`
	Rationale    string  `json:"rationale,omitempty"`
}

// L3Question is one frontier question from stage 6.
type L3Question struct {
	ID           string `json:"id"`
	Question     string `json:"question"`
	Rationale    string `json:"rationale,omitempty"`
	ParentGoalID string `json:"parent_goal_id"`
}

// Hypothesis is one instantiation hypothesis (IH) from stage 7.
type Hypothesis struct {
	ID         string  `json:"id"`
	Statement  string  `json:"statement"`
	Confidence float64 `json:"confidence,omitempty"`
	ParentL3ID string  `json:"parent_l3_id"`
}

// L4Question is one tactical question from stage 8.
type L4Question struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Discriminates []string `json:"discriminates,omitempty"`
	ParentL3ID    string   `json:"parent_l3_id"`
}

// TaskNode is one executable task from stage 9 (L5 mechanistic sub-question
// or L6 experiment-ready task). The two-level parent link is the only
// persisted hierarchy information.
type TaskNode struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Type       string            `json:"type"` // "l5" or "l6"; unknown values are tolerated
	Parameters map[string]string `json:"parameters,omitempty"`
	ParentL4ID string            `json:"parent_l4_id"`
	ParentL3ID string            `json:"parent_l3_id"`
}

// ExperimentSynthesis is the stage-10 verdict for one L4 branch: either a
// unified experiment covering every L6 task under the branch, or an
// impossibility verdict.
type ExperimentSynthesis struct {
	ID         string `json:"id,omitempty"`
	ParentL4ID string `json:"parent_l4_id"`
	Verdict    string `json:"verdict"` // "unified" or "incompatible"
	Title      string `json:"title,omitempty"`
	Design     string `json:"design,omitempty"`
	Reason     string `json:"reason,omitempty"`
}
