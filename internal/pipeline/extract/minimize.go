package extract

import "github.com/omegapoint/pipeline/internal/pipeline/model"

// Payload minimizers: deterministic field projections that shrink upstream
// entities to what the next stage actually needs, without losing referential
// identifiers. Verbose free text is dropped or truncated for payload economy.

// ObjectiveCharBudget bounds the master objective text sent in payloads.
const ObjectiveCharBudget = 1500

// truncationMarker is appended whenever the budget cuts the objective.
const truncationMarker = "... [truncated]"

// TruncateObjective enforces the character budget on the master objective,
// appending an explicit marker when text was cut. Truncation is rune-safe.
func TruncateObjective(q0 string, budget int) string {
	if budget <= 0 {
		budget = ObjectiveCharBudget
	}
	runes := []rune(q0)
	if len(runes) <= budget {
		return q0
	}
	return string(runes[:budget]) + truncationMarker
}

// MinimizeGoal keeps the goal's identity and typed tags, dropping the
// description prose.
func MinimizeGoal(g model.Goal) model.Goal {
	return model.Goal{ID: g.ID, Title: g.Title, Tags: g.Tags}
}

// MinimizeLexicon keeps the variable ids and names; descriptions are prompt
// material the service already has.
func MinimizeLexicon(lex model.BridgeLexicon) model.BridgeLexicon {
	out := model.BridgeLexicon{}
	for _, sp := range lex.SystemProperties {
		out.SystemProperties = append(out.SystemProperties, model.SystemProperty{ID: sp.ID, Name: sp.Name})
	}
	for _, fc := range lex.FailureChannels {
		out.FailureChannels = append(out.FailureChannels, model.FailureChannel{ID: fc.ID, Name: fc.Name})
	}
	return out
}

// MinimizeRequirements keeps id, text and priority per atom.
func MinimizeRequirements(ras []model.RequirementAtom) []model.RequirementAtom {
	out := make([]model.RequirementAtom, 0, len(ras))
	for _, ra := range ras {
		out = append(out, model.RequirementAtom{ID: ra.ID, Text: ra.Text, Priority: ra.Priority})
	}
	return out
}

// MinimizePillars keeps identity plus the relationship assessment; the gap
// analysis prose is dropped.
func MinimizePillars(pillars []model.ScientificPillar) []model.ScientificPillar {
	out := make([]model.ScientificPillar, 0, len(pillars))
	for _, p := range pillars {
		out = append(out, model.ScientificPillar{
			ID:                     p.ID,
			Title:                  p.Title,
			DomainID:               p.DomainID,
			RelationshipToGoal:     p.RelationshipToGoal,
			RelationshipConfidence: p.RelationshipConfidence,
		})
	}
	return out
}

// MinimizeL3 drops the rationale, keeping id, question and parent link.
func MinimizeL3(q model.L3Question) model.L3Question {
	return model.L3Question{ID: q.ID, Question: q.Question, ParentGoalID: q.ParentGoalID}
}

// MinimizeHypotheses keeps statement, confidence and parent link.
func MinimizeHypotheses(ihs []model.Hypothesis) []model.Hypothesis {
	out := make([]model.Hypothesis, 0, len(ihs))
	for _, ih := range ihs {
		out = append(out, model.Hypothesis{
			ID: ih.ID, Statement: ih.Statement, Confidence: ih.Confidence, ParentL3ID: ih.ParentL3ID,
		})
	}
	return out
}

// MinimizeL4 keeps id, question and parent link.
func MinimizeL4(q model.L4Question) model.L4Question {
	return model.L4Question{ID: q.ID, Question: q.Question, ParentL3ID: q.ParentL3ID}
}
