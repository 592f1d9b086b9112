// Package hierarchy rebuilds the two-level question tree from the flat,
// foreign-key-tagged leaf records. The flat form stays the transport and
// persistence representation; the tree is computed at read time and handed
// to the visualization layer.
package hierarchy

import (
	"fmt"
	"log/slog"

	"github.com/omegapoint/pipeline/internal/pipeline/model"
)

// defaultTaskType is the bucket for leaves whose declared type is unknown
// to the orchestrator. The viz layer renders it as a plain task.
const defaultTaskType = "l6"

// Tree is the sole hand-off consumed by the visualization subsystem.
type Tree struct {
	Branches []FrontierBranch `json:"branches"`

	// Orphans are leaves whose parent links could not be resolved. They
	// are reported here, never silently dropped.
	Orphans []model.TaskNode `json:"orphans,omitempty"`

	// Warnings describe every reconciliation anomaly in the input.
	Warnings []string `json:"warnings,omitempty"`
}

// FrontierBranch is one L3 question and its tactical children.
type FrontierBranch struct {
	Question model.L3Question `json:"question"`
	Children []TacticalBranch `json:"children"`
}

// TacticalBranch is one L4 question, its task leaves, and the stage-10
// synthesis verdict for the branch when one exists.
type TacticalBranch struct {
	Question  model.L4Question           `json:"question"`
	Leaves    []model.TaskNode           `json:"leaves"`
	Synthesis *model.ExperimentSynthesis `json:"synthesis,omitempty"`
}

// Reconstruct regroups flat leaf tasks under their L3/L4 parents. Input
// order is preserved at every level; no leaf is duplicated or dropped.
// Unresolved parent references become warnings, not errors: the reader may
// still be mid-pipeline and product intent for orphans is lenient.
func Reconstruct(
	l3s []model.L3Question,
	l4s []model.L4Question,
	tasks []model.TaskNode,
	syntheses []model.ExperimentSynthesis,
	logger *slog.Logger,
) Tree {
	if logger == nil {
		logger = slog.Default()
	}

	tree := Tree{Branches: make([]FrontierBranch, 0, len(l3s))}

	// Index L4 branches under their owning L3 so leaf resolution can check
	// both levels agree.
	type branchKey struct{ l3, l4 string }
	type branchPos struct{ frontier, tactical int }
	branchIdx := make(map[branchKey]branchPos)

	synthByL4 := make(map[string]model.ExperimentSynthesis, len(syntheses))
	for _, s := range syntheses {
		synthByL4[s.ParentL4ID] = s
	}

	l3Pos := make(map[string]int, len(l3s))
	for _, l3 := range l3s {
		l3Pos[l3.ID] = len(tree.Branches)
		tree.Branches = append(tree.Branches, FrontierBranch{Question: l3})
	}

	for _, l4 := range l4s {
		pos, ok := l3Pos[l4.ParentL3ID]
		if !ok {
			tree.Warnings = append(tree.Warnings, fmt.Sprintf(
				"L4 question %s references unknown L3 parent %s", l4.ID, l4.ParentL3ID))
			continue
		}
		branch := TacticalBranch{Question: l4, Leaves: []model.TaskNode{}}
		if s, ok := synthByL4[l4.ID]; ok {
			synth := s
			branch.Synthesis = &synth
		}
		tree.Branches[pos].Children = append(tree.Branches[pos].Children, branch)
		branchIdx[branchKey{l4.ParentL3ID, l4.ID}] = branchPos{pos, len(tree.Branches[pos].Children) - 1}
	}

	for _, task := range tasks {
		leaf := task
		if leaf.Type != "l5" && leaf.Type != "l6" {
			leaf.Type = defaultTaskType
		}
		pos, ok := branchIdx[branchKey{task.ParentL3ID, task.ParentL4ID}]
		if !ok {
			tree.Orphans = append(tree.Orphans, leaf)
			tree.Warnings = append(tree.Warnings, fmt.Sprintf(
				"task %s references parents (%s, %s) that do not resolve to a nested branch",
				task.ID, task.ParentL3ID, task.ParentL4ID))
			continue
		}
		branch := &tree.Branches[pos.frontier].Children[pos.tactical]
		branch.Leaves = append(branch.Leaves, leaf)
	}

	// Upstream generation promises every L4 at least one leaf. A violation
	// is structural, not fatal: log it and keep the branch.
	for _, fb := range tree.Branches {
		for _, tb := range fb.Children {
			if len(tb.Leaves) == 0 {
				logger.Warn("tactical branch has no task leaves",
					"l3", fb.Question.ID, "l4", tb.Question.ID)
			}
		}
	}

	return tree
}
