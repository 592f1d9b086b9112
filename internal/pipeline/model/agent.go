package model

import (
	"fmt"
	"strings"
)

// AgentConfig describes the generation agent for one stage. It is sent to
// the generation service verbatim (minus interpolation); the service owns
// prompt templates and model invocation.
type AgentConfig struct {
	Name         string        `json:"name" yaml:"name"`
	Model        string        `json:"model" yaml:"model"`
	Temperature  float64       `json:"temperature" yaml:"temperature"`
	SystemPrompt string        `json:"systemPrompt" yaml:"system_prompt"`
	Lens         string        `json:"lens,omitempty" yaml:"lens,omitempty"`
	Settings     AgentSettings `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// AgentSettings carries per-stage tuning knobs interpolated into the prompt.
type AgentSettings struct {
	SelectedLens string            `json:"selectedLens,omitempty" yaml:"selected_lens,omitempty"`
	NodeCount    *NodeCountRange   `json:"nodeCount,omitempty" yaml:"node_count,omitempty"`
	CustomParams map[string]string `json:"customParams,omitempty" yaml:"custom_params,omitempty"`
}

// NodeCountRange bounds how many entities a stage may generate per item.
type NodeCountRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// nodeCountPlaceholders are the per-stage aliases that all resolve to the
// same min/max range. The prompt templates predate the unified range, so
// every alias is still replaced.
var nodeCountPlaceholders = []string{
	"GOALS", "DOMAINS", "L3", "IH", "L4", "L5", "PILLARS",
}

// Interpolated returns a copy of the config with the prompt placeholders
// ({{LENS}}, {{MIN_*}}/{{MAX_*}}, custom params) replaced. The receiver is
// not modified.
func (a AgentConfig) Interpolated() AgentConfig {
	prompt := a.SystemPrompt

	lens := a.Lens
	if lens == "" {
		lens = a.Settings.SelectedLens
	}
	if lens != "" {
		prompt = strings.ReplaceAll(prompt, "{{LENS}}", lens)
		// Legacy placeholder form.
		prompt = strings.ReplaceAll(prompt, "[LENS]", lens)
	}

	if nc := a.Settings.NodeCount; nc != nil {
		for _, p := range nodeCountPlaceholders {
			prompt = strings.ReplaceAll(prompt, "{{MIN_"+p+"}}", fmt.Sprintf("%d", nc.Min))
			prompt = strings.ReplaceAll(prompt, "{{MAX_"+p+"}}", fmt.Sprintf("%d", nc.Max))
		}
	}

	for key, value := range a.Settings.CustomParams {
		prompt = strings.ReplaceAll(prompt, "{{"+key+"}}", value)
	}

	a.SystemPrompt = prompt
	return a
}
