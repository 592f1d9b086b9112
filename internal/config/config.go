// Package config loads the orchestrator configuration: server address,
// generation service endpoint, retry policy, pipeline defaults and the
// per-stage agent configs.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/omegapoint/pipeline/internal/pipeline/extract"
	"github.com/omegapoint/pipeline/internal/pipeline/model"
	"github.com/omegapoint/pipeline/internal/pipeline/state"
	"github.com/omegapoint/pipeline/internal/pipeline/transport"
)

type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

type RetryConfig struct {
	MaxAttempts int     `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	BaseDelayMS int     `json:"base_delay_ms,omitempty" yaml:"base_delay_ms,omitempty"`
	Multiplier  float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
}

// Policy converts the file form into the transport retry policy.
func (r RetryConfig) Policy() transport.Policy {
	return transport.Policy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   time.Duration(r.BaseDelayMS) * time.Millisecond,
		Multiplier:  r.Multiplier,
	}
}

type GenerationConfig struct {
	BaseURL string      `json:"base_url" yaml:"base_url"`
	Retry   RetryConfig `json:"retry,omitempty" yaml:"retry,omitempty"`
}

type PipelineConfig struct {
	GlobalLens          string                `json:"global_lens,omitempty" yaml:"global_lens,omitempty"`
	ObjectiveCharBudget int                   `json:"objective_char_budget,omitempty" yaml:"objective_char_budget,omitempty"`
	NodeCounts          *model.NodeCountRange `json:"node_counts,omitempty" yaml:"node_counts,omitempty"`
}

type AgentsConfig struct {
	// Dir is scanned for per-stage agent files matching Globs; each file
	// carries a "stage" key plus the agent fields.
	Dir   string   `json:"dir,omitempty" yaml:"dir,omitempty"`
	Globs []string `json:"globs,omitempty" yaml:"globs,omitempty"`
	// Stages holds inline agent configs; they win over discovered files.
	Stages map[int]model.AgentConfig `json:"stages,omitempty" yaml:"stages,omitempty"`
}

// File is the top-level configuration document.
type File struct {
	Version    int              `json:"version" yaml:"version"`
	Server     ServerConfig     `json:"server,omitempty" yaml:"server,omitempty"`
	Generation GenerationConfig `json:"generation" yaml:"generation"`
	Pipeline   PipelineConfig   `json:"pipeline,omitempty" yaml:"pipeline,omitempty"`
	Agents     AgentsConfig     `json:"agents,omitempty" yaml:"agents,omitempty"`
}

// Load reads, decodes strictly, defaults and validates a config file.
// JSON and YAML are both accepted, keyed off the file extension.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := decodeJSONStrict(b, &cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	default:
		if err := decodeYAMLStrict(b, &cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	applyDefaults(&cfg)
	if err := validateFile(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

func decodeJSONStrict(b []byte, cfg *File) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return fmt.Errorf("json: multiple top-level values are not allowed")
		}
		return err
	}
	return nil
}

func decodeYAMLStrict(b []byte, cfg *File) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return fmt.Errorf("yaml: multiple documents are not allowed")
		}
		return err
	}
	return nil
}

func applyDefaults(cfg *File) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:8080"
	}
	def := transport.DefaultPolicy()
	if cfg.Generation.Retry.MaxAttempts == 0 {
		cfg.Generation.Retry.MaxAttempts = def.MaxAttempts
	}
	if cfg.Generation.Retry.BaseDelayMS == 0 {
		cfg.Generation.Retry.BaseDelayMS = int(def.BaseDelay / time.Millisecond)
	}
	if cfg.Generation.Retry.Multiplier == 0 {
		cfg.Generation.Retry.Multiplier = def.Multiplier
	}
	if cfg.Pipeline.ObjectiveCharBudget == 0 {
		cfg.Pipeline.ObjectiveCharBudget = extract.ObjectiveCharBudget
	}
	if len(cfg.Agents.Globs) == 0 {
		cfg.Agents.Globs = []string{"**/*.yaml", "**/*.yml"}
	}
}

func validateFile(cfg *File) error {
	if cfg.Generation.BaseURL == "" {
		return fmt.Errorf("generation.base_url is required")
	}
	if cfg.Generation.Retry.MaxAttempts < 1 {
		return fmt.Errorf("generation.retry.max_attempts must be >= 1")
	}
	if cfg.Generation.Retry.Multiplier < 1 {
		return fmt.Errorf("generation.retry.multiplier must be >= 1")
	}
	for stage := range cfg.Agents.Stages {
		if stage < 1 || stage > state.NumStages {
			return fmt.Errorf("agents.stages: stage %d out of range 1..%d", stage, state.NumStages)
		}
	}
	if nc := cfg.Pipeline.NodeCounts; nc != nil && nc.Min > nc.Max {
		return fmt.Errorf("pipeline.node_counts: min %d exceeds max %d", nc.Min, nc.Max)
	}
	return nil
}

// agentFile is one discovered per-stage agent document.
type agentFile struct {
	Stage             int `yaml:"stage"`
	model.AgentConfig `yaml:",inline"`
}

// StageAgents resolves the per-stage agent configs: files discovered under
// Agents.Dir first, inline Agents.Stages entries overriding them. Pipeline
// defaults (node counts) fill any agent that does not set its own.
func (f *File) StageAgents() (map[int]model.AgentConfig, error) {
	agents := make(map[int]model.AgentConfig, state.NumStages)

	if f.Agents.Dir != "" {
		if err := f.discoverAgents(agents); err != nil {
			return nil, err
		}
	}
	for stage, agent := range f.Agents.Stages {
		agents[stage] = agent
	}

	if nc := f.Pipeline.NodeCounts; nc != nil {
		for stage, agent := range agents {
			if agent.Settings.NodeCount == nil {
				r := *nc
				agent.Settings.NodeCount = &r
				agents[stage] = agent
			}
		}
	}
	return agents, nil
}

func (f *File) discoverAgents(agents map[int]model.AgentConfig) error {
	fsys := os.DirFS(f.Agents.Dir)
	seen := make(map[string]bool)
	for _, glob := range f.Agents.Globs {
		matches, err := doublestar.Glob(fsys, glob)
		if err != nil {
			return fmt.Errorf("agents glob %q: %w", glob, err)
		}
		for _, match := range matches {
			if seen[match] {
				continue
			}
			seen[match] = true
			if err := loadAgentFile(fsys, match, agents); err != nil {
				return err
			}
		}
	}
	return nil
}

func loadAgentFile(fsys fs.FS, name string, agents map[int]model.AgentConfig) error {
	b, err := fs.ReadFile(fsys, name)
	if err != nil {
		return err
	}
	var af agentFile
	if err := yaml.Unmarshal(b, &af); err != nil {
		return fmt.Errorf("agent file %s: %w", name, err)
	}
	if af.Stage < 1 || af.Stage > state.NumStages {
		return fmt.Errorf("agent file %s: stage %d out of range 1..%d", name, af.Stage, state.NumStages)
	}
	if _, dup := agents[af.Stage]; dup {
		return fmt.Errorf("agent file %s: stage %d configured twice", name, af.Stage)
	}
	agents[af.Stage] = af.AgentConfig
	return nil
}
