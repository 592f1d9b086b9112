// Package engine drives the ten-stage pipeline: it extracts the upstream
// working set for a stage, dispatches one batched generation call, merges the
// per-item results into the stage slot and commits only after the merged
// value validates. One invocation per stage runs at a time; starting a stage
// cancels its in-flight predecessor.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/omegapoint/pipeline/internal/pipeline/hierarchy"
	"github.com/omegapoint/pipeline/internal/pipeline/model"
	"github.com/omegapoint/pipeline/internal/pipeline/state"
	"github.com/omegapoint/pipeline/internal/pipeline/transport"
)

// ErrSuperseded is the cancellation cause used when a new invocation of the
// same stage displaces the one in flight.
var ErrSuperseded = errors.New("superseded by a newer invocation of the same stage")

// ErrAborted is the cancellation cause for an explicit cancel request.
var ErrAborted = errors.New("stage aborted by request")

// Config is the static engine configuration.
type Config struct {
	// Agents maps stage number to the generation agent for that stage.
	Agents map[int]model.AgentConfig
	// GlobalLens is applied to every dispatch unless overridden per run.
	GlobalLens string
	// ObjectiveCharBudget bounds the objective text carried in downstream
	// payloads. Zero means the extract package default.
	ObjectiveCharBudget int
}

// Options tunes a single stage invocation.
type Options struct {
	// SelectionID narrows the stage to the children of one upstream entity:
	// a goal id for stages 3-6, an L3 id for 7-8, an L4 id for 9-10.
	SelectionID string
	// Input is the raw research goal text. Stage 1 only.
	Input string
	// Lens overrides the global lens for this invocation.
	Lens string
	// OnProgress, when set, receives progress events during the run.
	OnProgress ProgressFunc
}

// Progress is one structured progress event.
type Progress struct {
	StageID int     `json:"stage_id"`
	Event   string  `json:"event"`
	Phase   string  `json:"phase,omitempty"`
	Items   int     `json:"items,omitempty"`
	Percent float64 `json:"percent"`
}

// ProgressFunc receives progress events. It must not block.
type ProgressFunc func(Progress)

// Invocation summarises one stage run. Successful and Failed count the items
// of this invocation only; the running totals live in the slot metadata.
type Invocation struct {
	ID         string        `json:"invocation_id"`
	StageID    int           `json:"stage_id"`
	Items      int           `json:"items"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Cancelled  bool          `json:"cancelled,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
}

// Engine owns the stage output table and the single-flight registry.
type Engine struct {
	table  *state.Table
	gen    transport.Generator
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[int]*flight
}

type flight struct {
	id     string
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// New builds an engine over a fresh table.
func New(gen transport.Generator, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		table:    state.NewTable(),
		gen:      gen,
		cfg:      cfg,
		logger:   logger,
		inflight: make(map[int]*flight),
	}
}

// Table exposes the stage output table for read access (snapshots, status).
func (e *Engine) Table() *state.Table { return e.table }

// RunStage executes one invocation of the given stage. A prior in-flight
// invocation of the same stage is cancelled first and fully unwound before
// the new one dispatches; invocations of other stages are unaffected.
func (e *Engine) RunStage(ctx context.Context, stageID int, opts Options) (*Invocation, error) {
	if stageID < 1 || stageID > state.NumStages {
		return nil, fmt.Errorf("stage %d out of range 1..%d", stageID, state.NumStages)
	}

	inv := &Invocation{
		ID:        ulid.Make().String(),
		StageID:   stageID,
		StartedAt: time.Now(),
	}

	runCtx, fl := e.begin(ctx, stageID, inv.ID)
	defer e.finish(stageID, fl)

	log := e.logger.With("stage", stageID, "invocation", inv.ID)
	log.Info("stage invocation started", "selection", opts.SelectionID)
	e.emit(opts, Progress{StageID: stageID, Event: "started"})

	err := e.dispatch(runCtx, stageID, opts, inv)
	inv.Duration = time.Since(inv.StartedAt)
	inv.DurationMS = inv.Duration.Milliseconds()

	if err != nil {
		if transport.IsCancelled(err) {
			inv.Cancelled = true
			log.Info("stage invocation cancelled", "cause", context.Cause(runCtx))
			e.emit(opts, Progress{StageID: stageID, Event: "cancelled"})
			return inv, err
		}
		log.Error("stage invocation failed", "error", err)
		e.emit(opts, Progress{StageID: stageID, Event: "failed"})
		return inv, err
	}

	log.Info("stage invocation committed",
		"items", inv.Items, "successful", inv.Successful, "failed", inv.Failed,
		"duration", inv.Duration)
	e.emit(opts, Progress{StageID: stageID, Event: "committed", Items: inv.Items, Percent: 100})
	return inv, nil
}

// Cancel aborts the in-flight invocation of a stage, if any. Reports whether
// anything was running.
func (e *Engine) Cancel(stageID int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	fl, ok := e.inflight[stageID]
	if !ok {
		return false
	}
	fl.cancel(ErrAborted)
	return true
}

// Running reports the invocation id in flight for a stage, if any.
func (e *Engine) Running(stageID int) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fl, ok := e.inflight[stageID]
	if !ok {
		return "", false
	}
	return fl.id, true
}

// Hierarchy reconstructs the frontier tree (stages 6, 8, 9, 10) from the
// committed slots. Returns an error only when stage 6 has never committed.
func (e *Engine) Hierarchy() (hierarchy.Tree, error) {
	l3s, ok := e.table.L3Questions()
	if !ok {
		return hierarchy.Tree{}, errors.New("no frontier questions committed yet")
	}
	l4s, _ := e.table.L4Questions()
	tasks, _ := e.table.Tasks()
	syntheses, _ := e.table.Syntheses()
	return hierarchy.Reconstruct(l3s, l4s, tasks, syntheses, e.logger), nil
}

// begin registers a new flight for the stage, cancelling and waiting out any
// predecessor. The wait happens outside the lock so the old run can finish.
func (e *Engine) begin(ctx context.Context, stageID int, invID string) (context.Context, *flight) {
	runCtx, cancel := context.WithCancelCause(ctx)
	fl := &flight{id: invID, cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	prev := e.inflight[stageID]
	if prev != nil {
		prev.cancel(ErrSuperseded)
	}
	e.inflight[stageID] = fl
	e.mu.Unlock()

	if prev != nil {
		<-prev.done
	}
	return runCtx, fl
}

func (e *Engine) finish(stageID int, fl *flight) {
	e.mu.Lock()
	if e.inflight[stageID] == fl {
		delete(e.inflight, stageID)
	}
	e.mu.Unlock()
	fl.cancel(nil)
	close(fl.done)
}

func (e *Engine) emit(opts Options, p Progress) {
	if opts.OnProgress != nil {
		opts.OnProgress(p)
	}
}

// agentFor resolves the dispatch-ready agent config for a stage: lens
// override applied, prompt placeholders interpolated.
func (e *Engine) agentFor(stageID int, opts Options) model.AgentConfig {
	agent := e.cfg.Agents[stageID]
	if opts.Lens != "" {
		agent.Lens = opts.Lens
	} else if agent.Lens == "" && agent.Settings.SelectedLens == "" {
		agent.Lens = e.cfg.GlobalLens
	}
	return agent.Interpolated()
}

func (e *Engine) lensFor(opts Options) string {
	if opts.Lens != "" {
		return opts.Lens
	}
	return e.cfg.GlobalLens
}

func (e *Engine) dispatch(ctx context.Context, stageID int, opts Options, inv *Invocation) error {
	switch stageID {
	case 1:
		return e.runObjective(ctx, opts, inv)
	case 2:
		return e.runPillars(ctx, opts, inv)
	case 3:
		return e.runRequirements(ctx, opts, inv)
	case 4:
		return e.runDomainEvidence(ctx, opts, inv)
	case 5:
		return e.runMatching(ctx, opts, inv)
	case 6:
		return e.runFrontier(ctx, opts, inv)
	case 7:
		return e.runHypotheses(ctx, opts, inv)
	case 8:
		return e.runTactical(ctx, opts, inv)
	case 9:
		return e.runTasks(ctx, opts, inv)
	case 10:
		return e.runSynthesis(ctx, opts, inv)
	}
	return fmt.Errorf("stage %d out of range 1..%d", stageID, state.NumStages)
}
