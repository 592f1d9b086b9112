package genmock

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/omegapoint/pipeline/internal/pipeline/engine"
	"github.com/omegapoint/pipeline/internal/pipeline/transport"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Runs all ten stages against the mock backend and checks the resulting
// hierarchy, exercising fan-out end to end.
func TestFullPipelineAgainstMock(t *testing.T) {
	backend := New(WithLogger(quietLogger()))
	eng := engine.New(backend, engine.Config{}, quietLogger())
	ctx := context.Background()

	if _, err := eng.RunStage(ctx, 1, engine.Options{Input: "room-temperature superconductor"}); err != nil {
		t.Fatalf("stage 1: %v", err)
	}
	for stage := 2; stage <= 10; stage++ {
		inv, err := eng.RunStage(ctx, stage, engine.Options{})
		if err != nil {
			t.Fatalf("stage %d: %v", stage, err)
		}
		if inv.Failed != 0 {
			t.Fatalf("stage %d: %d items failed", stage, inv.Failed)
		}
	}

	// 3 goals -> 2 L3 each -> 1 L4 each -> 3 tasks each (2 of them l6).
	tree, err := eng.Hierarchy()
	if err != nil {
		t.Fatalf("hierarchy: %v", err)
	}
	if len(tree.Orphans) != 0 || len(tree.Warnings) != 0 {
		t.Fatalf("unexpected orphans/warnings: %+v / %v", tree.Orphans, tree.Warnings)
	}
	if len(tree.Branches) != 6 {
		t.Fatalf("frontier branches: got %d want 6", len(tree.Branches))
	}
	for _, fb := range tree.Branches {
		if len(fb.Children) != 1 {
			t.Fatalf("branch %s children: %d", fb.Question.ID, len(fb.Children))
		}
		tb := fb.Children[0]
		if len(tb.Leaves) != 3 {
			t.Fatalf("branch %s leaves: %d", tb.Question.ID, len(tb.Leaves))
		}
		if tb.Synthesis == nil || tb.Synthesis.Verdict != "unified" {
			t.Fatalf("branch %s missing synthesis: %+v", tb.Question.ID, tb.Synthesis)
		}
	}
}

func TestFailSubstringMarksItemsFailed(t *testing.T) {
	backend := New(WithLogger(quietLogger()), WithFailSubstring("G2"))
	eng := engine.New(backend, engine.Config{}, quietLogger())
	ctx := context.Background()

	if _, err := eng.RunStage(ctx, 1, engine.Options{Input: "goal"}); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.RunStage(ctx, 2, engine.Options{}); err != nil {
		t.Fatal(err)
	}
	inv, err := eng.RunStage(ctx, 3, engine.Options{})
	if err != nil {
		t.Fatalf("partial failure must not abort: %v", err)
	}
	if inv.Successful != 2 || inv.Failed != 1 {
		t.Fatalf("counters: %d/%d want 2/1", inv.Successful, inv.Failed)
	}
}

// The HTTP surface speaks the same contract as the real service; the real
// Caller retries transient failures against it.
func TestHandlerWithCallerRetries(t *testing.T) {
	backend := New(WithLogger(quietLogger()), WithTransientFailures(2))
	srv := httptest.NewServer(backend.Handler())
	defer srv.Close()

	var slept []time.Duration
	caller := transport.NewCaller(srv.URL,
		transport.WithSleeper(func(_ context.Context, d time.Duration) bool {
			slept = append(slept, d)
			return true
		}),
		transport.WithLogger(quietLogger()),
	)
	eng := engine.New(caller, engine.Config{}, quietLogger())
	ctx := context.Background()

	if _, err := eng.RunStage(ctx, 1, engine.Options{Input: "goal"}); err != nil {
		t.Fatalf("stage 1: %v", err)
	}
	if _, err := eng.RunStage(ctx, 2, engine.Options{}); err != nil {
		t.Fatalf("stage 2: %v", err)
	}
	inv, err := eng.RunStage(ctx, 3, engine.Options{})
	if err != nil {
		t.Fatalf("stage 3 must succeed after retries: %v", err)
	}
	if inv.Successful != 3 {
		t.Fatalf("counters: %+v", inv)
	}
	if len(slept) != 2 || slept[0] != 1500*time.Millisecond || slept[1] != 3*time.Second {
		t.Fatalf("backoff sequence: %v", slept)
	}
}
