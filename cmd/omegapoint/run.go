package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/omegapoint/pipeline/internal/config"
	"github.com/omegapoint/pipeline/internal/logging"
	"github.com/omegapoint/pipeline/internal/pipeline/engine"
	"github.com/omegapoint/pipeline/internal/pipeline/state"
)

// run drives stages 1..N in order against a fresh session and prints the
// final snapshot, plus the reconstructed hierarchy when the run reaches the
// frontier stages.
func run(args []string) {
	var configPath string
	var goal string
	var lens string
	var mock bool
	through := state.NumStages
	logLevel := "info"
	logFormat := "text"

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--config requires a value")
				os.Exit(1)
			}
			configPath = args[i]
		case "--goal":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--goal requires a value")
				os.Exit(1)
			}
			goal = args[i]
		case "--lens":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--lens requires a value")
				os.Exit(1)
			}
			lens = args[i]
		case "--through":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--through requires a stage number")
				os.Exit(1)
			}
			n, err := strconv.Atoi(args[i])
			if err != nil || n < 1 || n > state.NumStages {
				fmt.Fprintf(os.Stderr, "--through must be 1..%d\n", state.NumStages)
				os.Exit(1)
			}
			through = n
		case "--log-level":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--log-level requires a value")
				os.Exit(1)
			}
			logLevel = args[i]
		case "--log-format":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--log-format requires a value")
				os.Exit(1)
			}
			logFormat = args[i]
		case "--mock":
			mock = true
		default:
			fmt.Fprintf(os.Stderr, "unknown flag %q\n", args[i])
			os.Exit(1)
		}
	}
	if configPath == "" || goal == "" {
		fmt.Fprintln(os.Stderr, "--config and --goal are required")
		os.Exit(1)
	}

	logging.Init(logging.ParseLevel(logLevel), logFormat, os.Stderr)
	logger := logging.New("run")

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	eng, err := buildEngine(cfg, mock)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for stage := 1; stage <= through; stage++ {
		opts := engine.Options{Lens: lens}
		if stage == 1 {
			opts.Input = goal
		}
		inv, err := eng.RunStage(ctx, stage, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "stage %d failed: %v\n", stage, err)
			os.Exit(1)
		}
		logger.Info("stage done",
			"stage", stage, "successful", inv.Successful, "failed", inv.Failed,
			"duration", inv.Duration)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(eng.Table().Snapshot()); err != nil {
		fmt.Fprintf(os.Stderr, "encode snapshot: %v\n", err)
		os.Exit(1)
	}
	if through >= 6 {
		tree, err := eng.Hierarchy()
		if err == nil {
			if err := enc.Encode(tree); err != nil {
				fmt.Fprintf(os.Stderr, "encode hierarchy: %v\n", err)
				os.Exit(1)
			}
		}
	}
}
