package main

import (
	"fmt"
	"os"

	"github.com/omegapoint/pipeline/internal/config"
	"github.com/omegapoint/pipeline/internal/genmock"
	"github.com/omegapoint/pipeline/internal/logging"
	"github.com/omegapoint/pipeline/internal/pipeline/engine"
	"github.com/omegapoint/pipeline/internal/pipeline/transport"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		serve(os.Args[2:])
	case "run":
		run(os.Args[2:])
	case "check":
		check(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  omegapoint serve --config <file.yaml> [--mock] [--log-level <level>] [--log-format text|json]")
	fmt.Fprintln(os.Stderr, "  omegapoint run --config <file.yaml> --goal <text> [--through <stage>] [--lens <lens>] [--mock] [--log-level <level>] [--log-format text|json]")
	fmt.Fprintln(os.Stderr, "  omegapoint check --config <file.yaml>")
}

// buildEngine wires the generator and per-stage agents from the config.
func buildEngine(cfg *config.File, mock bool) (*engine.Engine, error) {
	agents, err := cfg.StageAgents()
	if err != nil {
		return nil, err
	}
	var gen transport.Generator
	if mock {
		gen = genmock.New(genmock.WithLogger(logging.New("genmock")))
	} else {
		gen = transport.NewCaller(cfg.Generation.BaseURL,
			transport.WithPolicy(cfg.Generation.Retry.Policy()),
			transport.WithLogger(logging.New("transport")),
		)
	}
	return engine.New(gen, engine.Config{
		Agents:              agents,
		GlobalLens:          cfg.Pipeline.GlobalLens,
		ObjectiveCharBudget: cfg.Pipeline.ObjectiveCharBudget,
	}, logging.New("engine")), nil
}

func check(args []string) {
	var configPath string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--config requires a value")
				os.Exit(1)
			}
			configPath = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag %q\n", args[i])
			os.Exit(1)
		}
	}
	if configPath == "" {
		fmt.Fprintln(os.Stderr, "--config is required")
		os.Exit(1)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
		os.Exit(1)
	}
	agents, err := cfg.StageAgents()
	if err != nil {
		fmt.Fprintf(os.Stderr, "agent configs invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("config ok: %d stage agents, generation at %s\n", len(agents), cfg.Generation.BaseURL)
}
