package main

import (
	"fmt"
	"os"

	"github.com/omegapoint/pipeline/internal/config"
	"github.com/omegapoint/pipeline/internal/logging"
	"github.com/omegapoint/pipeline/internal/server"
)

func serve(args []string) {
	var configPath string
	var mock bool
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
		case "--mock":
			mock = true
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
		default:
			fmt.Fprintf(os.Stderr, "unknown flag %q\n", args[i])
			os.Exit(1)
		}
	}
	if configPath == "" {
		fmt.Fprintln(os.Stderr, "--config is required")
		os.Exit(1)
	}

	logging.Init(logging.ParseLevel(logLevel), logFormat, os.Stderr)

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

	srv := server.New(server.Config{Addr: cfg.Server.Addr}, eng)
	if err := srv.ListenAndServe(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}
