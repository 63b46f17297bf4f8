// Package main provides the remedy-tui binary, a full-screen Bubble Tea
// front end for the saved workflow.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/ormasoftchile/remedy/pkg/config"
	"github.com/ormasoftchile/remedy/pkg/runtime"
	"github.com/ormasoftchile/remedy/pkg/tui"
)

func main() {
	configPath := ""
	fresh := false
	for i := 1; i < len(os.Args); i++ {
		switch arg := os.Args[i]; {
		case arg == "--config" && i+1 < len(os.Args):
			i++
			configPath = os.Args[i]
		case arg == "--fresh":
			fresh = true
		default:
			fmt.Fprintln(os.Stderr, "Usage: remedy-tui [--config remedy.yaml] [--fresh]")
			os.Exit(1)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	// Log lines would tear the alt screen.
	cfg.LogLevel = "error"

	rt, err := runtime.Open(cfg, runtime.Options{Fresh: fresh})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	runErr := tui.Run(ctx, rt.Session)
	stop()
	if err := rt.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
}
