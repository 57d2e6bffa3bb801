// Package main is the entry point for the minerwatch detection pipeline.
package main

import (
	"context"
	"fmt"
	"os"

	"minerwatch/bootstrap"
	"minerwatch/cmd"

	"github.com/spf13/cobra"
)

// run initializes and starts the detection pipeline daemon.
func run() error {
	ctx := context.Background()

	app, err := bootstrap.NewApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		app.Shutdown()
		return fmt.Errorf("failed to start application: %w", err)
	}

	app.WaitForShutdown()
	app.Shutdown()

	return nil
}

// main is the entry point.
func main() {
	// Check if running as a CLI subcommand
	if len(os.Args) > 1 {
		var sub *cobra.Command
		switch os.Args[1] {
		case "analyze":
			sub = cmd.NewAnalyzeCmd()
		case "run":
			sub = cmd.NewRunCmd()
		}
		if sub != nil {
			// Strip the subcommand name since the command already knows
			// what it is
			os.Args = append([]string{os.Args[0]}, os.Args[2:]...)
			if err := sub.Execute(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	// Otherwise run as the detection daemon
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
