package cmd

import (
	"context"
	"fmt"

	"minerwatch/bootstrap"

	"github.com/spf13/cobra"
)

// NewRunCmd returns the daemon command: the full detection pipeline with
// graceful shutdown. Running the binary with no subcommand does the same
// thing; the explicit command exists for service files and docs.
func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the detection pipeline daemon",
		Long: `Starts the cryptojacking detection pipeline: classifies host
behavior every cycle, analyzes EVE telemetry on detections, writes and
publishes synthesized rules, and reloads the signature engine. Stops on
SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
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
		},
	}
}
