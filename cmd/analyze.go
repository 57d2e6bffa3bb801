// Package cmd provides the command-line interface for minerwatch.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"minerwatch/core"
	"minerwatch/detect"
	"minerwatch/telemetry"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// NewAnalyzeCmd returns the one-shot analysis command: read an EVE log,
// run the pattern analyzer once and print the rules it would generate,
// without touching the engine, the backend or the rule files.
func NewAnalyzeCmd() *cobra.Command {
	var (
		evePath        string
		indicatorsFile string
		window         time.Duration
		maxEvents      int
		maxRules       int
		baseSID        int
		outputJSON     bool
		noColor        bool
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze an EVE log once and print the rules it would generate",
		Long: `Reads Suricata EVE telemetry, runs the cryptojacking pattern
analyzer a single time and prints the synthesized rules. Nothing is
written to the engine rule file and nothing is published.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if noColor {
				color.NoColor = true
			}

			indicators := core.DefaultIndicators()
			if indicatorsFile != "" {
				var err error
				indicators, err = core.LoadIndicators(indicatorsFile)
				if err != nil {
					return err
				}
			}

			logger := zap.NewNop().Sugar()
			reader := telemetry.NewReader(evePath, logger)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			events, err := reader.ReadRecent(ctx, window, maxEvents)
			if err != nil {
				errorColor.Fprintf(os.Stderr, "Failed to read %s: %v\n", evePath, err)
				return err
			}

			analyzer := detect.NewAnalyzer(detect.AnalyzerConfig{
				Indicators: indicators,
				BaseSID:    baseSID,
				MaxRules:   maxRules,
				Logger:     logger,
			})
			rules := analyzer.Analyze(ctx, events)

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(rules)
			}

			headerColor.Printf("Analyzed %d events from %s\n\n", len(events), evePath)
			if len(rules) == 0 {
				infoColor.Println("No rule-worthy patterns found")
				return nil
			}

			for _, rule := range rules {
				successColor.Printf("[%d] %s\n", rule.SID, rule.Name)
				if rule.Pattern != "" {
					infoColor.Printf("    pattern: %s\n", rule.Pattern)
				}
				fmt.Printf("    %s\n\n", rule.Body)
			}
			warningColor.Printf("%d rules generated (dry run, nothing written)\n", len(rules))
			return nil
		},
	}

	cmd.Flags().StringVarP(&evePath, "file", "f", "/var/log/suricata/eve.json", "EVE telemetry file to analyze")
	cmd.Flags().StringVar(&indicatorsFile, "indicators", "", "YAML file with indicator overrides")
	cmd.Flags().DurationVar(&window, "window", 2*time.Minute, "only analyze events newer than this")
	cmd.Flags().IntVar(&maxEvents, "max-events", 1000, "maximum events to read")
	cmd.Flags().IntVar(&maxRules, "max-rules", 10, "maximum rules to generate")
	cmd.Flags().IntVar(&baseSID, "base-sid", 2000000, "base SID for generated rules")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "emit rules as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")

	return cmd
}
