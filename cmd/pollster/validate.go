package main

import (
	"fmt"
	"strings"

	"github.com/jpalmerr/pollster/config"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a pollster configuration file without polling anything.

This command parses the YAML, expands environment variables, validates all
fields and builds every target. It's useful for CI/CD pipelines or
pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  pollster validate -c pollster.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	targets, err := config.BuildTargets(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Log level: %s\n", cfg.Level())
	fmt.Fprintf(out, "  Targets:   %d\n\n", len(targets))

	table := tablewriter.NewWriter(out)
	table.Header("Name", "URL", "Schedule", "Until")
	for _, tc := range cfg.Targets {
		if err := table.Append(tc.Name, tc.URL, describeDelay(tc), describeUntil(tc)); err != nil {
			return err
		}
	}
	return table.Render()
}

// describeDelay summarises a target's schedule for validate output.
func describeDelay(tc config.TargetConfig) string {
	switch {
	case tc.Backoff != nil:
		mult := tc.Backoff.Multiplier
		if mult == 0 {
			mult = 2
		}
		s := fmt.Sprintf("backoff %s x%g", tc.Backoff.Min.Duration(), mult)
		if tc.Backoff.Max != 0 {
			s += fmt.Sprintf(" up to %s", tc.Backoff.Max.Duration())
		}
		return s
	case tc.Delay != 0:
		return fmt.Sprintf("every %s", tc.Delay.Duration())
	default:
		return "every 1s"
	}
}

func describeUntil(tc config.TargetConfig) string {
	var conds []string
	if tc.UntilBodyContains != "" {
		conds = append(conds, fmt.Sprintf("body contains %q", tc.UntilBodyContains))
	}
	if j := tc.UntilJSON; j != nil {
		conds = append(conds, fmt.Sprintf("%s=%s", j.Path, j.Equals))
	}
	if len(conds) == 0 {
		return "first success"
	}
	return strings.Join(conds, " or ")
}
