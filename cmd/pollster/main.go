// Package main is the entry point for the pollster CLI.
//
// pollster can be used either as a library (SDK) or as a standalone binary
// that polls the HTTP targets listed in a YAML file.
//
// Usage:
//
//	pollster watch -c targets.yaml    # Poll until every target finishes
//	pollster validate -c targets.yaml # Validate configuration
//	pollster version                  # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd only displays help; the work happens in subcommands.
var rootCmd = &cobra.Command{
	Use:   "pollster",
	Short: "Poll HTTP resources until a condition is met",
	Long: `pollster repeatedly fetches HTTP resources with fixed or exponential
delays and reports every attempt as it happens.

Quick start:
  1. Create a config file (pollster.yaml)
  2. Run: pollster watch -c pollster.yaml

Example config:
  targets:
    - name: export job
      url: https://api.example.com/jobs/42
      backoff: {min: 500ms, max: 30s}
      until_body_contains: '"state":"done"'`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this pollster binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "pollster %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
