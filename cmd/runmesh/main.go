// Package main provides the runmesh CLI.
//
// Start the control plane HTTP server:
//
//	runmesh serve --config runmesh.yaml
//
// Execute a single prompt and print its events:
//
//	runmesh run --repo my-repo "fix the failing test"
//
// Configuration is read from the YAML file given by --config (or RUNMESH_CONFIG)
// and may be overridden by RUNMESH_* environment variables.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "runmesh",
		Short:        "runmesh - agent run orchestration",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildRunCmd(),
		buildConfigCmd(),
	)

	return rootCmd
}
