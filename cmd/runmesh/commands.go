package main

import (
	"os"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "runmesh.yaml"

func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("RUNMESH_CONFIG"); env != "" {
		return env
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

// buildServeCmd creates the "serve" command that starts the HTTP API and the
// dispatch driver.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		addr       string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the control plane HTTP server",
		Long: `Start the control plane HTTP server.

The server exposes sessions, runs, events, artifacts and evaluations as JSON
endpoints and drives dispatch on a fixed tick. Shutdown is graceful on
SIGINT/SIGTERM.`,
		Example: `  runmesh serve
  runmesh serve --config /etc/runmesh/runmesh.yaml --addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), addr)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.host/port)")

	return cmd
}

// buildRunCmd creates the "run" command that executes one prompt in-process.
func buildRunCmd() *cobra.Command {
	var (
		configPath string
		repoID     string
		evaluate   bool
	)

	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Execute a single prompt and print its events as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), cmd.OutOrStdout(), resolveConfigPath(configPath), repoID, args[0], evaluate)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&repoID, "repo", "workspace", "Repository id of the session")
	cmd.Flags().BoolVar(&evaluate, "evaluate", false, "Print the run evaluation after the events")

	return cmd
}

// buildConfigCmd creates the "config" command group.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	var configPath string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout(), resolveConfigPath(configPath))
		},
	}
	show.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")

	cmd.AddCommand(show)
	return cmd
}
