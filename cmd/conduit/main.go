// Package main provides the CLI entry point for Conduit, a research-agent
// backend that streams tool-augmented LLM conversations over Model
// Context Protocol servers.
//
// # Basic Usage
//
// Start the server:
//
//	conduit serve --config conduit.yaml
//
// # Environment Variables
//
// Configuration values may reference environment variables with
// ${VAR}-style expansion, commonly used for:
//
//   - OPENAI_API_KEY: API key for the LLM endpoint
//   - CONDUIT_CONFIG: path to the configuration file
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// This is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "conduit",
		Short:   "Conduit - streaming tool-augmented AI agent backend",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Long: `Conduit runs a streaming, tool-augmented conversation loop against an
OpenAI-compatible LLM endpoint, invoking tools discovered from configured
Model Context Protocol servers and persisting filtered chat history.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildRefreshToolsCmd(),
	)

	return rootCmd
}

// runWithSignalContext wraps ctx so it cancels on SIGINT/SIGTERM, matching
// the process's ordinary graceful-shutdown expectations.
func runWithSignalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}
