// Package main provides the CLI entry point for the cephiq-agent envelope
// decision loop runtime.
//
// cephiq-agent runs an autonomous agent that completes goals by emitting one
// JSON envelope per decision cycle against a configured LLM provider
// (Anthropic, OpenAI), dispatching the envelope's tool requests through a
// registry of filesystem, exec, web, and MCP-backed tools, and feeding the
// resulting observations back into the next cycle until a terminal envelope
// is produced or a budget is exhausted.
//
// # Basic Usage
//
// Run an interactive session against a goal:
//
//	cephiq-agent run --config cephiq-agent.yaml "Summarize the open issues in this repo"
//
// Validate a single envelope read from stdin (useful in CI):
//
//	echo '{"state":"reply", ...}' | cephiq-agent validate
//
// Inspect configured MCP servers and tools:
//
//	cephiq-agent mcp servers --config cephiq-agent.yaml
//	cephiq-agent mcp call --config cephiq-agent.yaml filesystem.read_file --arg path=README.md
//
// # Environment Variables
//
//   - CEPHIQ_CONFIG: Path to configuration file (default: cephiq-agent.yaml)
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"     // Semantic version (e.g., "v1.0.0")
	commit  = "none"    // Git commit SHA
	date    = "unknown" // Build timestamp
)

// main is the entry point for the cephiq-agent CLI.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cephiq-agent",
		Short: "cephiq-agent - envelope-driven autonomous agent runtime",
		Long: `cephiq-agent runs an envelope decision loop: one JSON envelope per cycle,
dispatched against filesystem, exec, web search, and MCP tools, bounded by
cycle/token/wall-clock budgets and gated by tag-based tool permissions.

Supported LLM providers: Anthropic (Claude), OpenAI (GPT)
Available tools: filesystem, process execution, web search/fetch, MCP servers

Documentation: see SPEC_FULL.md in this repository.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildRunCmd(),
		buildValidateCmd(),
		buildMcpCmd(),
	)

	return rootCmd
}
