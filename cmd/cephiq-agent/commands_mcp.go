package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// MCP Commands
// =============================================================================

const defaultConfigPath = "cephiq-agent.yaml"

// buildMcpCmd creates the "mcp" command group for transport smoke-testing.
func buildMcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Inspect and exercise configured MCP servers",
		Long: `Connect to configured MCP servers and list or call their tools.

Use "cephiq-agent mcp list" to see configured servers and their tools.`,
	}
	cmd.AddCommand(
		buildMcpListCmd(),
		buildMcpCallCmd(),
	)
	return cmd
}

func buildMcpListCmd() *cobra.Command {
	var (
		configPath string
		serverID   string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured MCP servers and their tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMcpList(cmd, configPath, serverID)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().StringVar(&serverID, "server", "", "Server ID (optional; connects and lists tools for just this server)")
	return cmd
}

func buildMcpCallCmd() *cobra.Command {
	var (
		configPath string
		rawArgs    []string
	)
	cmd := &cobra.Command{
		Use:   "call <server.tool>",
		Short: "Call an MCP tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMcpCall(cmd, configPath, args[0], rawArgs)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().StringArrayVar(&rawArgs, "arg", nil, "Tool argument (key=value)")
	return cmd
}
