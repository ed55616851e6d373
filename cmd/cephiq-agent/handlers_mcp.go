package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codeisdemode/cephiq-lite/internal/config"
	"github.com/codeisdemode/cephiq-lite/internal/mcp"
)

// =============================================================================
// MCP Command Handlers
// =============================================================================

func loadMCPManager(configPath string) (*config.Config, *mcp.Manager, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, mcp.NewManager(&cfg.MCP, slog.Default()), nil
}

func stopMCPManager(mgr *mcp.Manager) {
	if mgr == nil {
		return
	}
	if err := mgr.Stop(); err != nil {
		slog.Warn("failed to stop MCP manager", "error", err)
	}
}

// runMcpList handles the mcp list command.
func runMcpList(cmd *cobra.Command, configPath, serverID string) error {
	cfg, mgr, err := loadMCPManager(configPath)
	if err != nil {
		return err
	}
	defer stopMCPManager(mgr)

	out := cmd.OutOrStdout()

	if serverID != "" {
		if err := mgr.Connect(cmd.Context(), serverID); err != nil {
			return err
		}
	} else if cfg.MCP.Enabled {
		if err := mgr.Start(cmd.Context()); err != nil {
			return err
		}
	}

	statuses := mgr.Status()
	if len(statuses) == 0 {
		fmt.Fprintln(out, "No MCP servers configured.")
		return nil
	}

	fmt.Fprintln(out, "MCP Servers:")
	for _, status := range statuses {
		state := "disconnected"
		if status.Connected {
			state = "connected"
		}
		fmt.Fprintf(out, "  %s (%s) - %s\n", status.ID, status.Name, state)
		if !status.Connected {
			continue
		}
		fmt.Fprintf(out, "    Tools: %d | Resources: %d | Prompts: %d\n", status.Tools, status.Resources, status.Prompts)
	}

	tools := mgr.AllTools()
	for id, list := range tools {
		if serverID != "" && id != serverID {
			continue
		}
		if len(list) == 0 {
			continue
		}
		fmt.Fprintf(out, "Tools for %s:\n", id)
		for _, tool := range list {
			fmt.Fprintf(out, "  - %s: %s\n", tool.Name, tool.Description)
		}
	}
	return nil
}

// runMcpCall handles the mcp call command.
func runMcpCall(cmd *cobra.Command, configPath, qualifiedName string, rawArgs []string) error {
	serverID, toolName, err := parseMCPQualifiedName(qualifiedName)
	if err != nil {
		return err
	}
	_, mgr, err := loadMCPManager(configPath)
	if err != nil {
		return err
	}
	defer stopMCPManager(mgr)

	if err := mgr.Connect(cmd.Context(), serverID); err != nil {
		return err
	}

	toolArgs, err := parseAnyArgs(rawArgs)
	if err != nil {
		return err
	}

	result, err := mgr.CallTool(cmd.Context(), serverID, toolName, toolArgs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if result == nil || len(result.Content) == 0 {
		fmt.Fprintln(out, "No result.")
		return nil
	}
	for _, item := range result.Content {
		if item.Type == "text" {
			fmt.Fprintln(out, item.Text)
			continue
		}
		payload, err := json.Marshal(item)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(payload))
	}
	return nil
}

func parseMCPQualifiedName(value string) (string, string, error) {
	parts := strings.SplitN(value, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("expected format <server>.<tool>")
	}
	return parts[0], parts[1], nil
}

func parseAnyArgs(items []string) (map[string]any, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make(map[string]any)
	for _, item := range items {
		key, value, err := parseKeyValue(item)
		if err != nil {
			return nil, err
		}
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err == nil {
			out[key] = parsed
		} else {
			out[key] = value
		}
	}
	return out, nil
}

func parseKeyValue(item string) (string, string, error) {
	parts := strings.SplitN(item, "=", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", "", fmt.Errorf("invalid --arg %q, expected key=value", item)
	}
	return parts[0], parts[1], nil
}
