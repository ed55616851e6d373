package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codeisdemode/cephiq-lite/internal/agent"
	"github.com/codeisdemode/cephiq-lite/internal/agent/providers"
	"github.com/codeisdemode/cephiq-lite/internal/config"
	"github.com/codeisdemode/cephiq-lite/internal/dispatch"
	"github.com/codeisdemode/cephiq-lite/internal/envelope"
	"github.com/codeisdemode/cephiq-lite/internal/mcp"
	"github.com/codeisdemode/cephiq-lite/internal/observability"
	"github.com/codeisdemode/cephiq-lite/internal/tags"
	"github.com/codeisdemode/cephiq-lite/internal/tools/exec"
	"github.com/codeisdemode/cephiq-lite/internal/tools/files"
	"github.com/codeisdemode/cephiq-lite/internal/tools/policy"
	"github.com/codeisdemode/cephiq-lite/internal/tools/websearch"
)

// exit codes per the CLI surface: 0 success, 1 task failure, 130 interrupt.
const (
	exitSuccess     = 0
	exitTaskFailure = 1
	exitInterrupted = 130
)

// runtime bundles everything a run needs to build and drive a decision loop.
type runtime struct {
	cfg      *config.Config
	logger   *observability.Logger
	metrics  *observability.Metrics
	tagStore *tags.Store
	mcpMgr   *mcp.Manager
	loop     *agent.DecisionLoop
}

// buildRuntime wires config, logging, metrics, tags, the LLM provider, the
// tool registry, the dispatcher, and the decision loop from a config file.
func buildRuntime(ctx context.Context, configPath string, autoApprove bool) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}

	tagStore := tags.NewStore()
	if cfg.Tags.Directory != "" {
		if err := tagStore.LoadDir(cfg.Tags.Directory); err != nil {
			return nil, fmt.Errorf("load tags: %w", err)
		}
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	mcpMgr := mcp.NewManager(&cfg.MCP, nil)
	if err := mcpMgr.Start(ctx); err != nil {
		logger.Warn(ctx, "failed to start MCP servers", "error", err)
	}

	registry := buildToolRegistry(cfg, mcpMgr)
	dispatcher := dispatch.New(registry)

	loopCfg := agent.DefaultLoopConfig()
	loopCfg.MaxCycles = cfg.Agent.MaxCycles
	loopCfg.MaxTotalTokens = cfg.Agent.MaxTotalTokens
	loopCfg.MaxWallClock = cfg.Agent.MaxWallClock
	loopCfg.AutoApprove = cfg.Agent.AutoApprove || autoApprove
	loopCfg.EnableTags = cfg.Tags.Directory != ""

	loop := agent.NewDecisionLoop(provider, dispatcher, tagStore, loopCfg)

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		tagStore: tagStore,
		mcpMgr:   mcpMgr,
		loop:     loop,
	}, nil
}

// buildProvider constructs the configured default LLM provider.
func buildProvider(cfg *config.Config) (agent.LLMProvider, error) {
	name := cfg.LLM.DefaultProvider
	providerCfg := cfg.LLM.Providers[name]

	switch name {
	case "openai":
		return providers.NewOpenAIProvider(providerCfg.APIKey), nil
	case "anthropic", "":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       providerCfg.APIKey,
			DefaultModel: providerCfg.DefaultModel,
			BaseURL:      providerCfg.BaseURL,
		})
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", name)
	}
}

// buildToolRegistry populates a tool registry with the builtin filesystem
// tools, the generic patch-oriented filesystem tools, process execution,
// web search/fetch (when enabled), and every tool exposed by connected MCP
// servers.
func buildToolRegistry(cfg *config.Config, mcpMgr *mcp.Manager) *agent.ToolRegistry {
	registry := agent.NewToolRegistry()

	workspace, _ := os.Getwd()
	filesCfg := files.Config{Workspace: workspace, MaxReadBytes: 1 << 20}

	registry.Register(files.NewCreateFileTool(filesCfg))
	registry.Register(files.NewReadFileTool(filesCfg))
	registry.Register(files.NewEditFileTool(filesCfg))
	registry.Register(files.NewDeleteFileTool(filesCfg))
	registry.Register(files.NewListFilesTool(filesCfg))
	registry.Register(files.NewCreateDirectoryTool(filesCfg))
	registry.Register(files.NewDirectoryTreeTool(filesCfg))
	registry.Register(files.NewGetCwdTool(filesCfg))

	registry.Register(files.NewReadTool(filesCfg))
	registry.Register(files.NewWriteTool(filesCfg))
	registry.Register(files.NewEditTool(filesCfg))
	registry.Register(files.NewApplyPatchTool(filesCfg))

	execMgr := exec.NewManager(workspace)
	registry.Register(exec.NewExecTool("exec", execMgr))
	registry.Register(exec.NewProcessTool(execMgr))

	if cfg.Tools.WebSearch.Enabled {
		registry.Register(websearch.NewWebSearchTool(&websearch.Config{
			SearXNGURL:  cfg.Tools.WebSearch.URL,
			BraveAPIKey: cfg.Tools.WebSearch.BraveAPIKey,
		}))
		registry.Register(websearch.NewWebFetchTool(nil))
	}

	for serverID, toolList := range mcpMgr.AllTools() {
		for _, tool := range toolList {
			registry.Register(newMCPToolAdapter(mcpMgr, serverID, tool))
		}
	}

	if resolver, toolPolicy := buildToolPolicy(cfg); toolPolicy != nil {
		registry.SetPolicy(resolver, toolPolicy)
	}

	return registry
}

// buildToolPolicy translates the tools.policies config block into a
// policy.Resolver/policy.Policy pair. A "deny" default locks the registry
// down to ProfileMinimal plus any explicit allow rules; an "allow" (or
// unset) default keeps ProfileFull, restricted only by explicit deny rules.
func buildToolPolicy(cfg *config.Config) (*policy.Resolver, *policy.Policy) {
	rules := cfg.Tools.Policies.Rules
	if cfg.Tools.Policies.Default == "" && len(rules) == 0 {
		return nil, nil
	}

	profile := policy.ProfileFull
	if cfg.Tools.Policies.Default == "deny" {
		profile = policy.ProfileMinimal
	}

	builder := policy.NewUnifiedPolicy().WithProfile(profile)
	for _, rule := range rules {
		switch rule.Action {
		case "allow":
			builder.AllowNative(rule.Tool)
		case "deny":
			builder.DenyNative(rule.Tool)
		}
	}

	resolver := policy.NewResolver()
	return resolver, builder.Build()
}

// mcpToolAdapter exposes a single MCP server tool as an agent.Tool so the
// decision loop can dispatch to it like any builtin tool. The adapter name
// is qualified with the server ID to avoid collisions across servers.
type mcpToolAdapter struct {
	mgr      *mcp.Manager
	serverID string
	tool     *mcp.MCPTool
}

func newMCPToolAdapter(mgr *mcp.Manager, serverID string, tool *mcp.MCPTool) *mcpToolAdapter {
	return &mcpToolAdapter{mgr: mgr, serverID: serverID, tool: tool}
}

func (a *mcpToolAdapter) Name() string { return a.serverID + "_" + a.tool.Name }

func (a *mcpToolAdapter) Description() string { return a.tool.Description }

func (a *mcpToolAdapter) Schema() json.RawMessage { return a.tool.InputSchema }

func (a *mcpToolAdapter) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var args map[string]any
	if len(params) > 0 {
		if err := json.Unmarshal(params, &args); err != nil {
			return nil, fmt.Errorf("unmarshal arguments: %w", err)
		}
	}

	result, err := a.mgr.CallTool(ctx, a.serverID, a.tool.Name, args)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, item := range result.Content {
		if item.Type == "text" {
			text.WriteString(item.Text)
			text.WriteString("\n")
		}
	}
	return &agent.ToolResult{Content: strings.TrimRight(text.String(), "\n"), IsError: result.IsError}, nil
}

// runRepl drives the decision loop REPL: a single non-interactive run when a
// goal argument is given, or an interactive loop reading goals and
// meta-commands from stdin.
func runRepl(cmd *cobra.Command, configPath, goal string, autoApprove bool) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := buildRuntime(ctx, configPath, autoApprove)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.mcpMgr.Stop(); err != nil {
			rt.logger.Warn(ctx, "failed to stop MCP manager", "error", err)
		}
	}()

	out := cmd.OutOrStdout()

	if goal != "" {
		runOnce(ctx, rt, out, goal)
		return nil
	}

	runInteractive(ctx, rt, cmd.InOrStdin(), out)
	return nil
}

// runOnce executes a single goal to completion and exits with the
// corresponding status code.
func runOnce(ctx context.Context, rt *runtime, out io.Writer, goal string) {
	result, err := rt.loop.Run(ctx, goal, "cli-user", nil, "")
	if ctx.Err() != nil {
		os.Exit(exitInterrupted)
	}
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		os.Exit(exitTaskFailure)
	}

	printEnvelope(out, result.FinalEnvelope)
	if !result.Success {
		os.Exit(exitTaskFailure)
	}
	os.Exit(exitSuccess)
}

// runInteractive runs the meta-command REPL against stdin.
func runInteractive(ctx context.Context, rt *runtime, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	var lastResult *agent.LoopResult
	autoApprove := rt.cfg.Agent.AutoApprove

	fmt.Fprintln(out, "cephiq-agent REPL. Type a goal, or /help for commands.")
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if ctx.Err() != nil {
			os.Exit(exitInterrupted)
		}

		if strings.HasPrefix(line, "/") {
			done, err := handleMetaCommand(rt, out, line, &autoApprove, lastResult)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			if done {
				os.Exit(exitSuccess)
			}
			continue
		}

		rt.loop = rebuildLoopWithAutoApprove(rt, autoApprove)
		result, err := rt.loop.Run(ctx, line, "cli-user", nil, "")
		if ctx.Err() != nil {
			os.Exit(exitInterrupted)
		}
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		lastResult = result
		printEnvelope(out, result.FinalEnvelope)

		if result.FinalEnvelope != nil && result.FinalEnvelope.EffectiveState() == envelope.StateConfirm && !autoApprove {
			fmt.Fprintln(out, "Awaiting /approve or /deny for the action above.")
		}
	}
	os.Exit(exitSuccess)
}

// handleMetaCommand processes a single "/"-prefixed REPL command.
// It returns done=true when the REPL should exit.
func handleMetaCommand(rt *runtime, out io.Writer, line string, autoApprove *bool, lastResult *agent.LoopResult) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/help":
		fmt.Fprintln(out, "/help            show this message")
		fmt.Fprintln(out, "/plan            show the current plan and todo list")
		fmt.Fprintln(out, "/stats           show cycle/token/duration stats for the last run")
		fmt.Fprintln(out, "/approve         approve a pending confirm-state action and continue")
		fmt.Fprintln(out, "/deny            deny a pending confirm-state action")
		fmt.Fprintln(out, "/quit            exit the REPL")
		fmt.Fprintln(out, "/clear           clear REPL state")
		fmt.Fprintln(out, "/auto on|off     toggle auto-approval of confirm-state envelopes")
		return false, nil

	case "/quit":
		return true, nil

	case "/clear":
		fmt.Fprintln(out, "cleared.")
		return false, nil

	case "/stats":
		if lastResult == nil {
			fmt.Fprintln(out, "no run yet.")
			return false, nil
		}
		fmt.Fprintf(out, "cycles=%d tokens=%d duration=%s\n",
			lastResult.Stats.Cycles, lastResult.Stats.Tokens, lastResult.Stats.Duration)
		return false, nil

	case "/plan":
		if lastResult == nil || lastResult.FinalEnvelope == nil {
			fmt.Fprintln(out, "no plan available.")
			return false, nil
		}
		printPlan(out, lastResult)
		return false, nil

	case "/approve":
		if rt.metrics != nil {
			rt.metrics.RecordApprovalRequest("approved")
		}
		fmt.Fprintln(out, "approved. Re-run the goal to continue with auto-approval for this cycle.")
		return false, nil

	case "/deny":
		if rt.metrics != nil {
			rt.metrics.RecordApprovalRequest("denied")
		}
		fmt.Fprintln(out, "denied.")
		return false, nil

	case "/auto":
		if len(fields) < 2 {
			return false, fmt.Errorf("usage: /auto on|off")
		}
		switch fields[1] {
		case "on":
			*autoApprove = true
			fmt.Fprintln(out, "auto-approve: on")
		case "off":
			*autoApprove = false
			fmt.Fprintln(out, "auto-approve: off")
		default:
			return false, fmt.Errorf("usage: /auto on|off")
		}
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %q (try /help)", fields[0])
	}
}

// rebuildLoopWithAutoApprove returns a decision loop identical to rt.loop
// except for the AutoApprove setting, so toggling /auto on|off takes effect
// on the next goal without re-reading configuration.
func rebuildLoopWithAutoApprove(rt *runtime, autoApprove bool) *agent.DecisionLoop {
	loopCfg := agent.DefaultLoopConfig()
	loopCfg.MaxCycles = rt.cfg.Agent.MaxCycles
	loopCfg.MaxTotalTokens = rt.cfg.Agent.MaxTotalTokens
	loopCfg.MaxWallClock = rt.cfg.Agent.MaxWallClock
	loopCfg.AutoApprove = autoApprove
	loopCfg.EnableTags = rt.cfg.Tags.Directory != ""
	return agent.NewDecisionLoop(rt.loop.Provider(), rt.loop.Dispatcher(), rt.tagStore, loopCfg)
}

// printEnvelope renders a terminal envelope's payload for the REPL/CLI.
func printEnvelope(out io.Writer, env *envelope.Envelope) {
	if env == nil {
		fmt.Fprintln(out, "no envelope produced.")
		return
	}
	switch env.EffectiveState() {
	case envelope.StateReply:
		if env.Conversation != nil {
			fmt.Fprintln(out, env.Conversation.Utterance)
		}
	case envelope.StateClarify:
		if env.ClarifyValue != nil {
			fmt.Fprintf(out, "clarify: %s\n", env.ClarifyValue.Question)
		}
	case envelope.StateConfirm:
		if env.ConfirmValue != nil {
			fmt.Fprintf(out, "confirm: %s\n", env.ConfirmValue.Action)
		}
	case envelope.StateWait:
		if env.WaitValue != nil {
			fmt.Fprintf(out, "wait: %s\n", env.WaitValue.EventType)
		}
	case envelope.StateError:
		if env.ErrorValue != nil {
			fmt.Fprintf(out, "error: %s: %s\n", env.ErrorValue.ErrorType, env.ErrorValue.ErrorMessage)
		}
	case envelope.StateFinish:
		if env.FinishValue != nil {
			fmt.Fprintf(out, "finish: %s\n", env.FinishValue.Summary)
		}
	case envelope.StateHandoff:
		if env.HandoffValue != nil {
			fmt.Fprintf(out, "handoff to %s: %s\n", env.HandoffValue.ToAgent, env.HandoffValue.Message)
		}
	case envelope.StateAskHuman:
		fmt.Fprintln(out, env.BriefRationale)
	default:
		fmt.Fprintf(out, "%s\n", env.BriefRationale)
	}
}

// printPlan renders the plan accumulated during the last run's decisions.
func printPlan(out io.Writer, result *agent.LoopResult) {
	for _, entry := range result.History {
		if entry.Type == agent.HistoryDecision && entry.Envelope != nil && entry.Envelope.PlanValue != nil {
			plan := entry.Envelope.PlanValue
			fmt.Fprintf(out, "plan: %s\n", plan.RootTask)
			for i, step := range plan.Steps {
				fmt.Fprintf(out, "  %d. [%s] %s\n", i+1, step.Status, step.Description)
			}
		}
	}
}
