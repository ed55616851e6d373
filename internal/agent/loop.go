package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codeisdemode/cephiq-lite/internal/dispatch"
	"github.com/codeisdemode/cephiq-lite/internal/envelope"
	"github.com/codeisdemode/cephiq-lite/internal/retry"
	"github.com/codeisdemode/cephiq-lite/internal/tags"
)

// LoopConfig configures the envelope decision loop's budgets and behavior.
type LoopConfig struct {
	// MaxCycles is the maximum number of LLM decisions per run.
	// Default: 25.
	MaxCycles int

	// MaxTotalTokens bounds cumulative input+output tokens per run.
	// Default: 200000.
	MaxTotalTokens int

	// MaxWallClock bounds the total run duration. Zero means no limit.
	MaxWallClock time.Duration

	// MaxTokensPerCall is passed to the LLM as its response size cap.
	// Default: 8000.
	MaxTokensPerCall int

	// MaxDecodeRetries bounds the validator-feedback retry loop run against
	// a single LLM call before giving up and returning an error envelope.
	// Default: 3.
	MaxDecodeRetries int

	// AutoApprove synthesizes an approved observation for state=confirm
	// instead of stopping to wait for a human. It has no effect on
	// clarify/ask_human, which always terminate the loop.
	AutoApprove bool

	// EnableTags turns on tag-based permission resolution and system
	// prompt assembly. When false, AllTools are unrestricted and the
	// system prompt falls back to DefaultSystemPrompt.
	EnableTags bool

	// EnableMultiTool allows state=tools batch execution. When false, a
	// tools request is rejected with an error observation.
	EnableMultiTool bool

	// Model selects which LLM model the provider should use.
	Model string

	// DefaultSystemPrompt is used when tag resolution is disabled or
	// yields no applicable tags.
	DefaultSystemPrompt string
}

// DefaultLoopConfig returns sensible decision-loop defaults.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxCycles:           25,
		MaxTotalTokens:      200000,
		MaxTokensPerCall:    8000,
		MaxDecodeRetries:    3,
		EnableTags:          true,
		EnableMultiTool:     true,
		DefaultSystemPrompt: defaultSystemPrompt,
	}
}

const defaultSystemPrompt = `You are an autonomous agent that completes tasks by emitting exactly one JSON envelope per turn. Use the available tools to make progress toward the stated goal, and stop by emitting a terminal envelope (reply, error, clarify, confirm, wait, handoff, or finish) once the goal is satisfied or cannot proceed.`

// HistoryEntryType discriminates the two kinds of record kept in a
// decision loop's history: a model decision, or the observation that
// followed it.
type HistoryEntryType string

const (
	HistoryDecision       HistoryEntryType = "decision"
	HistoryObservation    HistoryEntryType = "observation"
	HistoryBatchObservation HistoryEntryType = "batch_observation"
)

// HistoryEntry is one record in a decision loop's run history.
type HistoryEntry struct {
	Type        HistoryEntryType
	Envelope    *envelope.Envelope
	Observation *dispatch.Observation
	Batch       *dispatch.BatchObservation
}

// LoopStats summarizes a completed or in-progress run.
type LoopStats struct {
	Cycles   int
	Tokens   int
	Duration time.Duration
}

// LoopState tracks a decision loop's accumulated run state.
type LoopState struct {
	Goal         string
	Cycle        int
	TokensUsed   int
	StartedAt    time.Time
	History      []HistoryEntry
	Plan         *envelope.Plan
	TodoList     []envelope.Todo
	CurrentTags  []*tags.Tag
	AllowedTools map[string]bool
}

// LoopResult is the outcome of running a decision loop to completion.
type LoopResult struct {
	Success       bool
	FinalEnvelope *envelope.Envelope
	History       []HistoryEntry
	Stats         LoopStats
}

// DecisionLoop drives the envelope-based decide -> dispatch -> observe
// cycle until a terminal envelope is produced or a budget is exhausted.
type DecisionLoop struct {
	provider   LLMProvider
	dispatcher *dispatch.Dispatcher
	tagStore   *tags.Store
	resolver   *tags.Resolver
	config     LoopConfig
	retryCfg   retry.Config
}

// NewDecisionLoop builds a decision loop over the given LLM provider and
// tool dispatcher. If tagStore is nil, a default store (seeded with the
// built-in company/role tags) is used.
func NewDecisionLoop(provider LLMProvider, dispatcher *dispatch.Dispatcher, tagStore *tags.Store, config LoopConfig) *DecisionLoop {
	if config.MaxCycles <= 0 {
		config.MaxCycles = 25
	}
	if config.MaxTotalTokens <= 0 {
		config.MaxTotalTokens = 200000
	}
	if config.MaxTokensPerCall <= 0 {
		config.MaxTokensPerCall = 8000
	}
	if config.MaxDecodeRetries <= 0 {
		config.MaxDecodeRetries = 3
	}
	if config.DefaultSystemPrompt == "" {
		config.DefaultSystemPrompt = defaultSystemPrompt
	}
	if tagStore == nil {
		tagStore = tags.NewStore()
	}

	return &DecisionLoop{
		provider:   provider,
		dispatcher: dispatcher,
		tagStore:   tagStore,
		resolver:   tags.NewResolver(tagStore),
		config:     config,
		retryCfg: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Factor:       2.0,
			Jitter:       true,
		},
	}
}

// Provider returns the LLM provider this loop was built with, so callers
// can reconstruct a loop with a different LoopConfig without re-resolving
// provider configuration.
func (l *DecisionLoop) Provider() LLMProvider {
	return l.provider
}

// Dispatcher returns the tool dispatcher this loop was built with.
func (l *DecisionLoop) Dispatcher() *dispatch.Dispatcher {
	return l.dispatcher
}

// Run executes the decision loop to completion for the given goal and
// identity, returning the final envelope and run statistics.
func (l *DecisionLoop) Run(ctx context.Context, goal, userID string, userRoles []string, orgID string) (*LoopResult, error) {
	if l.provider == nil {
		return nil, errors.New("decision loop: no LLM provider configured")
	}

	state := &LoopState{Goal: goal, StartedAt: time.Now()}

	if l.config.EnableTags {
		state.CurrentTags = l.resolver.ResolveForUser(userID, userRoles, orgID)
		state.AllowedTools = l.resolver.AllowedTools(state.CurrentTags)
	}

	var lastObservation interface{}
	var finalEnvelope *envelope.Envelope

	for {
		if exhausted, reason := l.checkBudgets(state); exhausted {
			finalEnvelope = envelope.CreateErrorEnvelope(reason, "budget_exhausted")
			break
		}

		systemPrompt := l.config.DefaultSystemPrompt
		if l.config.EnableTags && len(state.CurrentTags) > 0 {
			if built := l.resolver.BuildSystemPrompt(state.CurrentTags); built != "" {
				systemPrompt = built
			}
		}

		userContent := l.buildUserContext(state, lastObservation)

		env, tokensUsed, err := l.decideWithRetry(ctx, systemPrompt, userContent)
		state.Cycle++
		state.TokensUsed += tokensUsed
		if err != nil {
			finalEnvelope = envelope.CreateErrorEnvelope(err.Error(), "llm_error")
			break
		}

		state.History = append(state.History, HistoryEntry{Type: HistoryDecision, Envelope: env})
		applyTodoUpdate(state, env.Meta.TodoUpdate)
		if env.Meta.GoalUpdate != nil && env.Meta.GoalUpdate.NewGoal != "" {
			state.Goal = env.Meta.GoalUpdate.NewGoal
		}

		lastObservation = nil

		switch env.EffectiveState() {
		case envelope.StateTool:
			lastObservation = l.executeSingle(ctx, state, env)

		case envelope.StateTools:
			lastObservation = l.executeBatch(ctx, state, env)

		case envelope.StatePlan:
			state.Plan = env.PlanValue

		case envelope.StateReflect:
			// Reflection produces no observation; the model simply thinks aloud.

		case envelope.StateConfirm:
			if l.config.AutoApprove {
				lastObservation = &dispatch.Observation{
					Success: true,
					Tool:    "user_confirmation",
					Result:  mustMarshalJSON(map[string]interface{}{"approved": true}),
				}
			} else {
				finalEnvelope = env
			}

		default:
			// reply, clarify, ask_human, wait, handoff, finish, error: these
			// always terminate the loop, matching the spec's resolution that
			// a terminal state always wins over meta.continue.
		}

		if finalEnvelope == nil && env.IsTerminal() {
			finalEnvelope = env
		}
		if finalEnvelope != nil {
			break
		}
	}

	stats := LoopStats{
		Cycles:   state.Cycle,
		Tokens:   state.TokensUsed,
		Duration: time.Since(state.StartedAt),
	}

	return &LoopResult{
		Success:       !isFailureState(finalEnvelope.State),
		FinalEnvelope: finalEnvelope,
		History:       state.History,
		Stats:         stats,
	}, nil
}

// applyTodoUpdate mutates the loop's todo list per meta.todo_update,
// the only mechanism the envelope protocol uses to track subtasks
// across cycles.
func applyTodoUpdate(state *LoopState, update *envelope.TodoUpdate) {
	if update == nil {
		return
	}
	switch update.Action {
	case envelope.TodoAdd:
		state.TodoList = append(state.TodoList, update.Todo)
	case envelope.TodoUpdateOp, envelope.TodoComplete:
		for i, t := range state.TodoList {
			if t.ID == update.Todo.ID {
				state.TodoList[i] = update.Todo
				return
			}
		}
		state.TodoList = append(state.TodoList, update.Todo)
	case envelope.TodoRemove:
		filtered := state.TodoList[:0]
		for _, t := range state.TodoList {
			if t.ID != update.Todo.ID {
				filtered = append(filtered, t)
			}
		}
		state.TodoList = filtered
	}
}

func isFailureState(state envelope.State) bool {
	switch state {
	case envelope.StateError, envelope.StateClarify, envelope.StateConfirm, envelope.StateAskHuman:
		return true
	default:
		return false
	}
}

// checkBudgets reports whether the run has exhausted its cycle, token,
// or wall-clock budget, grounded in the original agent's _check_budgets.
func (l *DecisionLoop) checkBudgets(state *LoopState) (bool, string) {
	if state.Cycle >= l.config.MaxCycles {
		return true, fmt.Sprintf("max cycles reached: %d/%d", state.Cycle, l.config.MaxCycles)
	}
	if state.TokensUsed >= l.config.MaxTotalTokens {
		return true, fmt.Sprintf("max tokens reached: %d/%d", state.TokensUsed, l.config.MaxTotalTokens)
	}
	if l.config.MaxWallClock > 0 && time.Since(state.StartedAt) >= l.config.MaxWallClock {
		return true, fmt.Sprintf("max wall clock reached: %s", l.config.MaxWallClock)
	}
	return false, ""
}

// decideWithRetry calls the LLM and decodes its response into an
// envelope, feeding schema/semantic validation errors back into the
// conversation for up to MaxDecodeRetries attempts before giving up.
func (l *DecisionLoop) decideWithRetry(ctx context.Context, system, userContent string) (*envelope.Envelope, int, error) {
	var lastErrs []string
	totalTokens := 0

	for attempt := 0; attempt < l.config.MaxDecodeRetries; attempt++ {
		content := userContent
		if len(lastErrs) > 0 && attempt > 0 {
			content += "\n\nPrevious envelope had validation errors:\n" + strings.Join(lastErrs, "\n") +
				"\n\nPlease emit a valid envelope that fixes these issues."
		}

		req := &CompletionRequest{
			Model:     l.config.Model,
			System:    system,
			Messages:  []CompletionMessage{{Role: "user", Content: content}},
			MaxTokens: l.config.MaxTokensPerCall,
		}

		text, tokens, err := l.callOnce(ctx, req)
		totalTokens += tokens
		if err != nil {
			return nil, totalTokens, err
		}

		env := envelope.Decode(text)
		if env.State != envelope.StateError {
			return env, totalTokens, nil
		}
		if env.ErrorValue == nil || env.ErrorValue.ErrorType != "validation_error" {
			return env, totalTokens, nil
		}

		lastErrs = []string{env.ErrorValue.ErrorMessage}
		if attempt == l.config.MaxDecodeRetries-1 {
			return env, totalTokens, nil
		}
	}

	return envelope.CreateErrorEnvelope("exhausted decode retries", "validation_error"), totalTokens, nil
}

// callOnce performs a single retried LLM call and collects the full
// response text and token usage from the streamed chunks.
func (l *DecisionLoop) callOnce(ctx context.Context, req *CompletionRequest) (string, int, error) {
	var text string
	var tokens int

	result := retry.Do(ctx, l.retryCfg, func() error {
		text = ""
		tokens = 0
		chunks, err := l.provider.Complete(ctx, req)
		if err != nil {
			return err
		}
		for chunk := range chunks {
			if chunk.Error != nil {
				return chunk.Error
			}
			text += chunk.Text
			if chunk.Done {
				tokens = chunk.InputTokens + chunk.OutputTokens
			}
		}
		return nil
	})

	if result.Err != nil {
		return "", tokens, result.Err
	}
	return text, tokens, nil
}

func (l *DecisionLoop) executeSingle(ctx context.Context, state *LoopState, env *envelope.Envelope) *dispatch.Observation {
	if l.config.EnableTags && !l.resolver.ValidateToolAccess(env.Tool, state.CurrentTags) {
		obs := &dispatch.Observation{
			Success: false,
			Tool:    env.Tool,
			Error:   fmt.Sprintf("tool %q not allowed by current permissions", env.Tool),
		}
		state.History = append(state.History, HistoryEntry{Type: HistoryObservation, Observation: obs})
		return obs
	}

	obs := l.dispatcher.Dispatch(ctx, env.Tool, env.Arguments)
	state.History = append(state.History, HistoryEntry{Type: HistoryObservation, Observation: &obs})
	return &obs
}

func (l *DecisionLoop) executeBatch(ctx context.Context, state *LoopState, env *envelope.Envelope) *dispatch.BatchObservation {
	if !l.config.EnableMultiTool {
		obs := &dispatch.BatchObservation{MultiTool: true}
		state.History = append(state.History, HistoryEntry{Type: HistoryBatchObservation, Batch: obs})
		return obs
	}

	items := env.Tools
	denied := make(map[string]dispatch.Observation)
	if l.config.EnableTags {
		allowed := make([]envelope.ToolItem, 0, len(items))
		for _, item := range items {
			if l.resolver.ValidateToolAccess(item.Tool, state.CurrentTags) {
				allowed = append(allowed, item)
				continue
			}
			denied[item.ToolID] = dispatch.Observation{
				Success: false,
				Tool:    item.Tool,
				Error:   fmt.Sprintf("tool %q not allowed by current permissions", item.Tool),
			}
		}
		items = allowed
	}

	batch := l.dispatcher.DispatchBatch(ctx, items)
	if len(denied) > 0 {
		if batch.Results == nil {
			batch.Results = make(map[string]dispatch.Observation, len(denied))
		}
		for toolID, obs := range denied {
			batch.Results[toolID] = obs
		}
		batch.Count += len(denied)
		batch.AllSuccess = false
	}
	state.History = append(state.History, HistoryEntry{Type: HistoryBatchObservation, Batch: &batch})
	return &batch
}

func mustMarshalJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return data
}
