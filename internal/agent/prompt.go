package agent

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/codeisdemode/cephiq-lite/internal/dispatch"
	"github.com/codeisdemode/cephiq-lite/internal/envelope"
)

// historyTailWindow is the number of recent history entries rendered
// into the prompt, matching the original's "last 15 events" default
// generalized to the spec's 15-40 event-count window.
const historyTailWindow = 15

// buildUserContext assembles the per-cycle user message: goal, remaining
// budgets, the tool catalogue, the current plan/todo list, the last
// observation, and a tail of recent history, in that fixed order.
func (l *DecisionLoop) buildUserContext(state *LoopState, lastObservation interface{}) string {
	var sections []string

	sections = append(sections, "GOAL\n----\n"+state.Goal)

	remainingCycles := l.config.MaxCycles - state.Cycle
	remainingTokens := l.config.MaxTotalTokens - state.TokensUsed
	sections = append(sections, fmt.Sprintf(
		"BUDGET REMAINING\n----------------\nCycles: %d\nTokens: %d",
		remainingCycles, remainingTokens,
	))

	if len(state.AllowedTools) > 0 {
		names := make([]string, 0, len(state.AllowedTools))
		for name := range state.AllowedTools {
			names = append(names, name)
		}
		sections = append(sections, "AVAILABLE TOOLS\n----------------\n- "+strings.Join(names, "\n- "))
	}

	if state.Plan != nil {
		sections = append(sections, "CURRENT PLAN\n------------\n"+formatPlan(state.Plan))
	}

	if len(state.TodoList) > 0 {
		sections = append(sections, "TODO LIST\n---------\n"+formatTodos(state.TodoList))
	}

	if lastObservation != nil {
		sections = append(sections, "LAST TOOL RESULT\n----------------\n"+formatObservation(lastObservation))
	}

	if len(state.History) > 0 {
		tail := state.History
		if len(tail) > historyTailWindow {
			tail = tail[len(tail)-historyTailWindow:]
		}
		sections = append(sections, fmt.Sprintf(
			"HISTORY (last %d events)\n------------------------------------\n%s",
			len(tail), formatHistory(tail),
		))
	}

	sections = append(sections, strings.Repeat("=", 60)+"\nYOUR TASK\n"+strings.Repeat("=", 60)+"\n\nEmit exactly ONE JSON envelope now.")

	return strings.Join(sections, "\n\n")
}

func formatPlan(plan *envelope.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Root task: %s\n", plan.RootTask)
	for i, step := range plan.Steps {
		fmt.Fprintf(&b, "  %d. %s", i+1, step.Description)
		if step.Status != "" {
			fmt.Fprintf(&b, " [%s]", step.Status)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatTodos(todos []envelope.Todo) string {
	var b strings.Builder
	for _, t := range todos {
		fmt.Fprintf(&b, "- [%s] %s\n", t.Status, t.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatObservation(obs interface{}) string {
	switch v := obs.(type) {
	case *dispatch.Observation:
		return formatSingleObservation(v)
	case *dispatch.BatchObservation:
		return formatBatchObservation(v)
	default:
		return fmt.Sprintf("%v", obs)
	}
}

func formatSingleObservation(obs *dispatch.Observation) string {
	status := "FAILURE"
	if obs.Success {
		status = "SUCCESS"
	}
	line := fmt.Sprintf("%s: %s (%sms)", status, obs.Tool, strconv.FormatFloat(obs.DurationMs, 'f', 1, 64))
	if obs.Error != "" {
		line += "\n  error: " + obs.Error
	}
	return line
}

func formatBatchObservation(batch *dispatch.BatchObservation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Multi-tool execution (%d tools):\n", batch.Count)
	for toolID, obs := range batch.Results {
		status := "FAIL"
		if obs.Success {
			status = "OK"
		}
		fmt.Fprintf(&b, "  [%s] %s (%s) - %sms\n", status, toolID, obs.Tool, strconv.FormatFloat(obs.DurationMs, 'f', 1, 64))
		if obs.Error != "" {
			fmt.Fprintf(&b, "      error: %s\n", obs.Error)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatHistory(entries []HistoryEntry) string {
	var b strings.Builder
	for _, e := range entries {
		switch e.Type {
		case HistoryDecision:
			if e.Envelope != nil {
				fmt.Fprintf(&b, "- decision: state=%s rationale=%q\n", e.Envelope.State, e.Envelope.BriefRationale)
			}
		case HistoryObservation:
			if e.Observation != nil {
				fmt.Fprintf(&b, "- observation: %s\n", formatSingleObservation(e.Observation))
			}
		case HistoryBatchObservation:
			if e.Batch != nil {
				fmt.Fprintf(&b, "- batch observation: count=%d all_success=%t\n", e.Batch.Count, e.Batch.AllSuccess)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
