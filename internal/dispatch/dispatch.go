// Package dispatch turns an envelope's tool/tools request into the
// observation shape the decision loop feeds back to the model: a single
// {success,tool,result,error,duration_ms} object, or for a batch of
// tool calls, {_multi_tool,count,all_success,results}.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/codeisdemode/cephiq-lite/internal/agent"
	"github.com/codeisdemode/cephiq-lite/internal/envelope"
	"github.com/codeisdemode/cephiq-lite/pkg/models"
)

// Observation is the result of a single tool execution, fed back to the
// model as the envelope loop's tool-result turn.
type Observation struct {
	Success    bool            `json:"success"`
	Tool       string          `json:"tool"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMs float64         `json:"duration_ms"`
}

// BatchObservation is the result of executing several tool calls, keyed
// by the envelope's tool_id.
type BatchObservation struct {
	MultiTool  bool                   `json:"_multi_tool"`
	Count      int                    `json:"count"`
	AllSuccess bool                   `json:"all_success"`
	Results    map[string]Observation `json:"results"`
}

// Dispatcher resolves tool aliases, gates dangerous tools behind
// approval, and executes tools through the shared agent.Executor.
type Dispatcher struct {
	registry *agent.ToolRegistry
	executor *agent.Executor
}

// New builds a Dispatcher over the given registry, reusing the
// registry's default executor configuration (MaxConcurrency 5) for
// batch fan-out.
func New(registry *agent.ToolRegistry) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		executor: agent.NewExecutor(registry, agent.DefaultExecutorConfig()),
	}
}

// Dispatch executes a single tool call and returns its observation.
// Dangerous tools are gated behind arguments.approved unless already
// approved.
func (d *Dispatcher) Dispatch(ctx context.Context, tool string, arguments json.RawMessage) Observation {
	start := time.Now()

	if reason, gated := checkApproval(tool, arguments); gated {
		return Observation{
			Success:    false,
			Tool:       tool,
			Result:     mustMarshal(map[string]interface{}{"approval_required": true, "reason": reason}),
			Error:      reason,
			DurationMs: elapsedMs(start),
		}
	}
	tool = NormalizeTool(tool)

	result, err := d.registry.Execute(ctx, tool, arguments)
	duration := elapsedMs(start)
	if err != nil {
		return Observation{Success: false, Tool: tool, Error: err.Error(), DurationMs: duration}
	}
	if result.IsError {
		return Observation{Success: false, Tool: tool, Result: resultPayload(result), Error: result.Content, DurationMs: duration}
	}
	return Observation{Success: true, Tool: tool, Result: resultPayload(result), DurationMs: duration}
}

// DispatchBatch executes every item in items, in parallel up to the
// executor's MaxConcurrency, and aggregates the observations by tool_id.
func (d *Dispatcher) DispatchBatch(ctx context.Context, items []envelope.ToolItem) BatchObservation {
	results := make(map[string]Observation, len(items))
	allSuccess := true

	// Gated items never reach the executor; run the rest through it.
	toRun := make([]models.ToolCall, 0, len(items))
	for _, item := range items {
		if reason, gated := checkApproval(item.Tool, item.Arguments); gated {
			results[item.ToolID] = Observation{
				Success: false,
				Tool:    item.Tool,
				Result:  mustMarshal(map[string]interface{}{"approval_required": true, "reason": reason}),
				Error:   reason,
			}
			allSuccess = false
			continue
		}
		toRun = append(toRun, models.ToolCall{
			ID:    item.ToolID,
			Name:  NormalizeTool(item.Tool),
			Input: item.Arguments,
		})
	}

	execResults := d.executor.ExecuteAll(ctx, toRun)
	for _, r := range execResults {
		obs := Observation{
			Tool:       r.ToolName,
			DurationMs: float64(r.Duration.Microseconds()) / 1000.0,
		}
		if r.Error != nil {
			obs.Success = false
			obs.Error = r.Error.Error()
			allSuccess = false
		} else if r.Result != nil {
			obs.Success = !r.Result.IsError
			obs.Result = resultPayload(r.Result)
			if r.Result.IsError {
				obs.Error = r.Result.Content
				allSuccess = false
			}
		}
		results[r.ToolCallID] = obs
	}

	return BatchObservation{
		MultiTool:  true,
		Count:      len(results),
		AllSuccess: allSuccess,
		Results:    results,
	}
}

func resultPayload(result *agent.ToolResult) json.RawMessage {
	if result == nil {
		return nil
	}
	if json.Valid([]byte(result.Content)) {
		return json.RawMessage(result.Content)
	}
	return mustMarshal(result.Content)
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return data
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
