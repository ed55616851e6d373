package envelope

import (
	"encoding/json"
	"strconv"
)

// AutoRepair patches an envelope that failed Validate so the loop can keep
// running instead of crashing on the first malformed turn: it fills in
// missing required sub-objects with placeholders, downgrades a tool
// envelope with no tool name to an error, coerces meta.continue to a bool,
// and clamps unrecognized states to error.
func AutoRepair(env *Envelope) *Envelope {
	if env == nil {
		return CreateErrorEnvelope("nil envelope", "internal_error")
	}

	if !canonicalStates[env.State] {
		env.State = StateError
		env.ErrorValue = &ErrorInfo{
			ErrorType:    "invalid_state",
			ErrorMessage: "unrecognized state clamped to error during repair",
		}
		env.Meta.Continue = false
		env.Meta.StopReason = StopError
		return env
	}

	switch env.EffectiveState() {
	case StateTool:
		if env.Tool == "" {
			env.State = StateError
			env.ErrorValue = &ErrorInfo{
				ErrorType:    "missing_tool_name",
				ErrorMessage: "state=tool had no tool name; downgraded to error",
			}
			env.Meta.Continue = false
			env.Meta.StopReason = StopError
			break
		}
		if len(env.Arguments) == 0 {
			env.Arguments = json.RawMessage(`{}`)
		}
	case StateTools:
		// Fill in missing ids by position first, matching this function's
		// longstanding tool_<index> convention.
		for i := range env.Tools {
			if env.Tools[i].ToolID == "" {
				env.Tools[i].ToolID = toolID(i)
			}
			if len(env.Tools[i].Arguments) == 0 {
				env.Tools[i].Arguments = json.RawMessage(`{}`)
			}
		}
		// Then rewrite any id that collides with one already seen, so
		// Validate's duplicate-tool_id check always passes after repair.
		seen := make(map[string]bool, len(env.Tools))
		next := len(env.Tools)
		for i := range env.Tools {
			id := env.Tools[i].ToolID
			if seen[id] {
				for seen[toolID(next)] {
					next++
				}
				id = toolID(next)
				next++
				env.Tools[i].ToolID = id
			}
			seen[id] = true
		}
	case StateReply:
		if env.Conversation == nil {
			env.Conversation = &Conversation{Utterance: ""}
		}
	case StatePlan:
		if env.PlanValue == nil {
			env.PlanValue = &Plan{RootTask: "unspecified"}
		}
	case StateError:
		if env.ErrorValue == nil {
			env.ErrorValue = &ErrorInfo{ErrorType: "unknown", ErrorMessage: "missing error detail"}
		}
	case StateClarify:
		if env.ClarifyValue == nil {
			env.ClarifyValue = &Clarify{Question: "Could you clarify the request?"}
		}
	case StateConfirm:
		if env.ConfirmValue == nil {
			env.ConfirmValue = &Confirm{Action: "unspecified"}
		}
	case StateWait:
		if env.WaitValue == nil {
			env.WaitValue = &Wait{EventType: "unspecified"}
		}
	case StateFinish:
		if env.FinishValue == nil {
			env.FinishValue = &Finish{Summary: ""}
		}
	case StateHandoff:
		if env.HandoffValue == nil {
			env.HandoffValue = &Handoff{ToAgent: "unspecified"}
		}
	case StateReflect:
		if env.ReflectValue == nil {
			env.ReflectValue = &Reflect{Analysis: ""}
		}
	case StateAskHuman:
		if env.ClarifyValue == nil {
			env.ClarifyValue = &Clarify{Question: "Could you clarify the request?"}
		}
	}

	if !env.Meta.Continue && env.Meta.StopReason == "" {
		env.Meta.StopReason = StopError
	}
	if !validStopReasons[env.Meta.StopReason] && env.Meta.StopReason != "" {
		env.Meta.StopReason = StopError
	}

	return env
}

func toolID(i int) string {
	return "tool_" + strconv.Itoa(i)
}

// CreateErrorEnvelope builds a valid, terminal error envelope: the
// fallback every caller synthesizes when nothing else could be salvaged.
func CreateErrorEnvelope(message, kind string) *Envelope {
	return &Envelope{
		State:          StateError,
		BriefRationale: "Failed to parse LLM response",
		ErrorValue: &ErrorInfo{
			ErrorType:    kind,
			ErrorMessage: message,
		},
		Meta: Meta{
			Continue:   false,
			StopReason: StopError,
		},
	}
}
