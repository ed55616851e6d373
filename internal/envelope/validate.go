package envelope

import (
	"encoding/json"
	"fmt"
)

// ValidationError collects every problem found while validating an
// envelope. Validate returns (false, errors) rather than failing fast so
// callers can report (or auto-repair against) the complete set.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "envelope: invalid"
	}
	return fmt.Sprintf("envelope: invalid (%d errors): %s", len(e.Errors), e.Errors[0])
}

// ValidateRaw runs the JSON-Schema structural check against raw envelope
// bytes, catching shape errors (wrong types, unknown state, missing meta)
// before the envelope is even decoded into a Go struct.
func ValidateRaw(raw json.RawMessage) (bool, []string) {
	schema, err := compiledSchema()
	if err != nil {
		return false, []string{"envelope: schema compile error: " + err.Error()}
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false, []string{"envelope: not valid JSON: " + err.Error()}
	}
	if err := schema.Validate(doc); err != nil {
		return false, []string{err.Error()}
	}
	return true, nil
}

// Validate checks an envelope against the per-state contract in addition to
// the common schema: required sub-objects per state, tool_id uniqueness,
// brief_rationale length, and confidence range.
func Validate(env *Envelope) (bool, []string) {
	var errs []string
	if env == nil {
		return false, []string{"envelope: nil"}
	}

	if !canonicalStates[env.State] {
		errs = append(errs, fmt.Sprintf("invalid state: %s", env.State))
	}

	if len(env.BriefRationale) > 220 {
		errs = append(errs, "brief_rationale must be <= 220 characters")
	}

	if !env.Meta.Continue {
		if env.Meta.StopReason == "" {
			errs = append(errs, "meta.stop_reason required when continue=false")
		} else if !validStopReasons[env.Meta.StopReason] {
			errs = append(errs, fmt.Sprintf("invalid stop_reason: %s", env.Meta.StopReason))
		}
	}

	if env.Meta.Confidence != nil {
		c := *env.Meta.Confidence
		if c < 0 || c > 1 {
			errs = append(errs, "meta.confidence must be between 0 and 1")
		}
	}

	switch env.EffectiveState() {
	case StateTool:
		if env.Tool == "" {
			errs = append(errs, "state=tool requires 'tool' field")
		}
		if len(env.Arguments) == 0 {
			errs = append(errs, "state=tool requires 'arguments' field")
		}
	case StateTools:
		if len(env.Tools) == 0 {
			errs = append(errs, "state=tools requires non-empty 'tools' field")
		}
		seen := make(map[string]bool, len(env.Tools))
		for idx, item := range env.Tools {
			if item.Tool == "" {
				errs = append(errs, fmt.Sprintf("tools[%d] missing 'tool' field", idx))
			}
			if item.ToolID == "" {
				errs = append(errs, fmt.Sprintf("tools[%d] missing 'tool_id' field", idx))
			} else if seen[item.ToolID] {
				errs = append(errs, fmt.Sprintf("tools[%d] duplicate tool_id %q", idx, item.ToolID))
			}
			seen[item.ToolID] = true
		}
	case StateReply:
		if env.Conversation == nil || env.Conversation.Utterance == "" {
			errs = append(errs, "state=reply requires conversation.utterance")
		}
	case StatePlan:
		if env.PlanValue == nil || env.PlanValue.RootTask == "" {
			errs = append(errs, "state=plan requires plan.root_task")
		}
	case StateError:
		if env.ErrorValue == nil || env.ErrorValue.ErrorMessage == "" {
			errs = append(errs, "state=error requires error.error_message")
		}
	case StateClarify:
		if env.ClarifyValue == nil || env.ClarifyValue.Question == "" {
			errs = append(errs, "state=clarify requires clarify.question")
		}
	case StateConfirm:
		if env.ConfirmValue == nil || env.ConfirmValue.Action == "" {
			errs = append(errs, "state=confirm requires confirm.action")
		}
	case StateWait:
		if env.WaitValue == nil || env.WaitValue.EventType == "" {
			errs = append(errs, "state=wait requires wait.event_type")
		}
	case StateFinish:
		if env.FinishValue == nil || env.FinishValue.Summary == "" {
			errs = append(errs, "state=finish requires finish.summary")
		}
	case StateHandoff:
		if env.HandoffValue == nil || env.HandoffValue.ToAgent == "" {
			errs = append(errs, "state=handoff requires handoff.to_agent")
		}
	case StateReflect:
		if env.ReflectValue == nil || env.ReflectValue.Analysis == "" {
			errs = append(errs, "state=reflect requires reflect.analysis")
		}
	case StateAskHuman:
		if env.ClarifyValue == nil || env.ClarifyValue.Question == "" {
			errs = append(errs, "state=ask_human requires clarify.question")
		}
	}

	return len(errs) == 0, errs
}
