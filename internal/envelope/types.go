// Package envelope implements the agent decision protocol: a discriminated
// JSON union keyed by "state" that every LLM turn must produce. The codec
// parses lenient model output, normalizes it, validates it against the
// per-state contract, and auto-repairs what it can before giving up.
package envelope

import "encoding/json"

// State names the envelope's discriminated variant.
type State string

const (
	StateReply    State = "reply"
	StateMessage  State = "message" // alias of reply
	StateTool     State = "tool"
	StateTools    State = "tools"
	StatePlan     State = "plan"
	StateError    State = "error"
	StateClarify  State = "clarify"
	StateConfirm  State = "confirm"
	StateReflect  State = "reflect"
	StateWait     State = "wait"
	StateHandoff  State = "handoff"
	StateFinish   State = "finish"
	StateAskHuman State = "ask_human"
)

// terminalStates always end the decision loop, regardless of meta.continue.
var terminalStates = map[State]bool{
	StateReply:    true,
	StateMessage:  true,
	StateError:    true,
	StateClarify:  true,
	StateConfirm:  true,
	StateWait:     true,
	StateHandoff:  true,
	StateFinish:   true,
	StateAskHuman: true,
}

// IsTerminal reports whether the state always ends the loop, per this
// implementation's resolution of the "continue=true with a terminal state"
// open question: any terminal state wins over meta.continue.
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// canonicalStates is the full set of states accepted by validation.
var canonicalStates = map[State]bool{
	StateReply: true, StateMessage: true, StateTool: true, StateTools: true,
	StatePlan: true, StateError: true, StateClarify: true, StateConfirm: true,
	StateReflect: true, StateWait: true, StateHandoff: true, StateFinish: true,
	StateAskHuman: true,
}

// StopReason enumerates meta.stop_reason values.
type StopReason string

const (
	StopUserReply        StopReason = "user_reply"
	StopTaskDone         StopReason = "task_done"
	StopNeedApproval     StopReason = "need_approval"
	StopNeedInput        StopReason = "need_input"
	StopError            StopReason = "error"
	StopDeadEnd          StopReason = "dead_end"
	StopBudgetExhausted  StopReason = "budget_exhausted"
)

var validStopReasons = map[StopReason]bool{
	StopUserReply: true, StopTaskDone: true, StopNeedApproval: true,
	StopNeedInput: true, StopError: true, StopDeadEnd: true, StopBudgetExhausted: true,
}

// Meta carries flow control for an envelope.
type Meta struct {
	Continue   bool        `json:"continue"`
	StopReason StopReason  `json:"stop_reason,omitempty"`
	Confidence *float64    `json:"confidence,omitempty"`
	GoalUpdate *GoalUpdate `json:"goal_update,omitempty"`
	TodoUpdate *TodoUpdate `json:"todo_update,omitempty"`
}

// GoalUpdate mutates the active session goal.
type GoalUpdate struct {
	NewGoal string `json:"new_goal"`
	Reason  string `json:"reason,omitempty"`
}

// TodoAction enumerates TodoUpdate.Action values.
type TodoAction string

const (
	TodoAdd      TodoAction = "add"
	TodoUpdateOp TodoAction = "update"
	TodoComplete TodoAction = "complete"
	TodoRemove   TodoAction = "remove"
)

// Todo is a single tracked work item.
type Todo struct {
	ID           string   `json:"id"`
	Content      string   `json:"content"`
	Status       string   `json:"status,omitempty"`
	Priority     string   `json:"priority,omitempty"`
	RelatedFiles []string `json:"related_files,omitempty"`
	Notes        string   `json:"notes,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	CreatedAt    string   `json:"created_at,omitempty"`
	UpdatedAt    string   `json:"updated_at,omitempty"`
}

// TodoUpdate describes a single mutation to the session todo list.
type TodoUpdate struct {
	Action TodoAction `json:"action"`
	Todo   Todo       `json:"todo"`
	Reason string     `json:"reason,omitempty"`
}

// ToolItem is one element of a state=tools fan-out.
type ToolItem struct {
	ToolID    string          `json:"tool_id"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
}

// Conversation is the payload for state=reply/message.
type Conversation struct {
	Utterance   string `json:"utterance"`
	DialogueAct string `json:"dialogue_act,omitempty"`
	Target      string `json:"target,omitempty"`
}

// PlanStep is one step of a Plan.
type PlanStep struct {
	Description string `json:"description"`
	Status      string `json:"status,omitempty"`
}

// Plan is the payload for state=plan.
type Plan struct {
	RootTask      string     `json:"root_task"`
	Steps         []PlanStep `json:"steps"`
	ExecutionMode string     `json:"execution_mode,omitempty"`
	Confidence    *float64   `json:"confidence,omitempty"`
	Revision      int        `json:"revision,omitempty"`
}

// Clarify is the payload for state=clarify.
type Clarify struct {
	Question string `json:"question"`
}

// Confirm is the payload for state=confirm.
type Confirm struct {
	Action string `json:"action"`
}

// Wait is the payload for state=wait.
type Wait struct {
	EventType string `json:"event_type"`
	Timeout   int    `json:"timeout,omitempty"`
}

// ErrorInfo is the payload for state=error.
type ErrorInfo struct {
	ErrorType      string `json:"error_type"`
	ErrorMessage   string `json:"error_message"`
	SuggestedRepair string `json:"suggested_repair,omitempty"`
}

// Finish is the payload for state=finish.
type Finish struct {
	Summary   string   `json:"summary"`
	Artifacts []string `json:"artifacts,omitempty"`
}

// Handoff is the payload for state=handoff.
type Handoff struct {
	ToAgent string          `json:"to_agent"`
	Message string          `json:"message"`
	Context json.RawMessage `json:"context,omitempty"`
}

// Reflect is the payload for state=reflect.
type Reflect struct {
	Analysis   string `json:"analysis"`
	NextAction string `json:"next_action,omitempty"`
}

// Envelope is the full discriminated union. Exactly one of the per-state
// fields is populated, selected by State.
type Envelope struct {
	State          State           `json:"state"`
	BriefRationale string          `json:"brief_rationale,omitempty"`
	Meta           Meta            `json:"meta"`
	EnvelopeID     string          `json:"envelope_id,omitempty"`
	Timestamp      string          `json:"timestamp,omitempty"`

	Tool      string          `json:"tool,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Tools     []ToolItem      `json:"tools,omitempty"`
	Conversation *Conversation   `json:"conversation,omitempty"`
	PlanValue    *Plan           `json:"plan,omitempty"`
	ClarifyValue *Clarify        `json:"clarify,omitempty"`
	ConfirmValue *Confirm        `json:"confirm,omitempty"`
	WaitValue    *Wait           `json:"wait,omitempty"`
	ErrorValue   *ErrorInfo      `json:"error,omitempty"`
	FinishValue  *Finish         `json:"finish,omitempty"`
	HandoffValue *Handoff        `json:"handoff,omitempty"`
	ReflectValue *Reflect        `json:"reflect,omitempty"`
}

// EffectiveState maps the "message" alias onto "reply" so callers only ever
// need to switch on one canonical spelling.
func (e *Envelope) EffectiveState() State {
	if e.State == StateMessage {
		return StateReply
	}
	return e.State
}

// IsTerminal reports whether this envelope ends the decision loop: any
// terminal state does, and so does meta.continue=false.
func (e *Envelope) IsTerminal() bool {
	return e.EffectiveState().IsTerminal() || !e.Meta.Continue
}
