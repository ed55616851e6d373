// Package tags implements the unified permission and prompt-assembly
// system: every rule about what an agent may say, do, or call is carried
// by a Tag, resolved for a user/role/org scope and folded into the system
// prompt and the tool allow-list for that turn.
package tags

// Kind names the eight tag categories. flow/approach/workflow share one
// system-prompt section (see Resolver.BuildSystemPrompt); they remain
// distinct kinds so resolution and tool-access scoping can still filter
// on them independently.
type Kind string

const (
	KindCompany   Kind = "company"
	KindFunction  Kind = "function"
	KindRole      Kind = "role"
	KindFlow      Kind = "flow"
	KindApproach  Kind = "approach"
	KindWorkflow  Kind = "workflow"
	KindTool      Kind = "tool"
	KindGuardrail Kind = "guardrail"
)

var validKinds = map[Kind]bool{
	KindCompany: true, KindFunction: true, KindRole: true, KindFlow: true,
	KindApproach: true, KindWorkflow: true, KindTool: true, KindGuardrail: true,
}

// IsValid reports whether k is one of the eight recognized kinds.
func (k Kind) IsValid() bool {
	return validKinds[k]
}

// Meta carries a tag's descriptive metadata.
type Meta struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string `yaml:"version,omitempty" json:"version,omitempty"`
	CreatedAt   string `yaml:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt   string `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// Config scopes a tag to users, roles, and an org, and lists the tools it
// grants. Priority breaks ties when multiple tags apply: higher wins.
type Config struct {
	AssignedUsers []string `yaml:"assigned_users,omitempty" json:"assigned_users,omitempty"`
	AssignedRoles []string `yaml:"assigned_roles,omitempty" json:"assigned_roles,omitempty"`
	OrgScope      string   `yaml:"org_scope,omitempty" json:"org_scope,omitempty"`
	AllowedTools  []string `yaml:"allowed_tools,omitempty" json:"allowed_tools,omitempty"`
	Priority      int      `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// Payload is a tag's full content: metadata, scope/permission config, and
// the prompt (or workflow definition) text it contributes.
type Payload struct {
	Meta    Meta   `yaml:"meta" json:"meta"`
	Config  Config `yaml:"config" json:"config"`
	Content string `yaml:"content" json:"content"`
}

// Tag is the unified unit of permission, prompt content, and workflow
// definition. Name is the tag's unique key, e.g. "flow_checkout" or
// "tool_verify_payment".
type Tag struct {
	Name    string  `yaml:"tag" json:"tag"`
	Kind    Kind    `yaml:"kind" json:"kind"`
	Payload Payload `yaml:"payload" json:"payload"`
}
