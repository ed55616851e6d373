package tags

import (
	"sort"
	"strings"
)

// sectionOrder fixes the system-prompt assembly order. flow and approach
// render under one heading (the spec's literal "flow/approach" section
// name); workflow folds into the same heading since there is no distinct
// fifth section in the system this was adapted from.
var sectionOrder = []struct {
	title string
	kinds []Kind
}{
	{"COMPANY CONTEXT", []Kind{KindCompany}},
	{"FUNCTION CONTEXT", []Kind{KindFunction}},
	{"ROLE CONTEXT", []Kind{KindRole}},
	{"FLOW/APPROACH CONTEXT", []Kind{KindFlow, KindApproach, KindWorkflow}},
	{"TOOLS AVAILABLE", []Kind{KindTool}},
	{"GUARDRAILS", []Kind{KindGuardrail}},
}

// Resolver applies scope rules to a Store's tags: which tags apply to a
// given user/role/org, what system prompt they assemble into, and what
// tools they grant.
type Resolver struct {
	store *Store
}

// NewResolver builds a Resolver over the given Store.
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// ResolveForUser returns every tag applicable to the given user, ordered
// by descending priority. A tag applies when its assigned_users list is
// empty or contains the user (or "*"), its assigned_roles list is empty
// or intersects userRoles, and its org_scope is empty or matches orgID.
func (r *Resolver) ResolveForUser(userID string, userRoles []string, orgID string) []*Tag {
	var applicable []*Tag

	for _, tag := range r.store.All() {
		cfg := tag.Payload.Config

		if len(cfg.AssignedUsers) > 0 && !contains(cfg.AssignedUsers, userID) && !contains(cfg.AssignedUsers, "*") {
			continue
		}
		if len(cfg.AssignedRoles) > 0 && !intersects(cfg.AssignedRoles, userRoles) {
			continue
		}
		if cfg.OrgScope != "" && cfg.OrgScope != orgID {
			continue
		}

		applicable = append(applicable, tag)
	}

	sort.SliceStable(applicable, func(i, j int) bool {
		return applicable[i].Payload.Config.Priority > applicable[j].Payload.Config.Priority
	})

	return applicable
}

// BuildSystemPrompt concatenates the content of resolved tags into the
// fixed section order: company, function, role, flow/approach/workflow,
// tool, guardrail. Empty sections are omitted entirely.
func (r *Resolver) BuildSystemPrompt(resolved []*Tag) string {
	byKind := make(map[Kind][]string)
	for _, tag := range resolved {
		byKind[tag.Kind] = append(byKind[tag.Kind], tag.Payload.Content)
	}

	var parts []string
	for _, section := range sectionOrder {
		var content []string
		for _, k := range section.kinds {
			content = append(content, byKind[k]...)
		}
		if len(content) == 0 {
			continue
		}
		header := "=== " + section.title + " ==="
		if len(parts) > 0 {
			header = "\n" + header
		}
		parts = append(parts, header)
		parts = append(parts, content...)
	}

	return strings.Join(parts, "\n")
}

// AllowedTools returns the union of allowed_tools across the resolved
// tags as a set.
func (r *Resolver) AllowedTools(resolved []*Tag) map[string]bool {
	allowed := make(map[string]bool)
	for _, tag := range resolved {
		for _, tool := range tag.Payload.Config.AllowedTools {
			allowed[tool] = true
		}
	}
	return allowed
}

// FilterToolsByPermission restricts available to the allowed set. An
// empty allowed set means no restriction (every tool passes through) —
// matching the "no allow rule means unrestricted" default tags are
// seeded with.
func (r *Resolver) FilterToolsByPermission(available []string, allowed map[string]bool) []string {
	if len(allowed) == 0 {
		return available
	}
	out := make([]string, 0, len(available))
	for _, tool := range available {
		if allowed[tool] {
			out = append(out, tool)
		}
	}
	return out
}

// ValidateToolAccess reports whether tool is usable given resolved: true
// when the union of allowed_tools is empty (unrestricted) or contains
// tool.
func (r *Resolver) ValidateToolAccess(tool string, resolved []*Tag) bool {
	allowed := r.AllowedTools(resolved)
	return len(allowed) == 0 || allowed[tool]
}

// FlowTagsFor returns flow tags whose name starts with "flow_<intent>",
// supplementing the resolved set with intent-specific workflow guidance.
// Grounded in the original tag manager's get_flow_tags, which this port
// keeps because it enriches resolution without contradicting any spec
// non-goal.
func (r *Resolver) FlowTagsFor(intent string) []*Tag {
	prefix := "flow_" + intent
	var matches []*Tag
	for _, tag := range r.store.All() {
		if tag.Kind == KindFlow && strings.HasPrefix(tag.Name, prefix) {
			matches = append(matches, tag)
		}
	}
	return matches
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
