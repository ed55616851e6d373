package tags

import "testing"

func TestResolveForUser_DefaultsApplyToEveryone(t *testing.T) {
	store := NewStore()
	resolver := NewResolver(store)

	resolved := resolver.ResolveForUser("user123", []string{"agent"}, "acme")
	if len(resolved) != 2 {
		t.Fatalf("len(resolved) = %d, want 2 (company + role defaults)", len(resolved))
	}
}

func TestResolveForUser_RoleScopeExcludesNonMatching(t *testing.T) {
	store := NewStore()
	resolver := NewResolver(store)

	resolved := resolver.ResolveForUser("user123", []string{"guest"}, "")
	for _, tag := range resolved {
		if tag.Name == "role_agent" {
			t.Fatal("role_agent should not apply to a user without the agent role")
		}
	}
}

func TestResolveForUser_OrgScopeExcludesMismatch(t *testing.T) {
	store := NewStore()
	store.Add(&Tag{
		Name: "company_acme_only",
		Kind: KindCompany,
		Payload: Payload{
			Meta:   Meta{Name: "Acme-only"},
			Config: Config{OrgScope: "acme"},
		},
	})
	resolver := NewResolver(store)

	resolved := resolver.ResolveForUser("user1", nil, "globex")
	for _, tag := range resolved {
		if tag.Name == "company_acme_only" {
			t.Fatal("org-scoped tag should not apply to a mismatched org")
		}
	}
}

func TestResolveForUser_SortsByPriorityDescending(t *testing.T) {
	store := NewStore()
	store.Add(&Tag{
		Name:    "flow_checkout",
		Kind:    KindFlow,
		Payload: Payload{Config: Config{Priority: 5, AssignedRoles: []string{"sales_agent"}}},
	})
	store.Add(&Tag{
		Name:    "guardrail_no_pii",
		Kind:    KindGuardrail,
		Payload: Payload{Config: Config{Priority: 10, AssignedUsers: []string{"*"}}},
	})
	resolver := NewResolver(store)

	resolved := resolver.ResolveForUser("user1", []string{"sales_agent"}, "")
	if len(resolved) < 2 {
		t.Fatalf("expected at least 2 applicable tags, got %d", len(resolved))
	}
	if resolved[0].Name != "guardrail_no_pii" {
		t.Errorf("resolved[0] = %q, want highest-priority tag first", resolved[0].Name)
	}
}

func TestBuildSystemPrompt_FixedSectionOrder(t *testing.T) {
	store := &Store{tags: make(map[string]*Tag)}
	store.Add(&Tag{Name: "guardrail_a", Kind: KindGuardrail, Payload: Payload{Content: "no PII"}})
	store.Add(&Tag{Name: "company_a", Kind: KindCompany, Payload: Payload{Content: "Acme Corp"}})
	store.Add(&Tag{Name: "flow_a", Kind: KindFlow, Payload: Payload{Content: "checkout steps"}})
	resolver := NewResolver(store)

	prompt := resolver.BuildSystemPrompt(store.All())

	companyIdx := indexOf(prompt, "Acme Corp")
	flowIdx := indexOf(prompt, "checkout steps")
	guardrailIdx := indexOf(prompt, "no PII")
	if !(companyIdx < flowIdx && flowIdx < guardrailIdx) {
		t.Fatalf("expected company < flow/approach < guardrail ordering, got prompt:\n%s", prompt)
	}
}

func TestBuildSystemPrompt_FlowAndApproachShareOneSection(t *testing.T) {
	store := &Store{tags: make(map[string]*Tag)}
	store.Add(&Tag{Name: "flow_a", Kind: KindFlow, Payload: Payload{Content: "flow content"}})
	store.Add(&Tag{Name: "approach_a", Kind: KindApproach, Payload: Payload{Content: "approach content"}})
	resolver := NewResolver(store)

	prompt := resolver.BuildSystemPrompt(store.All())
	if countOccurrences(prompt, "FLOW/APPROACH CONTEXT") != 1 {
		t.Errorf("expected exactly one flow/approach header, got prompt:\n%s", prompt)
	}
}

func TestBuildSystemPrompt_EmptySectionsOmitted(t *testing.T) {
	store := &Store{tags: make(map[string]*Tag)}
	store.Add(&Tag{Name: "company_a", Kind: KindCompany, Payload: Payload{Content: "Acme"}})
	resolver := NewResolver(store)

	prompt := resolver.BuildSystemPrompt(store.All())
	if countOccurrences(prompt, "GUARDRAILS") != 0 {
		t.Errorf("expected no guardrail section when no guardrail tags resolved, got:\n%s", prompt)
	}
}

func TestAllowedToolsAndFilter(t *testing.T) {
	store := &Store{tags: make(map[string]*Tag)}
	store.Add(&Tag{
		Name:    "flow_checkout",
		Kind:    KindFlow,
		Payload: Payload{Config: Config{AllowedTools: []string{"verify_payment", "create_order"}}},
	})
	resolver := NewResolver(store)
	resolved := store.All()

	allowed := resolver.AllowedTools(resolved)
	if !allowed["verify_payment"] || !allowed["create_order"] {
		t.Fatalf("allowed = %v, want verify_payment and create_order", allowed)
	}

	available := []string{"create_file", "read_file", "verify_payment", "create_order"}
	filtered := resolver.FilterToolsByPermission(available, allowed)
	if len(filtered) != 2 {
		t.Fatalf("filtered = %v, want 2 tools", filtered)
	}
}

func TestFilterToolsByPermission_EmptyAllowedMeansUnrestricted(t *testing.T) {
	resolver := NewResolver(&Store{tags: make(map[string]*Tag)})
	available := []string{"create_file", "read_file"}
	filtered := resolver.FilterToolsByPermission(available, map[string]bool{})
	if len(filtered) != 2 {
		t.Fatalf("filtered = %v, want all tools passed through unrestricted", filtered)
	}
}

func TestValidateToolAccess(t *testing.T) {
	store := &Store{tags: make(map[string]*Tag)}
	store.Add(&Tag{
		Name:    "flow_checkout",
		Kind:    KindFlow,
		Payload: Payload{Config: Config{AllowedTools: []string{"verify_payment"}}},
	})
	resolver := NewResolver(store)
	resolved := store.All()

	if !resolver.ValidateToolAccess("verify_payment", resolved) {
		t.Error("expected verify_payment to be allowed")
	}
	if resolver.ValidateToolAccess("delete_file", resolved) {
		t.Error("expected delete_file to be denied")
	}
}

func TestFlowTagsFor_PrefixMatch(t *testing.T) {
	store := &Store{tags: make(map[string]*Tag)}
	store.Add(&Tag{Name: "flow_checkout", Kind: KindFlow})
	store.Add(&Tag{Name: "flow_checkout_express", Kind: KindFlow})
	store.Add(&Tag{Name: "flow_returns", Kind: KindFlow})
	store.Add(&Tag{Name: "role_agent", Kind: KindRole})
	resolver := NewResolver(store)

	matches := resolver.FlowTagsFor("checkout")
	if len(matches) != 2 {
		t.Fatalf("FlowTagsFor(checkout) = %d matches, want 2", len(matches))
	}
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func countOccurrences(s, substr string) int {
	count := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			count++
			i += len(substr) - 1
		}
	}
	return count
}
