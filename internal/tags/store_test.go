package tags

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewStore_SeedsDefaults(t *testing.T) {
	store := NewStore()
	if _, ok := store.Get("company_cephiq"); !ok {
		t.Error("expected default company_cephiq tag")
	}
	if _, ok := store.Get("role_agent"); !ok {
		t.Error("expected default role_agent tag")
	}
}

func TestStore_AddGetRemove(t *testing.T) {
	store := &Store{tags: make(map[string]*Tag)}
	store.Add(&Tag{Name: "tool_custom", Kind: KindTool})

	if _, ok := store.Get("tool_custom"); !ok {
		t.Fatal("expected tool_custom to be present after Add")
	}
	if !store.Remove("tool_custom") {
		t.Fatal("expected Remove to report true for an existing tag")
	}
	if store.Remove("tool_custom") {
		t.Error("expected a second Remove to report false")
	}
}

func TestStore_LoadDir_MissingDirIsNotAnError(t *testing.T) {
	store := &Store{tags: make(map[string]*Tag)}
	if err := store.LoadDir(filepath.Join(t.TempDir(), "does-not-exist")); err != nil {
		t.Fatalf("LoadDir on a missing directory should be a no-op, got: %v", err)
	}
}

func TestStore_LoadDir_ParsesYAMLTags(t *testing.T) {
	dir := t.TempDir()
	content := `
tags:
  - tag: flow_checkout
    kind: flow
    payload:
      meta:
        name: Checkout Flow
      config:
        assigned_roles: ["sales_agent"]
        allowed_tools: ["verify_payment", "create_order"]
        priority: 5
      content: |
        Checkout Flow Instructions:
        1. Verify payment details
        2. Create order record
`
	if err := os.WriteFile(filepath.Join(dir, "checkout.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	store := &Store{tags: make(map[string]*Tag)}
	if err := store.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}

	tag, ok := store.Get("flow_checkout")
	if !ok {
		t.Fatal("expected flow_checkout to be loaded")
	}
	if tag.Kind != KindFlow {
		t.Errorf("Kind = %q, want flow", tag.Kind)
	}
	if tag.Payload.Config.Priority != 5 {
		t.Errorf("Priority = %d, want 5", tag.Payload.Config.Priority)
	}
}

func TestStore_LoadDir_RejectsInvalidKind(t *testing.T) {
	dir := t.TempDir()
	content := `
tags:
  - tag: bad_tag
    kind: not_a_real_kind
    payload:
      content: "x"
`
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	store := &Store{tags: make(map[string]*Tag)}
	if err := store.LoadDir(dir); err == nil {
		t.Fatal("expected LoadDir to reject a tag with an invalid kind")
	}
}

func TestStore_All_SortedByName(t *testing.T) {
	store := &Store{tags: make(map[string]*Tag)}
	store.Add(&Tag{Name: "zz_last", Kind: KindTool})
	store.Add(&Tag{Name: "aa_first", Kind: KindTool})

	all := store.All()
	if len(all) != 2 || all[0].Name != "aa_first" || all[1].Name != "zz_last" {
		t.Fatalf("All() = %v, want sorted by name", all)
	}
}
