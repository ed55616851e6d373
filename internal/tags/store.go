package tags

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store holds the full set of known tags and loads them from a directory
// of YAML files in addition to the two built-in defaults every deployment
// gets for free (a company tag and a base agent role tag).
type Store struct {
	mu   sync.RWMutex
	tags map[string]*Tag
}

// NewStore creates a Store seeded with the default company/role tags.
func NewStore() *Store {
	s := &Store{tags: make(map[string]*Tag)}
	s.loadDefaults()
	return s
}

func (s *Store) loadDefaults() {
	s.Add(&Tag{
		Name: "company_cephiq",
		Kind: KindCompany,
		Payload: Payload{
			Meta: Meta{Name: "Cephiq", Description: "Cephiq Lite AI agent runtime"},
			Config: Config{
				AssignedUsers: []string{"*"},
			},
			Content: strings.TrimSpace(`
You are Cephiq Lite, a modular AI agent runtime built on the envelope
protocol.

Core principles:
- Make structured decisions using the envelope protocol
- Execute tools efficiently via MCP
- Follow permission and scope rules
- Be helpful, accurate, and reliable
`),
		},
	})

	s.Add(&Tag{
		Name: "role_agent",
		Kind: KindRole,
		Payload: Payload{
			Meta: Meta{Name: "AI Agent", Description: "Autonomous AI agent role"},
			Config: Config{
				AssignedRoles: []string{"agent"},
			},
			Content: strings.TrimSpace(`
You are an autonomous AI agent that can:
- Make decisions using envelope protocol states
- Execute tools to accomplish tasks
- Plan multi-step workflows
- Ask for clarification when needed
- Report progress and results

Always use the envelope protocol for structured decision making.
`),
		},
	})
}

// Add inserts or replaces a tag by name.
func (s *Store) Add(tag *Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[tag.Name] = tag
}

// Remove deletes a tag by name, reporting whether it existed.
func (s *Store) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tags[name]; !ok {
		return false
	}
	delete(s.tags, name)
	return true
}

// Get looks up a single tag by name.
func (s *Store) Get(name string) (*Tag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tags[name]
	return t, ok
}

// All returns every loaded tag, sorted by name for deterministic output.
func (s *Store) All() []*Tag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Tag, 0, len(s.tags))
	for _, t := range s.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LoadDir reads every *.yaml/*.yml file in dir and adds (or replaces) the
// tags it defines. A directory that does not exist is not an error: tag
// stores work fine on defaults alone.
func (s *Store) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("tags: read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := s.loadFile(path); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("tags: read %s: %w", path, err)
	}

	var doc struct {
		Tags []*Tag `yaml:"tags"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("tags: parse %s: %w", path, err)
	}

	for _, t := range doc.Tags {
		if t.Name == "" {
			return fmt.Errorf("tags: %s: tag missing 'tag' name", path)
		}
		if !t.Kind.IsValid() {
			return fmt.Errorf("tags: %s: tag %q has invalid kind %q", path, t.Name, t.Kind)
		}
		s.Add(t)
	}
	return nil
}
