package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/codeisdemode/cephiq-lite/internal/agent"
)

// This file ports cephiq_lite/tools.py's builtin dispatch table verbatim
// by name and semantics: create_file, read_file, edit_file, delete_file,
// list_files, create_directory, directory_tree, get_cwd. These sit
// alongside the generic read/write/edit tools above as the literal
// envelope-protocol tool names an LLM is prompted to call.

func schemaOf(v map[string]interface{}) json.RawMessage {
	payload, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// CreateFileTool creates a file with the given content, making parent
// directories as needed.
type CreateFileTool struct{ resolver Resolver }

func NewCreateFileTool(cfg Config) *CreateFileTool {
	return &CreateFileTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *CreateFileTool) Name() string        { return "create_file" }
func (t *CreateFileTool) Description() string { return "Create a file with the given content." }
func (t *CreateFileTool) Schema() json.RawMessage {
	return schemaOf(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":    map[string]interface{}{"type": "string"},
			"content": map[string]interface{}{"type": "string"},
		},
		"required": []string{"path"},
	})
}

func (t *CreateFileTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return toolError(err.Error()), nil
	}
	if err := os.WriteFile(resolved, []byte(input.Content), 0o644); err != nil {
		return toolError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"success": true,
		"path":    input.Path,
		"size":    len(input.Content),
		"message": fmt.Sprintf("Created %s (%d bytes)", input.Path, len(input.Content)),
	})
}

// ReadFileTool reads a file's full contents as UTF-8 text.
type ReadFileTool struct{ resolver Resolver }

func NewReadFileTool(cfg Config) *ReadFileTool {
	return &ReadFileTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read a file's contents." }
func (t *ReadFileTool) Schema() json.RawMessage {
	return schemaOf(map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"path": map[string]interface{}{"type": "string"}},
		"required":   []string{"path"},
	})
}

func (t *ReadFileTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return toolError(fmt.Sprintf("File not found: %s", input.Path)), nil
		}
		return toolError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"success": true,
		"path":    input.Path,
		"content": string(data),
		"size":    len(data),
	})
}

// EditFileTool replaces every occurrence of old_string with new_string in
// a file, reporting the replacement count. Matches the original's
// replace-all-plus-count semantics and "String not found" truncated
// error message exactly.
type EditFileTool struct{ resolver Resolver }

func NewEditFileTool(cfg Config) *EditFileTool {
	return &EditFileTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *EditFileTool) Name() string        { return "edit_file" }
func (t *EditFileTool) Description() string { return "Edit a file by replacing all occurrences of a string." }
func (t *EditFileTool) Schema() json.RawMessage {
	return schemaOf(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":       map[string]interface{}{"type": "string"},
			"old_string": map[string]interface{}{"type": "string"},
			"new_string": map[string]interface{}{"type": "string"},
		},
		"required": []string{"path", "old_string", "new_string"},
	})
}

func (t *EditFileTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path      string `json:"path"`
		OldString string `json:"old_string"`
		NewString string `json:"new_string"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return toolError(err.Error()), nil
	}
	content := string(data)
	if !strings.Contains(content, input.OldString) {
		preview := input.OldString
		if len(preview) > 50 {
			preview = preview[:50]
		}
		return toolError(fmt.Sprintf("String not found: %s...", preview)), nil
	}
	replacements := strings.Count(content, input.OldString)
	newContent := strings.ReplaceAll(content, input.OldString, input.NewString)
	if err := os.WriteFile(resolved, []byte(newContent), 0o644); err != nil {
		return toolError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"success":      true,
		"path":         input.Path,
		"replacements": replacements,
		"message":      fmt.Sprintf("Replaced %d occurrence(s)", replacements),
	})
}

// DeleteFileTool deletes a single file. Listed in the dangerous-tool set
// the dispatcher gates behind approval.
type DeleteFileTool struct{ resolver Resolver }

func NewDeleteFileTool(cfg Config) *DeleteFileTool {
	return &DeleteFileTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *DeleteFileTool) Name() string        { return "delete_file" }
func (t *DeleteFileTool) Description() string { return "Delete a file." }
func (t *DeleteFileTool) Schema() json.RawMessage {
	return schemaOf(map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"path": map[string]interface{}{"type": "string"}},
		"required":   []string{"path"},
	})
}

func (t *DeleteFileTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}
	if err := os.Remove(resolved); err != nil {
		if os.IsNotExist(err) {
			return toolError(fmt.Sprintf("File not found: %s", input.Path)), nil
		}
		return toolError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"success": true,
		"path":    input.Path,
		"message": fmt.Sprintf("Deleted %s", input.Path),
	})
}

// ListFilesTool lists the immediate entries of a directory.
type ListFilesTool struct{ resolver Resolver }

func NewListFilesTool(cfg Config) *ListFilesTool {
	return &ListFilesTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *ListFilesTool) Name() string        { return "list_files" }
func (t *ListFilesTool) Description() string { return "List files in a directory." }
func (t *ListFilesTool) Schema() json.RawMessage {
	return schemaOf(map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"path": map[string]interface{}{"type": "string"}},
	})
}

func (t *ListFilesTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path string `json:"path"`
	}
	_ = json.Unmarshal(params, &input)
	if input.Path == "" {
		input.Path = "."
	}
	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return toolError(err.Error()), nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return jsonResult(map[string]interface{}{
		"success": true,
		"path":    input.Path,
		"files":   names,
		"count":   len(names),
	})
}

// CreateDirectoryTool makes a directory, including parents.
type CreateDirectoryTool struct{ resolver Resolver }

func NewCreateDirectoryTool(cfg Config) *CreateDirectoryTool {
	return &CreateDirectoryTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *CreateDirectoryTool) Name() string        { return "create_directory" }
func (t *CreateDirectoryTool) Description() string { return "Create a directory (and its parents)." }
func (t *CreateDirectoryTool) Schema() json.RawMessage {
	return schemaOf(map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"path": map[string]interface{}{"type": "string"}},
		"required":   []string{"path"},
	})
}

func (t *CreateDirectoryTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}
	if err := os.MkdirAll(resolved, 0o755); err != nil {
		return toolError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"success": true,
		"path":    input.Path,
		"message": fmt.Sprintf("Created directory %s", input.Path),
	})
}

// DirectoryTreeTool renders a dirs-first, case-insensitive sorted tree
// with "[D] "/"[F] " prefixes, down to max_depth. This is the original's
// "corrected" _builtin_directory_tree2 — the emoji-prefixed variant it
// superseded is dead code in the original and is not ported here.
type DirectoryTreeTool struct{ resolver Resolver }

func NewDirectoryTreeTool(cfg Config) *DirectoryTreeTool {
	return &DirectoryTreeTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *DirectoryTreeTool) Name() string        { return "directory_tree" }
func (t *DirectoryTreeTool) Description() string { return "Render a directory tree." }
func (t *DirectoryTreeTool) Schema() json.RawMessage {
	return schemaOf(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":      map[string]interface{}{"type": "string"},
			"max_depth": map[string]interface{}{"type": "integer"},
		},
	})
}

func (t *DirectoryTreeTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path     string `json:"path"`
		MaxDepth int    `json:"max_depth"`
	}
	_ = json.Unmarshal(params, &input)
	if input.Path == "" {
		input.Path = "."
	}
	if input.MaxDepth <= 0 {
		input.MaxDepth = 3
	}
	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}

	header := filepath.Base(resolved)
	if header == "" || header == "." {
		header = resolved
	}
	lines := []string{header}
	lines = append(lines, buildDirectoryTree(resolved, 0, input.MaxDepth)...)

	return jsonResult(map[string]interface{}{
		"success": true,
		"path":    input.Path,
		"tree":    strings.Join(lines, "\n"),
	})
}

func buildDirectoryTree(dir string, depth, maxDepth int) []string {
	if depth > maxDepth {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	sort.Slice(entries, func(i, j int) bool {
		ei, ej := entries[i], entries[j]
		if ei.IsDir() != ej.IsDir() {
			return ei.IsDir()
		}
		return strings.ToLower(ei.Name()) < strings.ToLower(ej.Name())
	})

	var lines []string
	indent := strings.Repeat("  ", depth)
	for _, e := range entries {
		prefix := "[F] "
		if e.IsDir() {
			prefix = "[D] "
		}
		lines = append(lines, indent+prefix+e.Name())
		if e.IsDir() {
			lines = append(lines, buildDirectoryTree(filepath.Join(dir, e.Name()), depth+1, maxDepth)...)
		}
	}
	return lines
}

// GetCwdTool reports the resolver's workspace root as the current
// working directory, the aliasing target for pwd/cwd/
// get_working_directory/current_working_directory/working_directory.
type GetCwdTool struct{ resolver Resolver }

func NewGetCwdTool(cfg Config) *GetCwdTool {
	return &GetCwdTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *GetCwdTool) Name() string        { return "get_cwd" }
func (t *GetCwdTool) Description() string { return "Return the current working directory." }
func (t *GetCwdTool) Schema() json.RawMessage {
	return schemaOf(map[string]interface{}{"type": "object", "properties": map[string]interface{}{}})
}

func (t *GetCwdTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	root := t.resolver.Root
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return toolError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{"success": true, "cwd": abs})
}

func jsonResult(v map[string]interface{}) (*agent.ToolResult, error) {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}
