package dispatch

import "encoding/json"

// toolAliases maps common synonyms an LLM might emit to the supported
// builtin tool names.
var toolAliases = map[string]string{
	"pwd":                        "get_cwd",
	"cwd":                        "get_cwd",
	"get_working_directory":      "get_cwd",
	"current_working_directory":  "get_cwd",
	"working_directory":          "get_cwd",
	"bash":                       "exec",
	"shell":                      "exec",
	"run_command":                "exec",
	"execute_command":            "exec",
	"ls":                         "list_files",
	"dir":                        "list_files",
	"cat":                        "read_file",
	"mkdir":                      "create_directory",
	"rm":                         "delete_file",
	"write_file":                 "create_file",
}

// NormalizeTool maps a requested tool name to its canonical builtin
// name, leaving unrecognized names untouched.
func NormalizeTool(tool string) string {
	if canonical, ok := toolAliases[tool]; ok {
		return canonical
	}
	return tool
}

// dangerousTools requires explicit approval before execution unless the
// call already carries arguments.approved == true.
var dangerousTools = map[string]bool{
	"execute_powershell": true,
	"powershell":         true,
	"shell":              true,
	"bash":               true,
	"python":             true,
	"python_eval":        true,
	"delete_item":        true,
	"write_block":        true,
	"change_directory":   true,
	"delete_file":        true,
}

// checkApproval reports whether tool requires human approval, and why,
// unless arguments already marks it approved.
func checkApproval(tool string, arguments json.RawMessage) (reason string, gated bool) {
	if !dangerousTools[tool] {
		return "", false
	}
	if isApproved(arguments) {
		return "", false
	}
	return "High-risk tool '" + tool + "' requires human approval", true
}

func isApproved(arguments json.RawMessage) bool {
	if len(arguments) == 0 {
		return false
	}
	var parsed struct {
		Approved bool `json:"approved"`
	}
	if err := json.Unmarshal(arguments, &parsed); err != nil {
		return false
	}
	return parsed.Approved
}
