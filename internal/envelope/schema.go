package envelope

import (
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaDocument is the Draft 2020-12 structural schema for the envelope's
// common fields. Per-state required sub-objects are enforced separately in
// Validate, since a single JSON Schema "oneOf" over twelve discriminated
// variants is harder to maintain than a Go type switch and gives worse
// error messages.
const schemaDocument = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["state", "meta"],
  "properties": {
    "state": {
      "type": "string",
      "enum": ["reply", "message", "tool", "tools", "plan", "error", "clarify", "confirm", "reflect", "wait", "handoff", "finish", "ask_human"]
    },
    "brief_rationale": { "type": "string", "maxLength": 220 },
    "meta": {
      "type": "object",
      "required": ["continue"],
      "properties": {
        "continue": { "type": "boolean" },
        "stop_reason": {
          "type": "string",
          "enum": ["user_reply", "task_done", "need_approval", "need_input", "error", "dead_end", "budget_exhausted"]
        },
        "confidence": { "type": ["number", "null"], "minimum": 0, "maximum": 1 }
      }
    }
  }
}`

var (
	schemaOnce   sync.Once
	compiled     *jsonschema.Schema
	compileErr   error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiled, compileErr = jsonschema.CompileString("envelope.json", schemaDocument)
	})
	return compiled, compileErr
}
