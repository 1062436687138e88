package analysis

import "github.com/abhisek/redpen/internal/llm"

// FindingsSchema is requested for the error scan when structured output is
// enabled. Strict structured output needs an object at the top level, so
// the list is wrapped under "errors".
var FindingsSchema = &llm.Schema{
	Name:        "error-scan",
	Description: "Writing errors detected in a student's essay",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"errors": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":        map[string]any{"type": "string", "description": "Error category name"},
						"status":      map[string]any{"type": "string", "enum": []any{"yes", "no"}, "description": "Whether the error occurs in this essay"},
						"location":    map[string]any{"type": "string", "description": "Where the error occurs"},
						"excerpt":     map[string]any{"type": "string", "description": "Text snippet containing the error"},
						"explanation": map[string]any{"type": "string", "description": "Why this is an error in this student's writing"},
						"suggestion":  map[string]any{"type": "string", "description": "Concrete edit suggestion"},
					},
					"required":             []any{"name", "status", "location", "excerpt", "explanation", "suggestion"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"errors"},
		"additionalProperties": false,
	},
}

// VerdictSchema is requested for verification when structured output is
// enabled.
var VerdictSchema = &llm.Schema{
	Name:        "fix-verdict",
	Description: "Whether a revised excerpt fixes the target writing error",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"fixed":   map[string]any{"type": "string", "enum": []any{"yes", "no"}},
			"comment": map[string]any{"type": "string", "description": "One or two sentences for the student"},
		},
		"required":             []any{"fixed", "comment"},
		"additionalProperties": false,
	},
}
