package web

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// workflowSchema is the JSON Schema applied to raw workflow documents
// before binding. It catches shape errors (wrong types, unknown node
// kinds) early; structural graph checks run separately.
const workflowSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"name": {"type": "string", "minLength": 3},
		"description": {"type": "string"},
		"owner": {"type": "string"},
		"nodes": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "kind"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"kind": {
						"type": "string",
						"enum": ["trigger", "condition", "action", "delay", "loop", "end"]
					},
					"subtype": {"type": "string"},
					"name": {"type": "string"},
					"config": {"type": "object"}
				}
			}
		},
		"edges": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "source_node_id", "target_node_id"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"source_node_id": {"type": "string", "minLength": 1},
					"target_node_id": {"type": "string", "minLength": 1},
					"branch_label": {"type": "string"}
				}
			}
		}
	}
}`

var compiledWorkflowSchema = gojsonschema.NewStringLoader(workflowSchema)

// validateWorkflowDocument checks a raw request body against the
// workflow JSON schema and returns a joined description of every
// violation.
func validateWorkflowDocument(body []byte) error {
	result, err := gojsonschema.Validate(compiledWorkflowSchema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("invalid JSON document: %w", err)
	}

	if result.Valid() {
		return nil
	}

	messages := make([]string, 0, len(result.Errors()))
	for _, violation := range result.Errors() {
		messages = append(messages, violation.String())
	}

	return fmt.Errorf("workflow document invalid: %s", strings.Join(messages, "; "))
}
