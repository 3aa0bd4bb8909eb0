// Package validation checks graph definitions before a run starts: JSON
// Schema shape validation plus structural checks (duplicate node ids,
// dangling edges) that a schema cannot express. All findings are
// configuration errors surfaced to the caller, never process faults.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/skeinflow/skein/pkg/schema"
)

// graphSchemaJSON is the JSON Schema for GraphDefinition validation.
// Embedded as a constant to avoid filesystem dependencies.
const graphSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://skeinflow.dev/schemas/graph.json",
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/node" }
    },
    "edges": {
      "type": "array",
      "items": { "$ref": "#/$defs/edge" }
    },
    "max_rounds": {
      "type": "integer",
      "minimum": 0
    },
    "metadata": {
      "type": "object"
    }
  },
  "additionalProperties": false,
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": {
          "type": "string",
          "minLength": 1
        },
        "type": {
          "type": "string",
          "enum": ["agent", "tool_call"]
        },
        "name": { "type": "string" },
        "agent_id": { "type": "string" },
        "params": { "type": "object" },
        "position": {
          "type": "object",
          "properties": {
            "x": { "type": "number" },
            "y": { "type": "number" }
          },
          "additionalProperties": false
        }
      },
      "additionalProperties": false
    },
    "edge": {
      "type": "object",
      "required": ["source", "target"],
      "properties": {
        "id": { "type": "string" },
        "source": {
          "type": "string",
          "minLength": 1
        },
        "target": {
          "type": "string",
          "minLength": 1
        },
        "condition": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// GraphValidator validates graph definitions. Safe for concurrent use.
type GraphValidator struct {
	graphSchema *jsonschema.Schema
}

// NewGraphValidator creates a GraphValidator with the graph schema
// pre-compiled.
func NewGraphValidator() (*GraphValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(graphSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal graph schema: %w", err)
	}
	if err := c.AddResource("https://skeinflow.dev/schemas/graph.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add graph schema resource: %w", err)
	}

	compiled, err := c.Compile("https://skeinflow.dev/schemas/graph.json")
	if err != nil {
		return nil, fmt.Errorf("compile graph schema: %w", err)
	}

	return &GraphValidator{graphSchema: compiled}, nil
}

// ValidateDefinition validates a GraphDefinition against the JSON Schema and
// then applies the structural invariants: unique node ids, edges referencing
// existing nodes.
func (v *GraphValidator) ValidateDefinition(def *schema.GraphDefinition) error {
	if def == nil {
		return schema.NewError(schema.ErrCodeValidation, "graph definition is nil")
	}

	doc, err := toJSONValue(def)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize graph definition").WithCause(err)
	}
	if err := v.graphSchema.Validate(doc); err != nil {
		return toSkeinError(err)
	}

	return CheckStructure(def)
}

// CheckStructure applies the invariants JSON Schema cannot express.
func CheckStructure(def *schema.GraphDefinition) error {
	seen := make(map[string]struct{}, len(def.Nodes))
	for _, node := range def.Nodes {
		if _, exists := seen[node.ID]; exists {
			return schema.NewErrorf(schema.ErrCodeConfig, "duplicate node id %q", node.ID)
		}
		seen[node.ID] = struct{}{}
	}

	for _, edge := range def.Edges {
		if _, ok := seen[edge.Source]; !ok {
			return schema.NewErrorf(schema.ErrCodeConfig,
				"edge %s references unknown source node %q", edge.ID, edge.Source)
		}
		if _, ok := seen[edge.Target]; !ok {
			return schema.NewErrorf(schema.ErrCodeConfig,
				"edge %s references unknown target node %q", edge.ID, edge.Target)
		}
	}

	return nil
}

// toJSONValue round-trips a Go value through JSON so numbers become
// json.Number, which the jsonschema library requires.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toSkeinError converts a jsonschema.ValidationError into a SkeinError with
// per-location violation messages, readable by both humans and planners.
func toSkeinError(err error) *schema.SkeinError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	return schema.NewErrorf(schema.ErrCodeValidation,
		"validation failed with %d errors", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
