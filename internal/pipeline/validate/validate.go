// Package validate gates stage output acceptance with per-stage structural
// checks: required keys and array-ness only, never semantic content.
package validate

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Error is a failed structural check. The stage result is rejected and the
// previously committed slot is preserved.
type Error struct {
	Stage  int
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("stage %d output failed validation: %s", e.Stage, e.Reason)
}

// Per-stage shape schemas. Slot shapes are fixed per stage number, so these
// are compiled once at package init.
var stageSchemas = map[int]*jsonschema.Schema{
	1: mustCompile(1, `{
		"type": "object",
		"required": ["q0"],
		"properties": {"q0": {"type": "string", "minLength": 1}}
	}`),
	2: mustCompile(2, `{
		"type": "object",
		"required": ["goals", "bridge_lexicon"],
		"properties": {
			"goals": {"type": "array", "minItems": 1, "items": {"type": "object", "required": ["id"]}},
			"bridge_lexicon": {"type": "object"}
		}
	}`),
	3: mustCompile(3, `{
		"type": "object",
		"minProperties": 1,
		"additionalProperties": {"type": "array"}
	}`),
	4: mustCompile(4, `{
		"type": "object",
		"minProperties": 1,
		"additionalProperties": {
			"type": "object",
			"required": ["domain_mapping", "scientific_pillars"],
			"properties": {
				"domain_mapping": {"type": "array"},
				"scientific_pillars": {"type": "array"}
			}
		}
	}`),
	5: mustCompile(5, `{
		"type": "object",
		"minProperties": 1,
		"additionalProperties": {
			"type": "object",
			"required": ["goal_edges"],
			"properties": {"goal_edges": {"type": "array"}}
		}
	}`),
	6: mustCompile(6, `{
		"type": "array",
		"items": {"type": "object", "required": ["id", "parent_goal_id"]}
	}`),
	7: mustCompile(7, `{
		"type": "array",
		"items": {"type": "object", "required": ["id", "parent_l3_id"]}
	}`),
	8: mustCompile(8, `{
		"type": "array",
		"items": {"type": "object", "required": ["id", "parent_l3_id"]}
	}`),
	9: mustCompile(9, `{
		"type": "array",
		"items": {"type": "object", "required": ["id", "parent_l4_id", "parent_l3_id"]}
	}`),
	10: mustCompile(10, `{
		"type": "array",
		"items": {"type": "object", "required": ["parent_l4_id", "verdict"]}
	}`),
}

func mustCompile(stage int, schema string) *jsonschema.Schema {
	return jsonschema.MustCompileString(fmt.Sprintf("stage%d.json", stage), schema)
}

// Stage checks an aggregated slot value before it is committed. A nil error
// means the output may be accepted into the table.
func Stage(stage int, output any) error {
	sch, ok := stageSchemas[stage]
	if !ok {
		return &Error{Stage: stage, Reason: "unknown stage"}
	}
	// Round-trip through JSON so typed values validate the same way their
	// persisted form would.
	b, err := json.Marshal(output)
	if err != nil {
		return &Error{Stage: stage, Reason: fmt.Sprintf("not encodable: %v", err)}
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return &Error{Stage: stage, Reason: fmt.Sprintf("not decodable: %v", err)}
	}
	if err := sch.Validate(v); err != nil {
		return &Error{Stage: stage, Reason: err.Error()}
	}
	return nil
}
