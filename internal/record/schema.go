package record

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// JSONSchema returns the JSON schema of a serialized record tree.
func JSONSchema() string {
	return `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"$ref": "#/definitions/record",
		"definitions": {
			"timestamp": {
				"type": "object",
				"required": ["seconds", "nanos"],
				"properties": {
					"seconds": {"type": "integer"},
					"nanos": {"type": "integer", "minimum": 0, "maximum": 999999999}
				}
			},
			"debug_info": {
				"type": "object",
				"required": ["error_message", "trace"],
				"properties": {
					"error_message": {"type": "string"},
					"trace": {"type": "string"}
				}
			},
			"log_file": {
				"type": "object",
				"required": ["path", "url", "is_text", "log_type", "is_compressed", "size"],
				"properties": {
					"path": {"type": "string"},
					"url": {"type": "string"},
					"is_text": {"type": "boolean"},
					"log_type": {"type": "string"},
					"is_compressed": {"type": "boolean"},
					"size": {"type": "integer"}
				}
			},
			"metric": {
				"type": "object",
				"required": ["measurements"],
				"properties": {
					"measurements": {"type": "object"},
					"directionality": {"type": "string"},
					"type": {"type": "string"}
				}
			},
			"child": {
				"type": "object",
				"required": ["test_record_id", "inline_test_record"],
				"properties": {
					"test_record_id": {"type": "string"},
					"inline_test_record": {"$ref": "#/definitions/record"}
				}
			},
			"record": {
				"type": "object",
				"required": [
					"test_record_id",
					"parent_test_record_id",
					"start_time",
					"children",
					"status",
					"num_expected_children",
					"metrics",
					"artifacts"
				],
				"properties": {
					"test_record_id": {"type": "string"},
					"parent_test_record_id": {"type": "string"},
					"start_time": {"$ref": "#/definitions/timestamp"},
					"end_time": {"$ref": "#/definitions/timestamp"},
					"children": {"type": ["array", "null"], "items": {"$ref": "#/definitions/child"}},
					"status": {"type": "string", "enum": ["UNKNOWN", "PASS", "FAIL", "IGNORED", "ASSUMPTION_FAILURE"]},
					"num_expected_children": {"type": "integer", "minimum": 0},
					"description": {
						"type": "object",
						"required": ["type_url"],
						"properties": {
							"type_url": {"type": "string"},
							"value": {"type": ["string", "null"]}
						}
					},
					"debug_info": {"$ref": "#/definitions/debug_info"},
					"metrics": {"type": ["object", "null"], "additionalProperties": {"$ref": "#/definitions/metric"}},
					"artifacts": {"type": ["object", "null"], "additionalProperties": {"$ref": "#/definitions/log_file"}}
				}
			}
		}
	}`
}

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(JSONSchema()))
})

// ValidateJSON checks a serialized record tree against the record schema.
func ValidateJSON(data []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("failed to compile record schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("failed to validate record: %w", err)
	}

	if !result.Valid() {
		var b strings.Builder
		for _, desc := range result.Errors() {
			fmt.Fprintf(&b, "- %s\n", desc)
		}
		return fmt.Errorf("record schema validation failed:\n%s", b.String())
	}

	return nil
}
