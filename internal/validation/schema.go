// Package validation checks inbound lead payloads against a JSON schema.
package validation

import (
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// SubmissionSchema describes the body of POST /api/submit.
const SubmissionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "brokerage_aum", "advisory_aum", "revenue", "email"],
  "properties": {
    "name":          {"type": "string", "minLength": 1, "maxLength": 200, "pattern": "\\S"},
    "brokerage_aum": {"type": "number", "minimum": 0, "maximum": 1e15},
    "advisory_aum":  {"type": "number", "minimum": 0, "maximum": 1e15},
    "revenue":       {"type": "number", "minimum": 0, "maximum": 1e15},
    "email":         {"type": "string", "maxLength": 320, "pattern": "^[^\\s@]+@[^\\s@]+\\.[^\\s@]+$"}
  }
}`

var submissionSchema = mustSchema(SubmissionSchema)

// FieldError is one schema violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("invalid built-in schema: %v", err))
	}
	return schema
}

// ValidateSubmission validates a raw JSON document. A non-nil error means the
// document could not be parsed; schema violations are returned as FieldErrors.
func ValidateSubmission(body []byte) ([]FieldError, error) {
	return validate(submissionSchema, gojsonschema.NewBytesLoader(body))
}

func validate(schema *gojsonschema.Schema, doc gojsonschema.JSONLoader) ([]FieldError, error) {
	result, err := schema.Validate(doc)
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	errs := make([]FieldError, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		field := e.Field()
		if field == "(root)" {
			if missing, ok := e.Details()["property"].(string); ok {
				field = missing
			}
		}
		errs = append(errs, FieldError{Field: field, Message: e.Description()})
	}
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	return errs, nil
}
