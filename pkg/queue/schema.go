package queue

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// requestSchema accepts the canonical and the legacy field names. Missing
// fields are left to query validation so they still produce a Result.
var requestSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"id":                   map[string]interface{}{"type": "string"},
		"subject_identifier":   map[string]interface{}{"type": "string"},
		"birth_date":           map[string]interface{}{"type": "string"},
		"document_expiry_date": map[string]interface{}{"type": "string"},
		"cpf":                  map[string]interface{}{"type": "string"},
		"birthday":             map[string]interface{}{"type": "string"},
		"cnh_due_at":           map[string]interface{}{"type": "string"},
	},
}

func compileRequestSchema() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(requestSchema))
}

// checkBody validates a message body against schema.
func checkBody(schema *gojsonschema.Schema, body string) error {
	result, err := schema.Validate(gojsonschema.NewStringLoader(body))
	if err != nil {
		return fmt.Errorf("body is not JSON: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
