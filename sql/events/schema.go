package events

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaFile = "event.schema.json"

//go:embed event.schema.json
var schema string

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.CompileString(schemaFile, schema)
})

// ValidateSchema checks that the raw event has the NIP-01 structure.
func ValidateSchema(raw []byte) error {
	sch, err := compileSchema()
	if err != nil {
		return fmt.Errorf("compile event json schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("validate event: %w", err)
	}
	return nil
}
