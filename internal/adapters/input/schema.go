package input

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/event.json
var eventSchema []byte

const eventSchemaURL = "event.json"

// SchemaValidator checks JSON records against the event schema before they
// are decoded.
type SchemaValidator struct {
	mu     sync.RWMutex
	schema *jsonschema.Schema
}

// NewSchemaValidator compiles the embedded event schema.
func NewSchemaValidator() (*SchemaValidator, error) {
	schema, err := compileSchema(eventSchema)
	if err != nil {
		return nil, err
	}
	return &SchemaValidator{schema: schema}, nil
}

func compileSchema(data []byte) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(eventSchemaURL, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile(eventSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return schema, nil
}

// Validate decodes line and validates the resulting document.
func (v *SchemaValidator) Validate(line string) error {
	var doc interface{}
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}

	v.mu.RLock()
	schema := v.schema
	v.mu.RUnlock()

	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// Replace swaps in a schema compiled from data, keeping the current one if
// compilation fails.
func (v *SchemaValidator) Replace(data []byte) error {
	schema, err := compileSchema(data)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.schema = schema
	v.mu.Unlock()
	return nil
}
