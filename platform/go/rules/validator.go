package rules

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON []byte

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("memory://rules/schema.json", bytes.NewReader(schemaJSON)); err != nil {
			compileErr = fmt.Errorf("register rules schema: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile("memory://rules/schema.json")
	})
	return compiled, compileErr
}

// Validate checks a raw rules payload structurally against the embedded JSON
// Schema, then semantically via Parse. Returns the parsed Rules on success.
// Config writes must pass through here; the ingestion path assumes stored
// payloads are well-formed.
func Validate(raw json.RawMessage) (Rules, error) {
	if len(raw) == 0 {
		return Rules{}, fmt.Errorf("rules payload is required")
	}

	schema, err := compiledSchema()
	if err != nil {
		return Rules{}, err
	}

	var document any
	if err := json.Unmarshal(raw, &document); err != nil {
		return Rules{}, fmt.Errorf("decode rules payload: %w", err)
	}
	if err := schema.Validate(document); err != nil {
		return Rules{}, fmt.Errorf("rules schema validation: %w", err)
	}

	return Parse(raw)
}
