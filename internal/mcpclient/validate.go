package mcpclient

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/lumenai/conduit/internal/errkind"
)

// ValidateArguments checks argsJSON against a tool's JSON-Schema
// inputSchema, returning a Validation-kind error on mismatch. An empty or
// absent schema is treated as permissive (no constraint to enforce).
func ValidateArguments(schema json.RawMessage, argsJSON json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("inputSchema.json", bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("%w: invalid tool inputSchema: %s", errkind.ErrValidation, err)
	}
	sch, err := compiler.Compile("inputSchema.json")
	if err != nil {
		return fmt.Errorf("%w: compiling tool inputSchema: %s", errkind.ErrValidation, err)
	}

	var args any
	if len(argsJSON) == 0 {
		args = map[string]any{}
	} else if err := json.Unmarshal(argsJSON, &args); err != nil {
		return fmt.Errorf("%w: tool arguments are not valid JSON: %s", errkind.ErrValidation, err)
	}

	if err := sch.Validate(args); err != nil {
		return fmt.Errorf("%w: tool arguments do not match inputSchema: %s", errkind.ErrValidation, err)
	}
	return nil
}
