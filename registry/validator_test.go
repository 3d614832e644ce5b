package registry_test

import (
	"encoding/json"
	"testing"

	"github.com/xraph/cascade/registry"
)

var messageSchema = json.RawMessage(`{
	"type": "object",
	"properties": {"message": {"type": "string"}},
	"required": ["message"]
}`)

func TestValidateNilSchemaSkips(t *testing.T) {
	v := registry.NewValidator()
	if err := v.Validate(nil, map[string]any{"anything": true}); err != nil {
		t.Fatal(err)
	}
	if err := v.Validate(json.RawMessage(nil), map[string]any{"anything": true}); err != nil {
		t.Fatal(err)
	}
}

func TestValidateAcceptsMatchingPayload(t *testing.T) {
	v := registry.NewValidator()
	err := v.Validate(messageSchema, map[string]any{"message": "hi"})
	if err != nil {
		t.Fatal(err)
	}
}

func TestValidateRejectsMissingRequired(t *testing.T) {
	v := registry.NewValidator()
	err := v.Validate(messageSchema, map[string]any{"other": "hi"})
	if err == nil {
		t.Fatal("expected validation error for missing required field")
	}
}

func TestValidateRejectsWrongType(t *testing.T) {
	v := registry.NewValidator()
	err := v.Validate(messageSchema, map[string]any{"message": float64(42)})
	if err == nil {
		t.Fatal("expected validation error for non-string message")
	}
}

func TestValidateMalformedSchema(t *testing.T) {
	v := registry.NewValidator()
	err := v.Validate(json.RawMessage(`{"type": "no-such-type"}`), map[string]any{})
	if err == nil {
		t.Fatal("expected compilation error for malformed schema")
	}
}

func TestValidateReusesCompiledSchema(t *testing.T) {
	v := registry.NewValidator()
	// Same schema content validated twice exercises the cache path.
	for range 2 {
		if err := v.Validate(messageSchema, map[string]any{"message": "hi"}); err != nil {
			t.Fatal(err)
		}
	}
}
