package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/frankfralick/openai-func-enums/pkg/tokens"
)

// Fixed serialization overhead the chat API charges beyond the schema text
// itself: one constant per offered function, one per argument property.
const (
	functionOverheadTokens = 12
	propertyOverheadTokens = 11
)

// builderConfig holds optional settings for New.
type builderConfig struct {
	argTokenCeiling int
}

// Option is a functional option for New.
type Option func(*builderConfig)

// WithArgTokenCeiling caps the counted schema cost of each individual
// argument property at n tokens. Zero (the default) applies no cap.
func WithArgTokenCeiling(n int) Option {
	return func(c *builderConfig) {
		c.argTokenCeiling = n
	}
}

// New builds a FunctionDescriptor from a typed handler. The argument schema
// is reflected from A's struct tags (json names, jsonschema enums and
// descriptions), every declared property is marked required, and the token
// cost is counted from the serialized schema pieces.
//
// The returned descriptor decodes raw argument payloads strictly: unknown
// keys are an error, which is what lets the dispatch layer detect
// wrong-cased keys and re-try with its snake_case rewrite.
func New[A any](name, description string, counter *tokens.Counter, run func(ctx context.Context, args A) (*Result, error), opts ...Option) (*FunctionDescriptor, error) {
	if name == "" {
		return nil, fmt.Errorf("catalog: new descriptor with empty name")
	}
	if counter == nil {
		return nil, fmt.Errorf("catalog: %s: nil token counter", name)
	}
	if run == nil {
		return nil, fmt.Errorf("catalog: %s: nil handler", name)
	}

	cfg := &builderConfig{}
	for _, o := range opts {
		o(cfg)
	}

	params, required, err := reflectSchema[A]()
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: reflect schema: %w", name, err)
	}

	cost := schemaTokenCost(counter, description, params, cfg.argTokenCeiling)

	return &FunctionDescriptor{
		Name:        name,
		Description: description,
		Parameters:  params,
		Required:    required,
		TokenCost:   cost,
		Decode:      decodeStrict[A],
		Run: func(ctx context.Context, args any) (*Result, error) {
			a, ok := args.(A)
			if !ok {
				return nil, fmt.Errorf("catalog: %s: argument type %T, want %T", name, args, a)
			}
			return run(ctx, a)
		},
	}, nil
}

// NewFreeform builds the ask-the-model sentinel descriptor under
// [FreeformName]. It behaves like any other function at dispatch time but is
// excluded from emitted tool schemas and selection cost.
func NewFreeform[A any](description string, counter *tokens.Counter, run func(ctx context.Context, args A) (*Result, error), opts ...Option) (*FunctionDescriptor, error) {
	d, err := New(FreeformName, description, counter, run, opts...)
	if err != nil {
		return nil, err
	}
	d.Freeform = true
	return d, nil
}

// NewDynamic builds a FunctionDescriptor from an already-materialized JSON
// Schema, for functions whose shape is only known at runtime (imported MCP
// tools). The raw argument payload is handed to run unparsed; the serving
// side owns schema validation, so the snake_case retry in the dispatch layer
// never triggers for these descriptors.
func NewDynamic(name, description string, params map[string]any, counter *tokens.Counter, run func(ctx context.Context, raw string) (*Result, error), opts ...Option) (*FunctionDescriptor, error) {
	if name == "" {
		return nil, fmt.Errorf("catalog: new descriptor with empty name")
	}
	if counter == nil {
		return nil, fmt.Errorf("catalog: %s: nil token counter", name)
	}
	if run == nil {
		return nil, fmt.Errorf("catalog: %s: nil handler", name)
	}

	cfg := &builderConfig{}
	for _, o := range opts {
		o(cfg)
	}

	if params == nil {
		params = map[string]any{"type": "object"}
	}

	cost := schemaTokenCost(counter, description, params, cfg.argTokenCeiling)

	return &FunctionDescriptor{
		Name:        name,
		Description: description,
		Parameters:  params,
		Required:    requiredFromSchema(params),
		TokenCost:   cost,
		Decode: func(raw []byte) (any, error) {
			return string(raw), nil
		},
		Run: func(ctx context.Context, args any) (*Result, error) {
			s, ok := args.(string)
			if !ok {
				return nil, fmt.Errorf("catalog: %s: argument type %T, want string", name, args)
			}
			return run(ctx, s)
		},
	}, nil
}

// decodeStrict parses raw into A, rejecting unknown keys. An empty payload
// decodes to A's zero value so argument-less functions accept both "" and
// "{}".
func decodeStrict[A any](raw []byte) (any, error) {
	var a A
	if len(bytes.TrimSpace(raw)) == 0 {
		return a, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return nil, err
	}
	return a, nil
}

// reflectSchema produces the inline JSON Schema for A's argument object and
// the list of required property names.
func reflectSchema[A any]() (map[string]any, []string, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(new(A))

	raw, err := json.Marshal(s)
	if err != nil {
		return nil, nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, err
	}
	// The reflector emits draft metadata the chat API has no use for.
	delete(m, "$schema")
	delete(m, "$id")

	return m, requiredFromSchema(m), nil
}

// requiredFromSchema extracts the required property names from an object
// schema. The list survives both forms the value takes after a JSON
// round-trip ([]any) and when handed over as []string directly.
func requiredFromSchema(m map[string]any) []string {
	switch rawReq := m["required"].(type) {
	case []string:
		return rawReq
	case []any:
		required := make([]string, 0, len(rawReq))
		for _, v := range rawReq {
			if s, ok := v.(string); ok {
				required = append(required, s)
			}
		}
		return required
	}
	return nil
}

// schemaTokenCost counts the cost of offering a function: the description,
// then per argument property its name twice (the name repeats in the
// "required" array), its description, and its enum variants, each property
// optionally capped at argCeiling, plus the fixed structural overheads.
func schemaTokenCost(counter *tokens.Counter, description string, params map[string]any, argCeiling int) int {
	cost := counter.Count(description) + functionOverheadTokens

	props, _ := params["properties"].(map[string]any)
	for key, schema := range props {
		n := counter.Count(key) * 2
		if m, ok := schema.(map[string]any); ok {
			if d, ok := m["description"].(string); ok {
				n += counter.Count(d)
			}
			for _, variant := range enumStrings(m) {
				n += counter.Count(variant)
			}
		}
		if argCeiling > 0 && n > argCeiling {
			n = argCeiling
		}
		cost += n + propertyOverheadTokens
	}
	return cost
}

// enumStrings returns the string variants of a property schema's "enum" list,
// tolerating both the post-JSON []any form and a direct []string.
func enumStrings(schema map[string]any) []string {
	switch raw := schema["enum"].(type) {
	case []string:
		return raw
	case []any:
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
