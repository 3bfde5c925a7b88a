package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const draft2020 = "https://json-schema.org/draft/2020-12/schema"

// JSONSchema describes a validated record as a JSON Schema document. Every
// field is present in a validated record, so every field is listed as
// required; optional fields are nullable.
func (s *Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.fields))
	var conditions []any

	for _, f := range s.fields {
		nullable := !f.Required.IsAlways()
		prop := map[string]any{}
		if f.Description != "" {
			prop["description"] = f.Description
		}
		if f.HasDefault() {
			prop["default"] = defaultValue(f)
		}

		switch f.Kind {
		case KindEnum:
			vals := f.AllowedValues()
			if nullable {
				vals = append(vals, nil)
			}
			prop["enum"] = vals
		default:
			if nullable {
				prop["type"] = []string{string(f.Kind), "null"}
			} else {
				prop["type"] = string(f.Kind)
			}
		}
		props[f.Name] = prop

		if p, ok := f.Required.Predicate(); ok {
			cond := p.JSONSchema()
			if cond == nil {
				continue
			}
			conditions = append(conditions, map[string]any{
				"if": cond,
				"then": map[string]any{
					"properties": map[string]any{f.Name: map[string]any{"not": map[string]any{"type": "null"}}},
				},
				"else": map[string]any{
					"properties": map[string]any{f.Name: map[string]any{"type": "null"}},
				},
			})
		}
	}

	doc := map[string]any{
		"$schema":              draft2020,
		"type":                 "object",
		"properties":           props,
		"required":             s.Names(),
		"additionalProperties": false,
	}
	if len(conditions) > 0 {
		doc["allOf"] = conditions
	}
	return doc
}

// Conformance checks records against the compiled JSON Schema of a Schema.
type Conformance struct {
	compiled *jsonschema.Schema
}

// Compile compiles the JSON Schema of s under the given resource name.
func (s *Schema) Compile(name string) (*Conformance, error) {
	b, err := json.Marshal(s.JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Conformance{compiled: compiled}, nil
}

// Check validates record and reports the deepest failure as a *FieldError.
func (c *Conformance) Check(record map[string]any) error {
	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	err = c.compiled.Validate(v)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	for len(verr.Causes) > 0 {
		verr = verr.Causes[0]
	}
	field := strings.TrimPrefix(verr.InstanceLocation, "/")
	if i := strings.Index(field, "/"); i >= 0 {
		field = field[:i]
	}
	return &FieldError{Field: field, Reason: verr.Message}
}
