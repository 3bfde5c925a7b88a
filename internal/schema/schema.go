package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Schema is an ordered, immutable set of fields.
type Schema struct {
	fields []Field
	index  map[string]int
}

// Build creates a schema, checking that names are unique, kinds and defaults
// are consistent, and conditional requirements only read earlier fields.
func Build(fields ...Field) (*Schema, error) {
	s := &Schema{
		fields: make([]Field, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	copy(s.fields, fields)

	for i, f := range s.fields {
		if err := f.check(); err != nil {
			return nil, err
		}
		if _, exists := s.index[f.Name]; exists {
			return nil, fmt.Errorf("field %q declared twice", f.Name)
		}
		if p, ok := f.Required.Predicate(); ok {
			if p == nil {
				return nil, fmt.Errorf("field %q: conditional requirement has no predicate", f.Name)
			}
			for _, dep := range p.Fields() {
				j, exists := s.index[dep]
				if !exists || j >= i {
					return nil, fmt.Errorf("field %q: condition reads %q, which is not declared before it", f.Name, dep)
				}
			}
		}
		s.index[f.Name] = i
	}
	return s, nil
}

// New is like Build but panics on an invalid definition. Schemas are
// declared at startup, so a bad one is a programming error.
func New(fields ...Field) *Schema {
	s, err := Build(fields...)
	if err != nil {
		panic(fmt.Sprintf("schema: %v", err))
	}
	return s
}

// Fields returns the fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Names returns field names in declaration order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.fields) }

// coerce converts a decoded JSON value to the canonical Go value for f:
// string, int, float64, bool, or the matching enum option value.
func coerce(f Field, v any) (any, bool) {
	switch f.Kind {
	case KindString:
		s, ok := v.(string)
		return s, ok
	case KindBoolean:
		b, ok := v.(bool)
		return b, ok
	case KindNumber:
		if _, isBool := v.(bool); isBool {
			return nil, false
		}
		return toNumber(v)
	case KindInteger:
		n, ok := toNumber(v)
		if !ok || n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return nil, false
		}
		return int(n), true
	case KindEnum:
		n, numeric := numericString(v)
		for _, o := range f.Options {
			if equalScalar(o.Value, v) || (numeric && equalScalar(o.Value, n)) {
				return o.Value, true
			}
		}
		return nil, false
	}
	return nil, false
}

// toNumber accepts JSON numbers and strings holding a finite number, which
// models often emit for numeric fields.
func toNumber(v any) (float64, bool) {
	if n, ok := numericString(v); ok {
		return n, true
	}
	n, ok := toFloat(v)
	if !ok || math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, false
	}
	return n, true
}

func numericString(v any) (float64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, false
	}
	return n, true
}

// blank reports whether v is an empty string given for a non-string field.
// Such values count as absent.
func blank(f Field, v any) bool {
	if f.Kind == KindString {
		return false
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func equalScalar(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return false
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int32, int64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
