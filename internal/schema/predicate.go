package schema

import (
	"fmt"
	"strings"
)

// Predicate is a condition over already-resolved field values. Holds never
// panics; a missing or null input makes it false.
type Predicate interface {
	// Fields lists the fields the predicate reads.
	Fields() []string
	// Holds evaluates the predicate.
	Holds(values map[string]any) bool
	// String renders the condition for prompts.
	String() string
	// JSONSchema returns the equivalent "if" subschema, or nil.
	JSONSchema() map[string]any
}

// Equals holds when field resolves to value.
func Equals(field string, value any) Predicate {
	return equalsPredicate{field: field, value: value}
}

type equalsPredicate struct {
	field string
	value any
}

func (p equalsPredicate) Fields() []string { return []string{p.field} }

func (p equalsPredicate) Holds(values map[string]any) bool {
	v, ok := values[p.field]
	return ok && v != nil && equalScalar(v, p.value)
}

func (p equalsPredicate) String() string {
	return fmt.Sprintf("%s == %s", p.field, formatScalar(p.value))
}

func (p equalsPredicate) JSONSchema() map[string]any {
	return map[string]any{
		"properties": map[string]any{p.field: map[string]any{"const": p.value}},
		"required":   []string{p.field},
	}
}

// OneOf holds when field resolves to any of values.
func OneOf(field string, values ...any) Predicate {
	return oneOfPredicate{field: field, values: values}
}

type oneOfPredicate struct {
	field  string
	values []any
}

func (p oneOfPredicate) Fields() []string { return []string{p.field} }

func (p oneOfPredicate) Holds(values map[string]any) bool {
	v, ok := values[p.field]
	if !ok || v == nil {
		return false
	}
	for _, want := range p.values {
		if equalScalar(v, want) {
			return true
		}
	}
	return false
}

func (p oneOfPredicate) String() string {
	parts := make([]string, len(p.values))
	for i, v := range p.values {
		parts[i] = formatScalar(v)
	}
	return fmt.Sprintf("%s in {%s}", p.field, strings.Join(parts, ", "))
}

func (p oneOfPredicate) JSONSchema() map[string]any {
	return map[string]any{
		"properties": map[string]any{p.field: map[string]any{"enum": p.values}},
		"required":   []string{p.field},
	}
}

// GreaterThan holds when field resolves to a number strictly above n.
func GreaterThan(field string, n float64) Predicate {
	return greaterThanPredicate{field: field, n: n}
}

type greaterThanPredicate struct {
	field string
	n     float64
}

func (p greaterThanPredicate) Fields() []string { return []string{p.field} }

func (p greaterThanPredicate) Holds(values map[string]any) bool {
	f, ok := toFloat(values[p.field])
	return ok && f > p.n
}

func (p greaterThanPredicate) String() string {
	return fmt.Sprintf("%s > %s", p.field, formatScalar(p.n))
}

func (p greaterThanPredicate) JSONSchema() map[string]any {
	return map[string]any{
		"properties": map[string]any{p.field: map[string]any{"type": "number", "exclusiveMinimum": p.n}},
		"required":   []string{p.field},
	}
}

// Func wraps an arbitrary condition. A panic inside fn counts as false.
func Func(description string, fields []string, fn func(values map[string]any) bool) Predicate {
	return funcPredicate{description: description, fields: fields, fn: fn}
}

type funcPredicate struct {
	description string
	fields      []string
	fn          func(map[string]any) bool
}

func (p funcPredicate) Fields() []string { return p.fields }

func (p funcPredicate) Holds(values map[string]any) (holds bool) {
	defer func() {
		if recover() != nil {
			holds = false
		}
	}()
	return p.fn(values)
}

func (p funcPredicate) String() string { return p.description }

func (p funcPredicate) JSONSchema() map[string]any { return nil }

func formatScalar(v any) string {
	switch x := v.(type) {
	case string:
		return fmt.Sprintf("%q", x)
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
