package schema

import (
	"fmt"
	"strings"
)

// FieldError describes why a field failed validation.
type FieldError struct {
	Field  string
	Reason string
	Value  any
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

// Validated is the outcome of a successful validation.
type Validated struct {
	// Record holds every schema field, in canonical Go types, null as nil.
	Record map[string]any
	// Fallbacks lists invalid values replaced under the Fallback policy.
	Fallbacks []*FieldError
	// Cleared lists conditional fields dropped because their condition did not hold.
	Cleared []string
}

// Validate checks obj field by field in declaration order and stops at the
// first failure, which is returned as a *FieldError. Keys not in the schema
// are ignored.
func (s *Schema) Validate(obj map[string]any) (*Validated, error) {
	out := &Validated{Record: make(map[string]any, len(s.fields))}

	for _, f := range s.fields {
		value, fallback, err := resolve(f, obj)
		if err != nil {
			return nil, err
		}
		if fallback != nil {
			out.Fallbacks = append(out.Fallbacks, fallback)
		}

		switch {
		case f.Required.IsAlways():
			if value == nil {
				return nil, &FieldError{Field: f.Name, Reason: "is required"}
			}
		default:
			if p, ok := f.Required.Predicate(); ok {
				if p.Holds(out.Record) {
					if value == nil {
						return nil, &FieldError{Field: f.Name, Reason: "is required when " + p.String()}
					}
				} else if value != nil {
					out.Cleared = append(out.Cleared, f.Name)
					value = nil
				}
			}
		}

		out.Record[f.Name] = value
	}

	return out, nil
}

// resolve returns the canonical value of f in obj, applying the default
// for absent, null or blank values and the field's policy for invalid ones.
func resolve(f Field, obj map[string]any) (any, *FieldError, error) {
	raw, present := obj[f.Name]
	if present && raw != nil && !blank(f, raw) {
		if v, ok := coerce(f, raw); ok {
			return v, nil, nil
		}
		ferr := &FieldError{Field: f.Name, Reason: mismatchReason(f, raw), Value: raw}
		if f.OnInvalid != Fallback {
			return nil, nil, ferr
		}
		return defaultValue(f), ferr, nil
	}
	return defaultValue(f), nil, nil
}

func defaultValue(f Field) any {
	if !f.HasDefault() {
		return nil
	}
	v, _ := coerce(f, f.Default)
	return v
}

func mismatchReason(f Field, raw any) string {
	if f.Kind == KindEnum {
		allowed := make([]string, len(f.Options))
		for i, o := range f.Options {
			allowed[i] = formatScalar(o.Value)
		}
		return fmt.Sprintf("value %s is not one of {%s}", formatScalar(raw), strings.Join(allowed, ", "))
	}
	return fmt.Sprintf("expected %s, got %s", f.Kind, jsonTypeName(raw))
}
