// Package schema describes the typed fields of an extraction form and
// validates model output against them.
//
// A Schema is an ordered list of Field descriptors. Order matters: fields are
// validated in declaration order, and a conditional requirement may only look
// at fields declared before it.
//
//	s := schema.New(
//	    schema.Field{Name: "checkType", Kind: schema.KindEnum, Default: 1,
//	        Options: schema.Ints(1, 3, 4, 5, 6, 8)},
//	    schema.Field{Name: "leader", Kind: schema.KindString,
//	        Required: schema.When(schema.Equals("checkType", 8))},
//	)
//
//	validated, err := s.Validate(map[string]any{"checkType": 8.0})
//	// err is a *FieldError naming "leader"
package schema

import "fmt"

// Kind is the declared value type of a field.
type Kind string

const (
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
	KindEnum    Kind = "enum"
	KindBoolean Kind = "boolean"
)

// Option is one allowed value of an enum field. Value is an int or a string.
type Option struct {
	Value any
	Label string
}

// Ints builds unlabeled integer options.
func Ints(values ...int) []Option {
	opts := make([]Option, len(values))
	for i, v := range values {
		opts[i] = Option{Value: v}
	}
	return opts
}

// IntRange builds unlabeled integer options for lo..hi inclusive.
func IntRange(lo, hi int) []Option {
	var opts []Option
	for v := lo; v <= hi; v++ {
		opts = append(opts, Option{Value: v})
	}
	return opts
}

// Policy decides what happens to a present value of the wrong kind or outside
// the allowed set.
type Policy int

const (
	// Reject fails validation.
	Reject Policy = iota
	// Fallback replaces the value with the field default, or null.
	Fallback
)

type requirementMode int

const (
	requiredNever requirementMode = iota
	requiredAlways
	requiredWhen
)

// Requirement says whether a field must resolve to a non-null value.
type Requirement struct {
	mode requirementMode
	pred Predicate
}

var (
	// Optional fields may resolve to null.
	Optional = Requirement{mode: requiredNever}
	// Always fields must resolve to a non-null value.
	Always = Requirement{mode: requiredAlways}
)

// When makes a field required only while p holds over earlier fields.
// While p does not hold the field resolves to null.
func When(p Predicate) Requirement {
	return Requirement{mode: requiredWhen, pred: p}
}

// IsAlways reports whether the requirement is unconditional.
func (r Requirement) IsAlways() bool { return r.mode == requiredAlways }

// Predicate returns the condition of a conditional requirement.
func (r Requirement) Predicate() (Predicate, bool) {
	return r.pred, r.mode == requiredWhen
}

// String renders the requirement for prompts and listings.
func (r Requirement) String() string {
	switch r.mode {
	case requiredAlways:
		return "required"
	case requiredWhen:
		return "required when " + r.pred.String()
	default:
		return "optional"
	}
}

// Field describes one record field.
type Field struct {
	Name        string
	Kind        Kind
	Description string
	Required    Requirement
	// Default is used when the field is absent or null. Nil means no default.
	Default   any
	Options   []Option
	OnInvalid Policy
}

// HasDefault reports whether the field declares a default.
func (f Field) HasDefault() bool { return f.Default != nil }

// Label returns the label of an enum option value, or "".
func (f Field) Label(v any) string {
	for _, o := range f.Options {
		if equalScalar(o.Value, v) {
			return o.Label
		}
	}
	return ""
}

// AllowedValues returns the raw option values.
func (f Field) AllowedValues() []any {
	vals := make([]any, len(f.Options))
	for i, o := range f.Options {
		vals[i] = o.Value
	}
	return vals
}

func (f Field) check() error {
	if f.Name == "" {
		return fmt.Errorf("field name cannot be empty")
	}
	switch f.Kind {
	case KindString, KindInteger, KindNumber, KindBoolean:
		if len(f.Options) > 0 {
			return fmt.Errorf("field %q: options are only allowed on enum fields", f.Name)
		}
	case KindEnum:
		if len(f.Options) == 0 {
			return fmt.Errorf("field %q: enum needs at least one option", f.Name)
		}
		for _, o := range f.Options {
			switch o.Value.(type) {
			case int, string:
			default:
				return fmt.Errorf("field %q: enum option %v must be int or string", f.Name, o.Value)
			}
		}
	default:
		return fmt.Errorf("field %q: unknown kind %q", f.Name, f.Kind)
	}
	if f.HasDefault() {
		if _, ok := coerce(f, f.Default); !ok {
			return fmt.Errorf("field %q: default %v does not match kind %s", f.Name, f.Default, f.Kind)
		}
	}
	return nil
}
