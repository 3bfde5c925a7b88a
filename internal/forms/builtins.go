// Package forms holds the built-in form definitions.
//
// Each form is a schema, a prompt template and a finalizer. RegisterBuiltins
// binds all of them explicitly; there are no init-time side effects.
package forms

import (
	"fmt"
	"time"

	"github.com/tjfontaine/formflow/internal/extract"
	"github.com/tjfontaine/formflow/internal/llm"
	"github.com/tjfontaine/formflow/internal/prompt"
	"github.com/tjfontaine/formflow/internal/registry"
)

// TemplateSource looks up compiled prompt templates by form id.
type TemplateSource interface {
	Lookup(name string) (*prompt.Renderer, error)
}

// Deps are the collaborators shared by every built-in form.
type Deps struct {
	Client    llm.Client
	Templates TemplateSource
	// Now is the clock used for date defaults. Defaults to time.Now.
	Now     func() time.Time
	Options []extract.Option
}

type definitionFunc func(TemplateSource, func() time.Time) (extract.Definition, error)

var builtins = []definitionFunc{
	HazardReportDefinition,
	ExpenseClaimDefinition,
}

// Definitions returns every built-in form definition.
func Definitions(tpl TemplateSource, now func() time.Time) ([]extract.Definition, error) {
	if now == nil {
		now = time.Now
	}
	defs := make([]extract.Definition, 0, len(builtins))
	for _, build := range builtins {
		def, err := build(tpl, now)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// RegisterBuiltins registers every built-in form with reg. It does not seal
// the registry so callers can add their own forms afterwards.
func RegisterBuiltins(reg *registry.Registry, deps Deps) error {
	if deps.Templates == nil {
		set, err := prompt.NewSet()
		if err != nil {
			return fmt.Errorf("load prompt templates: %w", err)
		}
		deps.Templates = set
	}

	defs, err := Definitions(deps.Templates, deps.Now)
	if err != nil {
		return err
	}
	for _, def := range defs {
		exec, err := extract.New(def, deps.Client, deps.Options...)
		if err != nil {
			return err
		}
		if err := reg.Register(def.FormID, exec); err != nil {
			return err
		}
	}
	return nil
}
