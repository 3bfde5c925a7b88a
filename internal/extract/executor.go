// Package extract builds pipeline executors from form definitions.
//
// A form is data: a schema, a prompt template and a finalize routine. New
// turns a Definition into an executor whose five stages (render, invoke,
// parse, validate, finalize) are shared by every run for that form.
package extract

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tjfontaine/formflow/internal/domain"
	"github.com/tjfontaine/formflow/internal/llm"
	"github.com/tjfontaine/formflow/internal/pipeline"
	"github.com/tjfontaine/formflow/internal/prompt"
	"github.com/tjfontaine/formflow/internal/schema"
)

// Finalizer normalizes a validated record into the final result. It gets its
// own copy of the record and the original utterance, and must not keep
// either.
type Finalizer func(record map[string]any, utterance string) (domain.Record, error)

// Definition describes one form type.
type Definition struct {
	FormID   string
	Title    string
	Schema   *schema.Schema
	Template prompt.Template
	Finalize Finalizer
}

// TokenCounter counts prompt tokens.
type TokenCounter interface {
	Count(text string) int
}

// Option configures an Executor.
type Option func(*Executor)

// WithTokenLimit rejects prompts longer than max tokens.
func WithTokenLimit(counter TokenCounter, max int) Option {
	return func(e *Executor) {
		if counter != nil && max > 0 {
			e.tokens = counter
			e.maxTokens = max
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// Executor runs one form. It is immutable after New and safe for concurrent
// runs.
type Executor struct {
	def         Definition
	client      llm.Client
	conformance *schema.Conformance
	tokens      TokenCounter
	maxTokens   int
	logger      *slog.Logger
	stages      []pipeline.Stage
}

var _ pipeline.Executor = (*Executor)(nil)

// New validates def and builds its executor.
func New(def Definition, client llm.Client, opts ...Option) (*Executor, error) {
	switch {
	case def.FormID == "":
		return nil, errors.New("extract: form identifier cannot be empty")
	case def.Schema == nil:
		return nil, fmt.Errorf("extract: form %q has no schema", def.FormID)
	case def.Template == nil:
		return nil, fmt.Errorf("extract: form %q has no template", def.FormID)
	case client == nil:
		return nil, fmt.Errorf("extract: form %q has no language model client", def.FormID)
	}
	if def.Finalize == nil {
		def.Finalize = Identity
	}

	conformance, err := def.Schema.Compile(def.FormID + ".schema.json")
	if err != nil {
		return nil, fmt.Errorf("extract: form %q: %w", def.FormID, err)
	}

	e := &Executor{
		def:         def,
		client:      client,
		conformance: conformance,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.stages = []pipeline.Stage{
		renderStage{e},
		invokeStage{e},
		parseStage{e},
		validateStage{e},
		finalizeStage{e},
	}
	return e, nil
}

// MustNew is like New but panics.
func MustNew(def Definition, client llm.Client, opts ...Option) *Executor {
	e, err := New(def, client, opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// FormID returns the form identifier.
func (e *Executor) FormID() string { return e.def.FormID }

// Title returns the human-readable form name.
func (e *Executor) Title() string { return e.def.Title }

// Schema returns the form schema.
func (e *Executor) Schema() *schema.Schema { return e.def.Schema }

// Stages returns the five stages in order.
func (e *Executor) Stages() []pipeline.Stage { return e.stages }

// Identity returns the validated record unchanged.
func Identity(record map[string]any, _ string) (domain.Record, error) {
	return domain.Record(record), nil
}
