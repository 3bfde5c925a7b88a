// Package service is the inbound entry point for form extraction.
//
// Execute runs one extraction synchronously and always returns a Result.
// Async layers task submission, workers, callbacks and expiry on top of it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tjfontaine/formflow/internal/domain"
	"github.com/tjfontaine/formflow/internal/pipeline"
	"github.com/tjfontaine/formflow/internal/schema"
)

// ErrNoSchema is returned by Schema for executors that do not publish one.
var ErrNoSchema = errors.New("form does not publish a schema")

// DefaultTimeout bounds a run when the caller's context has no deadline.
const DefaultTimeout = 60 * time.Second

// Resolver looks up the executor for a form identifier.
type Resolver interface {
	Resolve(id string) (pipeline.Executor, error)
	IDs() []string
}

// Service executes extractions against a sealed registry.
type Service struct {
	forms   Resolver
	engine  *pipeline.Engine
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout sets the run timeout applied when the caller has none.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates a Service.
func New(forms Resolver, engine *pipeline.Engine, opts ...Option) *Service {
	if engine == nil {
		engine = pipeline.NewEngine()
	}
	s := &Service{
		forms:   forms,
		engine:  engine,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute extracts a record of form formID from utterance. Failures are
// reported in the Result, never as a Go error.
func (s *Service) Execute(ctx context.Context, utterance, formID string) domain.Result {
	formID = strings.TrimSpace(formID)
	if formID == "" {
		return domain.Failed(domain.InvalidRequest("form_code is required").WithField("form_code"))
	}

	exec, err := s.forms.Resolve(formID)
	if err != nil {
		return domain.Failed(domain.AsError(err))
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	st := s.engine.Run(ctx, exec, pipeline.Request{Utterance: utterance, FormID: formID})
	return st.Result()
}

// Executor returns the executor for formID.
func (s *Service) Executor(formID string) (pipeline.Executor, error) {
	return s.forms.Resolve(formID)
}

// Forms returns the supported form identifiers in sorted order.
func (s *Service) Forms() []string {
	return s.forms.IDs()
}

// Title returns the human-readable name of formID, or "" when the form has
// none.
func (s *Service) Title(formID string) (string, error) {
	exec, err := s.forms.Resolve(formID)
	if err != nil {
		return "", err
	}
	if tp, ok := exec.(interface{ Title() string }); ok {
		return tp.Title(), nil
	}
	return "", nil
}

// Schema returns the field schema of formID.
func (s *Service) Schema(formID string) (*schema.Schema, error) {
	exec, err := s.forms.Resolve(formID)
	if err != nil {
		return nil, err
	}
	sp, ok := exec.(interface{ Schema() *schema.Schema })
	if !ok {
		return nil, fmt.Errorf("%s: %w", formID, ErrNoSchema)
	}
	return sp.Schema(), nil
}
