// Package pipeline runs the ordered stages of an extraction executor.
//
// The engine knows nothing about forms. An Executor supplies its stages; the
// Engine runs them in order against a fresh State and stops at the first
// stage that reports an error. Observers see every stage boundary, which is
// where tracing, metrics and logging attach.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/tjfontaine/formflow/internal/domain"
)

// Stage is one step of a run. It reads earlier outputs from st, writes its
// own output, and returns a tagged error instead of panicking.
type Stage interface {
	Name() StageName
	Run(ctx context.Context, st *State) *domain.Error
}

// Executor is the pluggable unit for one form type. Implementations are
// shared by all concurrent runs and must keep per-run data in State only.
type Executor interface {
	FormID() string
	Stages() []Stage
}

// Observer is notified around each stage and at the end of a run.
type Observer interface {
	// StageStarted may return a derived context (e.g. carrying a span) that
	// is passed to the stage.
	StageStarted(ctx context.Context, formID string, stage StageName) context.Context
	StageFinished(ctx context.Context, formID string, stage StageName, elapsed time.Duration, err *domain.Error)
	RunFinished(ctx context.Context, st *State, elapsed time.Duration)
}

// Engine runs executors. It holds no per-run state.
type Engine struct {
	observers []Observer
	logger    *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithObserver adds an observer.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes exec's stages for req and returns the terminal state. A nil
// executor is a wiring defect and panics.
func (e *Engine) Run(ctx context.Context, exec Executor, req Request) *State {
	if exec == nil {
		panic("pipeline: nil executor for form " + req.FormID)
	}

	start := time.Now()
	st := NewState(req)

	for _, stage := range exec.Stages() {
		name := stage.Name()

		stageCtx := ctx
		for _, o := range e.observers {
			stageCtx = o.StageStarted(stageCtx, st.FormID, name)
		}

		stageStart := time.Now()
		err := stage.Run(stageCtx, st)
		elapsed := time.Since(stageStart)

		for _, o := range e.observers {
			o.StageFinished(stageCtx, st.FormID, name, elapsed, err)
		}

		if err != nil {
			st.fail(name, err)
			e.logger.Warn("pipeline stage failed",
				slog.String("form_code", st.FormID),
				slog.String("stage", string(name)),
				slog.String("error_code", string(err.Kind)),
				slog.String("reason", string(err.Reason)),
				slog.String("error", err.Message),
			)
			break
		}
		st.advance(name)
	}

	elapsed := time.Since(start)
	for _, o := range e.observers {
		o.RunFinished(ctx, st, elapsed)
	}
	e.logger.Info("pipeline run finished",
		slog.String("form_code", st.FormID),
		slog.String("phase", string(st.Phase)),
		slog.Duration("duration", elapsed),
	)

	return st
}

// StageFunc adapts a function to Stage.
type StageFunc struct {
	StageName StageName
	Fn        func(ctx context.Context, st *State) *domain.Error
}

// Name returns the stage name.
func (s StageFunc) Name() StageName { return s.StageName }

// Run calls Fn.
func (s StageFunc) Run(ctx context.Context, st *State) *domain.Error { return s.Fn(ctx, st) }
