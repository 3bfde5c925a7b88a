package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/formflow/internal/domain"
	"github.com/tjfontaine/formflow/internal/pipeline"
)

const instrumentationName = "github.com/tjfontaine/formflow/internal/pipeline"

// Tracing records one span per pipeline stage.
type Tracing struct {
	tracer trace.Tracer
}

var _ pipeline.Observer = (*Tracing)(nil)

// NewTracing creates a tracing observer. A nil provider uses the global one.
func NewTracing(tp trace.TracerProvider) *Tracing {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracing{tracer: tp.Tracer(instrumentationName)}
}

func (t *Tracing) StageStarted(ctx context.Context, formID string, stage pipeline.StageName) context.Context {
	ctx, _ = t.tracer.Start(ctx, "formflow."+string(stage),
		trace.WithAttributes(
			attribute.String("formflow.form_code", formID),
			attribute.String("formflow.stage", string(stage)),
		))
	return ctx
}

func (t *Tracing) StageFinished(ctx context.Context, _ string, _ pipeline.StageName, _ time.Duration, err *domain.Error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.SetAttributes(
			attribute.String("formflow.error_code", string(err.Kind)),
			attribute.String("formflow.reason", string(err.Reason)),
		)
		span.SetStatus(codes.Error, err.Message)
	}
	span.End()
}

func (t *Tracing) RunFinished(ctx context.Context, st *pipeline.State, _ time.Duration) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("formflow.form_code", st.FormID),
		attribute.String("formflow.phase", string(st.Phase)),
	)
}
