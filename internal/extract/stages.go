package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/tjfontaine/formflow/internal/domain"
	"github.com/tjfontaine/formflow/internal/llm"
	"github.com/tjfontaine/formflow/internal/pipeline"
	"github.com/tjfontaine/formflow/internal/schema"
)

type renderStage struct{ e *Executor }

func (renderStage) Name() pipeline.StageName { return pipeline.StageRender }

func (s renderStage) Run(_ context.Context, st *pipeline.State) *domain.Error {
	if strings.TrimSpace(st.Utterance) == "" {
		return domain.InvalidRequest("utterance must not be empty")
	}
	if st.FormID == "" {
		return domain.InvalidRequest("form identifier must be set")
	}

	text, err := s.e.def.Template.Render(s.e.def.Schema, st.Utterance)
	if err != nil {
		return domain.Internal(fmt.Errorf("render prompt: %w", err))
	}

	if s.e.tokens != nil {
		if n := s.e.tokens.Count(text); n > s.e.maxTokens {
			return domain.InvalidRequest("prompt has %d tokens, the limit is %d", n, s.e.maxTokens).
				WithReason(domain.ReasonTokenLimit)
		}
	}

	st.Prompt = text
	return nil
}

type invokeStage struct{ e *Executor }

func (invokeStage) Name() pipeline.StageName { return pipeline.StageInvoke }

func (s invokeStage) Run(ctx context.Context, st *pipeline.State) *domain.Error {
	out, err := s.e.client.Complete(ctx, st.Prompt)
	if err != nil {
		return domain.ModelInvocation(classify(ctx, err), err)
	}
	s.e.logger.Debug("model response received",
		slog.String("form_code", st.FormID),
		slog.Int("response_length", len(out)),
	)
	st.RawOutput = out
	return nil
}

// classify picks the sub-reason of a model invocation failure.
func classify(ctx context.Context, err error) domain.Reason {
	var statusErr *llm.StatusError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return domain.ReasonTimeout
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return domain.ReasonCanceled
	case errors.As(err, &statusErr):
		return domain.ReasonUpstream
	case errors.Is(err, llm.ErrEmptyCompletion):
		return domain.ReasonEmpty
	case errors.As(err, &netErr) && netErr.Timeout():
		return domain.ReasonTimeout
	default:
		return domain.ReasonTransport
	}
}

type parseStage struct{ e *Executor }

func (parseStage) Name() pipeline.StageName { return pipeline.StageParse }

func (s parseStage) Run(_ context.Context, st *pipeline.State) *domain.Error {
	obj, err := ParseObject(st.RawOutput)
	if err != nil {
		return domain.InvalidModelResponse("model output is not a JSON object: %v", err).WithCause(err)
	}
	st.Parsed = obj
	return nil
}

type validateStage struct{ e *Executor }

func (validateStage) Name() pipeline.StageName { return pipeline.StageValidate }

func (s validateStage) Run(_ context.Context, st *pipeline.State) *domain.Error {
	validated, err := s.e.def.Schema.Validate(st.Parsed)
	if err != nil {
		return fieldError(err)
	}

	for _, fb := range validated.Fallbacks {
		s.e.logger.Warn("invalid field value replaced",
			slog.String("form_code", st.FormID),
			slog.String("field", fb.Field),
			slog.String("reason", fb.Reason),
		)
	}
	for _, name := range validated.Cleared {
		s.e.logger.Debug("conditional field cleared",
			slog.String("form_code", st.FormID),
			slog.String("field", name),
		)
	}

	if err := s.e.conformance.Check(validated.Record); err != nil {
		return fieldError(err)
	}

	st.Validated = validated.Record
	return nil
}

func fieldError(err error) *domain.Error {
	var ferr *schema.FieldError
	if errors.As(err, &ferr) {
		return domain.Validation(ferr.Field, ferr.Reason).WithCause(err)
	}
	return domain.Internal(err)
}

type finalizeStage struct{ e *Executor }

func (finalizeStage) Name() pipeline.StageName { return pipeline.StageFinalize }

func (s finalizeStage) Run(_ context.Context, st *pipeline.State) (derr *domain.Error) {
	record := make(map[string]any, len(st.Validated))
	for k, v := range st.Validated {
		record[k] = v
	}

	// A finalizer is form code; a panic in it fails this run only.
	defer func() {
		if r := recover(); r != nil {
			s.e.logger.Error("finalizer panicked",
				slog.String("form_code", st.FormID),
				slog.Any("panic", r),
			)
			derr = domain.Internal(fmt.Errorf("finalize %s: panic: %v", st.FormID, r))
		}
	}()

	final, err := s.e.def.Finalize(record, st.Utterance)
	if err != nil {
		return domain.Internal(fmt.Errorf("finalize %s: %w", st.FormID, err))
	}
	st.Final = final
	return nil
}
