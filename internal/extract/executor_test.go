package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjfontaine/formflow/internal/domain"
	"github.com/tjfontaine/formflow/internal/llm"
	"github.com/tjfontaine/formflow/internal/llm/llmtest"
	"github.com/tjfontaine/formflow/internal/pipeline"
	"github.com/tjfontaine/formflow/internal/prompt"
	"github.com/tjfontaine/formflow/internal/schema"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func baseTemplate(t *testing.T) prompt.Template {
	t.Helper()
	set, err := prompt.NewSet()
	require.NoError(t, err)
	return set.MustLookup(prompt.BaseTemplate)
}

func expenseDefinition(t *testing.T) Definition {
	return Definition{
		FormID: "expense",
		Schema: schema.New(
			schema.Field{Name: "amount", Kind: schema.KindNumber},
			schema.Field{Name: "category", Kind: schema.KindEnum, Required: schema.Always, Default: 3, Options: schema.Ints(1, 2, 3)},
		),
		Template: baseTemplate(t),
	}
}

func inspectionDefinition(t *testing.T) Definition {
	return Definition{
		FormID: "inspection",
		Schema: schema.New(
			schema.Field{Name: "checkType", Kind: schema.KindEnum, Default: 1, Options: schema.Ints(1, 3, 4, 5, 6, 8)},
			schema.Field{Name: "leader", Kind: schema.KindString, Required: schema.When(schema.Equals("checkType", 8))},
		),
		Template: baseTemplate(t),
	}
}

func run(t *testing.T, def Definition, client llm.Client, utterance string, opts ...Option) *pipeline.State {
	t.Helper()
	opts = append([]Option{WithLogger(discard)}, opts...)
	exec, err := New(def, client, opts...)
	require.NoError(t, err)
	engine := pipeline.NewEngine(pipeline.WithLogger(discard))
	return engine.Run(context.Background(), exec, pipeline.Request{Utterance: utterance, FormID: def.FormID})
}

func TestExecutor_DefaultsAndNulls(t *testing.T) {
	client := &llmtest.Fake{Reply: `{"category": 2}`}
	st := run(t, expenseDefinition(t), client, "lunch with a customer")

	require.Nil(t, st.Err)
	assert.Equal(t, pipeline.PhaseFinalized, st.Phase)
	assert.Equal(t, domain.Record{"amount": nil, "category": 2}, st.Final)

	res := st.Result()
	assert.Equal(t, domain.StatusSucceeded, res.Status)
}

func TestExecutor_NotJSON(t *testing.T) {
	client := &llmtest.Fake{Reply: "not json"}
	st := run(t, expenseDefinition(t), client, "lunch")

	res := st.Result()
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Equal(t, domain.KindInvalidModelResponse, res.ErrorCode)
	assert.Equal(t, pipeline.StageParse, st.FailedStage)
	assert.Nil(t, st.Validated)
}

func TestExecutor_ConditionalRequired(t *testing.T) {
	client := &llmtest.Fake{Reply: `{"checkType": 8}`}
	st := run(t, inspectionDefinition(t), client, "leader-led inspection of the boiler room")

	res := st.Result()
	assert.Equal(t, domain.KindValidation, res.ErrorCode)
	assert.Contains(t, res.Message, "leader")
	assert.Equal(t, "leader", res.Field)

	client = &llmtest.Fake{Reply: `{"checkType": 3}`}
	st = run(t, inspectionDefinition(t), client, "special inspection")
	require.Nil(t, st.Err)
	assert.Equal(t, domain.Record{"checkType": 3, "leader": nil}, st.Final)
}

func TestExecutor_RenderFailureSkipsInvoke(t *testing.T) {
	for _, utterance := range []string{"", "   \n\t"} {
		client := &llmtest.Fake{Reply: `{"category": 1}`}
		st := run(t, expenseDefinition(t), client, utterance)

		assert.Equal(t, domain.KindInvalidRequest, st.Err.Kind)
		assert.Equal(t, pipeline.StageRender, st.FailedStage)
		assert.Zero(t, client.Calls(), "invoke must not run after render fails")
		assert.Empty(t, st.Prompt)
	}
}

func TestExecutor_MissingFormIDIsInvalidRequest(t *testing.T) {
	client := &llmtest.Fake{Reply: `{}`}
	exec, err := New(expenseDefinition(t), client, WithLogger(discard))
	require.NoError(t, err)

	st := pipeline.NewEngine(pipeline.WithLogger(discard)).Run(context.Background(), exec, pipeline.Request{Utterance: "x"})
	assert.Equal(t, domain.KindInvalidRequest, st.Err.Kind)
	assert.Zero(t, client.Calls())
}

func TestExecutor_PromptReachesModel(t *testing.T) {
	client := &llmtest.Fake{Reply: `{"category": 1}`}
	st := run(t, expenseDefinition(t), client, "train ticket 120")

	require.Nil(t, st.Err)
	assert.Equal(t, st.Prompt, client.LastPrompt())
	assert.Contains(t, st.Prompt, "train ticket 120")
	assert.Contains(t, st.Prompt, `"category"`)
}

func TestExecutor_FencedOutput(t *testing.T) {
	client := &llmtest.Fake{Reply: "Here you go:\n```json\n{\"amount\": 12.5, \"category\": 1}\n```"}
	st := run(t, expenseDefinition(t), client, "coffee")

	require.Nil(t, st.Err)
	assert.Equal(t, domain.Record{"amount": 12.5, "category": 1}, st.Final)
}

func TestExecutor_InvocationFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason domain.Reason
	}{
		{"deadline", context.DeadlineExceeded, domain.ReasonTimeout},
		{"canceled", context.Canceled, domain.ReasonCanceled},
		{"upstream", &llm.StatusError{StatusCode: 500, Message: "boom"}, domain.ReasonUpstream},
		{"empty", llm.ErrEmptyCompletion, domain.ReasonEmpty},
		{"transport", errors.New("connection refused"), domain.ReasonTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &llmtest.Fake{Err: fmt.Errorf("request failed: %w", tt.err)}
			st := run(t, expenseDefinition(t), client, "hotel")

			require.NotNil(t, st.Err)
			assert.Equal(t, domain.KindModelInvocation, st.Err.Kind)
			assert.Equal(t, tt.reason, st.Err.Reason)
			assert.Equal(t, pipeline.StageInvoke, st.FailedStage)
			assert.True(t, st.Err.Retryable())
		})
	}
}

func TestExecutor_DeadlineBoundsInvoke(t *testing.T) {
	client := &llmtest.Fake{Block: true}
	exec, err := New(expenseDefinition(t), client, WithLogger(discard))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	st := pipeline.NewEngine(pipeline.WithLogger(discard)).Run(ctx, exec, pipeline.Request{Utterance: "x", FormID: "expense"})

	assert.Less(t, time.Since(start), 2*time.Second)
	require.NotNil(t, st.Err)
	assert.Equal(t, domain.KindModelInvocation, st.Err.Kind)
	assert.Equal(t, domain.ReasonTimeout, st.Err.Reason)
}

func TestExecutor_Validation(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		field string
	}{
		{"enum outside set", `{"category": 9}`, "category"},
		{"wrong kind", `{"amount": "twelve", "category": 1}`, "amount"},
		{"required null", `{"category": null, "amount": 1}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := run(t, expenseDefinition(t), &llmtest.Fake{Reply: tt.reply}, "x")
			if tt.field == "" {
				// category has a default, so null resolves to it.
				require.Nil(t, st.Err)
				assert.Equal(t, 3, st.Final["category"])
				return
			}
			require.NotNil(t, st.Err)
			assert.Equal(t, domain.KindValidation, st.Err.Kind)
			assert.Equal(t, tt.field, st.Err.Field)
			assert.False(t, st.Err.Retryable())
		})
	}
}

func TestExecutor_FinalizeErrorIsInternal(t *testing.T) {
	def := expenseDefinition(t)
	def.Finalize = func(record map[string]any, utterance string) (domain.Record, error) {
		return nil, errors.New("cannot normalize")
	}
	st := run(t, def, &llmtest.Fake{Reply: `{"category": 1}`}, "x")

	require.NotNil(t, st.Err)
	assert.Equal(t, domain.KindInternal, st.Err.Kind)
	assert.Equal(t, pipeline.StageFinalize, st.FailedStage)
	assert.NotNil(t, st.Validated, "earlier stage output is kept")
}

func TestExecutor_FinalizePanicIsInternal(t *testing.T) {
	def := expenseDefinition(t)
	def.Finalize = func(record map[string]any, utterance string) (domain.Record, error) {
		var m map[string]int
		m["boom"] = 1
		return nil, nil
	}
	st := run(t, def, &llmtest.Fake{Reply: `{"category": 1}`}, "x")

	require.NotNil(t, st.Err)
	assert.Equal(t, domain.KindInternal, st.Err.Kind)
	assert.Contains(t, st.Err.Message, "panic")
	assert.Nil(t, st.Final)
}

func TestExecutor_FinalizeDoesNotMutateValidated(t *testing.T) {
	def := expenseDefinition(t)
	def.Finalize = func(record map[string]any, utterance string) (domain.Record, error) {
		record["category"] = 99
		record["note"] = utterance
		return domain.Record(record), nil
	}
	st := run(t, def, &llmtest.Fake{Reply: `{"category": 1}`}, "memo")

	require.Nil(t, st.Err)
	assert.Equal(t, 1, st.Validated["category"])
	assert.Equal(t, 99, st.Final["category"])
	assert.Equal(t, "memo", st.Final["note"])
}

type fixedCounter int

func (c fixedCounter) Count(string) int { return int(c) }

func TestExecutor_TokenLimit(t *testing.T) {
	client := &llmtest.Fake{Reply: `{"category": 1}`}
	st := run(t, expenseDefinition(t), client, "x", WithTokenLimit(fixedCounter(5000), 4096))

	require.NotNil(t, st.Err)
	assert.Equal(t, domain.KindInvalidRequest, st.Err.Kind)
	assert.Equal(t, domain.ReasonTokenLimit, st.Err.Reason)
	assert.Zero(t, client.Calls())

	st = run(t, expenseDefinition(t), client, "x", WithTokenLimit(fixedCounter(100), 4096))
	assert.Nil(t, st.Err)
}

func TestNew_RejectsIncompleteDefinitions(t *testing.T) {
	client := &llmtest.Fake{}
	good := expenseDefinition(t)

	tests := []struct {
		name   string
		mutate func(d *Definition)
		client llm.Client
	}{
		{"no id", func(d *Definition) { d.FormID = "" }, client},
		{"no schema", func(d *Definition) { d.Schema = nil }, client},
		{"no template", func(d *Definition) { d.Template = nil }, client},
		{"no client", func(d *Definition) {}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := good
			tt.mutate(&def)
			_, err := New(def, tt.client)
			assert.Error(t, err)
		})
	}
}

func TestParseObject(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    map[string]any
		wantErr string
	}{
		{name: "plain", raw: `{"a": 1}`, want: map[string]any{"a": 1.0}},
		{name: "whitespace", raw: "\n  {\"a\": true}  \n", want: map[string]any{"a": true}},
		{name: "json fence", raw: "```json\n{\"a\": \"x\"}\n```", want: map[string]any{"a": "x"}},
		{name: "bare fence", raw: "```\n{}\n```", want: map[string]any{}},
		{name: "not json", raw: "not json", wantErr: "invalid character"},
		{name: "array", raw: `[1, 2]`, wantErr: "got a JSON array"},
		{name: "scalar", raw: `42`, wantErr: "got a JSON number"},
		{name: "null", raw: `null`, wantErr: "got a JSON null"},
		{name: "trailing", raw: `{"a": 1} {"b": 2}`, wantErr: "unexpected data"},
		{name: "empty", raw: "   ", wantErr: "empty output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseObject(tt.raw)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, strings.Contains(err.Error(), tt.wantErr), "error %q", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
