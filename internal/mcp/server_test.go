package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjfontaine/formflow/internal/domain"
	"github.com/tjfontaine/formflow/internal/extract"
	"github.com/tjfontaine/formflow/internal/forms"
	"github.com/tjfontaine/formflow/internal/llm/llmtest"
	"github.com/tjfontaine/formflow/internal/logging"
	"github.com/tjfontaine/formflow/internal/pipeline"
	"github.com/tjfontaine/formflow/internal/registry"
	"github.com/tjfontaine/formflow/internal/service"
)

func newServer(t *testing.T, fake *llmtest.Fake) *Server {
	t.Helper()
	discard := logging.NewNop()
	reg := registry.New()
	require.NoError(t, forms.RegisterBuiltins(reg, forms.Deps{
		Client:  fake,
		Options: []extract.Option{extract.WithLogger(discard)},
	}))
	reg.Seal()
	svc := service.New(reg, pipeline.NewEngine(pipeline.WithLogger(discard)), service.WithLogger(discard))
	return NewServer(svc, "test", discard)
}

func TestHandleExtract(t *testing.T) {
	s := newServer(t, &llmtest.Fake{Reply: `{"underCheckOrg": "仓库", "checkType": 1}`})

	res, err := s.handleExtract(context.Background(), mcp.CallToolRequest{}, ExtractArgs{
		Utterance: "仓库专项检查发现灭火器过期",
		FormCode:  forms.HazardReportID,
	})
	require.NoError(t, err)
	require.True(t, res.OK(), "%+v", res)
	assert.Equal(t, "仓库", res.Record["underCheckOrg"])
	assert.Equal(t, 3, res.Record["checkType"])
}

func TestHandleExtract_FailureIsData(t *testing.T) {
	s := newServer(t, &llmtest.Fake{})

	res, err := s.handleExtract(context.Background(), mcp.CallToolRequest{}, ExtractArgs{
		Utterance: "x",
		FormCode:  "unknown",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Equal(t, domain.KindUnknownFormIdentifier, res.ErrorCode)
}

func TestHandleListForms(t *testing.T) {
	s := newServer(t, &llmtest.Fake{})

	resp, err := s.handleListForms(context.Background(), mcp.CallToolRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{forms.ExpenseClaimID, forms.HazardReportID}, resp.Forms)
	assert.Equal(t, "安全隐患排查记录", resp.Titles[forms.HazardReportID])
	assert.NotEmpty(t, resp.Titles[forms.ExpenseClaimID])
}

func TestSchemaResource(t *testing.T) {
	s := newServer(t, &llmtest.Fake{})
	uri := "formflow://forms/" + forms.ExpenseClaimID + "/schema"

	contents, err := s.schemaResource(forms.ExpenseClaimID, uri)(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)

	text, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, uri, text.URI)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &doc))
	assert.Contains(t, doc["properties"], "amount")

	_, err = s.schemaJSON("missing")
	assert.Error(t, err)
}
