// Package mcp exposes form extraction as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tjfontaine/formflow/internal/domain"
	"github.com/tjfontaine/formflow/internal/service"
)

// ExtractArgs are the extract_form tool arguments.
type ExtractArgs struct {
	Utterance string `json:"utterance"`
	FormCode  string `json:"form_code"`
}

// FormsResponse lists the registered forms.
type FormsResponse struct {
	Forms  []string          `json:"forms" jsonschema_description:"Registered form codes"`
	Titles map[string]string `json:"titles" jsonschema_description:"Human-readable form names keyed by form code"`
}

// Server wraps the extraction service as an MCP server.
type Server struct {
	svc       *service.Service
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

func NewServer(svc *service.Service, version string, logger *slog.Logger) *Server {
	s := &Server{
		svc:       svc,
		logger:    logger,
		mcpServer: server.NewMCPServer("formflow", version),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio serves on stdin/stdout until EOF.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	extractTool := mcp.NewTool("extract_form",
		mcp.WithDescription("Extract a structured form record from a free-text utterance."),
		mcp.WithString("utterance", mcp.Required(), mcp.Description("Free text describing the record")),
		mcp.WithString("form_code", mcp.Required(), mcp.Description("Registered form code, see list_forms")),
		mcp.WithOutputSchema[domain.Result](),
	)
	s.mcpServer.AddTool(extractTool, mcp.NewStructuredToolHandler(s.handleExtract))

	listTool := mcp.NewTool("list_forms",
		mcp.WithDescription("List the form codes this server can extract."),
		mcp.WithOutputSchema[FormsResponse](),
	)
	s.mcpServer.AddTool(listTool, mcp.NewStructuredToolHandler(s.handleListForms))
}

// handleExtract reports extraction failures in the result, not as tool errors.
func (s *Server) handleExtract(ctx context.Context, _ mcp.CallToolRequest, args ExtractArgs) (domain.Result, error) {
	res := s.svc.Execute(ctx, args.Utterance, args.FormCode)
	if !res.OK() {
		s.logger.Warn("mcp extraction failed",
			slog.String("form_code", args.FormCode),
			slog.String("error_code", string(res.ErrorCode)))
	}
	return res, nil
}

func (s *Server) handleListForms(_ context.Context, _ mcp.CallToolRequest, _ map[string]any) (FormsResponse, error) {
	ids := s.svc.Forms()
	resp := FormsResponse{Forms: ids, Titles: make(map[string]string, len(ids))}
	for _, id := range ids {
		title, err := s.svc.Title(id)
		if err != nil {
			return FormsResponse{}, err
		}
		resp.Titles[id] = title
	}
	return resp, nil
}

// registerResources publishes one JSON Schema resource per form.
func (s *Server) registerResources() {
	for _, id := range s.svc.Forms() {
		uri := "formflow://forms/" + id + "/schema"
		opts := []mcp.ResourceOption{mcp.WithMIMEType("application/schema+json")}
		if title, _ := s.svc.Title(id); title != "" {
			opts = append(opts, mcp.WithResourceDescription(title))
		}
		s.mcpServer.AddResource(mcp.NewResource(uri, id+" schema", opts...), s.schemaResource(id, uri))
	}
}

func (s *Server) schemaResource(id, uri string) server.ResourceHandlerFunc {
	return func(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		text, err := s.schemaJSON(id)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: uri, MIMEType: "application/schema+json", Text: text},
		}, nil
	}
}

func (s *Server) schemaJSON(id string) (string, error) {
	sch, err := s.svc.Schema(id)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(sch.JSONSchema())
	if err != nil {
		return "", err
	}
	return string(b), nil
}
