package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/formflow/internal/config"
	"github.com/tjfontaine/formflow/internal/extract"
	"github.com/tjfontaine/formflow/internal/forms"
	"github.com/tjfontaine/formflow/internal/llm"
	"github.com/tjfontaine/formflow/internal/logging"
	"github.com/tjfontaine/formflow/internal/pipeline"
	"github.com/tjfontaine/formflow/internal/prompt"
	"github.com/tjfontaine/formflow/internal/registry"
	"github.com/tjfontaine/formflow/internal/service"
	"github.com/tjfontaine/formflow/internal/telemetry"
)

// app is the wired extraction core shared by every command.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	svc      *service.Service
	metrics  *telemetry.Metrics
	shutdown func(context.Context) error
}

// newApp loads configuration and wires the registry, engine and service.
// Logs go to stderr so stdout stays clean for command output and MCP.
func newApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	client := llm.NewOpenAI(cfg.LLM.APIKey,
		llm.WithBaseURL(cfg.LLM.BaseURL),
		llm.WithModel(cfg.LLM.Model),
		llm.WithTemperature(cfg.LLM.Temperature),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithJSONMode(cfg.LLM.JSONMode),
	)

	var promptOpts []prompt.Option
	if cfg.Prompts.Dir != "" {
		promptOpts = append(promptOpts, prompt.WithDir(cfg.Prompts.Dir))
	}
	templates, err := prompt.NewSet(promptOpts...)
	if err != nil {
		return nil, fmt.Errorf("load prompt templates: %w", err)
	}

	execOpts := []extract.Option{extract.WithLogger(logger)}
	if cfg.LLM.MaxPromptTokens > 0 {
		counter, err := llm.NewTokenCounter(cfg.LLM.Model)
		if err != nil {
			return nil, err
		}
		execOpts = append(execOpts, extract.WithTokenLimit(counter, cfg.LLM.MaxPromptTokens))
	}

	reg := registry.New()
	if err := forms.RegisterBuiltins(reg, forms.Deps{
		Client:    client,
		Templates: templates,
		Options:   execOpts,
	}); err != nil {
		return nil, err
	}
	reg.Seal()

	metrics := telemetry.NewMetrics()
	engine := pipeline.NewEngine(
		pipeline.WithLogger(logger),
		pipeline.WithObserver(telemetry.NewTracing(nil)),
		pipeline.WithObserver(metrics),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		svc:      service.New(reg, engine, service.WithTimeout(cfg.LLM.Timeout), service.WithLogger(logger)),
		metrics:  metrics,
		shutdown: shutdown,
	}, nil
}

func (a *app) close() {
	if err := a.shutdown(context.Background()); err != nil {
		a.logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
	}
}
