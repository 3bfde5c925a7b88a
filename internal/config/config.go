// Package config loads formflow configuration from config.yaml and
// FORMFLOW_* environment variables.
//
// Environment variables override the file. A double underscore separates
// nesting levels: FORMFLOW_LLM__API_KEY sets llm.api_key.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FORMFLOW_"

// DefaultPath is read when no path is given. Its absence is not an error.
const DefaultPath = "config.yaml"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	LLM       LLMConfig       `koanf:"llm"`
	Prompts   PromptsConfig   `koanf:"prompts"`
	Tasks     TasksConfig     `koanf:"tasks"`
	Callback  CallbackConfig  `koanf:"callback"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Log       LogConfig       `koanf:"log"`
}

type ServerConfig struct {
	Port           int           `koanf:"port" validate:"min=1,max=65535"`
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`
}

type LLMConfig struct {
	BaseURL         string        `koanf:"base_url" validate:"required,url"`
	APIKey          string        `koanf:"api_key"`
	Model           string        `koanf:"model" validate:"required"`
	Temperature     float64       `koanf:"temperature" validate:"min=0,max=2"`
	MaxTokens       int           `koanf:"max_tokens" validate:"min=0"`
	JSONMode        bool          `koanf:"json_mode"`
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`
	MaxPromptTokens int           `koanf:"max_prompt_tokens" validate:"min=0"`
}

type PromptsConfig struct {
	// Dir holds templates that shadow the embedded ones.
	Dir string `koanf:"dir"`
}

type TasksConfig struct {
	Store         string        `koanf:"store" validate:"oneof=memory sqlite postgres redis"`
	DSN           string        `koanf:"dsn" validate:"required_if=Store sqlite,required_if=Store postgres"`
	RedisAddr     string        `koanf:"redis_addr" validate:"required_if=Store redis"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db" validate:"min=0"`
	TTL           time.Duration `koanf:"ttl" validate:"gt=0"`
	PurgeSchedule string        `koanf:"purge_schedule"`
	Workers       int           `koanf:"workers" validate:"min=1"`
}

type CallbackConfig struct {
	Timeout      time.Duration `koanf:"timeout" validate:"gt=0"`
	Retries      int           `koanf:"retries" validate:"min=0,max=10"`
	AllowPrivate bool          `koanf:"allow_private"`
}

type TelemetryConfig struct {
	ServiceName  string `koanf:"service_name" validate:"required"`
	Exporter     string `koanf:"exporter" validate:"oneof=none stdout otlp"`
	OTLPEndpoint string `koanf:"otlp_endpoint" validate:"omitempty,url"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

var defaults = map[string]any{
	"server.port":            8080,
	"server.request_timeout": "90s",
	"llm.base_url":           "https://api.openai.com/v1",
	"llm.model":              "gpt-4o-mini",
	"llm.temperature":        0.0,
	"llm.json_mode":          true,
	"llm.timeout":            "60s",
	"llm.max_prompt_tokens":  8000,
	"tasks.store":            "memory",
	"tasks.ttl":              "24h",
	"tasks.purge_schedule":   "*/10 * * * *",
	"tasks.workers":          4,
	"callback.timeout":       "10s",
	"callback.retries":       2,
	"telemetry.service_name": "formflow",
	"telemetry.exporter":     "none",
	"log.level":              "info",
	"log.format":             "json",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads path (or DefaultPath when empty), applies environment
// overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.LLM.APIKey = substituteEnvVars(cfg.LLM.APIKey)
	cfg.Tasks.DSN = substituteEnvVars(cfg.Tasks.DSN)
	cfg.Tasks.RedisPassword = substituteEnvVars(cfg.Tasks.RedisPassword)

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
