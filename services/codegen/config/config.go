// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the codegen CLI configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianCodegen/pkg/logging"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/orchestrator"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/protocol"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/stream"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
}

// Config is the on-disk configuration.
type Config struct {
	Backend     BackendConfig     `yaml:"backend"`
	Generation  GenerationConfig  `yaml:"generation"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Session     SessionConfig     `yaml:"session"`
	Logging     LoggingConfig     `yaml:"logging"`
	Storage     StorageConfig     `yaml:"storage"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

type BackendConfig struct {
	WSURL   string `yaml:"ws_url" validate:"required,url"`   // e.g. ws://127.0.0.1:7001/generate-code
	HTTPURL string `yaml:"http_url" validate:"required,url"` // e.g. http://127.0.0.1:7001
}

type GenerationConfig struct {
	Stack           string `yaml:"stack" validate:"required"`
	Model           string `yaml:"model" validate:"required"`
	AnalysisModel   string `yaml:"analysis_model,omitempty"`
	NumVariants     int    `yaml:"num_variants" validate:"min=1,max=4"`
	MaxOptions      int    `yaml:"max_options" validate:"min=1,max=4,gtefield=NumVariants"`
	ImageGeneration bool   `yaml:"image_generation"`
}

// CredentialsConfig holds API keys passed through to the backend. With
// UseEnv, empty keys are read from the environment instead.
type CredentialsConfig struct {
	UseEnv           bool   `yaml:"use_env"`
	OpenAIAPIKey     string `yaml:"openai_api_key,omitempty"`
	OpenAIBaseURL    string `yaml:"openai_base_url,omitempty" validate:"omitempty,url"`
	AnthropicAPIKey  string `yaml:"anthropic_api_key,omitempty"`
	GeminiAPIKey     string `yaml:"gemini_api_key,omitempty"`
	ScreenshotOneKey string `yaml:"screenshotone_api_key,omitempty"`
}

type SessionConfig struct {
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	MaxMessageBytes  int64         `yaml:"max_message_bytes" validate:"min=1024"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json"`
}

type StorageConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// Trace exporters accepted by telemetry.exporter.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

type TelemetryConfig struct {
	Tracing bool `yaml:"tracing"`

	// Exporter is "stdout" (spans printed to stderr) or "otlp" (gRPC to
	// OTLPEndpoint, e.g. a local Jaeger or collector).
	Exporter     string `yaml:"exporter" validate:"omitempty,oneof=stdout otlp"`
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty" validate:"omitempty,hostname_port"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`

	MetricsAddr string `yaml:"metrics_addr,omitempty" validate:"omitempty,hostname_port"`
}

// Environment variables read when credentials.use_env is set.
const (
	EnvOpenAIKey        = "OPENAI_API_KEY"
	EnvOpenAIBaseURL    = "OPENAI_BASE_URL"
	EnvAnthropicKey     = "ANTHROPIC_API_KEY"
	EnvGeminiKey        = "GEMINI_API_KEY"
	EnvScreenshotOneKey = "SCREENSHOTONE_API_KEY"
)

// DefaultConfig targets a backend on localhost.
func DefaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			WSURL:   "ws://127.0.0.1:7001/generate-code",
			HTTPURL: "http://127.0.0.1:7001",
		},
		Generation: GenerationConfig{
			Stack:           protocol.DefaultStack,
			Model:           protocol.DefaultModel,
			NumVariants:     1,
			MaxOptions:      orchestrator.DefaultMaxOptions,
			ImageGeneration: true,
		},
		Credentials: CredentialsConfig{UseEnv: true},
		Session: SessionConfig{
			IdleTimeout:      3 * time.Minute,
			HandshakeTimeout: 10 * time.Second,
			MaxMessageBytes:  protocol.MaxPayloadBytes,
		},
		Logging: LoggingConfig{Level: "info", Dir: "~/.aleutian/logs"},
		Storage: StorageConfig{Path: "~/.aleutian/codegen/projects"},
		Telemetry: TelemetryConfig{
			Exporter:     ExporterStdout,
			OTLPEndpoint: "localhost:4317",
			OTLPInsecure: true,
		},
	}
}

// Validate checks field bounds.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Session.IdleTimeout < 0 || c.Session.HandshakeTimeout < 0 {
		return fmt.Errorf("%w: session timeouts must not be negative", ErrInvalidConfig)
	}
	if c.Telemetry.Exporter == ExporterOTLP && c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("%w: telemetry.otlp_endpoint is required for the otlp exporter", ErrInvalidConfig)
	}
	return nil
}

// Settings builds the request settings, resolving credentials from the
// environment when UseEnv is set.
func (c *Config) Settings() protocol.Settings {
	cred := c.Credentials
	if cred.UseEnv {
		cred.OpenAIAPIKey = firstNonEmpty(cred.OpenAIAPIKey, os.Getenv(EnvOpenAIKey))
		cred.OpenAIBaseURL = firstNonEmpty(cred.OpenAIBaseURL, os.Getenv(EnvOpenAIBaseURL))
		cred.AnthropicAPIKey = firstNonEmpty(cred.AnthropicAPIKey, os.Getenv(EnvAnthropicKey))
		cred.GeminiAPIKey = firstNonEmpty(cred.GeminiAPIKey, os.Getenv(EnvGeminiKey))
		cred.ScreenshotOneKey = firstNonEmpty(cred.ScreenshotOneKey, os.Getenv(EnvScreenshotOneKey))
	}
	return protocol.Settings{
		GeneratedCodeConfig:      c.Generation.Stack,
		CodeGenerationModel:      c.Generation.Model,
		AnalysisModel:            c.Generation.AnalysisModel,
		OpenAIAPIKey:             cred.OpenAIAPIKey,
		OpenAIBaseURL:            cred.OpenAIBaseURL,
		AnthropicAPIKey:          cred.AnthropicAPIKey,
		GeminiAPIKey:             cred.GeminiAPIKey,
		ScreenshotOneAPIKey:      cred.ScreenshotOneKey,
		IsImageGenerationEnabled: c.Generation.ImageGeneration,
	}
}

// StreamConfig returns the session dialer config.
func (c *Config) StreamConfig() stream.Config {
	return stream.Config{
		URL:              c.Backend.WSURL,
		HandshakeTimeout: c.Session.HandshakeTimeout,
		IdleTimeout:      c.Session.IdleTimeout,
		MaxMessageBytes:  c.Session.MaxMessageBytes,
	}
}

// OrchestratorConfig returns the generation defaults.
func (c *Config) OrchestratorConfig() orchestrator.Config {
	cfg := orchestrator.DefaultConfig()
	cfg.Settings = c.Settings()
	cfg.NumVariants = c.Generation.NumVariants
	cfg.MaxOptions = c.Generation.MaxOptions
	return cfg
}

// LoggerConfig returns the logger config for service.
func (c *Config) LoggerConfig(service string) (logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return logging.Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return logging.Config{
		Level:   level,
		LogDir:  c.Logging.Dir,
		Service: service,
		JSON:    c.Logging.JSON,
	}, nil
}

// StoragePath returns the project database directory with ~ expanded.
func (c *Config) StoragePath() string {
	return expandHome(c.Storage.Path)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
