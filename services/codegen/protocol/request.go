// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package protocol defines the wire format spoken between the codegen
// client and a generation backend over a websocket channel.
//
// The client sends exactly one Request when the channel opens. The backend
// answers with a stream of JSON events ({type, value, variantIndex?}) and
// terminates the channel with a close code (see close.go).
package protocol

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianCodegen/services/codegen/commits"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxPayloadBytes bounds a single request or event frame.
	MaxPayloadBytes = 8_000_000

	// MaxHistoryEntries bounds the instruction history of an update request.
	MaxHistoryEntries = 256

	// DefaultStack is used when no stack is configured.
	DefaultStack = "html_tailwind"

	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-5"
)

// GenerationType selects between a fresh create and an update of existing code.
type GenerationType string

const (
	GenerationCreate GenerationType = "create"
	GenerationUpdate GenerationType = "update"
)

// InputMode describes what kind of asset the prompt carries.
type InputMode string

const (
	InputImage InputMode = "image"
	InputVideo InputMode = "video"
	InputText  InputMode = "text"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
}

// =============================================================================
// Request Types
// =============================================================================

// Settings are the generation settings merged into every request.
//
// # Description
//
// Credentials are optional; a backend may hold its own keys. Stack and
// model ids are opaque to the client and resolved by the backend registry.
type Settings struct {
	GeneratedCodeConfig      string `json:"generatedCodeConfig" validate:"required"`
	CodeGenerationModel      string `json:"codeGenerationModel" validate:"required"`
	AnalysisModel            string `json:"analysisModel,omitempty"`
	OpenAIAPIKey             string `json:"openAiApiKey,omitempty"`
	OpenAIBaseURL            string `json:"openAiBaseURL,omitempty" validate:"omitempty,url"`
	AnthropicAPIKey          string `json:"anthropicApiKey,omitempty"`
	GeminiAPIKey             string `json:"geminiApiKey,omitempty"`
	ScreenshotOneAPIKey      string `json:"screenshotOneApiKey,omitempty"`
	IsImageGenerationEnabled bool   `json:"isImageGenerationEnabled"`
	EditorTheme              string `json:"editorTheme,omitempty"`
	IsTermOfServiceAccepted  bool   `json:"isTermOfServiceAccepted"`
}

// DefaultSettings returns settings with the default stack and model.
func DefaultSettings() Settings {
	return Settings{
		GeneratedCodeConfig:      DefaultStack,
		CodeGenerationModel:      DefaultModel,
		IsImageGenerationEnabled: true,
	}
}

// WithoutCredentials returns a copy with every API key cleared, for
// anything written to disk.
func (s Settings) WithoutCredentials() Settings {
	s.OpenAIAPIKey = ""
	s.AnthropicAPIKey = ""
	s.GeminiAPIKey = ""
	s.ScreenshotOneAPIKey = ""
	return s
}

// Request is the single message a client sends at channel open.
//
// # Description
//
// A create request carries Prompt only. An update request carries Prompt
// (the original reference asset or text) plus History, the linearized
// instructions from the root commit down to the new edit.
//
// # Validation
//
//   - GenerationType: create or update.
//   - InputMode: image, video or text.
//   - History: required for update, forbidden for create.
//   - Prompt: must carry text or at least one image.
type Request struct {
	Settings
	GenerationType     GenerationType          `json:"generationType" validate:"required,oneof=create update"`
	InputMode          InputMode               `json:"inputMode" validate:"required,oneof=image video text"`
	Prompt             commits.PromptContent   `json:"prompt"`
	History            []commits.PromptContent `json:"history,omitempty" validate:"max=256"`
	IsImportedFromCode bool                    `json:"isImportedFromCode,omitempty"`
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (r *Request) Validate() error {
	if err := requestValidate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	switch r.GenerationType {
	case GenerationCreate:
		if len(r.History) > 0 {
			return fmt.Errorf("%w: create request cannot carry history", ErrInvalidRequest)
		}
		if r.IsImportedFromCode {
			return fmt.Errorf("%w: create request cannot be imported from code", ErrInvalidRequest)
		}
	case GenerationUpdate:
		if len(r.History) == 0 {
			return fmt.Errorf("%w: update request requires history", ErrInvalidRequest)
		}
	}
	if r.Prompt.Text == "" && len(r.Prompt.Images) == 0 && !r.IsImportedFromCode {
		return fmt.Errorf("%w: prompt has neither text nor images", ErrInvalidRequest)
	}
	return nil
}

// Clone returns a deep copy of the request.
func (r Request) Clone() Request {
	out := r
	out.Prompt = r.Prompt.Clone()
	if r.History != nil {
		out.History = make([]commits.PromptContent, len(r.History))
		for i, h := range r.History {
			out.History[i] = h.Clone()
		}
	}
	return out
}
