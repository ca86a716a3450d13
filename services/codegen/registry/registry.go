// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry describes the models and output stacks a generation
// backend offers, as served by its GET /models endpoint.
package registry

import (
	"github.com/AleutianAI/AleutianCodegen/services/codegen/protocol"
)

// Provider owns a model.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// Keys of Catalog.Defaults and Catalog.Recommended.
const (
	KeyStack          = "generatedCodeConfig"
	KeyCodeModel      = "codeGenerationModel"
	KeyAnalysisModel  = "analysisModel"
	KeyCodeModels     = "codeGenerationModels"
	KeyAnalysisModels = "analysisModels"
)

// Model is one code generation model.
type Model struct {
	ID                      string   `json:"id"`
	Name                    string   `json:"name"`
	Provider                Provider `json:"provider"`
	SupportsInputModes      []string `json:"supports_input_modes"`
	SupportsGenerationTypes []string `json:"supports_generation_types"`
}

// Stack is one output technology stack.
type Stack struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	Components []string `json:"components"`
	InBeta     bool     `json:"in_beta"`
}

// Catalog is the backend's registry response.
type Catalog struct {
	Models      []Model             `json:"models"`
	Stacks      []Stack             `json:"stacks"`
	Defaults    map[string]string   `json:"defaults"`
	Recommended map[string][]string `json:"recommended"`
}

// Model looks up a model by id.
func (c *Catalog) Model(id string) (Model, bool) {
	if c == nil {
		return Model{}, false
	}
	for _, m := range c.Models {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}

// Stack looks up a stack by id.
func (c *Catalog) Stack(id string) (Stack, bool) {
	if c == nil {
		return Stack{}, false
	}
	for _, s := range c.Stacks {
		if s.ID == id {
			return s, true
		}
	}
	return Stack{}, false
}

// StackLabel returns the display label of a stack, or the id when unknown.
func (c *Catalog) StackLabel(id string) string {
	if s, ok := c.Stack(id); ok {
		return s.Label
	}
	return id
}

// StackComponents returns the components of a stack, empty when unknown.
func (c *Catalog) StackComponents(id string) []string {
	if s, ok := c.Stack(id); ok {
		return s.Components
	}
	return []string{}
}

// ModelName returns the display name of a model, or the id when unknown.
func (c *Catalog) ModelName(id string) string {
	if m, ok := c.Model(id); ok {
		return m.Name
	}
	return id
}

// RecommendedCodeModels returns the recommended code models, falling back
// to every model id.
func (c *Catalog) RecommendedCodeModels() []string {
	if c == nil {
		return nil
	}
	if rec := c.Recommended[KeyCodeModels]; len(rec) > 0 {
		return rec
	}
	ids := make([]string, len(c.Models))
	for i, m := range c.Models {
		ids[i] = m.ID
	}
	return ids
}

// Supports reports whether a model accepts the input mode and generation type.
func (c *Catalog) Supports(modelID string, mode protocol.InputMode, gen protocol.GenerationType) bool {
	m, ok := c.Model(modelID)
	if !ok {
		return false
	}
	return contains(m.SupportsInputModes, string(mode)) &&
		contains(m.SupportsGenerationTypes, string(gen))
}

// Reconcile resets settings the backend no longer offers.
//
// # Description
//
// An unknown or empty stack falls back to the catalog default, then
// protocol.DefaultStack. An unknown or empty code model falls back to the
// catalog default, then protocol.DefaultModel. A set but unknown analysis
// model is replaced by the catalog default (possibly empty).
//
// # Outputs
//
//   - protocol.Settings: Reconciled copy.
//   - []string: Names of the fields that changed, for logging.
func (c *Catalog) Reconcile(s protocol.Settings) (protocol.Settings, []string) {
	var changed []string
	if _, ok := c.Stack(s.GeneratedCodeConfig); !ok || s.GeneratedCodeConfig == "" {
		next := c.defaultOr(KeyStack, protocol.DefaultStack)
		if next != s.GeneratedCodeConfig {
			s.GeneratedCodeConfig = next
			changed = append(changed, KeyStack)
		}
	}
	if _, ok := c.Model(s.CodeGenerationModel); !ok || s.CodeGenerationModel == "" {
		next := c.defaultOr(KeyCodeModel, protocol.DefaultModel)
		if next != s.CodeGenerationModel {
			s.CodeGenerationModel = next
			changed = append(changed, KeyCodeModel)
		}
	}
	if s.AnalysisModel != "" {
		if _, ok := c.Model(s.AnalysisModel); !ok {
			s.AnalysisModel = c.defaultOr(KeyAnalysisModel, "")
			changed = append(changed, KeyAnalysisModel)
		}
	}
	return s, changed
}

func (c *Catalog) defaultOr(key, fallback string) string {
	if c != nil {
		if v := c.Defaults[key]; v != "" {
			return v
		}
	}
	return fallback
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// DefaultCatalog is the registry served by the mock backend.
func DefaultCatalog() *Catalog {
	both := []string{"create", "update"}
	return &Catalog{
		Models: []Model{
			{ID: "gpt-5", Name: "GPT-5", Provider: ProviderOpenAI,
				SupportsInputModes: []string{"image", "text"}, SupportsGenerationTypes: both},
			{ID: "gpt-4.1-2025-04-14", Name: "GPT-4.1", Provider: ProviderOpenAI,
				SupportsInputModes: []string{"image", "text"}, SupportsGenerationTypes: both},
			{ID: "claude-opus-4-5-20251101", Name: "Claude Opus 4.5", Provider: ProviderAnthropic,
				SupportsInputModes: []string{"image", "text", "video"}, SupportsGenerationTypes: both},
			{ID: "claude-sonnet-4-5-20251101", Name: "Claude Sonnet 4.5", Provider: ProviderAnthropic,
				SupportsInputModes: []string{"image", "text", "video"}, SupportsGenerationTypes: both},
			{ID: "gemini-3-pro", Name: "Gemini 3 Pro", Provider: ProviderGemini,
				SupportsInputModes: []string{"image"}, SupportsGenerationTypes: []string{"create"}},
		},
		Stacks: []Stack{
			{ID: "html_css", Label: "HTML + CSS", Components: []string{"HTML", "CSS"}},
			{ID: "html_tailwind", Label: "HTML + Tailwind", Components: []string{"HTML", "Tailwind"}},
			{ID: "react_tailwind", Label: "React + Tailwind", Components: []string{"React", "Tailwind"}},
			{ID: "bootstrap", Label: "Bootstrap", Components: []string{"Bootstrap"}},
			{ID: "vue_tailwind", Label: "Vue + Tailwind", Components: []string{"Vue", "Tailwind"}, InBeta: true},
			{ID: "ionic_tailwind", Label: "Ionic + Tailwind", Components: []string{"Ionic", "Tailwind"}, InBeta: true},
			{ID: "svg", Label: "SVG", Components: []string{"SVG"}, InBeta: true},
		},
		Defaults: map[string]string{
			KeyStack:         "html_tailwind",
			KeyCodeModel:     "gpt-5",
			KeyAnalysisModel: "claude-opus-4-5-20251101",
		},
		Recommended: map[string][]string{
			KeyCodeModels:     {"gpt-5", "claude-sonnet-4-5-20251101", "gemini-3-pro"},
			KeyAnalysisModels: {"claude-opus-4-5-20251101", "gpt-5", "gemini-3-pro"},
		},
	}
}
