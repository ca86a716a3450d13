// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCodegen/services/codegen/commits"
)

// =============================================================================
// Decode
// =============================================================================

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Event
	}{
		{"chunk", `{"type":"chunk","value":"<div>","variantIndex":0}`, Chunk{VariantIndex: 0, Text: "<div>"}},
		{"status", `{"type":"status","value":"Generating code...","variantIndex":1}`, Status{VariantIndex: 1, Text: "Generating code..."}},
		{"setCode", `{"type":"setCode","value":"<p/>","variantIndex":2}`, SetCode{VariantIndex: 2, Code: "<p/>"}},
		{"variantComplete", `{"type":"variantComplete","value":"","variantIndex":0}`, VariantComplete{VariantIndex: 0}},
		{"variantError", `{"type":"variantError","value":"rate limited","variantIndex":3}`, VariantError{VariantIndex: 3, Message: "rate limited"}},
		{"variantCount without index", `{"type":"variantCount","value":"2"}`, VariantCount{Count: 2}},
		{"variantCount with index", `{"type":"variantCount","value":"4","variantIndex":0}`, VariantCount{Count: 4}},
		{"error", `{"type":"error","value":"No OpenAI key"}`, SessionError{Message: "No OpenAI key"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  error
	}{
		{"not json", `{"type":`, ErrMalformedEvent},
		{"array", `[1,2]`, ErrMalformedEvent},
		{"unknown kind", `{"type":"banana","value":"x"}`, ErrUnknownEventKind},
		{"missing kind", `{"value":"x"}`, ErrUnknownEventKind},
		{"chunk missing index", `{"type":"chunk","value":"x"}`, ErrMissingVariantIndex},
		{"complete missing index", `{"type":"variantComplete","value":""}`, ErrMissingVariantIndex},
		{"negative index", `{"type":"chunk","value":"x","variantIndex":-1}`, ErrMalformedEvent},
		{"non-numeric count", `{"type":"variantCount","value":"two"}`, ErrMalformedEvent},
		{"zero count", `{"type":"variantCount","value":"0"}`, ErrMalformedEvent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.frame))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEncode_DecodesBack(t *testing.T) {
	events := []Event{
		Chunk{VariantIndex: 1, Text: "tok"},
		Status{VariantIndex: 0, Text: "Generating"},
		SetCode{VariantIndex: 0, Code: "<html></html>"},
		VariantComplete{VariantIndex: 2},
		VariantError{VariantIndex: 1, Message: "boom"},
		VariantCount{Count: 3},
		SessionError{Message: "bad key"},
	}
	for _, ev := range events {
		t.Run(string(ev.Kind()), func(t *testing.T) {
			data, err := Encode(ev)
			require.NoError(t, err)
			got, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, ev, got)
		})
	}
}

func TestEncode_ErrorHasNoIndex(t *testing.T) {
	data, err := Encode(SessionError{Message: "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","value":"x"}`, string(data))
}

// =============================================================================
// Dispatch
// =============================================================================

type recordingHandler struct {
	calls []string
}

func (r *recordingHandler) HandleChunk(Chunk)                     { r.calls = append(r.calls, "chunk") }
func (r *recordingHandler) HandleStatus(Status)                   { r.calls = append(r.calls, "status") }
func (r *recordingHandler) HandleSetCode(SetCode)                 { r.calls = append(r.calls, "setCode") }
func (r *recordingHandler) HandleVariantComplete(VariantComplete) { r.calls = append(r.calls, "variantComplete") }
func (r *recordingHandler) HandleVariantError(VariantError)       { r.calls = append(r.calls, "variantError") }
func (r *recordingHandler) HandleVariantCount(VariantCount)       { r.calls = append(r.calls, "variantCount") }
func (r *recordingHandler) HandleError(SessionError)              { r.calls = append(r.calls, "error") }

func TestAccept_RoutesEachKind(t *testing.T) {
	h := &recordingHandler{}
	for _, ev := range []Event{
		Chunk{}, Status{}, SetCode{}, VariantComplete{},
		VariantError{}, VariantCount{Count: 1}, SessionError{},
	} {
		ev.Accept(h)
	}
	want := make([]string, len(Kinds))
	for i, k := range Kinds {
		want[i] = string(k)
	}
	assert.Equal(t, want, h.calls)
}

// =============================================================================
// Close codes
// =============================================================================

func TestClassify(t *testing.T) {
	assert.Equal(t, TerminationCompleted, Classify(CloseNormal))
	assert.Equal(t, TerminationCancelled, Classify(CloseUserCancel))
	assert.Equal(t, TerminationServerError, Classify(CloseAppError))
	assert.Equal(t, TerminationAbnormal, Classify(CloseAbnormal))
	assert.Equal(t, TerminationAbnormal, Classify(1011))
	assert.Equal(t, "server_error", TerminationServerError.String())
}

// =============================================================================
// Request
// =============================================================================

func validCreate() Request {
	return Request{
		Settings:       DefaultSettings(),
		GenerationType: GenerationCreate,
		InputMode:      InputImage,
		Prompt:         commits.PromptContent{Text: "", Images: []string{"data:image/png;base64,AAAA"}},
	}
}

func TestRequestValidate(t *testing.T) {
	create := validCreate()
	require.NoError(t, create.Validate())

	update := validCreate()
	update.GenerationType = GenerationUpdate
	update.History = []commits.PromptContent{{Text: "landing page"}, {Text: "make header blue"}}
	require.NoError(t, update.Validate())

	tests := []struct {
		name   string
		mutate func(r *Request)
	}{
		{"missing stack", func(r *Request) { r.GeneratedCodeConfig = "" }},
		{"missing model", func(r *Request) { r.CodeGenerationModel = "" }},
		{"bad generation type", func(r *Request) { r.GenerationType = "delete" }},
		{"bad input mode", func(r *Request) { r.InputMode = "audio" }},
		{"bad base url", func(r *Request) { r.OpenAIBaseURL = "not a url" }},
		{"create with history", func(r *Request) { r.History = []commits.PromptContent{{Text: "x"}} }},
		{"update without history", func(r *Request) { r.GenerationType = GenerationUpdate }},
		{"empty prompt", func(r *Request) { r.Prompt = commits.PromptContent{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validCreate()
			tt.mutate(&r)
			assert.ErrorIs(t, r.Validate(), ErrInvalidRequest)
		})
	}
}

func TestRequest_WireShape(t *testing.T) {
	r := validCreate()
	r.OpenAIAPIKey = "sk-test"
	data, err := json.Marshal(r)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "create", fields["generationType"])
	assert.Equal(t, "html_tailwind", fields["generatedCodeConfig"])
	assert.Equal(t, "sk-test", fields["openAiApiKey"])
	assert.NotContains(t, fields, "history")
	assert.NotContains(t, fields, "Settings", "settings are flattened into the request")
}

func TestRequestClone(t *testing.T) {
	r := validCreate()
	r.History = []commits.PromptContent{{Text: "a", Images: []string{"x"}}}
	c := r.Clone()
	c.Prompt.Images[0] = "changed"
	c.History[0].Images[0] = "changed"
	assert.Equal(t, "data:image/png;base64,AAAA", r.Prompt.Images[0])
	assert.Equal(t, "x", r.History[0].Images[0])
}
