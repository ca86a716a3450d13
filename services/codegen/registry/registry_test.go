// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCodegen/services/codegen/protocol"
)

func TestLookups(t *testing.T) {
	c := DefaultCatalog()

	assert.Equal(t, "HTML + Tailwind", c.StackLabel("html_tailwind"))
	assert.Equal(t, "unknown_stack", c.StackLabel("unknown_stack"))
	assert.Equal(t, []string{"React", "Tailwind"}, c.StackComponents("react_tailwind"))
	assert.Empty(t, c.StackComponents("nope"))
	assert.Equal(t, "GPT-5", c.ModelName("gpt-5"))
	assert.Equal(t, "o9", c.ModelName("o9"))

	var nilCatalog *Catalog
	assert.Equal(t, "svg", nilCatalog.StackLabel("svg"))
	assert.Nil(t, nilCatalog.RecommendedCodeModels())
}

func TestSupports(t *testing.T) {
	c := DefaultCatalog()
	assert.True(t, c.Supports("claude-opus-4-5-20251101", protocol.InputVideo, protocol.GenerationUpdate))
	assert.False(t, c.Supports("gpt-5", protocol.InputVideo, protocol.GenerationCreate))
	assert.False(t, c.Supports("gemini-3-pro", protocol.InputImage, protocol.GenerationUpdate))
	assert.False(t, c.Supports("missing", protocol.InputImage, protocol.GenerationCreate))
}

func TestRecommendedCodeModels_FallsBackToAllModels(t *testing.T) {
	c := &Catalog{Models: []Model{{ID: "a"}, {ID: "b"}}}
	assert.Equal(t, []string{"a", "b"}, c.RecommendedCodeModels())
}

func TestReconcile(t *testing.T) {
	c := DefaultCatalog()

	t.Run("known values kept", func(t *testing.T) {
		in := protocol.Settings{GeneratedCodeConfig: "react_tailwind", CodeGenerationModel: "gpt-5"}
		out, changed := c.Reconcile(in)
		assert.Equal(t, in, out)
		assert.Empty(t, changed)
	})

	t.Run("retired values reset to catalog defaults", func(t *testing.T) {
		in := protocol.Settings{
			GeneratedCodeConfig: "flash",
			CodeGenerationModel: "gpt-4-vision",
			AnalysisModel:       "claude-3-opus",
		}
		out, changed := c.Reconcile(in)
		assert.Equal(t, "html_tailwind", out.GeneratedCodeConfig)
		assert.Equal(t, "gpt-5", out.CodeGenerationModel)
		assert.Equal(t, "claude-opus-4-5-20251101", out.AnalysisModel)
		assert.ElementsMatch(t, []string{KeyStack, KeyCodeModel, KeyAnalysisModel}, changed)
	})

	t.Run("empty catalog defaults use built-ins", func(t *testing.T) {
		empty := &Catalog{}
		out, _ := empty.Reconcile(protocol.Settings{})
		assert.Equal(t, protocol.DefaultStack, out.GeneratedCodeConfig)
		assert.Equal(t, protocol.DefaultModel, out.CodeGenerationModel)
		assert.Empty(t, out.AnalysisModel)
	})
}

func TestClientFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(DefaultCatalog())
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", time.Second, nil)
	catalog, err := client.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalog(), catalog)
}

func TestClientFetch_NullDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[],"stacks":[],"defaults":{"analysisModel":null},"recommended":null}`))
	}))
	defer srv.Close()

	catalog, err := NewClient(srv.URL, time.Second, nil).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", catalog.Defaults[KeyAnalysisModel])
	assert.NotNil(t, catalog.Recommended)
}

func TestClientFetch_Errors(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	_, err := NewClient(failing.URL, time.Second, nil).Fetch(context.Background())
	assert.ErrorIs(t, err, ErrRegistryUnavailable)

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer garbage.Close()

	_, err = NewClient(garbage.URL, time.Second, nil).Fetch(context.Background())
	assert.ErrorIs(t, err, ErrRegistryUnavailable)
}
