// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCodegen/services/codegen/commits"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/registry"
)

func addCommit(t *testing.T, store *commits.Store, typ commits.CommitType, parent commits.Hash, text string, codes ...string) *commits.Commit {
	t.Helper()
	p := commits.NewCommitParams{Type: typ, ParentHash: parent, Codes: codes}
	if typ != commits.TypeImport {
		p.Inputs = &commits.PromptContent{Text: text, Images: []string{}}
	}
	c, err := commits.NewCommit(p)
	require.NoError(t, err)
	require.NoError(t, store.AddCommit(c))
	return c
}

func TestLoadAssets(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "shot.PNG")
	require.NoError(t, os.WriteFile(png, []byte("\x89PNG\r\n\x1a\npixels"), 0600))
	unknown := filepath.Join(dir, "frame")
	require.NoError(t, os.WriteFile(unknown, []byte("\x89PNG\r\n\x1a\nmore"), 0600))

	assets, err := loadAssets([]string{png, "https://example.com/a.png", "data:image/png;base64,AAAA", unknown})
	require.NoError(t, err)
	require.Len(t, assets, 4)

	assert.True(t, strings.HasPrefix(assets[0], "data:image/png;base64,"))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(assets[0], "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG\r\n\x1a\npixels", string(raw))

	assert.Equal(t, "https://example.com/a.png", assets[1])
	assert.Equal(t, "data:image/png;base64,AAAA", assets[2])
	assert.True(t, strings.HasPrefix(assets[3], "data:image/png;base64,"), "sniffed from content")

	_, err = loadAssets([]string{filepath.Join(dir, "missing.png")})
	assert.Error(t, err)
}

func TestResolveCommit(t *testing.T) {
	store := commits.NewStore(nil)
	root := addCommit(t, store, commits.TypeCreate, commits.NoHash, "root", "<a/>")
	edit := addCommit(t, store, commits.TypeEdit, root.Hash, "edit", "<b/>")

	h, err := resolveCommit(store, root.Hash.String())
	require.NoError(t, err)
	assert.Equal(t, root.Hash, h)

	h, err = resolveCommit(store, edit.Hash.Short())
	require.NoError(t, err)
	assert.Equal(t, edit.Hash, h)

	// Every CID shares its multibase and codec prefix.
	_, err = resolveCommit(store, root.Hash.String()[:3])
	assert.ErrorIs(t, err, ErrAmbiguousCommit)

	_, err = resolveCommit(store, "zzzzzzzzzzzz")
	assert.ErrorIs(t, err, commits.ErrUnknownCommit)

	_, err = resolveCommit(store, " ")
	assert.ErrorIs(t, err, commits.ErrUnknownCommit)
}

func TestContentSnippet(t *testing.T) {
	assert.Equal(t, `"a b"`, contentSnippet(commits.PromptContent{Text: "a\n  b"}))
	assert.Equal(t, "(2 image(s))", contentSnippet(commits.PromptContent{Images: []string{"x", "y"}}))
	assert.Equal(t, `"look" + 1 image(s)`, contentSnippet(commits.PromptContent{Text: "look", Images: []string{"x"}}))

	long := contentSnippet(commits.PromptContent{Text: strings.Repeat("x", 100)})
	assert.Len(t, long, snippetWidth+2)
	assert.True(t, strings.HasSuffix(long, `..."`))
}

func TestRenderLog(t *testing.T) {
	store := commits.NewStore(nil)

	var buf bytes.Buffer
	renderLog(&buf, store)
	assert.Equal(t, "No versions yet.\n", buf.String())

	root := addCommit(t, store, commits.TypeCreate, commits.NoHash, "landing page", "<a/>", "<b/>")
	child := addCommit(t, store, commits.TypeEdit, root.Hash, "darker", "<c/>")
	require.NoError(t, store.SetHead(child.Hash))

	buf.Reset()
	renderLog(&buf, store)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "  "+root.Hash.Short()))
	assert.Contains(t, lines[0], `2 options "landing page"`)
	assert.True(t, strings.HasPrefix(lines[1], "*   "+child.Hash.Short()), lines[1])
	assert.Contains(t, lines[1], `1 option  "darker"`)
}

func TestRenderHistory(t *testing.T) {
	store := commits.NewStore(nil)
	imported := addCommit(t, store, commits.TypeImport, commits.NoHash, "", "<main/>")
	edit := addCommit(t, store, commits.TypeEdit, imported.Hash, "add nav", "<main><nav/></main>")
	require.NoError(t, store.SetHead(edit.Hash))

	var buf bytes.Buffer
	require.NoError(t, renderHistory(&buf, store))
	assert.Equal(t, "1. (imported code)\n2. \"add nav\"\n", buf.String())
}

func TestDescribeCommit(t *testing.T) {
	store := commits.NewStore(nil)
	c, err := commits.NewCommit(commits.NewCommitParams{
		Type:         commits.TypeCreate,
		Inputs:       &commits.PromptContent{Text: "x", Images: []string{}},
		VariantCount: 2,
	})
	require.NoError(t, err)
	require.NoError(t, store.AddCommit(c))
	require.NoError(t, store.UpdateVariantStatus(c.Hash, 0, commits.StatusComplete, ""))
	require.NoError(t, store.UpdateVariantStatus(c.Hash, 1, commits.StatusError, "boom"))
	c, _ = store.Commit(c.Hash)
	assert.Equal(t, "Version "+c.Hash.Short()+": 1 of 2 options complete, option 1 selected (1 failed)", describeCommit(c))
}

func TestRenderCatalog(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderCatalog(&buf, registry.DefaultCatalog()))
	out := buf.String()

	assert.NotContains(t, out, "│")
	assert.NotContains(t, out, "─")
	lines := strings.Split(out, "\n")
	require.True(t, strings.HasPrefix(lines[0], "MODEL"), lines[0])
	for _, line := range lines {
		assert.Equal(t, strings.TrimRight(line, " "), line, "trailing padding")
	}

	// Columns line up under their headers.
	nameCol := strings.Index(lines[0], "NAME")
	require.Positive(t, nameCol)
	assert.Equal(t, nameCol, strings.Index(lines[1], registry.DefaultCatalog().Models[0].Name))
	assert.Contains(t, out, "default generatedCodeConfig: html_tailwind")
}
