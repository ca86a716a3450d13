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
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianCodegen/services/codegen/config"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/mockbackend"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// syncBuffer is written by session goroutines and the command at once.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// cliEnv is an isolated home directory with a config pointing at a mock
// backend.
type cliEnv struct {
	t          *testing.T
	configPath string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	mock := mockbackend.New(mockbackend.Config{Variants: 2, ChunkSize: 64},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(mock.Handler())
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.Backend.WSURL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/generate-code"
	cfg.Backend.HTTPURL = srv.URL
	cfg.Generation.NumVariants = 2
	cfg.Credentials.UseEnv = false

	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(home, "codegen.yaml")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return &cliEnv{t: t, configPath: path}
}

func (e *cliEnv) run(args ...string) (stdout, stderr string, err error) {
	e.t.Helper()
	root := newRootCmd()
	var out, errOut syncBuffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", e.configPath}, args...))
	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	stdout, stderr, err := e.run(args...)
	require.NoError(e.t, err, "stderr: %s", stderr)
	return stdout
}

func TestCLI_CreateEditAndNavigate(t *testing.T) {
	env := newCLIEnv(t)

	stdout, stderr, err := env.run("create", "--text", "a login page")
	require.NoError(t, err, stderr)
	assert.Contains(t, stdout, "<h1>a login page</h1>")
	assert.Contains(t, stdout, "variant 0")
	assert.Contains(t, stderr, "2 of 2 options complete")

	log := env.mustRun("log")
	assert.Contains(t, log, "* ")
	assert.Contains(t, log, "create")
	assert.Contains(t, log, `"a login page"`)

	stdout = env.mustRun("edit", "make", "it", "blue")
	assert.Contains(t, stdout, "<h1>make it blue</h1>")

	history := env.mustRun("history")
	assert.Equal(t, "1. \"a login page\"\n2. \"make it blue\"\n", history)

	assert.Contains(t, env.mustRun("select", "2"), "Selected option 2")
	assert.Contains(t, env.mustRun("show"), "variant 1")
	assert.Contains(t, env.mustRun("show", "--option", "1"), "variant 0")

	// Check out the create commit by the short hash printed in the log.
	var rootShort string
	for _, line := range strings.Split(env.mustRun("log"), "\n") {
		if strings.Contains(line, "create") {
			rootShort = strings.Fields(strings.TrimPrefix(line, "*"))[0]
		}
	}
	require.NotEmpty(t, rootShort)
	assert.Contains(t, env.mustRun("checkout", rootShort), rootShort)
	assert.Contains(t, env.mustRun("show"), "<h1>a login page</h1>")
	assert.Equal(t, "1. \"a login page\"\n", env.mustRun("history"))

	projects := env.mustRun("projects", "list")
	assert.Contains(t, projects, "default")
	assert.Contains(t, projects, rootShort)
}

func TestCLI_AddOption(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("create", "--text", "pricing table")

	_, stderr, err := env.run("add-option")
	require.NoError(t, err, stderr)
	assert.Contains(t, stderr, "option 3 selected")

	code := env.mustRun("show", "--option", "3")
	assert.Contains(t, code, "</html>")

	_, _, err = env.run("show", "--option", "4")
	assert.Error(t, err)
}

func TestCLI_FailedCreateRollsBack(t *testing.T) {
	env := newCLIEnv(t)

	_, stderr, err := env.run("create", "--text", "please fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server_error")
	assert.Contains(t, stderr, "Mock generation failed")

	assert.Contains(t, env.mustRun("log"), "No versions yet.")
}

func TestCLI_ImportAndReset(t *testing.T) {
	env := newCLIEnv(t)
	file := filepath.Join(t.TempDir(), "index.html")
	require.NoError(t, os.WriteFile(file, []byte("<main>hello</main>"), 0600))

	assert.Contains(t, env.mustRun("import", file, "--stack", "html_css"), "Imported")
	assert.Equal(t, "<main>hello</main>\n", env.mustRun("show"))
	assert.Equal(t, "1. (imported code)\n", env.mustRun("history"))

	stdout := env.mustRun("edit", "add a footer")
	assert.Contains(t, stdout, "html_css variant")

	env.mustRun("reset")
	assert.Contains(t, env.mustRun("log"), "No versions yet.")
}

func TestCLI_SeparateProjects(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("--project", "one", "create", "--text", "first")
	env.mustRun("--project", "two", "create", "--text", "second")

	assert.Contains(t, env.mustRun("--project", "one", "show"), "<h1>first</h1>")
	assert.Contains(t, env.mustRun("--project", "two", "show"), "<h1>second</h1>")

	assert.Contains(t, env.mustRun("projects", "delete", "one"), "Deleted project one")
	list := env.mustRun("projects", "list")
	assert.NotRegexp(t, `(?m)^one\s`, list)
	assert.Regexp(t, `(?m)^two\s`, list)
}

func TestCLI_Models(t *testing.T) {
	env := newCLIEnv(t)
	stdout := env.mustRun("models")
	assert.Contains(t, stdout, "gpt-5")
	assert.Contains(t, stdout, "GPT-5 (recommended)")
	assert.Contains(t, stdout, "Vue + Tailwind (beta)")
	assert.Contains(t, stdout, "default generatedCodeConfig: html_tailwind")
}

func TestCLI_UsageErrors(t *testing.T) {
	env := newCLIEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"create without input", []string{"create"}},
		{"text with images", []string{"create", "--text", "x", "shot.png"}},
		{"missing image file", []string{"create", "does-not-exist.png"}},
		{"edit without a version", []string{"edit", "make it red"}},
		{"add option without a version", []string{"add-option"}},
		{"regenerate without inputs", []string{"regenerate"}},
		{"select not a number", []string{"select", "two"}},
		{"checkout unknown", []string{"checkout", "nope"}},
		{"delete unknown project", []string{"projects", "delete", "ghost"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.run(tt.args...)
			assert.Error(t, err)
		})
	}
}
