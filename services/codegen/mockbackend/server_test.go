// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mockbackend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianCodegen/services/codegen/commits"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/protocol"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/registry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil))).Handler())
	t.Cleanup(srv.Close)
	return srv
}

// collect sends payload and returns every event until the server closes,
// along with the close code.
func collect(t *testing.T, srv *httptest.Server, payload []byte) ([]protocol.Event, int) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/generate-code"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var events []protocol.Event
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			require.True(t, errors.As(err, &ce), "unexpected read error: %v", err)
			return events, ce.Code
		}
		ev, err := protocol.Decode(data)
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func textRequest(text string) protocol.Request {
	return protocol.Request{
		Settings:       protocol.DefaultSettings(),
		GenerationType: protocol.GenerationCreate,
		InputMode:      protocol.InputText,
		Prompt:         commits.PromptContent{Text: text, Images: []string{}},
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestModels(t *testing.T) {
	srv := newTestServer(t, DefaultConfig())
	resp, err := http.Get(srv.URL + "/models")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got registry.Catalog
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, *registry.DefaultCatalog(), got)
}

func TestRequestsAreTraced(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	cfg := DefaultConfig()
	cfg.TracerProvider = tp
	srv := newTestServer(t, cfg)

	resp, err := http.Get(srv.URL + "/models")
	require.NoError(t, err)
	resp.Body.Close()

	events, code := collect(t, srv, mustJSON(t, textRequest("traced page")))
	assert.Equal(t, protocol.CloseNormal, code)
	assert.NotEmpty(t, events)

	require.Eventually(t, func() bool {
		return len(recorder.Ended()) >= 2
	}, 2*time.Second, 10*time.Millisecond)
	var names []string
	for _, span := range recorder.Ended() {
		assert.Equal(t, trace.SpanKindServer, span.SpanKind())
		names = append(names, span.Name())
	}
	assert.Contains(t, strings.Join(names, " "), "/models")
	assert.Contains(t, strings.Join(names, " "), "/generate-code")
}

func TestGenerate_StreamsEveryVariant(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Variants = 2
	cfg.ChunksPerSecond = 0
	srv := newTestServer(t, cfg)
	req := textRequest("landing page")

	events, code := collect(t, srv, mustJSON(t, req))
	assert.Equal(t, protocol.CloseNormal, code)
	require.NotEmpty(t, events)
	assert.Equal(t, protocol.VariantCount{Count: 2}, events[0])

	// Variants interleave; order holds within each index.
	for index := 0; index < 2; index++ {
		var kinds []protocol.EventKind
		var streamed, final string
		for _, ev := range events[1:] {
			switch e := ev.(type) {
			case protocol.Status:
				if e.VariantIndex == index {
					kinds = append(kinds, e.Kind())
				}
			case protocol.Chunk:
				if e.VariantIndex == index {
					streamed += e.Text
				}
			case protocol.SetCode:
				if e.VariantIndex == index {
					kinds = append(kinds, e.Kind())
					final = e.Code
				}
			case protocol.VariantComplete:
				if e.VariantIndex == index {
					kinds = append(kinds, e.Kind())
				}
			}
		}
		want := Render(req, index)
		assert.Equal(t, want, streamed)
		assert.Equal(t, want, final)
		assert.Equal(t, []protocol.EventKind{
			protocol.KindStatus, protocol.KindStatus, protocol.KindSetCode, protocol.KindVariantComplete,
		}, kinds)
	}
}

func TestGenerate_FailingVariants(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Variants = 3
	srv := newTestServer(t, cfg)

	events, code := collect(t, srv, mustJSON(t, textRequest("please fail")))
	assert.Equal(t, protocol.CloseAppError, code)

	var failed int
	for _, ev := range events {
		if e, ok := ev.(protocol.VariantError); ok {
			failed++
			assert.Equal(t, "Mock generation failed", e.Message)
		}
	}
	assert.Equal(t, 3, failed)
}

func TestGenerate_InvalidJSON(t *testing.T) {
	srv := newTestServer(t, DefaultConfig())

	events, code := collect(t, srv, []byte("{not json"))
	assert.Equal(t, protocol.CloseAppError, code)
	assert.Equal(t, []protocol.Event{protocol.SessionError{Message: "Invalid JSON in request"}}, events)
}

func TestGenerate_InvalidRequest(t *testing.T) {
	srv := newTestServer(t, DefaultConfig())
	req := textRequest("")

	events, code := collect(t, srv, mustJSON(t, req))
	assert.Equal(t, protocol.CloseAppError, code)
	require.Len(t, events, 1)
	assert.IsType(t, protocol.SessionError{}, events[0])
}

func TestGenerate_SessionError(t *testing.T) {
	srv := newTestServer(t, DefaultConfig())

	events, code := collect(t, srv, mustJSON(t, textRequest("trigger a session-error")))
	assert.Equal(t, protocol.CloseAppError, code)
	assert.Equal(t, []protocol.Event{protocol.SessionError{Message: "Mock backend session error"}}, events)
}

func TestRender(t *testing.T) {
	req := textRequest("<script>")
	req.History = []commits.PromptContent{{Text: "first"}, {Text: "make it <b>bold</b>"}}

	doc := Render(req, 1)
	assert.Contains(t, doc, "<h1>make it &lt;b&gt;bold&lt;/b&gt;</h1>")
	assert.Contains(t, doc, "html_tailwind variant 1")
	assert.Contains(t, doc, "<!-- first -->")
	assert.NotContains(t, doc, "<script>")

	assert.Contains(t, Render(textRequest(""), 0), "<h1>Screenshot</h1>")
}
