// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mockbackend is a local generation backend that speaks the full
// channel protocol without calling any model.
//
// # Description
//
// It serves GET /models (the registry) and GET /generate-code (websocket).
// Each variant streams a status line, the generated document in chunks, a
// setCode pass and a variantComplete. Magic words in the prompt text drive
// failure paths for tests and demos:
//
//   - "fail": every variant ends with variantError, then close 4332.
//   - "session-error": an error event, then close 4332.
//   - "stall": nothing is sent until the client closes.
//   - "drop": the connection is dropped without a close frame.
package mockbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianCodegen/services/codegen/protocol"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/registry"
)

// =============================================================================
// Configuration
// =============================================================================

// MaxVariants bounds Config.Variants.
const MaxVariants = 4

// ServiceName names the server spans.
const ServiceName = "codegen-mock-backend"

// Config controls the mock's output.
type Config struct {
	// Variants is the number of candidates announced per request (1..4).
	Variants int

	// ChunkSize is the number of bytes per chunk event.
	ChunkSize int

	// ChunksPerSecond paces chunk emission per variant. Zero means unpaced.
	ChunksPerSecond float64

	// Catalog is served from /models. Nil serves registry.DefaultCatalog().
	Catalog *registry.Catalog

	// Debug enables gin's request logger.
	Debug bool

	// TracerProvider records a server span per request. Nil uses the
	// global provider.
	TracerProvider trace.TracerProvider
}

// DefaultConfig returns a single-variant, lightly paced mock.
func DefaultConfig() Config {
	return Config{
		Variants:        1,
		ChunkSize:       16,
		ChunksPerSecond: 200,
	}
}

// =============================================================================
// Server
// =============================================================================

// Server is the mock backend.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	router   *gin.Engine
	upgrader websocket.Upgrader
}

// New builds the server and its routes.
func New(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Variants < 1 {
		cfg.Variants = 1
	}
	if cfg.Variants > MaxVariants {
		cfg.Variants = MaxVariants
	}
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if cfg.Catalog == nil {
		cfg.Catalog = registry.DefaultCatalog()
	}

	s := &Server{
		cfg:    cfg,
		logger: logger.With("component", "mock_backend"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
		},
	}

	router := gin.New()
	router.Use(gin.Recovery())
	var traceOpts []otelgin.Option
	if cfg.TracerProvider != nil {
		traceOpts = append(traceOpts, otelgin.WithTracerProvider(cfg.TracerProvider))
	}
	router.Use(otelgin.Middleware(ServiceName, traceOpts...))
	if cfg.Debug {
		router.Use(gin.Logger())
	}
	router.GET("/models", s.handleModels)
	router.GET("/generate-code", s.handleGenerate)
	s.router = router
	return s
}

// Handler returns the HTTP handler, for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("mock backend listening", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down mock backend: %w", err)
		}
		return nil
	}
}

func (s *Server) handleModels(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Catalog)
}

// =============================================================================
// Generation
// =============================================================================

// channel serializes writes on one websocket connection.
type channel struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (ch *channel) send(ev protocol.Event) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.conn.WriteMessage(websocket.TextMessage, data)
}

func (ch *channel) close(code int, reason string) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = ch.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func (s *Server) handleGenerate(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("failed to upgrade the websocket", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(protocol.MaxPayloadBytes)
	ch := &channel{conn: conn}

	_, data, err := conn.ReadMessage()
	if err != nil {
		s.logger.Warn("failed to read generation request", "error", err)
		return
	}
	var req protocol.Request
	if err := json.Unmarshal(data, &req); err != nil {
		s.throwError(ch, "Invalid JSON in request")
		return
	}
	if err := req.Validate(); err != nil {
		s.throwError(ch, err.Error())
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		defer cancel()
		// The default close handler echoes the client's close frame.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				var closeErr *websocket.CloseError
				if errors.As(err, &closeErr) {
					s.logger.Info("client closed generation", "code", closeErr.Code)
				}
				return
			}
		}
	}()

	text := strings.ToLower(promptText(req))
	switch {
	case strings.Contains(text, "session-error"):
		s.throwError(ch, "Mock backend session error")
		return
	case strings.Contains(text, "stall"):
		<-clientGone
		return
	case strings.Contains(text, "drop"):
		if nc := conn.NetConn(); nc != nil {
			_ = nc.Close()
		}
		return
	}

	if err := ch.send(protocol.VariantCount{Count: s.cfg.Variants}); err != nil {
		return
	}

	failing := strings.Contains(text, "fail")
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.Variants; i++ {
		index := i
		g.Go(func() error {
			return s.streamVariant(gctx, ch, req, index, failing)
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			s.logger.Info("generation cancelled by client")
			return
		}
		s.logger.Warn("variant stream failed", "error", err)
		return
	}

	if failing {
		ch.close(protocol.CloseAppError, "variants failed")
	} else {
		ch.close(protocol.CloseNormal, "")
	}
	select {
	case <-clientGone:
	case <-time.After(2 * time.Second):
	}
}

// throwError reports a session-level failure and closes with the
// application error code.
func (s *Server) throwError(ch *channel, message string) {
	s.logger.Warn("rejecting generation request", "reason", message)
	_ = ch.send(protocol.SessionError{Message: message})
	ch.close(protocol.CloseAppError, message)
}

func (s *Server) streamVariant(ctx context.Context, ch *channel, req protocol.Request, index int, failing bool) error {
	if err := ch.send(protocol.Status{VariantIndex: index, Text: "Generating code..."}); err != nil {
		return err
	}
	if failing {
		return ch.send(protocol.VariantError{VariantIndex: index, Message: "Mock generation failed"})
	}

	var limiter *rate.Limiter
	if s.cfg.ChunksPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.ChunksPerSecond), 1)
	}
	doc := Render(req, index)
	for start := 0; start < len(doc); start += s.cfg.ChunkSize {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+s.cfg.ChunkSize, len(doc))
		if err := ch.send(protocol.Chunk{VariantIndex: index, Text: doc[start:end]}); err != nil {
			return err
		}
	}

	if err := ch.send(protocol.Status{VariantIndex: index, Text: "Post-processing"}); err != nil {
		return err
	}
	if err := ch.send(protocol.SetCode{VariantIndex: index, Code: doc}); err != nil {
		return err
	}
	return ch.send(protocol.VariantComplete{VariantIndex: index})
}

// Render returns the document the mock produces for a variant.
func Render(req protocol.Request, index int) string {
	title := promptText(req)
	if title == "" {
		title = "Screenshot"
	}
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<h1>%s</h1>", html.EscapeString(title))
	fmt.Fprintf(&b, "<p>%s variant %d</p>", req.GeneratedCodeConfig, index)
	for _, h := range req.History {
		fmt.Fprintf(&b, "<!-- %s -->", html.EscapeString(h.Text))
	}
	b.WriteString("</body></html>")
	return b.String()
}

// promptText is the instruction the mock reacts to: the newest history
// entry for updates, the prompt text otherwise.
func promptText(req protocol.Request) string {
	if n := len(req.History); n > 0 {
		return req.History[n-1].Text
	}
	return req.Prompt.Text
}
