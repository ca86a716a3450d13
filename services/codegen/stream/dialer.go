// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianCodegen/services/codegen/observability"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/protocol"
)

// Config controls how sessions are opened.
type Config struct {
	// URL is the backend's generation endpoint, e.g. ws://127.0.0.1:7001/generate-code.
	URL string

	// HandshakeTimeout bounds the websocket opening handshake.
	HandshakeTimeout time.Duration

	// IdleTimeout ends a session that receives no frame (event or ping) for
	// this long. Zero disables it.
	IdleTimeout time.Duration

	// MaxMessageBytes bounds outbound and inbound frames.
	MaxMessageBytes int64

	// CloseGrace is how long a cancelled session waits for the backend to
	// finish the closing handshake. Zero means DefaultCloseGrace.
	CloseGrace time.Duration
}

// DefaultConfig returns production defaults for a local backend.
func DefaultConfig() Config {
	return Config{
		URL:              "ws://127.0.0.1:7001/generate-code",
		HandshakeTimeout: 10 * time.Second,
		IdleTimeout:      3 * time.Minute,
		MaxMessageBytes:  protocol.MaxPayloadBytes,
		CloseGrace:       DefaultCloseGrace,
	}
}

// Dialer opens sessions against one backend.
//
// # Thread Safety
//
// Safe for concurrent use; each Open creates an independent session.
type Dialer struct {
	cfg     Config
	dialer  *websocket.Dialer
	logger  *slog.Logger
	metrics *observability.SessionMetrics
}

// NewDialer creates a Dialer. logger and metrics may be nil.
func NewDialer(cfg Config, logger *slog.Logger, metrics *observability.SessionMetrics) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = protocol.MaxPayloadBytes
	}
	return &Dialer{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   64 * 1024,
			WriteBufferSize:  64 * 1024,
		},
		logger:  logger.With("component", "stream"),
		metrics: metrics,
	}
}

// Open validates req, opens a channel and sends req as its only message.
//
// # Description
//
// On success the session is live: events flow to cb from a background
// goroutine until the channel closes, Cancel is called, or ctx is done
// (which cancels the session the same way Cancel does).
//
// # Inputs
//
//   - ctx: Governs the dial and the whole session lifetime.
//   - req: Request to send. Validated before dialing.
//   - cb: Receives events and the termination.
//
// # Outputs
//
//   - *Session: Live session.
//   - error: protocol.ErrInvalidRequest, ErrPayloadTooLarge or ErrDial. No
//     callback runs when Open fails.
//
// # Examples
//
//	s, err := dialer.Open(ctx, req, handler)
//	if err != nil {
//	    return err
//	}
//	res, _ := s.Wait(ctx)
func (d *Dialer) Open(ctx context.Context, req protocol.Request, cb Callbacks) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	if int64(len(payload)) > d.cfg.MaxMessageBytes {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrPayloadTooLarge, len(payload), d.cfg.MaxMessageBytes)
	}

	conn, resp, err := d.dialer.DialContext(ctx, d.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDial, d.cfg.URL, err)
	}
	conn.SetReadLimit(d.cfg.MaxMessageBytes)

	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: sending request: %v", ErrDial, err)
	}

	s := newSession(conn, req, d.cfg, cb, d.logger, d.metrics)
	d.metrics.SessionStarted(string(req.GenerationType))
	s.logger.Info("generation session opened",
		"url", d.cfg.URL,
		"generation_type", req.GenerationType,
		"input_mode", req.InputMode,
		"history", len(req.History),
		"bytes", len(payload),
	)

	go s.readLoop()
	go s.watch(ctx)
	return s, nil
}
