// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stream runs one generation request over a websocket channel.
//
// # Description
//
// A Session sends the request once, decodes every inbound frame into a
// protocol.Event, and hands it to the caller's Callbacks. The channel's
// close code decides how the session ended (see protocol.Classify).
//
//	Open ──► send request ──► read loop ──► Callbacks.Handle*
//	                              │
//	                close frame / error / idle timeout / Cancel
//	                              ▼
//	                    Callbacks.OnTerminate (once)
//
// # Thread Safety
//
// Exactly one goroutine reads from the channel. Event handling, Cancel and
// termination share one dispatch lock, so callbacks never run concurrently
// and no event is applied after termination.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianCodegen/services/codegen/observability"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/protocol"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrDial is returned when the channel cannot be opened.
	ErrDial = errors.New("failed to open generation channel")

	// ErrPayloadTooLarge is returned when the encoded request exceeds the
	// configured frame limit.
	ErrPayloadTooLarge = errors.New("request payload too large")

	// ErrIdleTimeout is the cause recorded when no frame arrives within the
	// idle window.
	ErrIdleTimeout = errors.New("generation channel idle timeout")
)

// DefaultCloseGrace bounds how long a cancelled session waits for the
// backend's closing handshake before dropping the connection.
const DefaultCloseGrace = 5 * time.Second

const controlWriteTimeout = time.Second

// =============================================================================
// Callbacks / Result
// =============================================================================

// Callbacks receives a session's events and its single termination.
type Callbacks interface {
	protocol.Handler

	// OnTerminate runs exactly once, after the last event.
	OnTerminate(Result)
}

// Result describes how a session ended.
type Result struct {
	Termination protocol.Termination
	Code        int
	Reason      string

	// Local is true when the client ended the session (Cancel, context,
	// idle timeout) rather than the backend.
	Local bool

	// Cause is the transport error behind an abnormal ending, if any.
	Cause error
}

// Err returns nil for a completed session and a *CloseError otherwise.
func (r Result) Err() error {
	if r.Termination == protocol.TerminationCompleted {
		return nil
	}
	return &CloseError{Result: r}
}

// CloseError is a non-successful session ending.
type CloseError struct {
	Result
}

func (e *CloseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("generation %s (code %d): %v", e.Termination, e.Code, e.Cause)
	}
	return fmt.Sprintf("generation %s (code %d)", e.Termination, e.Code)
}

func (e *CloseError) Unwrap() error {
	return e.Cause
}

// =============================================================================
// Session
// =============================================================================

// Session is one live generation channel.
type Session struct {
	id             string
	conn           *websocket.Conn
	idleTimeout    time.Duration
	closeGrace     time.Duration
	generationType string
	logger         *slog.Logger
	metrics        *observability.SessionMetrics
	openedAt       time.Time

	mu         sync.Mutex
	callbacks  Callbacks
	terminated bool
	sawChunk   bool
	once       sync.Once
	result     Result
	done       chan struct{}

	// Set by Cancel. Only readLoop touches read deadlines; the timer
	// closes a connection whose reader is blocked past the grace period.
	graceDeadline time.Time
	closeTimer    *time.Timer
	readerDone    chan struct{}
}

func newSession(conn *websocket.Conn, req protocol.Request, cfg Config, cb Callbacks,
	logger *slog.Logger, metrics *observability.SessionMetrics) *Session {

	id := uuid.NewString()
	s := &Session{
		id:             id,
		conn:           conn,
		idleTimeout:    cfg.IdleTimeout,
		closeGrace:     cfg.CloseGrace,
		generationType: string(req.GenerationType),
		logger:         logger.With("session_id", id),
		metrics:        metrics,
		openedAt:       time.Now(),
		callbacks:      cb,
		done:           make(chan struct{}),
		readerDone:     make(chan struct{}),
	}
	if s.closeGrace <= 0 {
		s.closeGrace = DefaultCloseGrace
	}
	conn.SetPingHandler(s.handlePing)
	return s
}

// ID returns the session's unique id.
func (s *Session) ID() string {
	return s.id
}

// Done is closed once the session has terminated.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Result returns the termination result. Only meaningful after Done.
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Wait blocks until the session terminates or ctx is done.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	select {
	case <-s.done:
		return s.Result(), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Cancel asks the backend to stop and ends the session locally.
//
// # Description
//
// Sends a close frame with protocol.CloseUserCancel and terminates the
// session immediately with TerminationCancelled, without waiting for the
// backend to acknowledge. A later close frame from the backend is ignored.
// Calling Cancel on a terminated session does nothing.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return
	}
	msg := websocket.FormatCloseMessage(protocol.CloseUserCancel, "user cancelled")
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlWriteTimeout)); err != nil {
		s.logger.Debug("failed to send cancel close frame", "error", err)
	}
	s.graceDeadline = time.Now().Add(s.closeGrace)
	s.closeTimer = time.AfterFunc(s.closeGrace, func() {
		_ = s.conn.Close()
	})
	s.terminateLocked(Result{
		Termination: protocol.TerminationCancelled,
		Code:        protocol.CloseUserCancel,
		Local:       true,
	})
}

// Detach stops delivering events and the termination callback. The channel
// keeps running until it closes; callers that supersede a session call
// Detach then Cancel.
func (s *Session) Detach() {
	s.mu.Lock()
	s.callbacks = nil
	s.mu.Unlock()
}

func (s *Session) handlePing(data string) error {
	_ = s.conn.SetReadDeadline(s.readDeadline())
	err := s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(controlWriteTimeout))
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return nil
	}
	return err
}

// readLoop owns the connection's read side, including its deadline, and
// closes the connection on exit.
func (s *Session) readLoop() {
	defer func() {
		s.mu.Lock()
		if s.closeTimer != nil {
			s.closeTimer.Stop()
		}
		s.mu.Unlock()
		s.conn.Close()
		close(s.readerDone)
	}()
	for {
		_ = s.conn.SetReadDeadline(s.readDeadline())
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.handleReadError(err)
			return
		}
		if msgType != websocket.TextMessage {
			s.metrics.RecordDropped(observability.DropNonTextFrame)
			s.logger.Debug("dropping non-text frame", "type", msgType)
			continue
		}
		s.dispatch(data)
	}
}

// readDeadline is the close grace deadline once cancelled, otherwise the
// idle window from now. The zero time means no deadline.
func (s *Session) readDeadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case !s.graceDeadline.IsZero():
		return s.graceDeadline
	case s.terminated || s.idleTimeout <= 0:
		return time.Time{}
	default:
		return time.Now().Add(s.idleTimeout)
	}
}

// dispatch decodes and applies one frame under the dispatch lock.
func (s *Session) dispatch(data []byte) {
	ev, err := protocol.Decode(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		s.metrics.RecordDropped(observability.DropAfterTermination)
		return
	}
	if err != nil {
		s.dropFrame(err, data)
		return
	}
	if ev.Kind() == protocol.KindChunk && !s.sawChunk {
		s.sawChunk = true
		s.metrics.RecordTimeToFirstChunk(time.Since(s.openedAt).Seconds())
	}
	s.metrics.RecordEvent(string(ev.Kind()))
	if s.callbacks != nil {
		ev.Accept(s.callbacks)
	}
}

func (s *Session) dropFrame(err error, data []byte) {
	switch {
	case errors.Is(err, protocol.ErrMissingVariantIndex):
		s.metrics.RecordDropped(observability.DropMissingIndex)
		s.logger.Debug("dropping event without variant index", "error", err)
	case errors.Is(err, protocol.ErrUnknownEventKind):
		s.metrics.RecordDropped(observability.DropUnknownKind)
		s.logger.Warn("dropping event of unknown kind", "error", err)
	default:
		s.metrics.RecordDropped(observability.DropMalformed)
		s.logger.Warn("dropping malformed event", "error", err, "bytes", len(data))
	}
}

func (s *Session) handleReadError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		s.terminateLocked(Result{
			Termination: protocol.Classify(closeErr.Code),
			Code:        closeErr.Code,
			Reason:      closeErr.Text,
		})
		return
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		s.logger.Warn("generation channel idle, closing", "idle_timeout", s.idleTimeout)
		s.terminateLocked(Result{
			Termination: protocol.TerminationAbnormal,
			Code:        protocol.CloseAbnormal,
			Local:       true,
			Cause:       ErrIdleTimeout,
		})
		return
	}

	s.terminateLocked(Result{
		Termination: protocol.TerminationAbnormal,
		Code:        protocol.CloseAbnormal,
		Cause:       err,
	})
}

// terminateLocked records the result and runs OnTerminate once. Caller holds s.mu.
func (s *Session) terminateLocked(r Result) {
	s.once.Do(func() {
		s.terminated = true
		s.result = r
		elapsed := time.Since(s.openedAt)
		s.metrics.SessionEnded(s.generationType, r.Termination.String(), elapsed.Seconds())

		attrs := []any{"termination", r.Termination.String(), "code", r.Code, "local", r.Local, "elapsed", elapsed}
		if r.Cause != nil {
			attrs = append(attrs, "error", r.Cause)
		}
		if r.Termination == protocol.TerminationAbnormal {
			s.logger.Warn("generation session ended abnormally", attrs...)
		} else {
			s.logger.Info("generation session ended", attrs...)
		}

		if s.callbacks != nil {
			s.callbacks.OnTerminate(r)
		}
		close(s.done)
	})
}

// watch cancels the session when ctx ends first.
func (s *Session) watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		s.logger.Debug("context done, cancelling session", "error", ctx.Err())
		s.Cancel()
	case <-s.done:
	}
}
