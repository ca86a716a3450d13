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
	"errors"
	"fmt"
	"strconv"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrMalformedEvent is returned when a frame is not a valid event object.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrUnknownEventKind is returned for a "type" outside the seven kinds.
	ErrUnknownEventKind = errors.New("unknown event kind")

	// ErrMissingVariantIndex is returned for an index-bearing event without
	// a variantIndex.
	ErrMissingVariantIndex = errors.New("missing variant index")

	// ErrInvalidRequest is returned by Request.Validate.
	ErrInvalidRequest = errors.New("invalid request")
)

// WireEvent is the JSON shape of an event on the channel.
type WireEvent struct {
	Type         EventKind `json:"type"`
	Value        string    `json:"value"`
	VariantIndex *int      `json:"variantIndex,omitempty"`
}

// =============================================================================
// Decoding
// =============================================================================

// Decode parses one inbound frame.
//
// # Description
//
// Decode never panics on hostile input. Callers drop frames that fail to
// decode and keep the channel open.
//
// # Outputs
//
//   - Event: One of the seven event types.
//   - error: ErrMalformedEvent (bad JSON, negative index, non-numeric
//     count), ErrUnknownEventKind, or ErrMissingVariantIndex.
//
// # Examples
//
//	ev, err := protocol.Decode([]byte(`{"type":"chunk","value":"<div>","variantIndex":0}`))
//	// ev == protocol.Chunk{VariantIndex: 0, Text: "<div>"}
func Decode(data []byte) (Event, error) {
	var w WireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return w.Event()
}

// Event converts the wire shape into a typed event.
func (w WireEvent) Event() (Event, error) {
	if !w.Type.known() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventKind, w.Type)
	}
	index := 0
	if w.Type.RequiresVariantIndex() {
		if w.VariantIndex == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingVariantIndex, w.Type)
		}
		index = *w.VariantIndex
		if index < 0 {
			return nil, fmt.Errorf("%w: negative variant index %d", ErrMalformedEvent, index)
		}
	}

	switch w.Type {
	case KindChunk:
		return Chunk{VariantIndex: index, Text: w.Value}, nil
	case KindStatus:
		return Status{VariantIndex: index, Text: w.Value}, nil
	case KindSetCode:
		return SetCode{VariantIndex: index, Code: w.Value}, nil
	case KindVariantComplete:
		return VariantComplete{VariantIndex: index}, nil
	case KindVariantError:
		return VariantError{VariantIndex: index, Message: w.Value}, nil
	case KindVariantCount:
		n, err := strconv.Atoi(w.Value)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: variant count %q", ErrMalformedEvent, w.Value)
		}
		return VariantCount{Count: n}, nil
	default:
		return SessionError{Message: w.Value}, nil
	}
}

func (k EventKind) known() bool {
	for _, kind := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// =============================================================================
// Encoding
// =============================================================================

// Encode renders an event in wire form. variantCount is sent with index 0,
// matching backends that attach an index to every message.
func Encode(e Event) ([]byte, error) {
	var enc encoder
	e.Accept(&enc)
	return json.Marshal(enc.out)
}

type encoder struct {
	out WireEvent
}

func (e *encoder) indexed(kind EventKind, index int, value string) {
	e.out = WireEvent{Type: kind, Value: value, VariantIndex: &index}
}

func (e *encoder) HandleChunk(ev Chunk)     { e.indexed(KindChunk, ev.VariantIndex, ev.Text) }
func (e *encoder) HandleStatus(ev Status)   { e.indexed(KindStatus, ev.VariantIndex, ev.Text) }
func (e *encoder) HandleSetCode(ev SetCode) { e.indexed(KindSetCode, ev.VariantIndex, ev.Code) }
func (e *encoder) HandleVariantComplete(ev VariantComplete) {
	e.indexed(KindVariantComplete, ev.VariantIndex, "")
}
func (e *encoder) HandleVariantError(ev VariantError) {
	e.indexed(KindVariantError, ev.VariantIndex, ev.Message)
}
func (e *encoder) HandleVariantCount(ev VariantCount) {
	e.indexed(KindVariantCount, 0, strconv.Itoa(ev.Count))
}
func (e *encoder) HandleError(ev SessionError) {
	e.out = WireEvent{Type: KindError, Value: ev.Message}
}
