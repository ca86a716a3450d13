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

// EventKind is the value of the "type" field of an inbound event.
type EventKind string

const (
	// KindChunk is an incremental token for one variant.
	KindChunk EventKind = "chunk"

	// KindStatus is a human-readable progress line for one variant.
	KindStatus EventKind = "status"

	// KindSetCode replaces one variant's code wholesale.
	KindSetCode EventKind = "setCode"

	// KindVariantComplete ends one variant successfully.
	KindVariantComplete EventKind = "variantComplete"

	// KindVariantError ends one variant with a failure message.
	KindVariantError EventKind = "variantError"

	// KindVariantCount announces how many variants the backend will produce.
	KindVariantCount EventKind = "variantCount"

	// KindError is a session-level failure not tied to a variant.
	KindError EventKind = "error"
)

// Kinds lists every event kind in protocol order.
var Kinds = []EventKind{
	KindChunk, KindStatus, KindSetCode, KindVariantComplete,
	KindVariantError, KindVariantCount, KindError,
}

// RequiresVariantIndex reports whether events of this kind address a variant.
func (k EventKind) RequiresVariantIndex() bool {
	return k != KindVariantCount && k != KindError
}

// Event is one decoded inbound event.
//
// # Description
//
// Event is a closed set: only the seven types in this file implement it.
// Consumers dispatch with Accept, so adding a kind adds a Handler method
// and every handler stops compiling until it is updated.
type Event interface {
	Kind() EventKind
	Accept(h Handler)
	event()
}

// Handler receives each event kind through its own method.
type Handler interface {
	HandleChunk(Chunk)
	HandleStatus(Status)
	HandleSetCode(SetCode)
	HandleVariantComplete(VariantComplete)
	HandleVariantError(VariantError)
	HandleVariantCount(VariantCount)
	HandleError(SessionError)
}

// Chunk appends Text to the addressed variant.
type Chunk struct {
	VariantIndex int
	Text         string
}

// Status is a progress line for the execution console.
type Status struct {
	VariantIndex int
	Text         string
}

// SetCode replaces the addressed variant's code.
type SetCode struct {
	VariantIndex int
	Code         string
}

// VariantComplete marks a variant complete.
type VariantComplete struct {
	VariantIndex int
}

// VariantError marks a variant failed.
type VariantError struct {
	VariantIndex int
	Message      string
}

// VariantCount resizes the commit under generation.
type VariantCount struct {
	Count int
}

// SessionError is surfaced to the user; the channel stays open.
type SessionError struct {
	Message string
}

func (Chunk) Kind() EventKind           { return KindChunk }
func (Status) Kind() EventKind          { return KindStatus }
func (SetCode) Kind() EventKind         { return KindSetCode }
func (VariantComplete) Kind() EventKind { return KindVariantComplete }
func (VariantError) Kind() EventKind    { return KindVariantError }
func (VariantCount) Kind() EventKind    { return KindVariantCount }
func (SessionError) Kind() EventKind    { return KindError }

func (e Chunk) Accept(h Handler)           { h.HandleChunk(e) }
func (e Status) Accept(h Handler)          { h.HandleStatus(e) }
func (e SetCode) Accept(h Handler)         { h.HandleSetCode(e) }
func (e VariantComplete) Accept(h Handler) { h.HandleVariantComplete(e) }
func (e VariantError) Accept(h Handler)    { h.HandleVariantError(e) }
func (e VariantCount) Accept(h Handler)    { h.HandleVariantCount(e) }
func (e SessionError) Accept(h Handler)    { h.HandleError(e) }

func (Chunk) event()           {}
func (Status) event()          {}
func (SetCode) event()         {}
func (VariantComplete) event() {}
func (VariantError) event()    {}
func (VariantCount) event()    {}
func (SessionError) event()    {}
