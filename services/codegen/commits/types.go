// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package commits implements the version tree behind iterative code
// generation.
//
// # Description
//
// Every generation attempt is recorded as a Commit holding one or more
// candidate outputs (Variants). Commits form a rooted tree through their
// ParentHash field. A single Head names the checked-out commit.
//
//	create (root) ── edit ── edit (head)
//	                    └── edit
//
// The Store owns the tree and the head. Commits are immutable in their
// identity fields (Hash, Type, ParentHash, Inputs); only variant code,
// variant status and the selected variant index change after creation.
//
// # Thread Safety
//
// Store is safe for concurrent use. Each mutation is applied atomically
// under the store lock and subscribers are notified after the lock is
// released.
package commits

import (
	"time"
)

// Hash identifies a commit. The empty Hash means "no commit".
type Hash string

// NoHash is the null hash used for root commits and an empty head.
const NoHash Hash = ""

// String returns the hash as a string.
func (h Hash) String() string {
	return string(h)
}

// Short returns the last 8 characters of the hash for display.
func (h Hash) Short() string {
	if len(h) <= 8 {
		return string(h)
	}
	return string(h[len(h)-8:])
}

// CommitType is the kind of attempt a commit records.
type CommitType string

const (
	// TypeCreate is a root commit synthesized from a prompt.
	TypeCreate CommitType = "create"

	// TypeEdit is a child commit synthesized from an edit instruction.
	TypeEdit CommitType = "edit"

	// TypeImport is a root commit holding externally supplied code.
	TypeImport CommitType = "import"
)

// IsRoot reports whether commits of this type have no parent.
func (t CommitType) IsRoot() bool {
	return t == TypeCreate || t == TypeImport
}

// Valid reports whether t is a known commit type.
func (t CommitType) Valid() bool {
	switch t {
	case TypeCreate, TypeEdit, TypeImport:
		return true
	default:
		return false
	}
}

// PromptContent is the text and ordered image references that produced a
// commit. Images are data URLs or remote URLs; the store never inspects them.
type PromptContent struct {
	Text   string   `json:"text"`
	Images []string `json:"images"`
}

// Clone returns a deep copy of the prompt content.
func (p PromptContent) Clone() PromptContent {
	images := make([]string, len(p.Images))
	copy(images, p.Images)
	return PromptContent{Text: p.Text, Images: images}
}

// Variant is one candidate code output within a commit.
type Variant struct {
	Code         string        `json:"code"`
	Status       VariantStatus `json:"status"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
}

// Commit is one node of the version tree.
//
// # Description
//
// Hash, Type, ParentHash, Inputs and CreatedAt never change once the
// commit is added to a Store. Variants is never empty and
// SelectedVariantIndex always addresses one of them.
type Commit struct {
	Hash                 Hash           `json:"hash"`
	Type                 CommitType     `json:"type"`
	ParentHash           Hash           `json:"parentHash,omitempty"`
	Inputs               *PromptContent `json:"inputs"`
	Variants             []Variant      `json:"variants"`
	SelectedVariantIndex int            `json:"selectedVariantIndex"`
	CreatedAt            time.Time      `json:"createdAt"`
}

// Clone returns a deep copy so callers outside the store cannot mutate
// store-owned state.
func (c *Commit) Clone() *Commit {
	if c == nil {
		return nil
	}
	out := *c
	if c.Inputs != nil {
		in := c.Inputs.Clone()
		out.Inputs = &in
	}
	out.Variants = make([]Variant, len(c.Variants))
	copy(out.Variants, c.Variants)
	return &out
}

// SelectedVariant returns the currently selected variant.
func (c *Commit) SelectedVariant() Variant {
	if c.SelectedVariantIndex < 0 || c.SelectedVariantIndex >= len(c.Variants) {
		return Variant{}
	}
	return c.Variants[c.SelectedVariantIndex]
}

// IsSettled reports whether every variant has reached a terminal status.
func (c *Commit) IsSettled() bool {
	for _, v := range c.Variants {
		if !v.Status.IsTerminal() {
			return false
		}
	}
	return true
}
