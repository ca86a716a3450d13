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
	"fmt"
	"io"
	"sync"

	"github.com/AleutianAI/AleutianCodegen/services/codegen/commits"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/orchestrator"
)

// cliNotifier prints user-facing notices to the terminal.
type cliNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

var _ orchestrator.Notifier = (*cliNotifier)(nil)

func (n *cliNotifier) Success(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.w, "✓ %s\n", message)
}

func (n *cliNotifier) Error(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.w, "✗ %s\n", message)
}

// progress prints one line per variant status transition while a
// generation runs.
//
// It is a commits.Listener, so it runs with the orchestrator lock held and
// only reads the store.
type progress struct {
	store *commits.Store
	w     io.Writer

	mu   sync.Mutex
	seen map[string]commits.VariantStatus
}

func newProgress(store *commits.Store, w io.Writer) *progress {
	return &progress{store: store, w: w, seen: make(map[string]commits.VariantStatus)}
}

func (p *progress) listen(ch commits.Change) {
	if ch.Kind != commits.ChangeVariantMutated || ch.VariantIndex < 0 {
		return
	}
	c, ok := p.store.Commit(ch.Hash)
	if !ok || ch.VariantIndex >= len(c.Variants) {
		return
	}
	v := c.Variants[ch.VariantIndex]

	key := fmt.Sprintf("%s/%d", ch.Hash, ch.VariantIndex)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seen[key] == v.Status {
		return
	}
	p.seen[key] = v.Status
	if v.ErrorMessage != "" {
		fmt.Fprintf(p.w, "  option %d: %s (%s)\n", ch.VariantIndex+1, v.Status, v.ErrorMessage)
		return
	}
	fmt.Fprintf(p.w, "  option %d: %s\n", ch.VariantIndex+1, v.Status)
}
