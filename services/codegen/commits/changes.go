// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package commits

import "sync"

// ChangeKind names the mutation a Change reports.
type ChangeKind string

const (
	ChangeCommitAdded      ChangeKind = "commit_added"
	ChangeCommitRemoved    ChangeKind = "commit_removed"
	ChangeVariantMutated   ChangeKind = "variant_mutated"
	ChangeVariantsResized  ChangeKind = "variants_resized"
	ChangeSelectionChanged ChangeKind = "selection_changed"
	ChangeHeadChanged      ChangeKind = "head_changed"
	ChangeTreeReset        ChangeKind = "tree_reset"
)

// Change is a notification emitted after a successful store mutation.
//
// VariantIndex is -1 when the change is not about a single variant.
type Change struct {
	Kind         ChangeKind
	Hash         Hash
	VariantIndex int
}

// Listener receives store changes. Listeners run synchronously on the
// goroutine that performed the mutation and must not block.
type Listener func(Change)

// subscribers is the listener registry of a Store.
type subscribers struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener
}

func (s *subscribers) add(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listeners == nil {
		s.listeners = make(map[int]Listener)
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *subscribers) emit(changes ...Change) {
	s.mu.Lock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.mu.Unlock()

	for _, c := range changes {
		for _, l := range ls {
			l(c)
		}
	}
}
