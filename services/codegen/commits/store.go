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

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Store owns the version tree and the head pointer.
//
// # Description
//
// Store is the single writer of commit state. It exposes an action API
// (AddCommit, SetHead, AppendCommitCode, ...) and a pull API (Commit,
// Commits, Head, History). Listeners registered with Subscribe receive a
// Change after every successful mutation.
//
// Code mutations addressed to an unknown commit or variant are logged and
// ignored rather than returned as errors, so one bad index from a live
// stream never aborts the other variants.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	commits  map[Hash]*Commit
	children map[Hash]int
	head     Hash

	logger *slog.Logger
	subs   subscribers
}

// NewStore creates an empty store. A nil logger falls back to slog.Default().
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		commits:  make(map[Hash]*Commit),
		children: make(map[Hash]int),
		logger:   logger.With("component", "commit_store"),
	}
}

// Subscribe registers a listener and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	return s.subs.add(l)
}

// =============================================================================
// Tree mutations
// =============================================================================

// AddCommit inserts a new commit.
//
// # Description
//
// The commit is validated structurally, must not reuse an existing hash,
// and when it has a parent the parent must already be present. The store
// keeps its own copy; later changes to the argument have no effect.
//
// # Outputs
//
//   - error: ErrInvalidCommit, ErrDuplicateHash or ErrDanglingParent.
func (s *Store) AddCommit(c *Commit) error {
	if err := validateCommit(c); err != nil {
		return err
	}

	s.mu.Lock()
	if _, exists := s.commits[c.Hash]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateHash, c.Hash)
	}
	if c.ParentHash != NoHash {
		if _, ok := s.commits[c.ParentHash]; !ok {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s (parent of %s)", ErrDanglingParent, c.ParentHash, c.Hash)
		}
	}
	s.insertLocked(c.Clone())
	s.mu.Unlock()

	s.subs.emit(Change{Kind: ChangeCommitAdded, Hash: c.Hash, VariantIndex: -1})
	return nil
}

func (s *Store) insertLocked(c *Commit) {
	s.commits[c.Hash] = c
	if c.ParentHash != NoHash {
		s.children[c.ParentHash]++
	}
}

// validateCommit checks the rules that do not depend on the tree.
func validateCommit(c *Commit) error {
	if c == nil {
		return fmt.Errorf("%w: nil commit", ErrInvalidCommit)
	}
	if c.Hash == NoHash {
		return fmt.Errorf("%w: empty hash", ErrInvalidCommit)
	}
	if !c.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCommit, c.Type)
	}
	if c.Type.IsRoot() && c.ParentHash != NoHash {
		return fmt.Errorf("%w: %s commit cannot have a parent", ErrInvalidCommit, c.Type)
	}
	if c.Type == TypeEdit && c.ParentHash == NoHash {
		return fmt.Errorf("%w: edit commit requires a parent", ErrInvalidCommit)
	}
	if c.Type == TypeImport && c.Inputs != nil {
		return fmt.Errorf("%w: import commit cannot carry inputs", ErrInvalidCommit)
	}
	if c.Type != TypeImport && c.Inputs == nil {
		return fmt.Errorf("%w: %s commit requires inputs", ErrInvalidCommit, c.Type)
	}
	if len(c.Variants) == 0 {
		return fmt.Errorf("%w: commit has no variants", ErrInvalidCommit)
	}
	if c.SelectedVariantIndex < 0 || c.SelectedVariantIndex >= len(c.Variants) {
		return fmt.Errorf("%w: selected index %d of %d", ErrIndexOutOfRange, c.SelectedVariantIndex, len(c.Variants))
	}
	for i, v := range c.Variants {
		if !v.Status.Valid() {
			return fmt.Errorf("%w: variant %d has unknown status %q", ErrInvalidCommit, i, v.Status)
		}
	}
	return nil
}

// SetHead moves the head. NoHash clears it.
func (s *Store) SetHead(h Hash) error {
	s.mu.Lock()
	if h != NoHash {
		if _, ok := s.commits[h]; !ok {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrUnknownCommit, h)
		}
	}
	changed := s.head != h
	s.head = h
	s.mu.Unlock()

	if changed {
		s.subs.emit(Change{Kind: ChangeHeadChanged, Hash: h, VariantIndex: -1})
	}
	return nil
}

// RemoveCommit deletes a leaf commit.
//
// # Description
//
// Only commits without children can be removed; a commit with children
// returns ErrHasDescendants and the tree is left untouched. If the removed
// commit was the head, the head is cleared (callers usually move it to the
// parent right after).
func (s *Store) RemoveCommit(h Hash) error {
	s.mu.Lock()
	c, ok := s.commits[h]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownCommit, h)
	}
	if n := s.children[h]; n > 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s has %d children", ErrHasDescendants, h, n)
	}
	delete(s.commits, h)
	delete(s.children, h)
	if c.ParentHash != NoHash {
		if s.children[c.ParentHash]--; s.children[c.ParentHash] <= 0 {
			delete(s.children, c.ParentHash)
		}
	}
	headCleared := s.head == h
	if headCleared {
		s.head = NoHash
	}
	s.mu.Unlock()

	changes := []Change{{Kind: ChangeCommitRemoved, Hash: h, VariantIndex: -1}}
	if headCleared {
		changes = append(changes, Change{Kind: ChangeHeadChanged, Hash: NoHash, VariantIndex: -1})
	}
	s.subs.emit(changes...)
	return nil
}

// Reset clears every commit and the head.
func (s *Store) Reset() {
	s.mu.Lock()
	s.commits = make(map[Hash]*Commit)
	s.children = make(map[Hash]int)
	s.head = NoHash
	s.mu.Unlock()

	s.subs.emit(Change{Kind: ChangeTreeReset, VariantIndex: -1})
}

// =============================================================================
// Variant mutations
// =============================================================================

// variantLocked resolves a variant for a code mutation, logging and
// returning nil when the address does not resolve.
func (s *Store) variantLocked(op string, h Hash, index int) *Variant {
	c, ok := s.commits[h]
	if !ok {
		s.logger.Warn("ignoring variant mutation for unknown commit",
			"op", op, "commit", h.Short(), "variant", index)
		return nil
	}
	if index < 0 || index >= len(c.Variants) {
		s.logger.Warn("ignoring variant mutation for out-of-range index",
			"op", op, "commit", h.Short(), "variant", index, "variants", len(c.Variants))
		return nil
	}
	return &c.Variants[index]
}

// mutateCode applies fn to the addressed variant's code, moving a pending
// variant to generating first. Terminal variants are left untouched.
func (s *Store) mutateCode(op string, h Hash, index int, fn func(string) string) {
	s.mu.Lock()
	v := s.variantLocked(op, h, index)
	if v == nil {
		s.mu.Unlock()
		return
	}
	if v.Status.IsTerminal() {
		status := v.Status
		s.mu.Unlock()
		s.logger.Warn("ignoring code mutation on settled variant",
			"op", op, "commit", h.Short(), "variant", index, "status", status)
		return
	}
	if v.Status == StatusPending {
		v.Status = StatusGenerating
	}
	v.Code = fn(v.Code)
	s.mu.Unlock()

	s.subs.emit(Change{Kind: ChangeVariantMutated, Hash: h, VariantIndex: index})
}

// AppendCommitCode concatenates token onto the addressed variant's code.
// Unknown commits and out-of-range indexes are logged and ignored.
func (s *Store) AppendCommitCode(h Hash, index int, token string) {
	s.mutateCode("append", h, index, func(code string) string {
		return code + token
	})
}

// SetCommitCode replaces the addressed variant's code. Same bounds policy
// as AppendCommitCode.
func (s *Store) SetCommitCode(h Hash, index int, code string) {
	s.mutateCode("set", h, index, func(string) string {
		return code
	})
}

// MarkGenerating moves a pending variant to generating. Any other status
// is left alone. Same bounds policy as AppendCommitCode.
func (s *Store) MarkGenerating(h Hash, index int) {
	s.mu.Lock()
	v := s.variantLocked("mark_generating", h, index)
	if v == nil || v.Status != StatusPending {
		s.mu.Unlock()
		return
	}
	v.Status = StatusGenerating
	s.mu.Unlock()

	s.subs.emit(Change{Kind: ChangeVariantMutated, Hash: h, VariantIndex: index})
}

// UpdateVariantStatus sets a variant's status, validated against the
// lifecycle. errorMessage is kept only for StatusError.
func (s *Store) UpdateVariantStatus(h Hash, index int, status VariantStatus, errorMessage string) error {
	s.mu.Lock()
	c, ok := s.commits[h]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownCommit, h)
	}
	if index < 0 || index >= len(c.Variants) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d of %d on %s", ErrIndexOutOfRange, index, len(c.Variants), h.Short())
	}
	v := &c.Variants[index]
	if v.Status == status && status == StatusGenerating {
		s.mu.Unlock()
		return nil
	}
	if err := v.transition(status, errorMessage); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("commit %s variant %d: %w", h.Short(), index, err)
	}
	s.mu.Unlock()

	s.subs.emit(Change{Kind: ChangeVariantMutated, Hash: h, VariantIndex: index})
	return nil
}

// ResizeVariants grows or shrinks a commit's variant list.
//
// # Description
//
// Growing appends fresh pending variants with empty code. Shrinking
// truncates from the end and clamps SelectedVariantIndex to n-1. A
// shrink followed by a regrow therefore yields empty regrown slots.
//
// # Outputs
//
//   - error: ErrUnknownCommit, or ErrInvalidVariantCount when n < 1.
func (s *Store) ResizeVariants(h Hash, n int) error {
	if n < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidVariantCount, n)
	}
	s.mu.Lock()
	c, ok := s.commits[h]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownCommit, h)
	}
	current := len(c.Variants)
	if n == current {
		s.mu.Unlock()
		return nil
	}
	if n > current {
		c.Variants = append(c.Variants, newPendingVariants(n-current)...)
	} else {
		trimmed := make([]Variant, n)
		copy(trimmed, c.Variants[:n])
		c.Variants = trimmed
	}
	selectionClamped := false
	if c.SelectedVariantIndex >= n {
		c.SelectedVariantIndex = n - 1
		selectionClamped = true
	}
	s.mu.Unlock()

	changes := []Change{{Kind: ChangeVariantsResized, Hash: h, VariantIndex: -1}}
	if selectionClamped {
		changes = append(changes, Change{Kind: ChangeSelectionChanged, Hash: h, VariantIndex: n - 1})
	}
	s.subs.emit(changes...)
	return nil
}

// UpdateSelectedVariantIndex selects a variant of a commit.
func (s *Store) UpdateSelectedVariantIndex(h Hash, index int) error {
	s.mu.Lock()
	c, ok := s.commits[h]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownCommit, h)
	}
	if index < 0 || index >= len(c.Variants) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d of %d on %s", ErrIndexOutOfRange, index, len(c.Variants), h.Short())
	}
	c.SelectedVariantIndex = index
	s.mu.Unlock()

	s.subs.emit(Change{Kind: ChangeSelectionChanged, Hash: h, VariantIndex: index})
	return nil
}

// =============================================================================
// Reads
// =============================================================================

// Commit returns a copy of the commit with hash h.
func (s *Store) Commit(h Hash) (*Commit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.commits[h]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// VariantCount returns the number of variants of commit h.
func (s *Store) VariantCount(h Hash) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.commits[h]
	if !ok {
		return 0, false
	}
	return len(c.Variants), true
}

// Commits returns a copy of the whole tree keyed by hash.
func (s *Store) Commits() map[Hash]*Commit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Hash]*Commit, len(s.commits))
	for h, c := range s.commits {
		out[h] = c.Clone()
	}
	return out
}

// Head returns the head hash and whether it is set.
func (s *Store) Head() (Hash, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.head, s.head != NoHash
}

// HeadCommit returns a copy of the head commit, or false when head is null.
func (s *Store) HeadCommit() (*Commit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.head == NoHash {
		return nil, false
	}
	c, ok := s.commits[s.head]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// Children returns the hashes of the direct children of h, oldest first.
func (s *Store) Children(h Hash) []Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Commit
	for _, c := range s.commits {
		if c.ParentHash == h && c.ParentHash != NoHash {
			out = append(out, c)
		}
	}
	sortCommits(out)
	hashes := make([]Hash, len(out))
	for i, c := range out {
		hashes[i] = c.Hash
	}
	return hashes
}

// Len returns the number of commits in the tree.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.commits)
}

// History linearizes the inputs from the root down to the head.
func (s *Store) History() ([]PromptContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.head == NoHash {
		return nil, fmt.Errorf("%w: head is not set", ErrBrokenAncestry)
	}
	return ExtractHistory(s.head, s.commits)
}

// sortCommits orders commits by creation time, then hash.
func sortCommits(cs []*Commit) {
	sort.Slice(cs, func(i, j int) bool {
		if !cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].CreatedAt.Before(cs[j].CreatedAt)
		}
		return cs[i].Hash < cs[j].Hash
	})
}
