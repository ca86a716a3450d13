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

import "fmt"

// Snapshot is a serializable copy of a Store's tree and head.
type Snapshot struct {
	Commits []*Commit `json:"commits"`
	Head    Hash      `json:"head,omitempty"`
}

// Export returns a snapshot of the store with commits ordered oldest first.
func (s *Store) Export() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Commit, 0, len(s.commits))
	for _, c := range s.commits {
		out = append(out, c.Clone())
	}
	sortCommits(out)
	return Snapshot{Commits: out, Head: s.head}
}

// Restore replaces the store contents with a snapshot.
//
// # Description
//
// Commits are inserted parents first regardless of their order in the
// snapshot, with the same validation as AddCommit. On any error the store
// is left unchanged.
//
// # Outputs
//
//   - error: ErrInvalidCommit, ErrDuplicateHash, ErrDanglingParent, or
//     ErrUnknownCommit when the snapshot head does not resolve.
func (s *Store) Restore(snap Snapshot) error {
	staged := make(map[Hash]*Commit, len(snap.Commits))
	for _, c := range snap.Commits {
		if err := validateCommit(c); err != nil {
			return err
		}
		if _, dup := staged[c.Hash]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateHash, c.Hash)
		}
		staged[c.Hash] = c.Clone()
	}
	for _, c := range staged {
		if c.ParentHash == NoHash {
			continue
		}
		if _, ok := staged[c.ParentHash]; !ok {
			return fmt.Errorf("%w: %s (parent of %s)", ErrDanglingParent, c.ParentHash, c.Hash)
		}
	}
	if err := checkAcyclic(staged); err != nil {
		return err
	}
	if snap.Head != NoHash {
		if _, ok := staged[snap.Head]; !ok {
			return fmt.Errorf("%w: snapshot head %s", ErrUnknownCommit, snap.Head)
		}
	}

	s.mu.Lock()
	s.commits = make(map[Hash]*Commit, len(staged))
	s.children = make(map[Hash]int)
	for _, c := range staged {
		s.insertLocked(c)
	}
	s.head = snap.Head
	s.mu.Unlock()

	s.subs.emit(
		Change{Kind: ChangeTreeReset, VariantIndex: -1},
		Change{Kind: ChangeHeadChanged, Hash: snap.Head, VariantIndex: -1},
	)
	return nil
}

// checkAcyclic verifies every commit reaches a root.
func checkAcyclic(tree map[Hash]*Commit) error {
	for h := range tree {
		if _, err := ExtractHistory(h, tree); err != nil {
			return err
		}
	}
	return nil
}
