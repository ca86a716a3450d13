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

import "errors"

// Sentinel errors returned by the Store and the history linearizer.
// Callers should match them with errors.Is; returned errors are wrapped
// with the offending hash or index.
var (
	// ErrDuplicateHash is returned when adding a commit whose hash exists.
	ErrDuplicateHash = errors.New("duplicate commit hash")

	// ErrDanglingParent is returned when a commit's parent is not in the tree.
	ErrDanglingParent = errors.New("parent commit does not exist")

	// ErrUnknownCommit is returned when a hash does not resolve.
	ErrUnknownCommit = errors.New("unknown commit")

	// ErrIndexOutOfRange is returned for a variant index outside the commit.
	ErrIndexOutOfRange = errors.New("variant index out of range")

	// ErrHasDescendants is returned when removing a commit that has children.
	ErrHasDescendants = errors.New("commit has descendants")

	// ErrBrokenAncestry is returned when a parent link cannot be followed.
	ErrBrokenAncestry = errors.New("broken commit ancestry")

	// ErrInvalidCommit is returned when a commit violates structural rules.
	ErrInvalidCommit = errors.New("invalid commit")

	// ErrInvalidVariantCount is returned when resizing below one variant.
	ErrInvalidVariantCount = errors.New("variant count must be at least 1")

	// ErrIllegalTransition is returned for a status change the lifecycle forbids.
	ErrIllegalTransition = errors.New("illegal variant status transition")
)
