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

// ExtractHistory builds the ordered instruction history ending at head.
//
// # Description
//
// Follows ParentHash links from head to the root, collecting each commit's
// inputs, and returns them root first. The result has one entry per level,
// so its length equals the depth of head (a root has depth 1).
//
// Import commits carry no inputs; they contribute their selected variant's
// code as the entry text so a follow-up edit sees the imported baseline.
//
// # Inputs
//
//   - head: Hash to start from.
//   - tree: Commits keyed by hash. Not modified.
//
// # Outputs
//
//   - []PromptContent: Copies of the inputs, oldest ancestor first.
//   - error: ErrBrokenAncestry if head or any parent does not resolve, or
//     the parent chain loops.
//
// # Examples
//
//	history, err := commits.ExtractHistory(edit.Hash, store.Commits())
//	// history[0] is the create prompt, history[len-1] the edit instruction.
func ExtractHistory(head Hash, tree map[Hash]*Commit) ([]PromptContent, error) {
	if head == NoHash {
		return nil, fmt.Errorf("%w: empty head", ErrBrokenAncestry)
	}
	var reversed []PromptContent
	current := head
	for steps := 0; current != NoHash; steps++ {
		if steps > len(tree) {
			return nil, fmt.Errorf("%w: cycle detected at %s", ErrBrokenAncestry, current)
		}
		c, ok := tree[current]
		if !ok || c == nil {
			return nil, fmt.Errorf("%w: %s does not resolve", ErrBrokenAncestry, current)
		}
		reversed = append(reversed, historyEntry(c))
		current = c.ParentHash
	}

	out := make([]PromptContent, len(reversed))
	for i, entry := range reversed {
		out[len(reversed)-1-i] = entry
	}
	return out, nil
}

func historyEntry(c *Commit) PromptContent {
	if c.Inputs == nil {
		return PromptContent{Text: c.SelectedVariant().Code, Images: []string{}}
	}
	return c.Inputs.Clone()
}
