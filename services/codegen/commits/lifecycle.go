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

// VariantStatus is the lifecycle state of a single variant.
//
// # Description
//
//	pending ──► generating ──► complete
//	   │             ├───────► error
//	   │             └───────► cancelled
//	   └──────────────────────► (any terminal state)
//
// complete, error and cancelled are terminal.
type VariantStatus string

const (
	StatusPending    VariantStatus = "pending"
	StatusGenerating VariantStatus = "generating"
	StatusComplete   VariantStatus = "complete"
	StatusError      VariantStatus = "error"
	StatusCancelled  VariantStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed.
func (s VariantStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusError || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s VariantStatus) Valid() bool {
	switch s {
	case StatusPending, StatusGenerating, StatusComplete, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a variant may move from s to next.
//
// generating → generating is accepted as a no-op so the first event of
// every kind can request it without checking first.
func (s VariantStatus) CanTransition(next VariantStatus) bool {
	if !next.Valid() {
		return false
	}
	switch s {
	case StatusPending:
		return next != StatusPending
	case StatusGenerating:
		return next != StatusPending
	default:
		return false
	}
}

// transition validates and applies a status change to v.
func (v *Variant) transition(next VariantStatus, errorMessage string) error {
	if !v.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, v.Status, next)
	}
	v.Status = next
	if next == StatusError {
		v.ErrorMessage = errorMessage
	} else {
		v.ErrorMessage = ""
	}
	return nil
}

// newPendingVariants returns n fresh variants with empty code.
func newPendingVariants(n int) []Variant {
	out := make([]Variant, n)
	for i := range out {
		out[i] = Variant{Status: StatusPending}
	}
	return out
}
