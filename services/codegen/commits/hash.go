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
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
)

// hashEnvelope is the canonical content a commit hash is derived from.
//
// The nonce keeps two otherwise identical attempts (same parent, same
// instruction, same instant) from colliding.
type hashEnvelope struct {
	Type       CommitType     `json:"type"`
	ParentHash Hash           `json:"parent,omitempty"`
	Inputs     *PromptContent `json:"inputs"`
	Code       []string       `json:"code"`
	CreatedAt  int64          `json:"created_at"`
	Nonce      string         `json:"nonce"`
}

// ComputeHash derives a content-addressed hash for a commit.
//
// # Description
//
// Serializes the commit's identity fields plus a random nonce, hashes them
// with SHA2-256 as a multihash, wraps the digest in a CIDv1 (raw codec) and
// returns its base32 multibase encoding.
//
// # Inputs
//
//   - t, parent, inputs: identity fields of the commit.
//   - code: initial code of each variant (empty strings for generations).
//   - createdAt: creation timestamp.
//
// # Outputs
//
//   - Hash: base32 CID string, e.g. "bafkrei...".
//   - error: non-nil if serialization or hashing fails.
func ComputeHash(t CommitType, parent Hash, inputs *PromptContent, code []string, createdAt time.Time) (Hash, error) {
	data, err := json.Marshal(hashEnvelope{
		Type:       t,
		ParentHash: parent,
		Inputs:     inputs,
		Code:       code,
		CreatedAt:  createdAt.UnixNano(),
		Nonce:      uuid.NewString(),
	})
	if err != nil {
		return NoHash, fmt.Errorf("serialize commit: %w", err)
	}
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return NoHash, fmt.Errorf("multihash: %w", err)
	}
	c := gocid.NewCidV1(gocid.Raw, mh)
	encoded, err := multibase.Encode(multibase.Base32, c.Bytes())
	if err != nil {
		return NoHash, fmt.Errorf("encode cid: %w", err)
	}
	return Hash(encoded), nil
}

// NewCommitParams describes a commit to build with NewCommit.
type NewCommitParams struct {
	Type       CommitType
	ParentHash Hash
	Inputs     *PromptContent

	// VariantCount is the number of empty pending variants to create.
	// Ignored when Codes is set.
	VariantCount int

	// Codes pre-populates variants with code. Each becomes a complete
	// variant; used for imports.
	Codes []string
}

// NewCommit builds a commit with a freshly derived hash.
//
// # Description
//
// Generation commits start with VariantCount pending, empty variants.
// Import commits start with one complete variant per entry in Codes.
// The commit is not validated against any tree; Store.AddCommit does that.
func NewCommit(p NewCommitParams) (*Commit, error) {
	var variants []Variant
	var codes []string
	if len(p.Codes) > 0 {
		variants = make([]Variant, len(p.Codes))
		for i, code := range p.Codes {
			variants[i] = Variant{Code: code, Status: StatusComplete}
		}
		codes = p.Codes
	} else {
		n := p.VariantCount
		if n < 1 {
			n = 1
		}
		variants = newPendingVariants(n)
		codes = make([]string, n)
	}

	var inputs *PromptContent
	if p.Inputs != nil {
		in := p.Inputs.Clone()
		inputs = &in
	}

	createdAt := time.Now().UTC()
	hash, err := ComputeHash(p.Type, p.ParentHash, inputs, codes, createdAt)
	if err != nil {
		return nil, err
	}
	return &Commit{
		Hash:       hash,
		Type:       p.Type,
		ParentHash: p.ParentHash,
		Inputs:     inputs,
		Variants:   variants,
		CreatedAt:  createdAt,
	}, nil
}
