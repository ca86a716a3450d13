// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package console keeps the per-variant execution log of status lines a
// backend reports while generating.
package console

import "sync"

// DefaultCapacity is the number of lines kept per variant.
const DefaultCapacity = 200

// ring is a fixed-capacity FIFO that overwrites its oldest entry when full.
type ring[T any] struct {
	data    []T
	head    int // next write position
	count   int
	dropped int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{data: make([]T, capacity)}
}

func (r *ring[T]) push(item T) {
	r.data[r.head] = item
	r.head = (r.head + 1) % len(r.data)
	if r.count < len(r.data) {
		r.count++
		return
	}
	r.dropped++
}

// slice returns the entries oldest first.
func (r *ring[T]) slice() []T {
	out := make([]T, r.count)
	start := (r.head - r.count + len(r.data)) % len(r.data)
	for i := 0; i < r.count; i++ {
		out[i] = r.data[(start+i)%len(r.data)]
	}
	return out
}

// Console holds one bounded log per variant index.
//
// # Thread Safety
//
// Safe for concurrent use.
type Console struct {
	mu       sync.Mutex
	capacity int
	logs     map[int]*ring[string]
}

// New creates a console keeping capacity lines per variant. A non-positive
// capacity uses DefaultCapacity.
func New(capacity int) *Console {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Console{capacity: capacity, logs: make(map[int]*ring[string])}
}

// Append adds a line to a variant's log, evicting the oldest when full.
func (c *Console) Append(variantIndex int, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.logs[variantIndex]
	if !ok {
		r = newRing[string](c.capacity)
		c.logs[variantIndex] = r
	}
	r.push(line)
}

// Lines returns a variant's log, oldest first.
func (c *Console) Lines(variantIndex int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.logs[variantIndex]
	if !ok {
		return nil
	}
	return r.slice()
}

// Dropped returns how many lines a variant's log has evicted.
func (c *Console) Dropped(variantIndex int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.logs[variantIndex]; ok {
		return r.dropped
	}
	return 0
}

// Reset clears every log.
func (c *Console) Reset() {
	c.mu.Lock()
	c.logs = make(map[int]*ring[string])
	c.mu.Unlock()
}
