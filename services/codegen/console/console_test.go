// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package console

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsole_PerVariant(t *testing.T) {
	c := New(10)
	c.Append(0, "Generating code...")
	c.Append(1, "Generating code...")
	c.Append(0, "Post-processing")

	assert.Equal(t, []string{"Generating code...", "Post-processing"}, c.Lines(0))
	assert.Equal(t, []string{"Generating code..."}, c.Lines(1))
	assert.Nil(t, c.Lines(2))
}

func TestConsole_EvictsOldest(t *testing.T) {
	c := New(3)
	for i := 0; i < 5; i++ {
		c.Append(0, fmt.Sprintf("line %d", i))
	}
	assert.Equal(t, []string{"line 2", "line 3", "line 4"}, c.Lines(0))
	assert.Equal(t, 2, c.Dropped(0))
	assert.Equal(t, 0, c.Dropped(7))
}

func TestConsole_Reset(t *testing.T) {
	c := New(0)
	c.Append(0, "x")
	c.Reset()
	assert.Nil(t, c.Lines(0))
}

func TestConsole_Concurrent(t *testing.T) {
	c := New(1000)
	var wg sync.WaitGroup
	for v := 0; v < 4; v++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.Append(v, "tick")
			}
		}(v)
	}
	wg.Wait()
	for v := 0; v < 4; v++ {
		assert.Len(t, c.Lines(v), 100)
	}
}
