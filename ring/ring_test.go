// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ring_test

import (
	"math/rand"
	"testing"

	"github.com/gsi-scu/fgctl/ring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminSizeAndWrap(t *testing.T) {
	a := ring.NewAdmin(0, 16)
	assert.Zero(t, a.Size())
	assert.Equal(t, uint32(16), a.RemainingCapacity())

	a.Push(5)
	assert.Equal(t, uint32(5), a.Size())
	assert.Equal(t, uint32(11), a.RemainingCapacity())

	a.Acknowledge(3)
	assert.Equal(t, uint32(5), a.Size(), "consumer ack does not move Start until synchronized")

	a.SynchronizeReadIndex()
	assert.Equal(t, uint32(2), a.Size())
	assert.Zero(t, a.WasRead)
}

func TestAdminWrapAroundBoundary(t *testing.T) {
	a := ring.NewAdmin(0, 8)
	a.Start, a.End = 6, 6
	a.Push(5) // wraps past capacity
	assert.Equal(t, uint32(5), a.Size())
	assert.Equal(t, uint32(3), a.End)
}

func TestAdminAddToReadIndexDropsOldest(t *testing.T) {
	a := ring.NewAdmin(0, 16)
	a.Push(10)
	a.AddToReadIndex(4)
	assert.Equal(t, uint32(6), a.Size())
}

func TestAdminInvariantRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a := ring.NewAdmin(0, 16)
	require.True(t, a.Invariant())

	for i := 0; i < 1000; i++ {
		switch rng.Intn(3) {
		case 0:
			n := uint32(rng.Intn(int(a.RemainingCapacity()) + 1))
			a.Push(n)
		case 1:
			n := uint32(rng.Intn(int(a.Size()) + 1))
			a.Acknowledge(n)
			a.SynchronizeReadIndex()
		case 2:
			n := uint32(rng.Intn(int(a.Size()) + 1))
			a.AddToReadIndex(n)
		}
		require.True(t, a.Invariant())
		require.LessOrEqual(t, a.Size(), a.Capacity)
	}
}
