// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daqingest_test

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/gsi-scu/fgctl/bus"
	"github.com/gsi-scu/fgctl/daqingest"
	"github.com/gsi-scu/fgctl/ring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMem struct{ data []byte }

func newFakeMem(n int) *fakeMem { return &fakeMem{data: make([]byte, n)} }
func (m *fakeMem) ReadAt(p []byte, off int64) (int, error) {
	return copy(p, m.data[off:]), nil
}
func (m *fakeMem) WriteAt(p []byte, off int64) (int, error) {
	if int(off)+len(p) > len(m.data) {
		return 0, io.ErrShortWrite
	}
	return copy(m.data[off:], p), nil
}

type fakeRegistry struct{ slots map[uint8]bool }

func (r *fakeRegistry) IsRegistered(slot uint8) bool { return r.slots[slot] }

func buildBlock(t *testing.T, desc daqingest.Descriptor, nSamples int) []byte {
	t.Helper()
	payload := make([]byte, nSamples*daqingest.SampleSize)
	for i := 0; i < nSamples; i++ {
		binary.BigEndian.PutUint32(payload[i*4:], uint32(1000+i))
	}
	return append(payload, desc.Pack()...)
}

func TestPushBlockReordersDescriptorToHead(t *testing.T) {
	acc := bus.NewAccessor(newFakeMem(1 << 16))
	r := ring.NewAdmin(0, 256)
	registry := &fakeRegistry{slots: map[uint8]bool{4: true}}
	in := daqingest.NewIngest(acc, r, registry, daqingest.Hooks{})

	desc := daqingest.Descriptor{Slot: 4, Channel: 0, Mode: daqingest.ModeContinuous, Sequence: 1, Timestamp: 100, SampleTime: 10}
	nSamples := (daqingest.ShortBlockLen - daqingest.DescriptorSize) / daqingest.SampleSize
	raw := buildBlock(t, desc, nSamples)

	require.NoError(t, in.PushBlock(raw))
	assert.Equal(t, uint32(daqingest.ShortBlockLen/8), r.Size())
}

func TestPushBlockDropsOnBadMode(t *testing.T) {
	acc := bus.NewAccessor(newFakeMem(1 << 16))
	r := ring.NewAdmin(0, 256)
	registry := &fakeRegistry{slots: map[uint8]bool{4: true}}

	var framingErr error
	in := daqingest.NewIngest(acc, r, registry, daqingest.Hooks{
		OnErrorFraming: func(err error) { framingErr = err },
	})

	desc := daqingest.Descriptor{Slot: 4, Channel: 0, Mode: 0, Sequence: 1, Timestamp: 100, SampleTime: 10}
	nSamples := (daqingest.ShortBlockLen - daqingest.DescriptorSize) / daqingest.SampleSize
	raw := buildBlock(t, desc, nSamples)

	require.NoError(t, in.PushBlock(raw))
	assert.Error(t, framingErr)
	assert.Equal(t, uint32(0), r.Size(), "a framing failure must not push anything to the ring")
}

func TestPushBlockCRCMismatchStillDelivered(t *testing.T) {
	acc := bus.NewAccessor(newFakeMem(1 << 16))
	r := ring.NewAdmin(0, 256)
	registry := &fakeRegistry{slots: map[uint8]bool{4: true}}

	var gotDesc daqingest.Descriptor
	var crcFired bool
	in := daqingest.NewIngest(acc, r, registry, daqingest.Hooks{
		OnErrorCRC: func(d daqingest.Descriptor) { crcFired = true; gotDesc = d },
	})

	desc := daqingest.Descriptor{Slot: 4, Channel: 0, Mode: daqingest.ModeContinuous, Sequence: 1, Timestamp: 100, SampleTime: 10}
	nSamples := (daqingest.ShortBlockLen - daqingest.DescriptorSize) / daqingest.SampleSize
	raw := buildBlock(t, desc, nSamples)
	// corrupt the CRC byte directly: it sits at offset 16 of the trailing
	// DescriptorSize-byte descriptor, not at the very end of the block.
	raw[len(raw)-daqingest.DescriptorSize+16] ^= 0xff

	require.NoError(t, in.PushBlock(raw))
	assert.True(t, crcFired)
	assert.Equal(t, uint8(4), gotDesc.Slot)
	assert.Equal(t, uint32(daqingest.ShortBlockLen/8), r.Size(), "CRC mismatch is advisory: the block is still delivered")
}

func TestPushBlockSequenceGapInvokesHook(t *testing.T) {
	acc := bus.NewAccessor(newFakeMem(1 << 16))
	r := ring.NewAdmin(0, 4096)
	registry := &fakeRegistry{slots: map[uint8]bool{4: true}}

	var gapSeen bool
	in := daqingest.NewIngest(acc, r, registry, daqingest.Hooks{
		OnSequenceGap: func(slot, channel, prev, cur uint8) { gapSeen = true },
	})

	nSamples := (daqingest.ShortBlockLen - daqingest.DescriptorSize) / daqingest.SampleSize
	desc1 := daqingest.Descriptor{Slot: 4, Channel: 0, Mode: daqingest.ModeContinuous, Sequence: 1, Timestamp: 100, SampleTime: 10}
	require.NoError(t, in.PushBlock(buildBlock(t, desc1, nSamples)))

	desc2 := desc1
	desc2.Sequence = 5 // advances by 4, not +1
	require.NoError(t, in.PushBlock(buildBlock(t, desc2, nSamples)))

	assert.True(t, gapSeen)
}

func TestPairerBySequenceWaitsOneRoundOnOffByOne(t *testing.T) {
	p := daqingest.NewPairer(daqingest.PolicyBySequence, 0, daqingest.PairHooks{})

	set := daqingest.Block{
		Desc:    daqingest.Descriptor{Sequence: 5, Timestamp: 1000, SampleTime: 10},
		Payload: make([]byte, 4),
	}
	act := daqingest.Block{
		Desc:    daqingest.Descriptor{Sequence: 6, Timestamp: 1005, SampleTime: 10},
		Payload: make([]byte, 4),
	}

	tuples := p.PushSet(1, set)
	assert.Nil(t, tuples, "off-by-one sequence must wait, not pair immediately")

	tuples = p.PushActual(1, act)
	assert.Nil(t, tuples)

	act2 := act
	act2.Desc.Sequence = 5
	tuples = p.PushActual(1, act2)
	require.Len(t, tuples, 1)
}

func TestPairerBySequenceLargeDeviationInvokesHook(t *testing.T) {
	var reason string
	p := daqingest.NewPairer(daqingest.PolicyBySequence, 0, daqingest.PairHooks{
		OnDeviation: func(r string) { reason = r },
	})

	set := daqingest.Block{Desc: daqingest.Descriptor{Sequence: 5}, Payload: make([]byte, 4)}
	act := daqingest.Block{Desc: daqingest.Descriptor{Sequence: 40}, Payload: make([]byte, 4)}

	p.PushSet(1, set)
	tuples := p.PushActual(1, act)
	assert.Nil(t, tuples)
	assert.NotEmpty(t, reason)
}

func TestPairerBySequenceResyncsAfterLargeDeviation(t *testing.T) {
	var hookCalls int
	p := daqingest.NewPairer(daqingest.PolicyBySequence, 0, daqingest.PairHooks{
		OnDeviation: func(string) { hookCalls++ },
	})

	set := daqingest.Block{Desc: daqingest.Descriptor{Sequence: 5}, Payload: make([]byte, 4)}
	act := daqingest.Block{Desc: daqingest.Descriptor{Sequence: 40}, Payload: make([]byte, 4)}

	p.PushSet(1, set)
	tuples := p.PushActual(1, act)
	assert.Nil(t, tuples)
	assert.Equal(t, 1, hookCalls)

	// the stale set (seq=5) must have been discarded by the deviation,
	// not left pending forever: a fresh set matching the pending actual
	// (seq=40) pairs immediately instead of being compared against seq=5.
	nextSet := daqingest.Block{Desc: daqingest.Descriptor{Sequence: 40}, Payload: make([]byte, 4)}
	tuples = p.PushSet(1, nextSet)
	require.Len(t, tuples, 1)
	assert.Equal(t, 1, hookCalls, "resync must not re-trigger the deviation hook")
}

func TestPairerByTimestampWithinTolerance(t *testing.T) {
	p := daqingest.NewPairer(daqingest.PolicyByTimestamp, 2, daqingest.PairHooks{})

	set := daqingest.Block{
		Desc:    daqingest.Descriptor{Timestamp: 1000, SampleTime: 10},
		Payload: make([]byte, 8), // 2 samples
	}
	act := daqingest.Block{
		Desc:    daqingest.Descriptor{Timestamp: 1015, SampleTime: 10}, // within 2*10
		Payload: make([]byte, 8),
	}

	p.PushSet(2, set)
	tuples := p.PushActual(2, act)
	require.Len(t, tuples, 2)
	assert.Equal(t, uint64(1000), tuples[0].Timestamp)
	assert.Equal(t, uint64(1010), tuples[1].Timestamp)
}

func TestMilDaqItemPackUnpackRoundTrip(t *testing.T) {
	item := daqingest.MilDaqItem{Timestamp: 0x1122334455667788, ActValue: -5, SetValue: 42, FgMacro: 7}
	got := daqingest.UnpackMilDaqItem(item.Pack())
	assert.Equal(t, item, got)
}
