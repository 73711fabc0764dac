// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fgengine_test

import (
	"testing"

	"github.com/gsi-scu/fgctl/fgchannel"
	"github.com/gsi-scu/fgctl/fgengine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	running   bool
	disabled  bool
	prepared  bool
	fedCount  int
	tag       uint64
	rampCount uint32
}

func (c *fakeChannel) SetTag(tag uint64) { c.tag = tag }
func (c *fakeChannel) Prepare() error     { c.prepared = true; c.running = true; return nil }
func (c *fakeChannel) Start(seg fgchannel.Segment) error {
	c.fedCount++
	return nil
}
func (c *fakeChannel) FeedNext(seg fgchannel.Segment) error {
	c.fedCount++
	c.rampCount++
	return nil
}
func (c *fakeChannel) DisableIRQ() error { return nil }
func (c *fakeChannel) Disable() error    { c.disabled = true; c.running = false; return nil }
func (c *fakeChannel) ReadStatus() (fgchannel.Status, error) {
	return fgchannel.Status{Running: c.running}, nil
}
func (c *fakeChannel) ReadSample() (fgchannel.Sample, error) { return fgchannel.Sample{}, nil }
func (c *fakeChannel) RampCount() (uint32, error)            { return c.rampCount, nil }

type fakeRing struct {
	segs []fgchannel.Segment
}

func (r *fakeRing) PopSegment() (fgchannel.Segment, bool) {
	if len(r.segs) == 0 {
		return fgchannel.Segment{}, false
	}
	seg := r.segs[0]
	r.segs = r.segs[1:]
	return seg, true
}

func (r *fakeRing) Size() uint32 { return uint32(len(r.segs)) }

func TestADDACRampThreeSegmentsThenStopEmpty(t *testing.T) {
	ch := &fakeChannel{}
	ring := &fakeRing{segs: []fgchannel.Segment{
		{CoeffA: 100, CoeffB: 200, CoeffC: 300},
		{CoeffA: 110, CoeffB: 200, CoeffC: 300},
		{CoeffA: 120, CoeffB: 200, CoeffC: 300},
	}}
	eng := fgengine.NewEngine(ch, ring, 1, 1_000_000)

	sigs, err := eng.Enable(0x42)
	require.NoError(t, err)
	assert.Equal(t, []fgengine.Signal{fgengine.SigArmed}, sigs)
	assert.Equal(t, fgengine.StateArmed, eng.State())

	sigs, err = eng.OnTimingEvent(1000)
	require.NoError(t, err)
	assert.Equal(t, []fgengine.Signal{fgengine.SigStart}, sigs)
	assert.Equal(t, fgengine.StateActive, eng.State())
	assert.Equal(t, 1, ch.fedCount)

	sigs, err = eng.Tick(2000)
	require.NoError(t, err)
	assert.Empty(t, sigs)

	sigs, err = eng.Tick(3000)
	require.NoError(t, err)
	assert.Contains(t, sigs, fgengine.SigRefill)

	sigs, err = eng.Tick(4000)
	require.NoError(t, err)
	assert.Equal(t, []fgengine.Signal{fgengine.SigStopEmpty}, sigs)
	assert.Equal(t, fgengine.StateStopped, eng.State())
	assert.True(t, ch.disabled)
}

func TestRefillSignalEmittedOnceOnExactThreshold(t *testing.T) {
	ch := &fakeChannel{}
	ring := &fakeRing{segs: make([]fgchannel.Segment, 3)}
	eng := fgengine.NewEngine(ch, ring, 2, 1_000_000)

	_, err := eng.Enable(1)
	require.NoError(t, err)
	_, err = eng.OnTimingEvent(0)
	require.NoError(t, err)

	// size was 3 before the timing-event pop dropped it to 2 == threshold;
	// the first Tick observes size==2 and must emit REFILL exactly once.
	sigs, err := eng.Tick(10)
	require.NoError(t, err)
	assert.Equal(t, []fgengine.Signal{fgengine.SigRefill}, sigs)

	// pushing more segments above threshold re-arms the edge latch.
	ring.segs = append(ring.segs, fgchannel.Segment{}, fgchannel.Segment{}, fgchannel.Segment{})
	for i := 0; i < 2; i++ {
		sigs, err = eng.Tick(uint64(20 + i))
		require.NoError(t, err)
		assert.NotContains(t, sigs, fgengine.SigRefill)
	}
}

func TestWatchdogDisarmsStalledChannel(t *testing.T) {
	ch := &fakeChannel{}
	ring := &fakeRing{segs: []fgchannel.Segment{{}, {}}}
	eng := fgengine.NewEngine(ch, ring, 0, 1000)

	_, err := eng.Enable(0)
	require.NoError(t, err)
	_, err = eng.OnTimingEvent(0)
	require.NoError(t, err)

	sigs, err := eng.Tick(5000) // now > timeoutAt(1000): watchdog fires
	require.NoError(t, err)
	assert.Contains(t, sigs, fgengine.SigStopNotEmpty)
	assert.Equal(t, fgengine.StateStopped, eng.State())
}

func TestDisableFromArmedEmitsDisarmed(t *testing.T) {
	ch := &fakeChannel{}
	ring := &fakeRing{}
	eng := fgengine.NewEngine(ch, ring, 1, 1000)

	_, err := eng.Enable(0)
	require.NoError(t, err)

	sigs, err := eng.Disable()
	require.NoError(t, err)
	assert.Equal(t, []fgengine.Signal{fgengine.SigDisarmed}, sigs)
	assert.True(t, ch.disabled)
}
