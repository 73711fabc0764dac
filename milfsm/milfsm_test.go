// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package milfsm_test

import (
	"testing"

	"github.com/gsi-scu/fgctl/fgchannel"
	"github.com/gsi-scu/fgctl/fgengine"
	"github.com/gsi-scu/fgctl/milfsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	running  bool
	disabled bool
}

func (c *fakeChannel) SetTag(uint64)                             {}
func (c *fakeChannel) Prepare() error                             { c.running = true; return nil }
func (c *fakeChannel) Start(fgchannel.Segment) error              { return nil }
func (c *fakeChannel) FeedNext(fgchannel.Segment) error           { return nil }
func (c *fakeChannel) DisableIRQ() error                          { return nil }
func (c *fakeChannel) Disable() error                             { c.disabled = true; c.running = false; return nil }
func (c *fakeChannel) ReadStatus() (fgchannel.Status, error)      { return fgchannel.Status{Running: c.running}, nil }
func (c *fakeChannel) ReadSample() (fgchannel.Sample, error)      { return fgchannel.Sample{}, nil }

type fakeRing struct{ segs []fgchannel.Segment }

func (r *fakeRing) PopSegment() (fgchannel.Segment, bool) {
	if len(r.segs) == 0 {
		return fgchannel.Segment{}, false
	}
	seg := r.segs[0]
	r.segs = r.segs[1:]
	return seg, true
}
func (r *fakeRing) Size() uint32 { return uint32(len(r.segs)) }

type fakeEngines struct {
	engines map[int]*fgengine.Engine
	setVal  map[int]int32
}

func (e *fakeEngines) Engine(ch int) (*fgengine.Engine, bool) {
	eng, ok := e.engines[ch]
	return eng, ok
}
func (e *fakeEngines) LastSetValue(ch int) int32 { return e.setVal[ch] }

func newActiveChannel(t *testing.T, ch int, e *fakeEngines) *fgengine.Engine {
	t.Helper()
	c := &fakeChannel{}
	r := &fakeRing{segs: []fgchannel.Segment{{CoeffC: 42}, {CoeffC: 43}}}
	eng := fgengine.NewEngine(c, r, 0, 1_000_000_000)
	_, err := eng.Enable(1)
	require.NoError(t, err)
	e.engines[ch] = eng
	e.setVal[ch] = 42
	return eng
}

func TestLinkRoundTripProducesTuple(t *testing.T) {
	engines := &fakeEngines{engines: map[int]*fgengine.Engine{}, setVal: map[int]int32{}}
	eng := newActiveChannel(t, 3, engines)
	require.Equal(t, fgengine.StateArmed, eng.State())

	link := milfsm.NewLink(0, engines)
	slot, err := link.AllocateSlot(3)
	require.NoError(t, err)
	assert.Equal(t, milfsm.TaskSlot(1), slot)

	link.Enqueue(milfsm.DataRequestMsg{Channel: 3, Timestamp: 1000})

	// WAIT -> FETCH_STATUS (post-IRQ wait disabled by default)
	actions, err := link.Step(1000, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, actions)
	assert.Equal(t, milfsm.StateFetchStatus, link.State())

	// FETCH_STATUS: first call issues the status-request task.
	actions, err = link.Step(1000, nil, nil)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, milfsm.ActionIssueStatusRequest, actions[0].Kind)
	assert.Equal(t, 3, actions[0].Channel)

	// FETCH_STATUS: results arrive, channel has a data request pending.
	actions, err = link.Step(1000, []milfsm.ChannelStatus{{Channel: 3, DataRequest: true}}, nil)
	require.NoError(t, err)
	assert.Empty(t, actions)
	assert.Equal(t, milfsm.StateHandleIRQs, link.State())

	// HANDLE_IRQS: advances the engine (ARMED -> ACTIVE) and requests a read.
	actions, err = link.Step(1000, nil, nil)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, milfsm.ActionIssueDataRead, actions[0].Kind)
	assert.Equal(t, fgengine.StateActive, eng.State())
	assert.Equal(t, milfsm.StateFetchData, link.State())

	// FETCH_DATA: sample resolves into a feedback tuple.
	actions, err = link.Step(1000, nil, []milfsm.Sample{{Channel: 3, Timestamp: 1000, ActValue: 99}})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, milfsm.ActionPushTuple, actions[0].Kind)
	assert.Equal(t, int32(99), actions[0].Tuple.ActValue)
	assert.Equal(t, int32(42), actions[0].Tuple.SetValue)
	assert.False(t, actions[0].Tuple.GapRead)
	assert.Equal(t, milfsm.StateWait, link.State())
}

func TestLinkTaskSlotStableAcrossCalls(t *testing.T) {
	engines := &fakeEngines{engines: map[int]*fgengine.Engine{}, setVal: map[int]int32{}}
	link := milfsm.NewLink(0, engines)

	s1, err := link.AllocateSlot(5)
	require.NoError(t, err)
	s2, err := link.AllocateSlot(6)
	require.NoError(t, err)
	s1Again, err := link.AllocateSlot(5)
	require.NoError(t, err)

	assert.Equal(t, s1, s1Again)
	assert.NotEqual(t, s1, s2)
}

func TestLinkFetchStatusBusyRetriesThenAbandons(t *testing.T) {
	engines := &fakeEngines{engines: map[int]*fgengine.Engine{}, setVal: map[int]int32{}}
	newActiveChannel(t, 1, engines)

	link := milfsm.NewLink(0, engines)
	_, err := link.AllocateSlot(1)
	require.NoError(t, err)
	link.Enqueue(milfsm.DataRequestMsg{Channel: 1, Timestamp: 0})

	_, err = link.Step(0, nil, nil) // WAIT -> FETCH_STATUS
	require.NoError(t, err)
	_, err = link.Step(0, nil, nil) // issue status request
	require.NoError(t, err)

	for i := 0; i < 10001; i++ {
		_, err = link.Step(0, []milfsm.ChannelStatus{{Channel: 1, Err: milfsm.ErrRcvTaskBusy}}, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, milfsm.StateWait, link.State(), "persistent RCV_TASK_BSY must eventually abandon the round")
}

func TestLinkLogsHardwareErrorWithoutHaltingOtherChannels(t *testing.T) {
	engines := &fakeEngines{engines: map[int]*fgengine.Engine{}, setVal: map[int]int32{}}
	newActiveChannel(t, 1, engines)
	newActiveChannel(t, 2, engines)

	link := milfsm.NewLink(0, engines)
	require.NoError(t, mustAllocate(t, link, 1))
	require.NoError(t, mustAllocate(t, link, 2))
	link.Enqueue(milfsm.DataRequestMsg{Channel: 1, Timestamp: 0})

	_, err := link.Step(0, nil, nil)
	require.NoError(t, err)
	_, err = link.Step(0, nil, nil)
	require.NoError(t, err)

	actions, err := link.Step(0, []milfsm.ChannelStatus{
		{Channel: 1, Err: milfsm.ErrRcvParity},
		{Channel: 2, DataRequest: true},
	}, nil)
	require.NoError(t, err)

	var sawErr bool
	for _, a := range actions {
		if a.Kind == milfsm.ActionLogError && a.Channel == 1 {
			sawErr = true
		}
	}
	require.True(t, sawErr)
	assert.Equal(t, milfsm.StateHandleIRQs, link.State())
}

func mustAllocate(t *testing.T, link *milfsm.Link, ch int) error {
	t.Helper()
	_, err := link.AllocateSlot(ch)
	return err
}
