// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package milfsm implements the cooperative finite-state machine that
// multiplexes multiple MIL serial links through a shared task-queue
// interface: one Link per physical link, scheduled round-robin by a task
// loop or interrupt tick, driving the fgengine state machine of whichever
// channel raised a data request.
package milfsm // import "github.com/gsi-scu/fgctl/milfsm"

import (
	"golang.org/x/xerrors"

	"github.com/gsi-scu/fgctl/fgengine"
)

// LinkState is one state of a single link's cooperative FSM.
type LinkState int

const (
	StateWait LinkState = iota
	StatePostIRQWait
	StateFetchStatus
	StateHandleIRQs
	StateFetchData
)

func (s LinkState) String() string {
	switch s {
	case StateWait:
		return "WAIT"
	case StatePostIRQWait:
		return "POST_IRQ_WAIT"
	case StateFetchStatus:
		return "FETCH_STATUS"
	case StateHandleIRQs:
		return "HANDLE_IRQS"
	case StateFetchData:
		return "FETCH_DATA"
	default:
		return "UNKNOWN"
	}
}

// HWError is one of the hardware error codes a status or task-request
// primitive may report.
type HWError int

const (
	ErrNone HWError = iota
	ErrRcvTimeout
	ErrRcvParity
	ErrRcvError
	ErrTrmNotFree
	ErrRcvTaskBusy
)

func (e HWError) String() string {
	switch e {
	case ErrNone:
		return "NONE"
	case ErrRcvTimeout:
		return "RCV_TIMEOUT"
	case ErrRcvParity:
		return "RCV_PARITY"
	case ErrRcvError:
		return "RCV_ERROR"
	case ErrTrmNotFree:
		return "TRM_NOT_FREE"
	case ErrRcvTaskBusy:
		return "RCV_TASK_BSY"
	default:
		return "UNKNOWN"
	}
}

// postIRQWaitDelayNS is the fixed settle time observed between a
// data-request message and issuing status-request tasks, matching the
// hardware's documented 200µs window.
const postIRQWaitDelayNS = 200_000

// fsmTimeout is the number of consecutive RCV_TASK_BSY observations
// tolerated in FETCH_STATUS before the round is abandoned and the link
// returns to WAIT, matching the firmware's MIL_FSM_TIMEOUT constant.
const fsmTimeout = 10000

// ChannelKey names a channel on a link for the task-slot allocation
// table; it does not change once assigned.
type ChannelKey struct {
	Link    int
	Channel int
}

// TaskSlot is a hardware task-slot index, 1..16, assigned to a
// (link, channel) pair at scan time and never migrated afterwards.
type TaskSlot int

// DataRequestMsg is one data-request message observed in a link's
// incoming queue.
type DataRequestMsg struct {
	Channel   int
	Timestamp uint64 // WR time the message carried
}

// ChannelStatus is the per-channel status a FETCH_STATUS task-request
// resolves to.
type ChannelStatus struct {
	Channel     int
	StateIRQ    bool
	DataRequest bool
	Err         HWError
}

// Sample is one actual-value read resolved by a FETCH_DATA task-request.
type Sample struct {
	Channel   int
	Timestamp uint64
	ActValue  int32
	Err       HWError
}

// ActionKind discriminates which of Action's fields is populated.
type ActionKind int

const (
	ActionIssueStatusRequest ActionKind = iota
	ActionIssueDataRead
	ActionPushTuple
	ActionLogError
)

// Action is a side effect the FSM wants the caller to perform: issue a
// task request, push a feedback tuple, or log a hardware error.
type Action struct {
	Kind    ActionKind
	Channel int // ActionIssueStatusRequest / ActionIssueDataRead / ActionLogError
	Tuple   FeedbackTuple
	Err     HWError
}

// FeedbackTuple is one MIL-DAQ sample paired with its last commanded set
// value, the unit pushed into the MIL-DAQ ring.
type FeedbackTuple struct {
	Timestamp uint64
	ActValue  int32
	SetValue  int32
	GapRead   bool // true if this tuple came from an optional gap read, not an IRQ
}

// Engines resolves a link's channels to their fgengine.Engine, so the FSM
// can advance the state machine when handling IRQs without owning engine
// construction itself.
type Engines interface {
	Engine(channel int) (*fgengine.Engine, bool)
	// LastSetValue returns the most recently commanded coefficient c for
	// channel, used as a gap-read tuple's setValue where no fresh command
	// accompanies the sample.
	LastSetValue(channel int) int32
}

// Option configures a Link at construction time.
type Option func(*Link)

// WithPostIRQWait enables the 200µs POST_IRQ_WAIT settle phase between a
// data-request message and issuing status-request tasks. Off by default,
// matching the documented default.
func WithPostIRQWait() Option {
	return func(l *Link) { l.postIRQWaitEnabled = true }
}

// WithGapReading enables the optional gap-read follow-up: gapIntervalNS
// after a channel's data request was served, schedule a read to capture
// samples between IRQ-bearing events. Gap-read tuples are marked GapRead
// so consumers can distinguish them. Off by default; experimental,
// matching the upstream firmware's own compile-time guard.
func WithGapReading(gapIntervalNS uint64) Option {
	return func(l *Link) {
		l.gapEnabled = true
		l.gapIntervalNS = gapIntervalNS
	}
}

// SetGapInterval is the runtime counterpart to WithGapReading: it enables
// gap reading at ns, or disables it when ns is 0. Used by the MIL_GAP_INTERVAL
// host command, which adjusts a running link without restarting it.
func (l *Link) SetGapInterval(ns uint64) {
	l.gapEnabled = ns != 0
	l.gapIntervalNS = ns
}

// Link drives one physical MIL serial link's cooperative FSM. It is not
// safe for concurrent use; the caller invokes Step from a single
// round-robin scheduler tick (bare-metal) or a single owning task (RTOS).
type Link struct {
	id       int
	engines  Engines
	slots    map[ChannelKey]TaskSlot
	nextSlot TaskSlot

	postIRQWaitEnabled bool
	gapEnabled         bool
	gapIntervalNS      uint64

	state      LinkState
	waitUntil  uint64
	timeoutCnt int

	pending      []DataRequestMsg
	statusIssued bool
	irqChannels  []int
	gapRead      bool
	lastServed   map[int]uint64
}

// NewLink returns a Link for link id, resolving channels through engines.
func NewLink(id int, engines Engines, opts ...Option) *Link {
	l := &Link{
		id:         id,
		engines:    engines,
		slots:      make(map[ChannelKey]TaskSlot),
		nextSlot:   1,
		lastServed: make(map[int]uint64),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// State reports the link's current FSM state.
func (l *Link) State() LinkState { return l.state }

// AllocateSlot assigns channel a stable task slot if it does not already
// have one. Task slots never migrate once assigned, per the documented
// scan-time allocation.
func (l *Link) AllocateSlot(channel int) (TaskSlot, error) {
	key := ChannelKey{Link: l.id, Channel: channel}
	if slot, ok := l.slots[key]; ok {
		return slot, nil
	}
	if l.nextSlot > 16 {
		return 0, xerrors.Errorf("milfsm: link %d: no free task slot for channel %d", l.id, channel)
	}
	slot := l.nextSlot
	l.slots[key] = slot
	l.nextSlot++
	return slot, nil
}

// Channels reports the channels currently allocated a task slot on this
// link.
func (l *Link) Channels() []int {
	chans := make([]int, 0, len(l.slots))
	for k := range l.slots {
		chans = append(chans, k.Channel)
	}
	return chans
}

// Enqueue appends a data-request message observed on this link's incoming
// queue, in arrival order.
func (l *Link) Enqueue(msg DataRequestMsg) {
	l.pending = append(l.pending, msg)
}

// Step advances the link's FSM by one round. statusResults and
// readResults carry completed task results for the FETCH_STATUS/
// FETCH_DATA states; pass nil while the corresponding tasks are still
// outstanding. Step returns the actions the caller must perform before
// the next Step call (issue task requests, push tuples, log errors).
func (l *Link) Step(now uint64, statusResults []ChannelStatus, readResults []Sample) ([]Action, error) {
	switch l.state {
	case StateWait:
		return l.stepWait(now)
	case StatePostIRQWait:
		return l.stepPostIRQWait(now)
	case StateFetchStatus:
		return l.stepFetchStatus(statusResults)
	case StateHandleIRQs:
		return l.stepHandleIRQs(now)
	case StateFetchData:
		return l.stepFetchData(now, readResults)
	default:
		return nil, xerrors.Errorf("milfsm: link %d: unknown state %d", l.id, l.state)
	}
}

func (l *Link) stepWait(now uint64) ([]Action, error) {
	if len(l.pending) > 0 {
		msg := l.pending[0]
		l.pending = l.pending[1:]
		if l.postIRQWaitEnabled {
			l.waitUntil = msg.Timestamp + postIRQWaitDelayNS
			l.state = StatePostIRQWait
		} else {
			l.state = StateFetchStatus
		}
		return nil, nil
	}

	if l.gapEnabled {
		for ch, served := range l.lastServed {
			if now-served >= l.gapIntervalNS {
				delete(l.lastServed, ch)
				l.irqChannels = []int{ch}
				l.gapRead = true
				l.state = StateFetchData
				return nil, nil
			}
		}
	}

	return nil, nil
}

func (l *Link) stepPostIRQWait(now uint64) ([]Action, error) {
	if now >= l.waitUntil {
		l.state = StateFetchStatus
	}
	return nil, nil
}

func (l *Link) stepFetchStatus(results []ChannelStatus) ([]Action, error) {
	if !l.statusIssued {
		l.statusIssued = true
		l.irqChannels = nil
		channels := l.nonStoppedChannels()
		actions := make([]Action, 0, len(channels))
		for _, ch := range channels {
			actions = append(actions, Action{Kind: ActionIssueStatusRequest, Channel: ch})
		}
		return actions, nil
	}

	busy := false
	var actions []Action
	for _, res := range results {
		switch res.Err {
		case ErrRcvTaskBusy:
			busy = true
		case ErrNone:
			if res.StateIRQ || res.DataRequest {
				l.irqChannels = append(l.irqChannels, res.Channel)
			}
		default:
			actions = append(actions, Action{Kind: ActionLogError, Channel: res.Channel, Err: res.Err})
		}
	}

	if busy {
		l.timeoutCnt++
		if l.timeoutCnt > fsmTimeout {
			l.timeoutCnt = 0
			l.statusIssued = false
			l.state = StateWait
		}
		return actions, nil
	}

	l.timeoutCnt = 0
	l.statusIssued = false
	l.state = StateHandleIRQs
	return actions, nil
}

func (l *Link) stepHandleIRQs(now uint64) ([]Action, error) {
	if len(l.irqChannels) == 0 {
		l.state = StateWait
		return nil, nil
	}

	var actions []Action
	handled := l.irqChannels[:0]
	for _, ch := range l.irqChannels {
		eng, ok := l.engines.Engine(ch)
		if !ok {
			continue
		}
		switch eng.State() {
		case fgengine.StateArmed:
			if _, err := eng.OnTimingEvent(now); err != nil {
				return nil, xerrors.Errorf("milfsm: link %d: channel %d: %w", l.id, ch, err)
			}
		case fgengine.StateActive:
			if _, err := eng.Tick(now); err != nil {
				return nil, xerrors.Errorf("milfsm: link %d: channel %d: %w", l.id, ch, err)
			}
		}
		actions = append(actions, Action{Kind: ActionIssueDataRead, Channel: ch})
		handled = append(handled, ch)
		l.lastServed[ch] = now
	}
	l.irqChannels = handled

	if len(handled) == 0 {
		l.state = StateWait
		return actions, nil
	}
	l.state = StateFetchData
	return actions, nil
}

func (l *Link) stepFetchData(now uint64, results []Sample) ([]Action, error) {
	if results == nil {
		return nil, nil
	}

	var actions []Action
	for _, res := range results {
		if res.Err != ErrNone {
			actions = append(actions, Action{Kind: ActionLogError, Channel: res.Channel, Err: res.Err})
			continue
		}
		tuple := FeedbackTuple{
			Timestamp: res.Timestamp,
			ActValue:  res.ActValue,
			SetValue:  l.engines.LastSetValue(res.Channel),
			GapRead:   l.gapRead,
		}
		actions = append(actions, Action{Kind: ActionPushTuple, Tuple: tuple})
	}

	l.gapRead = false
	l.irqChannels = nil
	l.state = StateWait
	return actions, nil
}

func (l *Link) nonStoppedChannels() []int {
	var out []int
	for key := range l.slots {
		eng, ok := l.engines.Engine(key.Channel)
		if !ok || eng.State() == fgengine.StateStopped {
			continue
		}
		out = append(out, key.Channel)
	}
	return out
}
