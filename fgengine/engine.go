// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fgengine implements the per-channel FG execution engine: the
// explicit unarmed/armed/active/stopped state machine, the watchdog that
// disarms a channel that stops feeding IRQs, the edge-triggered refill
// signal, and the feed-next-segment driving loop, all expressed against
// the fgchannel.Channel abstraction so it runs identically over ADDAC and
// MIL hardware.
package fgengine // import "github.com/gsi-scu/fgctl/fgengine"

import (
	"fmt"

	"github.com/gsi-scu/fgctl/fgchannel"
)

// WRTime is a White Rabbit timestamp, TAI nanoseconds.
type WRTime = uint64

// State is the per-channel FG execution state.
type State int

const (
	StateUnarmed State = iota
	StateArmed
	StateActive
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnarmed:
		return "UNARMED"
	case StateArmed:
		return "ARMED"
	case StateActive:
		return "ACTIVE"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Signal is a small enum message the engine emits to the host mailbox.
type Signal int

const (
	SigArmed Signal = iota
	SigStart
	SigRefill
	SigStopEmpty
	SigStopNotEmpty
	SigDisarmed
)

func (s Signal) String() string {
	switch s {
	case SigArmed:
		return "ARMED"
	case SigStart:
		return "START"
	case SigRefill:
		return "REFILL"
	case SigStopEmpty:
		return "STOP_EMPTY"
	case SigStopNotEmpty:
		return "STOP_NOT_EMPTY"
	case SigDisarmed:
		return "DISARMED"
	default:
		return "UNKNOWN"
	}
}

// SegmentSource is the per-channel producer ring the host writes
// polynomial segments into; PopSegment reports false once it is empty,
// Size reports the number of segments currently queued.
type SegmentSource interface {
	fgchannel.SegmentSource
	Size() uint32
}

// rampCounter is implemented by both fgchannel.AddacChannel and
// fgchannel.MilChannel; the engine uses it instead of tracking ramp_count
// itself so the hardware-vs-software counting distinction documented for
// the two families stays inside fgchannel.
type rampCounter interface {
	RampCount() (uint32, error)
}

// Engine drives one channel's state machine. It is not safe for
// concurrent use: the caller serializes Tick/Enable/Disable calls, either
// by running them from the bare-metal scheduler loop or from the single
// RTOS task that owns this channel.
type Engine struct {
	channel fgchannel.Channel
	ring    SegmentSource

	refillThreshold uint32
	timeoutNS       uint64

	state     State
	timeoutAt uint64 // 0 == watchdog disabled
	rampCount uint32

	refillPending bool // edge-trigger latch: armed whenever size rises back above threshold
}

// NewEngine returns an Engine for channel, fed from ring, emitting REFILL
// when ring's size drops to exactly refillThreshold and disarming a
// channel that has not fed in timeoutNS.
func NewEngine(channel fgchannel.Channel, ring SegmentSource, refillThreshold uint32, timeoutNS uint64) *Engine {
	return &Engine{
		channel:         channel,
		ring:            ring,
		refillThreshold: refillThreshold,
		timeoutNS:       timeoutNS,
		state:           StateUnarmed,
		refillPending:   true,
	}
}

// State reports the engine's current state.
func (e *Engine) State() State { return e.state }

// RampCount reports the channel's ramp counter as of the last Tick.
func (e *Engine) RampCount() uint32 { return e.rampCount }

// Enable transitions UNARMED -> ARMED, programming the channel's ECA tag
// and preparing the hardware. It is a no-op returning no signal if the
// engine is not currently UNARMED.
func (e *Engine) Enable(tag uint64) ([]Signal, error) {
	if e.state != StateUnarmed {
		return nil, nil
	}
	if setter, ok := e.channel.(interface{ SetTag(uint64) }); ok {
		setter.SetTag(tag)
	}
	if err := e.channel.Prepare(); err != nil {
		return nil, fmt.Errorf("fgengine: could not prepare channel: %w", err)
	}
	e.state = StateArmed
	e.refillPending = true
	return []Signal{SigArmed}, nil
}

// OnTimingEvent transitions ARMED -> ACTIVE on the external timing event
// matching the channel's tag, observed by the caller as a data-request
// IRQ while still ARMED. It feeds the first segment and arms the
// watchdog.
func (e *Engine) OnTimingEvent(now WRTime) ([]Signal, error) {
	if e.state != StateArmed {
		return nil, nil
	}

	seg, ok := e.ring.PopSegment()
	if !ok {
		return e.stop(true)
	}
	if err := e.channel.Start(seg); err != nil {
		return nil, fmt.Errorf("fgengine: could not start channel: %w", err)
	}
	e.timeoutAt = now + e.timeoutNS
	e.state = StateActive
	return []Signal{SigStart}, nil
}

// Tick processes one data-request IRQ while ACTIVE: it reads status,
// refreshes ramp_count, checks the watchdog, emits REFILL at most once
// per crossing, and feeds the next segment or stops the channel if the
// producer ring is empty.
func (e *Engine) Tick(now WRTime) ([]Signal, error) {
	if e.state != StateActive {
		return nil, nil
	}

	if e.timeoutAt != 0 && now > e.timeoutAt {
		return e.stop(e.ring.Size() == 0)
	}

	status, err := e.channel.ReadStatus()
	if err != nil {
		return nil, fmt.Errorf("fgengine: could not read channel status: %w", err)
	}
	if rc, ok := e.channel.(rampCounter); ok {
		n, err := rc.RampCount()
		if err != nil {
			return nil, fmt.Errorf("fgengine: could not read ramp counter: %w", err)
		}
		e.rampCount = n
	}

	if !status.Running {
		return e.stop(e.ring.Size() == 0)
	}

	var signals []Signal
	size := e.ring.Size()
	if size == e.refillThreshold && e.refillPending {
		signals = append(signals, SigRefill)
		e.refillPending = false
	} else if size > e.refillThreshold {
		e.refillPending = true
	}

	seg, ok := e.ring.PopSegment()
	if !ok {
		stopSignals, err := e.stop(true)
		if err != nil {
			return nil, err
		}
		return append(signals, stopSignals...), nil
	}

	if err := e.channel.FeedNext(seg); err != nil {
		return nil, fmt.Errorf("fgengine: could not feed next segment: %w", err)
	}
	e.timeoutAt = now + e.timeoutNS

	return signals, nil
}

// Disable transitions ARMED or ACTIVE -> STOPPED on an explicit host
// command, disabling the channel and clearing the watchdog.
func (e *Engine) Disable() ([]Signal, error) {
	if e.state != StateArmed && e.state != StateActive {
		return nil, nil
	}
	if err := e.channel.Disable(); err != nil {
		return nil, fmt.Errorf("fgengine: could not disable channel: %w", err)
	}
	e.timeoutAt = 0
	e.state = StateStopped
	return []Signal{SigDisarmed}, nil
}

// stop is the common STOPPED transition shared by "hardware says no
// longer running", "watchdog timeout" and "producer ring exhausted".
// empty controls whether STOP_EMPTY or STOP_NOT_EMPTY is emitted.
func (e *Engine) stop(empty bool) ([]Signal, error) {
	if err := e.channel.Disable(); err != nil {
		return nil, fmt.Errorf("fgengine: could not disable channel: %w", err)
	}
	e.timeoutAt = 0
	e.state = StateStopped
	if empty {
		return []Signal{SigStopEmpty}, nil
	}
	return []Signal{SigStopNotEmpty}, nil
}
