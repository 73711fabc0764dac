// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fgchannel implements the polymorphic function-generator channel
// abstraction: the same {Prepare, Start, DisableIRQ, Disable, FeedNext,
// ReadStatus, ReadSample} operation set over two hardware families, ADDAC
// (direct memory-mapped registers) and MIL (reached through a serial-bus
// task-slot interface). The concrete variant is chosen once, at
// construction time, from the channel's Socket; callers never branch on
// the family afterwards.
package fgchannel // import "github.com/gsi-scu/fgctl/fgchannel"

import "fmt"

// Family distinguishes the two hardware variants a Socket may name.
type Family uint8

const (
	FamilyADDAC Family = iota
	FamilyMIL
)

// Socket is the encoded (bus-slot, family-bit) address of an FG device, as
// used throughout the host tools to name a channel without a live handle.
type Socket struct {
	Slot   int
	Family Family
	Device int // channel index within the device, 0-based
}

// String renders a Socket the way diagnostics and log records refer to it.
func (s Socket) String() string {
	fam := "ADDAC"
	if s.Family == FamilyMIL {
		fam = "MIL"
	}
	return fmt.Sprintf("%s|slot=%d|dev=%d", fam, s.Slot, s.Device)
}

// Segment is one polynomial ramp segment, the producer unit the host
// writes into a channel's per-channel ring. Control packs {step,
// frequency-select, shift-a, shift-b}; CoeffC doubles as the "set value"
// surfaced to DAQ consumers.
type Segment struct {
	CoeffA  int16
	CoeffB  int16
	CoeffC  int32
	Control uint32
}

// Control bitfield layout: step[2:0], freq[5:3], shiftA[9:6], shiftB[13:10].
const (
	controlStepMask  = 0x7
	controlFreqShift = 3
	controlFreqMask  = 0x7 << controlFreqShift
	controlShiftA    = 6
	controlShiftAMsk = 0xf << controlShiftA
	controlShiftB    = 10
	controlShiftBMsk = 0xf << controlShiftB
)

// PackControl builds the control-register bitfield from its components.
func PackControl(step, freq, shiftA, shiftB uint32) uint32 {
	return (step & controlStepMask) |
		(freq << controlFreqShift & controlFreqMask) |
		(shiftA << controlShiftA & controlShiftAMsk) |
		(shiftB << controlShiftB & controlShiftBMsk)
}

// Status is the per-channel hardware status snapshot read on each
// data-request IRQ. BufferEmpty reflects the engine's own producer ring,
// not a hardware bit, and is filled in by the caller before the signal
// decision is made.
type Status struct {
	Running     bool
	DataRequest bool
	StateIRQ    bool
	BufferEmpty bool
}

// Sample is one actual-value capture read back from a channel, paired with
// its set value by the engine before being surfaced to DAQ consumers.
type Sample struct {
	Timestamp uint64
	ActValue  int32
	SetValue  int32
}

// SegmentSource supplies the next polynomial segment to feed, or reports
// none remaining. It is implemented by the per-channel producer ring the
// host writes into.
type SegmentSource interface {
	PopSegment() (Segment, bool)
}
