// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fgchannel

import "fmt"

// ADDAC register block, word offsets relative to a channel's base address.
// Layout mirrors the direct memory-mapped coefficient/shift/control block
// documented for the family: one set of registers per channel, indexed by
// socket.Device.
const (
	addacRegCoeffA  = 0x00
	addacRegCoeffB  = 0x04
	addacRegCoeffC  = 0x08
	addacRegControl = 0x0c
	addacRegEcaLo   = 0x10
	addacRegEcaHi   = 0x14
	addacRegEnable  = 0x18
	addacRegIRQMask = 0x1c
	addacRegRamp    = 0x20
	addacRegMode    = 0x24
	addacRegStatus  = 0x28

	addacChannelStride = 0x40
	addacBase          = 0x0000

	addacModeFG      = 0x1
	addacStatusRun   = 1 << 0
	addacStatusDReq  = 1 << 1
	addacStatusState = 1 << 2
)

// AddacChannel is the direct memory-mapped hardware variant: one
// coefficient/shift/control register set per channel, plus an on-device
// ramp counter the engine reads back rather than tracking in software.
type AddacChannel struct {
	bus    Bus
	socket Socket
	base   uint32
	tag    uint64 // ECA event tag, set by the host before Prepare
}

func newAddacChannel(bus Bus, socket Socket) *AddacChannel {
	return &AddacChannel{bus: bus, socket: socket, base: addacBase + uint32(socket.Device)*addacChannelStride}
}

func (c *AddacChannel) reg(offset uint32) uint32 { return c.base + offset }

// SetTag records the ECA event tag that releases this channel from ARMED
// to ACTIVE; Prepare programs it into the hardware tag-low/tag-high
// registers.
func (c *AddacChannel) SetTag(tag uint64) { c.tag = tag }

// Prepare resets the ramp counter, programs the ECA tag, enables the slave
// IRQ and switches the DAC into FG mode. Order matches the hardware
// sequencing requirement documented for ADDAC.
func (c *AddacChannel) Prepare() error {
	if err := c.bus.WriteU32(c.reg(addacRegRamp), 0); err != nil {
		return fmt.Errorf("fgchannel: addac %s: could not reset ramp counter: %w", c.socket, err)
	}
	if err := c.bus.WriteU32(c.reg(addacRegEcaLo), uint32(c.tag)); err != nil {
		return fmt.Errorf("fgchannel: addac %s: could not write ECA tag low: %w", c.socket, err)
	}
	if err := c.bus.WriteU32(c.reg(addacRegEcaHi), uint32(c.tag>>32)); err != nil {
		return fmt.Errorf("fgchannel: addac %s: could not write ECA tag high: %w", c.socket, err)
	}
	if err := c.bus.WriteU32(c.reg(addacRegIRQMask), 1); err != nil {
		return fmt.Errorf("fgchannel: addac %s: could not enable slave IRQ: %w", c.socket, err)
	}
	if err := c.bus.WriteU32(c.reg(addacRegMode), addacModeFG); err != nil {
		return fmt.Errorf("fgchannel: addac %s: could not set DAC to FG mode: %w", c.socket, err)
	}
	return nil
}

// Start programs the first segment's coefficients, then sets the enable
// bit; the two writes must not be reordered, since the hardware begins
// ramping as soon as the enable bit lands.
func (c *AddacChannel) Start(seg Segment) error {
	if err := c.writeCoeffs(seg); err != nil {
		return err
	}
	if err := c.bus.WriteU32(c.reg(addacRegEnable), 1); err != nil {
		return fmt.Errorf("fgchannel: addac %s: could not set enable bit: %w", c.socket, err)
	}
	return nil
}

// FeedNext writes coefficients and the packed control bitfield for seg,
// keeping the channel-number bits already resident in the control
// register untouched.
func (c *AddacChannel) FeedNext(seg Segment) error {
	return c.writeCoeffs(seg)
}

func (c *AddacChannel) writeCoeffs(seg Segment) error {
	if err := c.bus.WriteU32(c.reg(addacRegCoeffA), uint32(uint16(seg.CoeffA))); err != nil {
		return fmt.Errorf("fgchannel: addac %s: could not write coeff a: %w", c.socket, err)
	}
	if err := c.bus.WriteU32(c.reg(addacRegCoeffB), uint32(uint16(seg.CoeffB))); err != nil {
		return fmt.Errorf("fgchannel: addac %s: could not write coeff b: %w", c.socket, err)
	}
	if err := c.bus.WriteU32(c.reg(addacRegCoeffC), uint32(seg.CoeffC)); err != nil {
		return fmt.Errorf("fgchannel: addac %s: could not write coeff c: %w", c.socket, err)
	}
	control, err := c.bus.ReadU32(c.reg(addacRegControl))
	if err != nil {
		return fmt.Errorf("fgchannel: addac %s: could not read control register: %w", c.socket, err)
	}
	const channelMask = 0xffff0000
	control = (control & channelMask) | (seg.Control &^ channelMask)
	if err := c.bus.WriteU32(c.reg(addacRegControl), control); err != nil {
		return fmt.Errorf("fgchannel: addac %s: could not write control register: %w", c.socket, err)
	}
	return nil
}

// DisableIRQ masks the channel's slave IRQ without touching the enable
// bit, used when the engine wants to stop being notified but let the
// ramp finish.
func (c *AddacChannel) DisableIRQ() error {
	if err := c.bus.WriteU32(c.reg(addacRegIRQMask), 0); err != nil {
		return fmt.Errorf("fgchannel: addac %s: could not disable slave IRQ: %w", c.socket, err)
	}
	return nil
}

// Disable clears the enable bit, stopping the ramp.
func (c *AddacChannel) Disable() error {
	if err := c.bus.WriteU32(c.reg(addacRegEnable), 0); err != nil {
		return fmt.Errorf("fgchannel: addac %s: could not clear enable bit: %w", c.socket, err)
	}
	return nil
}

// ReadStatus reads the hardware status register and the on-device ramp
// counter.
func (c *AddacChannel) ReadStatus() (Status, error) {
	v, err := c.bus.ReadU32(c.reg(addacRegStatus))
	if err != nil {
		return Status{}, fmt.Errorf("fgchannel: addac %s: could not read status: %w", c.socket, err)
	}
	return Status{
		Running:     v&addacStatusRun != 0,
		DataRequest: v&addacStatusDReq != 0,
		StateIRQ:    v&addacStatusState != 0,
	}, nil
}

// RampCount reads the on-device ramp counter the engine folds into the
// channel's ramp_count field.
func (c *AddacChannel) RampCount() (uint32, error) {
	v, err := c.bus.ReadU32(c.reg(addacRegRamp))
	if err != nil {
		return 0, fmt.Errorf("fgchannel: addac %s: could not read ramp counter: %w", c.socket, err)
	}
	return v, nil
}

// ReadSample reads back the hardware's current actual-value capture; used
// by diagnostics, not the DAQ ingest path (which reads the DAQ ring
// directly).
func (c *AddacChannel) ReadSample() (Sample, error) {
	v, err := c.bus.ReadU32(c.reg(addacRegCoeffC))
	if err != nil {
		return Sample{}, fmt.Errorf("fgchannel: addac %s: could not read sample: %w", c.socket, err)
	}
	return Sample{SetValue: int32(v)}, nil
}
