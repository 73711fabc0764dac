// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fgchannel

import (
	"encoding/binary"
	"fmt"
)

// milRegisterSize is the size, in bytes, of one FG_MIL_REGISTER_T transfer:
// coeffA, coeffB, coeffC and a reserved word, matching the ADDAC coefficient
// triple plus padding to a burst-friendly word count.
const milRegisterSize = 16

// MIL task-slot register window, word offsets relative to a link's task
// data area; the final control register is written separately from the
// coefficient burst, per the documented two-step transfer.
const (
	milRegData    = 0x00 // milRegisterSize bytes
	milRegControl = milRegisterSize
	milRegStatus  = milRegisterSize + 0x04
	milRegIRQMask = milRegisterSize + 0x08

	milTaskSlotStride = 0x40
	milBase           = 0x1000

	milStatusRun  = 1 << 0
	milStatusDReq = 1 << 1
	milStatusIRQ  = 1 << 2
)

// MilChannel is the serial-bus hardware variant: the register block is
// transferred as one burst write followed by a single write of the final
// control register. The hardware keeps no ramp counter, so the engine's
// software counter is incremented on every FeedNext instead.
type MilChannel struct {
	bus      Bus
	socket   Socket
	taskSlot int
	base     uint32
	softRamp uint32
}

func newMilChannel(bus Bus, socket Socket) *MilChannel {
	return &MilChannel{bus: bus, socket: socket, base: milBase + uint32(socket.Device)*milTaskSlotStride}
}

func (c *MilChannel) reg(offset uint32) uint32 { return c.base + offset }

// SetTaskSlot records the task-slot index this channel was assigned at
// scan time, by the MIL FSM's allocation table; it does not affect the
// register layout, only diagnostics.
func (c *MilChannel) SetTaskSlot(slot int) { c.taskSlot = slot }

// TaskSlot reports the channel's assigned task-slot index.
func (c *MilChannel) TaskSlot() int { return c.taskSlot }

// Prepare enables the slave IRQ for this task slot; MIL channels have no
// ramp counter or ECA tag register of their own, those live at the link
// level, so there is nothing else to reset here.
func (c *MilChannel) Prepare() error {
	if err := c.bus.WriteU32(c.reg(milRegIRQMask), 1); err != nil {
		return fmt.Errorf("fgchannel: mil %s: could not enable slave IRQ: %w", c.socket, err)
	}
	c.softRamp = 0
	return nil
}

// Start transfers seg as a burst write, then writes the control register,
// and finally sets the slot's enable bit via the control word itself
// (MIL has no separate enable register).
func (c *MilChannel) Start(seg Segment) error {
	return c.FeedNext(seg)
}

// FeedNext transfers the FG_MIL_REGISTER_T block as one burst followed by
// a single write of the control register, then advances the software ramp
// counter since the hardware does not maintain one.
func (c *MilChannel) FeedNext(seg Segment) error {
	buf := make([]byte, milRegisterSize)
	binary.BigEndian.PutUint16(buf[0:2], uint16(seg.CoeffA))
	binary.BigEndian.PutUint16(buf[2:4], uint16(seg.CoeffB))
	binary.BigEndian.PutUint32(buf[4:8], uint32(seg.CoeffC))
	// buf[8:16] reserved.

	if err := c.bus.WriteBurst(c.reg(milRegData), buf); err != nil {
		return fmt.Errorf("fgchannel: mil %s: could not burst-write register block: %w", c.socket, err)
	}
	if err := c.bus.WriteU32(c.reg(milRegControl), seg.Control); err != nil {
		return fmt.Errorf("fgchannel: mil %s: could not write control register: %w", c.socket, err)
	}
	c.softRamp++
	return nil
}

// DisableIRQ masks the slave IRQ for this task slot.
func (c *MilChannel) DisableIRQ() error {
	if err := c.bus.WriteU32(c.reg(milRegIRQMask), 0); err != nil {
		return fmt.Errorf("fgchannel: mil %s: could not disable slave IRQ: %w", c.socket, err)
	}
	return nil
}

// Disable writes a zero control word, which on the MIL side also stops
// the ramp since there is no separate enable bit.
func (c *MilChannel) Disable() error {
	if err := c.bus.WriteU32(c.reg(milRegControl), 0); err != nil {
		return fmt.Errorf("fgchannel: mil %s: could not clear control register: %w", c.socket, err)
	}
	return nil
}

// ReadStatus reads the task slot's status word.
func (c *MilChannel) ReadStatus() (Status, error) {
	v, err := c.bus.ReadU32(c.reg(milRegStatus))
	if err != nil {
		return Status{}, fmt.Errorf("fgchannel: mil %s: could not read status: %w", c.socket, err)
	}
	return Status{
		Running:     v&milStatusRun != 0,
		DataRequest: v&milStatusDReq != 0,
		StateIRQ:    v&milStatusIRQ != 0,
	}, nil
}

// RampCount reports the software ramp counter, incremented on every
// FeedNext since the MIL hardware keeps none of its own. The error return
// exists only to satisfy the same RampCount shape as AddacChannel, so the
// engine can read either variant through one optional interface.
func (c *MilChannel) RampCount() (uint32, error) { return c.softRamp, nil }

// ReadSample reads back the last transferred coefficient c, the MIL
// channel's notion of "current set value".
func (c *MilChannel) ReadSample() (Sample, error) {
	buf, err := c.bus.ReadBurst(c.reg(milRegData), 1, milRegisterSize)
	if err != nil {
		return Sample{}, fmt.Errorf("fgchannel: mil %s: could not read register block: %w", c.socket, err)
	}
	return Sample{SetValue: int32(binary.BigEndian.Uint32(buf[4:8]))}, nil
}
