// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daqingest

import (
	"golang.org/x/xerrors"

	"github.com/gsi-scu/fgctl/ring"
)

// DeviceRegistry reports whether slot corresponds to a registered DAQ
// device, the check descriptor verification requires.
type DeviceRegistry interface {
	IsRegistered(slot uint8) bool
}

// Bus is the subset of bus.Accessor Ingest needs to publish a reordered
// block into its consumer ring.
type Bus interface {
	WriteBurst(addr uint32, buf []byte) error
}

// Hooks are the diagnostic callbacks the firmware invokes instead of
// rejecting a block outright; all are optional.
type Hooks struct {
	// OnErrorFraming fires for integrity failures that cause the block to
	// be dropped entirely: bad mode bits, out-of-range slot/channel,
	// unregistered device, or a length-class mismatch.
	OnErrorFraming func(err error)
	// OnErrorCRC fires on a CRC mismatch. Per the documented (and
	// preserved) upstream behavior, the block is still delivered.
	OnErrorCRC func(desc Descriptor)
	// OnSequenceGap fires when a channel's sequence number advances by
	// more than +1 since its last block.
	OnSequenceGap func(slot, channel uint8, prev, cur uint8)
}

// Ingest consumes raw DAQ blocks, verifies and reorders them, and pushes
// the result into a consumer ring for the host to drain.
type Ingest struct {
	bus      Bus
	ring     *ring.Admin
	registry DeviceRegistry
	hooks    Hooks

	lastSeq map[[2]uint8]uint8
	seen    map[[2]uint8]bool
}

// NewIngest returns an Ingest publishing reordered blocks into r's backing
// storage through bus, checking device registration against registry.
func NewIngest(bus Bus, r *ring.Admin, registry DeviceRegistry, hooks Hooks) *Ingest {
	return &Ingest{
		bus:      bus,
		ring:     r,
		registry: registry,
		hooks:    hooks,
		lastSeq:  make(map[[2]uint8]uint8),
		seen:     make(map[[2]uint8]bool),
	}
}

// PushBlock ingests one raw block as delivered by the hardware fifo:
// payload followed by a trailing DescriptorSize-byte descriptor. It
// verifies descriptor integrity, reorders the descriptor to the front,
// checks for a sequence gap, and pushes descriptor||payload into the
// ring. A framing failure drops the block without touching the ring; a
// CRC mismatch is reported but does not drop it, per documented upstream
// behavior.
func (in *Ingest) PushBlock(raw []byte) error {
	isLong := len(raw) == LongBlockLen
	isShort := len(raw) == ShortBlockLen
	if !isLong && !isShort {
		err := xerrors.Errorf("daqingest: block has unrecognized length %d", len(raw))
		in.reportFraming(err)
		return nil
	}

	descRaw := raw[len(raw)-DescriptorSize:]
	payload := raw[:len(raw)-DescriptorSize]

	desc, err := ParseDescriptor(descRaw)
	if err != nil {
		in.reportFraming(err)
		return nil
	}

	if err := in.verifyFraming(desc, isLong); err != nil {
		in.reportFraming(err)
		return nil
	}

	if crc5(descRaw[:16]) != desc.CRC {
		if in.hooks.OnErrorCRC != nil {
			in.hooks.OnErrorCRC(desc)
		}
		// advisory only: block is still delivered.
	}

	key := [2]uint8{desc.Slot, desc.Channel}
	if prev, ok := in.lastSeq[key]; ok && desc.Sequence-prev > 1 && desc.Sequence-prev < 0x80 {
		if in.hooks.OnSequenceGap != nil {
			in.hooks.OnSequenceGap(desc.Slot, desc.Channel, prev, desc.Sequence)
		}
	}
	in.lastSeq[key] = desc.Sequence

	reordered := make([]byte, 0, len(raw))
	reordered = append(reordered, descRaw...)
	reordered = append(reordered, payload...)

	return in.publish(reordered)
}

func (in *Ingest) verifyFraming(desc Descriptor, isLong bool) error {
	if !desc.Mode.exactlyOneBit() {
		return xerrors.Errorf("daqingest: descriptor has invalid mode bits 0x%x", desc.Mode)
	}
	if desc.Slot < MinSlot || desc.Slot > MaxSlot {
		return xerrors.Errorf("daqingest: slot %d out of scu-bus range [%d,%d]", desc.Slot, MinSlot, MaxSlot)
	}
	if !in.registry.IsRegistered(desc.Slot) {
		return xerrors.Errorf("daqingest: slot %d is not a registered device", desc.Slot)
	}
	if desc.Channel >= MaxChannelsPerDevice {
		return xerrors.Errorf("daqingest: channel %d >= MAX_CHANNELS_PER_DEVICE", desc.Channel)
	}
	if desc.Mode.isLong() != isLong {
		return xerrors.Errorf("daqingest: block length class does not match mode %s", desc.Mode)
	}
	return nil
}

func (in *Ingest) reportFraming(err error) {
	if in.hooks.OnErrorFraming != nil {
		in.hooks.OnErrorFraming(err)
	}
}

func (in *Ingest) publish(reordered []byte) error {
	if len(reordered)%8 != 0 {
		reordered = append(reordered, make([]byte, 8-len(reordered)%8)...)
	}
	words := uint32(len(reordered) / 8)
	if in.ring.RemainingCapacity() < words {
		return xerrors.Errorf("daqingest: ring has no room for a %d-word block", words)
	}

	addr := in.ring.Offset + in.ring.End*8
	if err := in.bus.WriteBurst(addr, reordered); err != nil {
		return xerrors.Errorf("daqingest: could not publish block: %w", err)
	}
	in.ring.Push(words)
	return nil
}
