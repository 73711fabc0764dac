// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package daqingest implements the DAQ block ingest pipeline: descriptor
// framing and CRC verification, descriptor-to-head reordering, sequence
// gap detection, and the ADDAC set/actual stream pairing that fuses two
// sibling channels into feedback tuples.
package daqingest // import "github.com/gsi-scu/fgctl/daqingest"

import (
	"encoding/binary"

	"golang.org/x/xerrors"
)

// Mode is the DAQ block's length/purpose class; exactly one bit must be
// set for a descriptor to be valid.
type Mode uint8

const (
	ModeContinuous Mode = 1 << iota
	ModeHiRes
	ModePostMortem
)

func (m Mode) String() string {
	switch m {
	case ModeContinuous:
		return "continuous"
	case ModeHiRes:
		return "hiRes"
	case ModePostMortem:
		return "postMortem"
	default:
		return "invalid"
	}
}

// isLong reports whether mode selects the long (hi-res/post-mortem)
// framing class rather than the short (continuous) one.
func (m Mode) isLong() bool { return m == ModeHiRes || m == ModePostMortem }

// exactlyOneBit reports whether m has exactly one of the three mode bits
// set, the documented descriptor invariant.
func (m Mode) exactlyOneBit() bool {
	switch m {
	case ModeContinuous, ModeHiRes, ModePostMortem:
		return true
	default:
		return false
	}
}

// DescriptorSize is the wire and RAM size, in bytes, of one DAQ
// descriptor: slot(1) + channel(1) + mode(1) + sequence(1) + timestamp(8)
// + sampleTime(4) + crc(1), padded to a whole number of 64-bit words.
const DescriptorSize = 24

// ShortBlockLen and LongBlockLen are the total wire sizes (payload +
// descriptor), in bytes, of the two block-length classes. The nominal
// sample counts here assume 4-byte raw samples; the real hardware's
// constants are configured per installation.
const (
	ShortBlockLen = 64*4 + DescriptorSize
	LongBlockLen  = 256*4 + DescriptorSize
)

// MaxChannelsPerDevice bounds Descriptor.Channel.
const MaxChannelsPerDevice = 16

// MinSlot and MaxSlot bound Descriptor.Slot to the SCU bus's addressable
// range.
const (
	MinSlot = 1
	MaxSlot = 12
)

// SampleSize is the width, in bytes, of one raw DAQ sample in a block's
// payload.
const SampleSize = 4

// Descriptor is the fixed header delivered at the tail of each DAQ block
// on the wire; ingest moves it to the head of the ring entry.
type Descriptor struct {
	Slot       uint8
	Channel    uint8
	Mode       Mode
	Sequence   uint8
	Timestamp  uint64 // TAI nanoseconds
	SampleTime uint32 // microseconds
	CRC        uint8
}

// ParseDescriptor decodes buf, which must be exactly DescriptorSize
// bytes, as delivered at the tail of a wire block.
func ParseDescriptor(buf []byte) (Descriptor, error) {
	if len(buf) != DescriptorSize {
		return Descriptor{}, xerrors.Errorf("daqingest: descriptor must be %d bytes, got %d", DescriptorSize, len(buf))
	}
	return Descriptor{
		Slot:       buf[0],
		Channel:    buf[1],
		Mode:       Mode(buf[2]),
		Sequence:   buf[3],
		Timestamp:  binary.BigEndian.Uint64(buf[4:12]),
		SampleTime: binary.BigEndian.Uint32(buf[12:16]),
		CRC:        buf[16],
	}, nil
}

// Pack encodes d back into its DescriptorSize wire/RAM layout, with the
// trailing CRC byte set to the value computed over the preceding fields
// (not d.CRC, which may be stale).
func (d Descriptor) Pack() []byte {
	buf := make([]byte, DescriptorSize)
	buf[0] = d.Slot
	buf[1] = d.Channel
	buf[2] = byte(d.Mode)
	buf[3] = d.Sequence
	binary.BigEndian.PutUint64(buf[4:12], d.Timestamp)
	binary.BigEndian.PutUint32(buf[12:16], d.SampleTime)
	buf[16] = crc5(buf[:16])
	return buf
}
