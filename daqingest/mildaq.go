// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daqingest

import (
	"encoding/binary"
)

// MilDaqItemSize is the packed size, in bytes, of one MilDaqItem.
const MilDaqItemSize = 8 + 4 + 4 + 4

// MilDaqItem is one MIL sample as stored in the MIL-DAQ ring (allocated
// under tag MIL_DAQ, see mmu.TagMILDaq).
type MilDaqItem struct {
	Timestamp uint64
	ActValue  int32
	SetValue  int32
	FgMacro   uint32
}

// Pack encodes item for a big-endian firmware writer talking to a
// little-endian host reader: the 64-bit timestamp field has its upper and
// lower 32-bit halves swapped, so that the host's own automatic 32-bit
// byte swap on readback lands each half in the right place.
func (item MilDaqItem) Pack() []byte {
	buf := make([]byte, MilDaqItemSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(item.Timestamp))
	binary.BigEndian.PutUint32(buf[4:8], uint32(item.Timestamp>>32))
	binary.BigEndian.PutUint32(buf[8:12], uint32(item.ActValue))
	binary.BigEndian.PutUint32(buf[12:16], uint32(item.SetValue))
	binary.BigEndian.PutUint32(buf[16:20], item.FgMacro)
	return buf
}

// UnpackMilDaqItem decodes buf, undoing the half-swap Pack applied.
func UnpackMilDaqItem(buf []byte) MilDaqItem {
	lo := binary.BigEndian.Uint32(buf[0:4])
	hi := binary.BigEndian.Uint32(buf[4:8])
	return MilDaqItem{
		Timestamp: uint64(hi)<<32 | uint64(lo),
		ActValue:  int32(binary.BigEndian.Uint32(buf[8:12])),
		SetValue:  int32(binary.BigEndian.Uint32(buf[12:16])),
		FgMacro:   binary.BigEndian.Uint32(buf[16:20]),
	}
}
