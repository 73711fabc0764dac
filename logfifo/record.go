// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package logfifo implements the lock-free, overwrite-on-full log ring: a
// firmware-side producer API that stores only the address of its format
// string, and a host-side consumer API that pulls records, resolves the
// format string from firmware code memory and renders the line.
package logfifo // import "github.com/gsi-scu/fgctl/logfifo"

import (
	"encoding/binary"
	"fmt"
)

// MaxParams is the build constant K: the number of uint32 argument slots
// carried by every record.
const MaxParams = 4

// RecordSize is the fixed on-wire size of one record:
// u64 timestamp || u32 filter || u32 format_addr || K x u32 param.
const RecordSize = 8 + 4 + 4 + 4*MaxParams

// Record is one log record as laid out on the wire.
type Record struct {
	Timestamp  uint64 // TAI nanoseconds
	Filter     uint32
	FormatAddr uint32 // address of a NUL-terminated format string in firmware text
	Param      [MaxParams]uint32
}

// Pack encodes rec into its fixed-size on-wire form.
func (rec Record) Pack() []byte {
	buf := make([]byte, RecordSize)
	binary.BigEndian.PutUint64(buf[0:8], rec.Timestamp)
	binary.BigEndian.PutUint32(buf[8:12], rec.Filter)
	binary.BigEndian.PutUint32(buf[12:16], rec.FormatAddr)
	for i, p := range rec.Param {
		off := 16 + 4*i
		binary.BigEndian.PutUint32(buf[off:off+4], p)
	}
	return buf
}

// Unpack decodes buf (which must be exactly RecordSize bytes) into a Record.
func Unpack(buf []byte) (Record, error) {
	if len(buf) != RecordSize {
		return Record{}, fmt.Errorf("logfifo: invalid record size: got=%d, want=%d", len(buf), RecordSize)
	}
	var rec Record
	rec.Timestamp = binary.BigEndian.Uint64(buf[0:8])
	rec.Filter = binary.BigEndian.Uint32(buf[8:12])
	rec.FormatAddr = binary.BigEndian.Uint32(buf[12:16])
	for i := range rec.Param {
		off := 16 + 4*i
		rec.Param[i] = binary.BigEndian.Uint32(buf[off : off+4])
	}
	return rec, nil
}
