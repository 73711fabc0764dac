// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bus implements the typed memory-mapped-IO primitives shared by
// every component that talks to SCU device registers or bulk RAM: typed
// 8/16/32/64-bit accessors, a burst reader for bulk transfers, and the
// "zycle" lock that brackets multi-word atomic transactions.
//
// No component is permitted to synthesize a register access by raw pointer
// arithmetic: every read or write goes through an Accessor.
package bus // import "github.com/gsi-scu/fgctl/bus"

import (
	"encoding/binary"
	"fmt"
	"io"
)

// BusError wraps a transport-level failure from the underlying
// io.ReaderAt/io.WriterAt. Callers treat it as fatal or retry depending on
// context; bus itself never decides.
type BusError struct {
	Addr uint32
	Op   string
	Err  error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("bus: could not %s at 0x%x: %v", e.Op, e.Addr, e.Err)
}

func (e *BusError) Unwrap() error { return e.Err }

// rwer is the minimal capability an Accessor needs from its backing
// transport: random-access byte reads and writes, e.g. an mmap.Handle or a
// net.Conn-backed Etherbone stream.
type rwer interface {
	io.ReaderAt
	io.WriterAt
}

// Accessor performs typed reads and writes against a byte-addressed device
// register space or bulk-RAM window.
type Accessor struct {
	rw rwer

	burstThreshold int // minimum word count before ReadBurst issues one bus cycle instead of N
	xbuf           [8]byte
}

// Option configures an Accessor.
type Option func(*Accessor)

// WithBurstThreshold sets the minimum number of words a ReadBurst request
// must span before it is issued as a single burst transfer instead of
// single-word reads. The default is 1 (always burst).
func WithBurstThreshold(n int) Option {
	return func(a *Accessor) {
		if n > 0 {
			a.burstThreshold = n
		}
	}
}

// NewAccessor returns an Accessor reading and writing through rw.
func NewAccessor(rw rwer, opts ...Option) *Accessor {
	a := &Accessor{rw: rw, burstThreshold: 1}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ReadU8 reads one byte at addr.
func (a *Accessor) ReadU8(addr uint32) (uint8, error) {
	if _, err := a.rw.ReadAt(a.xbuf[:1], int64(addr)); err != nil {
		return 0, &BusError{Addr: addr, Op: "read-u8", Err: err}
	}
	return a.xbuf[0], nil
}

// WriteU8 writes one byte at addr.
func (a *Accessor) WriteU8(addr uint32, v uint8) error {
	a.xbuf[0] = v
	if _, err := a.rw.WriteAt(a.xbuf[:1], int64(addr)); err != nil {
		return &BusError{Addr: addr, Op: "write-u8", Err: err}
	}
	return nil
}

// ReadU16 reads a big-endian 16-bit word at addr.
func (a *Accessor) ReadU16(addr uint32) (uint16, error) {
	if _, err := a.rw.ReadAt(a.xbuf[:2], int64(addr)); err != nil {
		return 0, &BusError{Addr: addr, Op: "read-u16", Err: err}
	}
	return binary.BigEndian.Uint16(a.xbuf[:2]), nil
}

// WriteU16 writes a big-endian 16-bit word at addr.
func (a *Accessor) WriteU16(addr uint32, v uint16) error {
	binary.BigEndian.PutUint16(a.xbuf[:2], v)
	if _, err := a.rw.WriteAt(a.xbuf[:2], int64(addr)); err != nil {
		return &BusError{Addr: addr, Op: "write-u16", Err: err}
	}
	return nil
}

// ReadU32 reads a big-endian 32-bit word at addr.
func (a *Accessor) ReadU32(addr uint32) (uint32, error) {
	if _, err := a.rw.ReadAt(a.xbuf[:4], int64(addr)); err != nil {
		return 0, &BusError{Addr: addr, Op: "read-u32", Err: err}
	}
	return binary.BigEndian.Uint32(a.xbuf[:4]), nil
}

// WriteU32 writes a big-endian 32-bit word at addr.
func (a *Accessor) WriteU32(addr uint32, v uint32) error {
	binary.BigEndian.PutUint32(a.xbuf[:4], v)
	if _, err := a.rw.WriteAt(a.xbuf[:4], int64(addr)); err != nil {
		return &BusError{Addr: addr, Op: "write-u32", Err: err}
	}
	return nil
}

// ReadU64 reads a big-endian 64-bit word at addr.
func (a *Accessor) ReadU64(addr uint32) (uint64, error) {
	if _, err := a.rw.ReadAt(a.xbuf[:8], int64(addr)); err != nil {
		return 0, &BusError{Addr: addr, Op: "read-u64", Err: err}
	}
	return binary.BigEndian.Uint64(a.xbuf[:8]), nil
}

// WriteU64 writes a big-endian 64-bit word at addr.
func (a *Accessor) WriteU64(addr uint32, v uint64) error {
	binary.BigEndian.PutUint64(a.xbuf[:8], v)
	if _, err := a.rw.WriteAt(a.xbuf[:8], int64(addr)); err != nil {
		return &BusError{Addr: addr, Op: "write-u64", Err: err}
	}
	return nil
}

// ReadBurst reads n words (wordSize bytes each) starting at addr. Below
// burstThreshold words it still issues a single ReadAt, since the
// distinction only matters for a real bus transport; Accessor's contract is
// simply "read n*wordSize bytes starting at addr".
func (a *Accessor) ReadBurst(addr uint32, n, wordSize int) ([]byte, error) {
	buf := make([]byte, n*wordSize)
	if _, err := a.rw.ReadAt(buf, int64(addr)); err != nil {
		return nil, &BusError{Addr: addr, Op: "read-burst", Err: err}
	}
	return buf, nil
}

// BurstThreshold reports the configured burst threshold, in words.
func (a *Accessor) BurstThreshold() int { return a.burstThreshold }

// WriteBurst writes buf as one contiguous transfer starting at addr, the
// counterpart to ReadBurst used by multi-word register blocks such as the
// MIL FG_MIL_REGISTER_T transfer that must land in a single bus cycle.
func (a *Accessor) WriteBurst(addr uint32, buf []byte) error {
	if _, err := a.rw.WriteAt(buf, int64(addr)); err != nil {
		return &BusError{Addr: addr, Op: "write-burst", Err: err}
	}
	return nil
}
