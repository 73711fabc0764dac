// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mmu implements the tag-keyed, append-only directory that
// sub-allocates disjoint regions of bulk RAM (DDR3 on SCU3, SRAM on SCU4)
// to named consumers such as the DAQ ring and the log fifo.
//
// The directory is a singly-linked list anchored at a fixed word offset
// from the bulk-RAM base, as laid out in scu_mmu.h: a start descriptor
// holding a magic number and the index of the first entry, followed by
// 16-byte entries placed back-to-back, each immediately followed by its
// payload region. The directory survives firmware restarts: re-running
// Init against RAM that already carries the magic number is a no-op, and
// Allocate with an existing tag returns the existing region.
package mmu // import "github.com/gsi-scu/fgctl/mmu"

import (
	"encoding/binary"
	"fmt"

	"github.com/gsi-scu/fgctl/bus"
)

// Status mirrors the MMU_STATUS_T values of the original firmware.
type Status int

const (
	OK Status = iota
	AlreadyPresent
	TagNotFound
	OutOfMem
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case AlreadyPresent:
		return "ALREADY_PRESENT"
	case TagNotFound:
		return "TAG_NOT_FOUND"
	case OutOfMem:
		return "OUT_OF_MEM"
	default:
		return "UNKNOWN"
	}
}

const (
	// Magic identifies a formatted directory anchor.
	Magic uint32 = 0x4D4D5530 // "MMU0"

	// entrySize is the fixed 16-byte layout: tag(2) + flags(2) + next_index(4) + start_index(4) + length(4).
	entrySize = 16

	// anchorWords is the number of words (of wordSize bytes) occupied by
	// the start descriptor: magic(4) + first_index(4) + padding(8).
	anchorSize = 16

	wordSize = 8 // smallest addressable unit in bulk RAM (64-bit word)
)

// Known tags used by the DAQ ring and the log fifo.
const (
	TagADDACDaq uint16 = 1
	TagMILDaq   uint16 = 2
	TagLM32Log  uint16 = 3
)

// Entry is one directory entry, decoded from its 16-byte on-wire layout.
type Entry struct {
	Tag        uint16
	Flags      uint16
	NextIndex  uint32 // byte offset from RAM base of the next entry, 0 = end
	StartIndex uint32 // byte offset from RAM base of this entry's payload
	Length     uint32 // payload length, in bytes
}

func (e Entry) pack(big bool) []byte {
	buf := make([]byte, entrySize)
	// The 16-bit tag and 16-bit flags are packed so that a 32-bit
	// byte-swap by the transport (little-endian host, big-endian
	// firmware) recovers them correctly on the other side: big-endian
	// producer places tag first, little-endian consumer places flags
	// first within the same 32-bit word.
	if big {
		binary.BigEndian.PutUint16(buf[0:2], e.Tag)
		binary.BigEndian.PutUint16(buf[2:4], e.Flags)
	} else {
		binary.LittleEndian.PutUint16(buf[0:2], e.Flags)
		binary.LittleEndian.PutUint16(buf[2:4], e.Tag)
	}
	binary.BigEndian.PutUint32(buf[4:8], e.NextIndex)
	binary.BigEndian.PutUint32(buf[8:12], e.StartIndex)
	binary.BigEndian.PutUint32(buf[12:16], e.Length)
	return buf
}

func unpackEntry(buf []byte, big bool) Entry {
	var e Entry
	if big {
		e.Tag = binary.BigEndian.Uint16(buf[0:2])
		e.Flags = binary.BigEndian.Uint16(buf[2:4])
	} else {
		e.Flags = binary.LittleEndian.Uint16(buf[0:2])
		e.Tag = binary.LittleEndian.Uint16(buf[2:4])
	}
	e.NextIndex = binary.BigEndian.Uint32(buf[4:8])
	e.StartIndex = binary.BigEndian.Uint32(buf[8:12])
	e.Length = binary.BigEndian.Uint32(buf[12:16])
	return e
}

// Directory administers the MMU anchor at a fixed offset in bulk RAM.
type Directory struct {
	acc       *bus.Accessor
	anchor    uint32 // byte offset of the start descriptor
	ramEnd    uint32 // byte offset one past the last usable byte
	bigEndian bool   // true on the firmware (producer) side, false on the host
}

// New returns a Directory bound to acc, anchored at anchorOffset, managing
// RAM up to (but excluding) ramEnd. bigEndian selects the firmware-side byte
// order for the tag/flags pair; host-side callers pass false.
func New(acc *bus.Accessor, anchorOffset, ramEnd uint32, bigEndian bool) *Directory {
	return &Directory{acc: acc, anchor: anchorOffset, ramEnd: ramEnd, bigEndian: bigEndian}
}

// Init ensures the anchor contains the magic number; if absent, it formats
// the directory (magic + empty list).
func (d *Directory) Init() error {
	magic, err := d.acc.ReadU32(d.anchor)
	if err != nil {
		return fmt.Errorf("mmu: could not read anchor magic: %w", err)
	}
	if magic == Magic {
		return nil
	}
	return d.format()
}

func (d *Directory) format() error {
	if err := d.acc.WriteU32(d.anchor, Magic); err != nil {
		return fmt.Errorf("mmu: could not write anchor magic: %w", err)
	}
	if err := d.acc.WriteU32(d.anchor+4, 0); err != nil { // first_index == 0: empty list
		return fmt.Errorf("mmu: could not write anchor first-index: %w", err)
	}
	return nil
}

// Delete zeroes the magic; a subsequent Init re-formats the directory.
func (d *Directory) Delete() error {
	if err := d.acc.WriteU32(d.anchor, 0); err != nil {
		return fmt.Errorf("mmu: could not clear anchor magic: %w", err)
	}
	return nil
}

// firstIndex returns the byte offset (from RAM base) of the first entry, or
// 0 if the list is empty.
func (d *Directory) firstIndex() (uint32, error) {
	v, err := d.acc.ReadU32(d.anchor + 4)
	if err != nil {
		return 0, fmt.Errorf("mmu: could not read first-index: %w", err)
	}
	return v, nil
}

func (d *Directory) readEntry(idx uint32) (Entry, error) {
	buf, err := d.acc.ReadBurst(idx, entrySize, 1)
	if err != nil {
		return Entry{}, fmt.Errorf("mmu: could not read entry at 0x%x: %w", idx, err)
	}
	return unpackEntry(buf, d.bigEndian), nil
}

func (d *Directory) writeEntry(idx uint32, e Entry) error {
	buf := e.pack(d.bigEndian)
	for i := 0; i < len(buf); i += 4 {
		v := binary.BigEndian.Uint32(buf[i : i+4])
		if err := d.acc.WriteU32(idx+uint32(i), v); err != nil {
			return fmt.Errorf("mmu: could not write entry at 0x%x: %w", idx, err)
		}
	}
	return nil
}

// Lookup scans the list for tag and returns its entry.
func (d *Directory) Lookup(tag uint16) (Entry, bool, error) {
	idx, err := d.firstIndex()
	if err != nil {
		return Entry{}, false, err
	}
	for idx != 0 {
		e, err := d.readEntry(idx)
		if err != nil {
			return Entry{}, false, err
		}
		if e.Tag == tag {
			return e, true, nil
		}
		idx = e.NextIndex
	}
	return Entry{}, false, nil
}

// align rounds v up to the next multiple of wordSize.
func align(v uint32) uint32 {
	if r := v % wordSize; r != 0 {
		v += wordSize - r
	}
	return v
}

// Allocate scans the list for tag. On a match, it returns the existing
// region with AlreadyPresent. Otherwise, if create is true, it appends a
// new entry (word-aligned) sized length and returns OK; if create is false
// it returns TagNotFound. If the new entry would not fit before ramEnd, it
// returns OutOfMem.
func (d *Directory) Allocate(tag uint16, length uint32, create bool) (start, got uint32, status Status, err error) {
	idx, err := d.firstIndex()
	if err != nil {
		return 0, 0, 0, err
	}

	var last Entry
	var lastIdx uint32
	for idx != 0 {
		e, err := d.readEntry(idx)
		if err != nil {
			return 0, 0, 0, err
		}
		if e.Tag == tag {
			return e.StartIndex, e.Length, AlreadyPresent, nil
		}
		last, lastIdx = e, idx
		idx = e.NextIndex
	}

	if !create {
		return 0, 0, TagNotFound, nil
	}

	var newIdx, newStart uint32
	if lastIdx == 0 {
		newIdx = align(d.anchor + anchorSize)
	} else {
		newIdx = align(last.StartIndex + last.Length)
	}
	newStart = newIdx + entrySize

	if uint64(newStart)+uint64(length) > uint64(d.ramEnd) {
		return 0, 0, OutOfMem, nil
	}

	entry := Entry{Tag: tag, Flags: 0, NextIndex: 0, StartIndex: newStart, Length: length}
	if err := d.writeEntry(newIdx, entry); err != nil {
		return 0, 0, 0, err
	}

	if lastIdx == 0 {
		if err := d.acc.WriteU32(d.anchor+4, newIdx); err != nil {
			return 0, 0, 0, fmt.Errorf("mmu: could not link first entry: %w", err)
		}
	} else {
		last.NextIndex = newIdx
		if err := d.writeEntry(lastIdx, last); err != nil {
			return 0, 0, 0, fmt.Errorf("mmu: could not link entry: %w", err)
		}
	}

	return newStart, length, OK, nil
}

// Entries returns all directory entries in list order, for diagnostics and
// testing of the ordering invariant.
func (d *Directory) Entries() ([]Entry, error) {
	idx, err := d.firstIndex()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for idx != 0 {
		e, err := d.readEntry(idx)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		idx = e.NextIndex
	}
	return out, nil
}
