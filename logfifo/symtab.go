// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logfifo

import (
	"fmt"

	"github.com/gsi-scu/fgctl/bus"
)

// maxSymbolLen bounds how far BusSymbolTable reads looking for a NUL
// terminator, so a corrupted format_addr can't turn into an unbounded bus
// transaction.
const maxSymbolLen = 256

// BusSymbolTable resolves a format_addr by reading firmware code memory
// directly over a bus.Accessor, standing in for "firmware text" on a real
// front-end: addresses in a log record point into the same address space
// the accessor already reads registers and RAM from.
type BusSymbolTable struct {
	acc *bus.Accessor
}

// NewBusSymbolTable returns a SymbolTable that reads strings from acc.
func NewBusSymbolTable(acc *bus.Accessor) *BusSymbolTable {
	return &BusSymbolTable{acc: acc}
}

// StringAt reads bytes starting at addr until a NUL terminator or
// maxSymbolLen bytes, whichever comes first.
func (s *BusSymbolTable) StringAt(addr uint32) (string, error) {
	var out []byte
	for len(out) < maxSymbolLen {
		chunk, err := s.acc.ReadBurst(addr+uint32(len(out)), 16, 1)
		if err != nil {
			return "", fmt.Errorf("logfifo: could not read string at 0x%x: %w", addr, err)
		}
		for _, b := range chunk {
			if b == 0 {
				return string(out), nil
			}
			out = append(out, b)
			if len(out) >= maxSymbolLen {
				break
			}
		}
	}
	return "", fmt.Errorf("logfifo: string at 0x%x exceeds %d bytes without NUL terminator", addr, maxSymbolLen)
}

// StaticSymbolTable is a fixed address->string map, useful for tests and
// for tools that pre-extract the firmware's string table from its build
// artifact rather than reading it live over the bus.
type StaticSymbolTable map[uint32]string

// StringAt looks addr up in the map.
func (s StaticSymbolTable) StringAt(addr uint32) (string, error) {
	str, ok := s[addr]
	if !ok {
		return "", fmt.Errorf("logfifo: no string interned at 0x%x", addr)
	}
	return str, nil
}
