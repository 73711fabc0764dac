// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bus

// Reg32 binds a 32-bit register at a fixed offset to an Accessor, so that
// callers never compute addresses themselves once the register table has
// been built at bind time.
type Reg32 struct {
	acc  *Accessor
	addr uint32
}

// NewReg32 returns a Reg32 bound to addr on acc.
func NewReg32(acc *Accessor, addr uint32) Reg32 {
	return Reg32{acc: acc, addr: addr}
}

// Read returns the current register value.
func (r Reg32) Read() (uint32, error) { return r.acc.ReadU32(r.addr) }

// Write stores v into the register.
func (r Reg32) Write(v uint32) error { return r.acc.WriteU32(r.addr, v) }

// Addr reports the bound address, for diagnostics.
func (r Reg32) Addr() uint32 { return r.addr }

// Reg16 binds a 16-bit register.
type Reg16 struct {
	acc  *Accessor
	addr uint32
}

// NewReg16 returns a Reg16 bound to addr on acc.
func NewReg16(acc *Accessor, addr uint32) Reg16 {
	return Reg16{acc: acc, addr: addr}
}

// Read returns the current register value.
func (r Reg16) Read() (uint16, error) { return r.acc.ReadU16(r.addr) }

// Write stores v into the register.
func (r Reg16) Write(v uint16) error { return r.acc.WriteU16(r.addr, v) }
