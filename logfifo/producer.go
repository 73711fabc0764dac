// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logfifo

import (
	"fmt"

	"github.com/gsi-scu/fgctl/bus"
	"github.com/gsi-scu/fgctl/irq"
	"github.com/gsi-scu/fgctl/ring"
)

// Producer is the firmware-side log API. It never copies a format string;
// only its address (SymbolAddr) is stored in the record, so the caller must
// have already placed the literal in firmware text.
type Producer struct {
	acc  *bus.Accessor
	ring *ring.Admin
	crit *irq.CriticalSection

	now func() uint64 // WR time source, injected for testability
}

// NewProducer returns a Producer writing records into ring at its backing
// storage, guarded by crit for atomicity of the read-admin/compute/write/
// publish sequence.
func NewProducer(acc *bus.Accessor, r *ring.Admin, crit *irq.CriticalSection, now func() uint64) *Producer {
	return &Producer{acc: acc, ring: r, crit: crit, now: now}
}

// Logf appends one record. If the ring cannot accept it, the oldest record
// is dropped first (overwrite-on-full). args must be integers; pointers and
// characters are accepted as their integer representation. Excess arguments
// beyond MaxParams are silently dropped, matching the host-side renderer's
// "excess conversions beyond K are silently dropped" rule.
func (p *Producer) Logf(filter uint32, formatAddr uint32, args ...uint32) error {
	var rec Record
	rec.Timestamp = p.now()
	rec.Filter = filter
	rec.FormatAddr = formatAddr
	for i := 0; i < MaxParams && i < len(args); i++ {
		rec.Param[i] = args[i]
	}

	p.crit.Enter()
	defer p.crit.Exit()

	if p.ring.RemainingCapacity() < RecordSize/8 {
		p.ring.AddToReadIndex(RecordSize / 8)
	}

	return p.append(rec)
}

func (p *Producer) append(rec Record) error {
	buf := rec.Pack()
	addr := p.ring.Offset + p.ring.End*8
	for i := 0; i < len(buf); i += 4 {
		v := uint32(buf[i])<<24 | uint32(buf[i+1])<<16 | uint32(buf[i+2])<<8 | uint32(buf[i+3])
		if err := p.acc.WriteU32(addr+uint32(i), v); err != nil {
			return fmt.Errorf("logfifo: could not write record: %w", err)
		}
	}
	p.ring.Push(RecordSize / 8)
	return nil
}
