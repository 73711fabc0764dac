// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logfifo

import (
	"fmt"

	"github.com/gsi-scu/fgctl/bus"
	"github.com/gsi-scu/fgctl/ring"
)

// SymbolTable resolves an address in firmware code memory to the
// NUL-terminated ASCII string found there, standing in for "read firmware
// text at this address" (the firmware .elf's string section, in a real
// deployment).
type SymbolTable interface {
	StringAt(addr uint32) (string, error)
}

// Puller is the host-side consumer API: it reads available records in one
// bus transaction, releases the slots by writing WasRead, and renders each
// record's formatted line on request.
type Puller struct {
	acc  *bus.Accessor
	ring *ring.Admin
}

// NewPuller returns a Puller reading from r's backing storage through acc.
func NewPuller(acc *bus.Accessor, r *ring.Admin) *Puller {
	return &Puller{acc: acc, ring: r}
}

// Pull reads up to max available records in a single bus transaction. If
// WasRead is still non-zero (the producer has not yet acknowledged the
// previous batch), Pull returns no records without touching the ring.
func (p *Puller) Pull(max int) ([]Record, error) {
	if p.ring.WasRead != 0 {
		return nil, nil
	}

	avail := int(p.ring.Size())
	n := avail / (RecordSize / 8)
	if n > max {
		n = max
	}
	if n == 0 {
		return nil, nil
	}

	recs := make([]Record, 0, n)
	idx := p.ring.Start
	for i := 0; i < n; i++ {
		addr := p.ring.Offset + idx*8
		buf, err := p.acc.ReadBurst(addr, RecordSize, 1)
		if err != nil {
			return nil, fmt.Errorf("logfifo: could not read record %d: %w", i, err)
		}
		rec, err := Unpack(buf)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
		idx = p.ring.Increment(idx, RecordSize/8)
	}

	p.ring.Acknowledge(uint32(n * (RecordSize / 8)))
	return recs, nil
}
