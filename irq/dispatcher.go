// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package irq

import "fmt"

// MaxIRQ bounds the vector table size, matching MAX_LM32_INTERRUPTS's
// documented maximum.
const MaxIRQ = 32

// Handler is an interrupt service routine. ctx is the opaque user context
// supplied at registration time.
type Handler func(ctx any)

type entry struct {
	cb  Handler
	ctx any
}

// Dispatcher maps pending hardware IRQ bits to registered handlers. The
// dispatch loop snapshots the pending register, invokes each set bit's
// handler in priority order, masks off any bit with no registered handler
// (to prevent livelock), and loops until the pending register reads zero.
type Dispatcher struct {
	table    [MaxIRQ]entry
	enabled  uint32 // mask register: bit set => vector is enabled
	reorder  func(bit int) int
	snapshot func() uint32 // reads and clears the pending register; see SnapshotBeforeClear
	mask     func(bit int) // masks off a single vector in hardware
}

// NewDispatcher returns a Dispatcher. snapshot must atomically read and
// clear the pending register (snapshot-before-clear is the documented
// hardware-dependent ordering); mask disables a single misbehaving vector.
func NewDispatcher(snapshot func() uint32, mask func(bit int)) *Dispatcher {
	return &Dispatcher{
		reorder:  func(bit int) int { return bit },
		snapshot: snapshot,
		mask:     mask,
	}
}

// WithReorderPriority installs a pluggable priority function; bits are
// dispatched in the order produced by sorting set bits by this function's
// return value (lower runs first). The default is identity (bit number
// order).
func (d *Dispatcher) WithReorderPriority(f func(bit int) int) *Dispatcher {
	if f != nil {
		d.reorder = f
	}
	return d
}

// Register enables vec in the mask register and binds cb/ctx to it.
func (d *Dispatcher) Register(vec int, cb Handler, ctx any) error {
	if vec < 0 || vec >= MaxIRQ {
		return fmt.Errorf("irq: vector %d out of range [0,%d)", vec, MaxIRQ)
	}
	d.table[vec] = entry{cb: cb, ctx: ctx}
	d.enabled |= 1 << uint(vec)
	return nil
}

// Disable clears vec in the mask register without removing its callback, so
// a subsequent Register re-enables the same handler.
func (d *Dispatcher) Disable(vec int) {
	if vec < 0 || vec >= MaxIRQ {
		return
	}
	d.enabled &^= 1 << uint(vec)
	if d.mask != nil {
		d.mask(vec)
	}
}

// Dispatch runs the dispatch loop: snapshot pending bits, invoke each set
// bit's handler (in reorder-priority order), mask any bit with no
// registered handler, and repeat until the pending register reads zero.
func (d *Dispatcher) Dispatch() error {
	for {
		pending := d.snapshot() & d.enabled
		if pending == 0 {
			return nil
		}

		bits := make([]int, 0, MaxIRQ)
		for b := 0; b < MaxIRQ; b++ {
			if pending&(1<<uint(b)) != 0 {
				bits = append(bits, b)
			}
		}
		sortByPriority(bits, d.reorder)

		for _, b := range bits {
			e := d.table[b]
			if e.cb == nil {
				d.Disable(b)
				continue
			}
			e.cb(e.ctx)
		}
	}
}

func sortByPriority(bits []int, prio func(int) int) {
	for i := 1; i < len(bits); i++ {
		for j := i; j > 0 && prio(bits[j-1]) > prio(bits[j]); j-- {
			bits[j-1], bits[j] = bits[j], bits[j-1]
		}
	}
}
