// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bus

import "sync"

// Zycle is the bus-wide lock that brackets a multi-word atomic transaction
// over the memory-mapped fabric. It is re-entrant for a given token (e.g. a
// goroutine or task id): a caller already holding the lock may call Enter
// again with the same token without blocking, matching the nesting
// semantics of the interrupt critical-section counter it composes with
// (see package irq).
type Zycle struct {
	cond  *sync.Cond
	held  bool
	owner uint64
	depth int
}

// NewZycle returns an unlocked Zycle.
func NewZycle() *Zycle {
	return &Zycle{cond: sync.NewCond(&sync.Mutex{})}
}

// Enter acquires the zycle lock for token, blocking while another token
// holds it.
func (z *Zycle) Enter(token uint64) {
	z.cond.L.Lock()
	defer z.cond.L.Unlock()

	for z.held && z.owner != token {
		z.cond.Wait()
	}
	z.owner = token
	z.held = true
	z.depth++
}

// Exit releases one level of nesting for the calling token; the lock
// becomes available to other tokens only when depth reaches zero.
func (z *Zycle) Exit() {
	z.cond.L.Lock()
	defer z.cond.L.Unlock()

	z.depth--
	if z.depth <= 0 {
		z.depth = 0
		z.held = false
		z.cond.Broadcast()
	}
}
