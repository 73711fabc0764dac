// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package irq implements the interrupt dispatcher and the critical-section
// substrate: a table of (callback, context) pairs indexed by vector number,
// a nested critical-section counter gating the hardware interrupt-enable
// flag, and the two MIL message queues the FG engine observes.
//
// Ported from the nesting-counter discipline of lm32Interrupts.c: the
// counter is pre-initialized to 1 so code may take critical sections before
// interrupts are globally enabled, and enabling interrupts for the first
// time resets it to zero.
package irq // import "github.com/gsi-scu/fgctl/irq"

import "sync"

// HardwareEnable abstracts the global interrupt-enable flag the counter
// gates. A bare-metal build wires this to the real enable/disable
// instructions; tests and the cooperative-task port wire it to a boolean.
type HardwareEnable interface {
	Disable()
	Enable()
}

// CriticalSection is the process-wide (or, under the cooperative task port,
// per-task) nesting counter that gates HardwareEnable. It is pre-initialized
// to 1, matching __atomic_section_nesting_count's startup value, so a
// caller may take critical sections before the scheduler starts.
type CriticalSection struct {
	mu    sync.Mutex
	hw    HardwareEnable
	count uint32
}

// NewCriticalSection returns a CriticalSection gating hw, with the counter
// pre-set to 1.
func NewCriticalSection(hw HardwareEnable) *CriticalSection {
	return &CriticalSection{hw: hw, count: 1}
}

// Enter disables interrupts (if not already disabled) and increments the
// nesting counter.
func (c *CriticalSection) Enter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count == 0 {
		c.hw.Disable()
	}
	c.count++
}

// Exit decrements the nesting counter; interrupts are re-enabled only when
// it reaches zero.
func (c *CriticalSection) Exit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count == 0 {
		return
	}
	c.count--
	if c.count == 0 {
		c.hw.Enable()
	}
}

// Count reports the current nesting depth, for diagnostics and tests.
func (c *CriticalSection) Count() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// StartScheduler resets the nesting counter to zero and enables interrupts
// globally, mirroring irqEnable()/vTaskStartScheduler(): this is the one
// transition that does not follow the normal Enter/Exit nesting discipline,
// called exactly once at startup.
func (c *CriticalSection) StartScheduler() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = 0
	c.hw.Enable()
}

// nullHW is a HardwareEnable that does nothing, useful where only the
// nesting-counter bookkeeping matters (e.g. in tests of higher-level
// components that take critical sections incidentally).
type nullHW struct{}

func (nullHW) Disable() {}
func (nullHW) Enable()  {}

// NewNullCriticalSection returns a CriticalSection with a no-op hardware
// backend.
func NewNullCriticalSection() *CriticalSection {
	return NewCriticalSection(nullHW{})
}
