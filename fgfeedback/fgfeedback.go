// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fgfeedback implements the host-side FG feedback administration:
// a device/channel registry, draining of the ADDAC and MIL DAQ rings into
// (timestamp, actValue, setValue) tuples delivered to application
// callbacks, and the independent set/actual throttles that keep the
// delivered stream dense enough to plot without flooding the upper
// layers.
//
// Follows eda/device.go's registration idiom: linear-scan lookup,
// error-on-duplicate registration.
package fgfeedback // import "github.com/gsi-scu/fgctl/fgfeedback"

import (
	"fmt"
	"sync"

	"github.com/gsi-scu/fgctl/daqingest"
	"github.com/gsi-scu/fgctl/fgchannel"
)

// OnData is the application callback a registered channel receives for
// every forwarded tuple.
type OnData func(timestamp uint64, actValue, setValue int32)

// ADDACSample pairs a synthesized ADDAC feedback tuple with the flat
// channel number it belongs to.
type ADDACSample struct {
	FgNumber uint32
	Tuple    daqingest.FeedbackTuple
}

// MILSample pairs a MIL-DAQ ring item with the flat channel number named
// by its FgMacro field.
type MILSample struct {
	FgNumber uint32
	Item     daqingest.MilDaqItem
}

// ADDACSource drains up to max ADDAC feedback tuples from the shared ring,
// returning the samples read and the number still pending.
type ADDACSource interface {
	PullADDAC(max int) (samples []ADDACSample, remaining int, err error)
}

// MILSource drains up to max MIL-DAQ items, returning the samples read and
// the number still pending.
type MILSource interface {
	PullMIL(max int) (samples []MILSample, remaining int, err error)
}

// channel is one registered FgFeedbackChannel: a callback plus its
// independent set/actual throttle state.
type channel struct {
	fgNumber uint32
	onData   OnData

	threshold int32  // minimum value movement to forward, shared by both streams
	timeout   uint64 // maximum time between forwarded samples, in WR ns

	hasLast          bool
	lastAct, lastSet int32
	lastForwardTime  uint64
	pendingSuppress  *daqingest.FeedbackTuple
}

func (c *channel) observe(t daqingest.FeedbackTuple) []daqingest.FeedbackTuple {
	movedAct := abs32(t.ActValue-c.lastAct) >= c.threshold
	movedSet := abs32(t.SetValue-c.lastSet) >= c.threshold
	aged := t.Timestamp-c.lastForwardTime >= c.timeout

	if c.hasLast && !movedAct && !movedSet && !aged {
		suppressed := t
		c.pendingSuppress = &suppressed
		return nil
	}

	var out []daqingest.FeedbackTuple
	if c.pendingSuppress != nil {
		out = append(out, *c.pendingSuppress)
		c.pendingSuppress = nil
	}
	out = append(out, t)

	c.hasLast = true
	c.lastAct = t.ActValue
	c.lastSet = t.SetValue
	c.lastForwardTime = t.Timestamp
	return out
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// device is one registered FgFeedbackDevice, one per socket.
type device struct {
	socket   fgchannel.Socket
	channels []*channel
}

func (d *device) find(fgNumber uint32) *channel {
	for _, c := range d.channels {
		if c.fgNumber == fgNumber {
			return c
		}
	}
	return nil
}

// Option configures a registered channel's throttle.
type Option func(*channel)

// WithThreshold sets the minimum value movement, on either stream, that
// forwards a sample immediately. The default is 0 (every value change
// forwards).
func WithThreshold(v int32) Option {
	return func(c *channel) { c.threshold = v }
}

// WithTimeout sets the maximum WR-time gap between forwarded samples
// before one is forwarded regardless of value movement. The default is
// "never", i.e. only the threshold decides forwarding unless this is set.
func WithTimeout(ns uint64) Option {
	return func(c *channel) { c.timeout = ns }
}

// noTimeout is the sentinel "no time-based forwarding" value a channel
// carries until WithTimeout overrides it.
const noTimeout = ^uint64(0)

// Administration is the host-side registry and delivery loop: one Device
// per socket, one Channel per fgNumber within a device, fed by draining
// the ADDAC and MIL DAQ rings in DistributeData.
type Administration struct {
	mu      sync.Mutex
	devices map[fgchannel.Socket]*device
	addac   ADDACSource
	mil     MILSource
}

// NewAdministration returns an Administration draining addac and mil on
// each DistributeData call.
func NewAdministration(addac ADDACSource, mil MILSource) *Administration {
	return &Administration{
		devices: make(map[fgchannel.Socket]*device),
		addac:   addac,
		mil:     mil,
	}
}

// RegisterChannel adds fgNumber under socket's device, failing if that
// (socket, fgNumber) pair is already registered. Registration is an O(n)
// linear scan over the device's channel list, matching the original's
// small-N administration.
func (a *Administration) RegisterChannel(socket fgchannel.Socket, fgNumber uint32, onData OnData, opts ...Option) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	dev, ok := a.devices[socket]
	if !ok {
		dev = &device{socket: socket}
		a.devices[socket] = dev
	}
	if dev.find(fgNumber) != nil {
		return fmt.Errorf("fgfeedback: channel %d already registered on socket %s", fgNumber, socket)
	}

	c := &channel{fgNumber: fgNumber, onData: onData, timeout: noTimeout}
	for _, opt := range opts {
		opt(c)
	}
	dev.channels = append(dev.channels, c)
	return nil
}

// Unregister removes fgNumber from socket's device, if present.
func (a *Administration) Unregister(socket fgchannel.Socket, fgNumber uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	dev, ok := a.devices[socket]
	if !ok {
		return
	}
	for i, c := range dev.channels {
		if c.fgNumber == fgNumber {
			dev.channels = append(dev.channels[:i], dev.channels[i+1:]...)
			return
		}
	}
}

func (a *Administration) findChannel(fgNumber uint32) *channel {
	for _, dev := range a.devices {
		if c := dev.find(fgNumber); c != nil {
			return c
		}
	}
	return nil
}

// DistributeData drains up to maxPerRing samples from each of the ADDAC
// and MIL sources in one pass, applies each channel's throttle, and calls
// on_data for every tuple that survives it. It returns the number of
// samples left unprocessed across both rings, so the caller's scheduler
// loop can decide whether to call again before the next tick.
func (a *Administration) DistributeData(maxPerRing int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	remaining := 0

	if a.addac != nil {
		samples, rem, err := a.addac.PullADDAC(maxPerRing)
		if err != nil {
			return 0, fmt.Errorf("fgfeedback: could not pull ADDAC samples: %w", err)
		}
		remaining += rem
		for _, s := range samples {
			a.deliver(s.FgNumber, s.Tuple)
		}
	}

	if a.mil != nil {
		samples, rem, err := a.mil.PullMIL(maxPerRing)
		if err != nil {
			return 0, fmt.Errorf("fgfeedback: could not pull MIL samples: %w", err)
		}
		remaining += rem
		for _, s := range samples {
			a.deliver(s.FgNumber, daqingest.FeedbackTuple{
				Timestamp: s.Item.Timestamp,
				ActValue:  s.Item.ActValue,
				SetValue:  s.Item.SetValue,
			})
		}
	}

	return remaining, nil
}

func (a *Administration) deliver(fgNumber uint32, t daqingest.FeedbackTuple) {
	c := a.findChannel(fgNumber)
	if c == nil {
		return
	}
	for _, fwd := range c.observe(t) {
		c.onData(fwd.Timestamp, fwd.ActValue, fwd.SetValue)
	}
}
