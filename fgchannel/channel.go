// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fgchannel

import "fmt"

// Channel is the capability set the FG execution engine drives, uniform
// across both hardware families.
type Channel interface {
	Prepare() error
	Start(seg Segment) error
	DisableIRQ() error
	Disable() error
	FeedNext(seg Segment) error
	ReadStatus() (Status, error)
	ReadSample() (Sample, error)
}

// NewChannel dispatches on socket.Family and returns the concrete variant
// bound to acc at the register layout implied by socket. There is no
// dynamic cast afterwards: the returned Channel is used purely through the
// interface.
func NewChannel(acc Bus, socket Socket) (Channel, error) {
	switch socket.Family {
	case FamilyADDAC:
		return newAddacChannel(acc, socket), nil
	case FamilyMIL:
		return newMilChannel(acc, socket), nil
	default:
		return nil, fmt.Errorf("fgchannel: unknown family %d for socket %s", socket.Family, socket)
	}
}

// Bus is the subset of bus.Accessor the channel variants need, kept narrow
// so tests can supply a fake without wiring up a full Accessor.
type Bus interface {
	ReadU32(addr uint32) (uint32, error)
	WriteU32(addr uint32, v uint32) error
	ReadBurst(addr uint32, n, wordSize int) ([]byte, error)
	WriteBurst(addr uint32, buf []byte) error
}
