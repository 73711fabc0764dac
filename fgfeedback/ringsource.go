// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fgfeedback

import (
	"fmt"

	"github.com/gsi-scu/fgctl/daqingest"
	"github.com/gsi-scu/fgctl/hostram"
	"github.com/gsi-scu/fgctl/mmu"
	"github.com/gsi-scu/fgctl/ring"
)

// RoleLookup maps a DAQ descriptor's (slot, channel) to the flat fgNumber
// its samples belong to and which side of the set/actual pair it is,
// standing in for the registration table FgFeedbackAdministration keeps
// in the original (prj/scu-control/daq/linux/scu_fg_feedback.cpp): a
// channel is known to the administration before its samples mean
// anything. ok is false for a slot/channel this host does not service.
type RoleLookup func(slot, channel uint8) (fgNumber uint32, isSet bool, ok bool)

// ADDACRingSource drains the ADDAC DAQ ring over a hostram.Client,
// feeding each block through a daqingest.Pairer keyed by fgNumber and
// implementing the ADDACSource interface DistributeData consumes.
type ADDACRingSource struct {
	client *hostram.Client
	ring   *ringView
	pairer *daqingest.Pairer
	role   RoleLookup
}

// NewADDACRingSource opens the ADDAC DAQ ring (tag mmu.TagADDACDaq) on
// client and returns a source pairing its blocks with pairer, routing
// samples to fgNumbers resolved by role.
func NewADDACRingSource(client *hostram.Client, pairer *daqingest.Pairer, role RoleLookup) (*ADDACRingSource, error) {
	a, err := client.OpenRing(mmu.TagADDACDaq)
	if err != nil {
		return nil, fmt.Errorf("fgfeedback: could not open addac daq ring: %w", err)
	}
	return &ADDACRingSource{client: client, ring: &ringView{Admin: a}, pairer: pairer, role: role}, nil
}

// PullADDAC implements ADDACSource: it refreshes the ring admin cell,
// reads up to max short (continuous-mode) blocks, parses each block's
// descriptor (moved to the head of the ring entry by the firmware-side
// ingest pipeline), pairs it against its sibling stream, and routes the
// resulting tuples to the fgNumber role resolves.
func (s *ADDACRingSource) PullADDAC(max int) ([]ADDACSample, int, error) {
	if err := s.client.RefreshRing(s.ring.Admin); err != nil {
		return nil, 0, fmt.Errorf("fgfeedback: could not refresh addac ring: %w", err)
	}

	const blockWords = daqingest.ShortBlockLen / 8
	var out []ADDACSample

	for i := 0; i < max; i++ {
		if s.ring.Size() < blockWords {
			break
		}
		raw, err := s.ring.readBlock(s.client.Accessor(), blockWords)
		if err != nil {
			return out, 0, fmt.Errorf("fgfeedback: could not read addac block: %w", err)
		}

		desc, err := daqingest.ParseDescriptor(raw[:daqingest.DescriptorSize])
		if err != nil {
			return out, 0, fmt.Errorf("fgfeedback: could not parse addac descriptor: %w", err)
		}
		blk := daqingest.Block{Desc: desc, Payload: raw[daqingest.DescriptorSize:]}

		if fgNumber, isSet, ok := s.role(desc.Slot, desc.Channel); ok {
			var tuples []daqingest.FeedbackTuple
			if isSet {
				tuples = s.pairer.PushSet(int(fgNumber), blk)
			} else {
				tuples = s.pairer.PushActual(int(fgNumber), blk)
			}
			for _, t := range tuples {
				out = append(out, ADDACSample{FgNumber: fgNumber, Tuple: t})
			}
		}

		s.ring.advance(blockWords)
	}

	if err := s.client.AckRing(s.ring.Admin); err != nil {
		return out, 0, fmt.Errorf("fgfeedback: could not ack addac ring: %w", err)
	}
	return out, int(s.ring.Size() / blockWords), nil
}

// MILRingSource drains the MIL-DAQ ring over a hostram.Client, each item
// already carrying its own fgMacro (no pairing needed: the MIL FSM writes
// one complete tuple per sample).
type MILRingSource struct {
	client *hostram.Client
	ring   *ringView
}

// NewMILRingSource opens the MIL-DAQ ring (tag mmu.TagMILDaq) on client.
func NewMILRingSource(client *hostram.Client) (*MILRingSource, error) {
	a, err := client.OpenRing(mmu.TagMILDaq)
	if err != nil {
		return nil, fmt.Errorf("fgfeedback: could not open mil daq ring: %w", err)
	}
	return &MILRingSource{client: client, ring: &ringView{Admin: a}}, nil
}

// PullMIL implements MILSource.
func (s *MILRingSource) PullMIL(max int) ([]MILSample, int, error) {
	if err := s.client.RefreshRing(s.ring.Admin); err != nil {
		return nil, 0, fmt.Errorf("fgfeedback: could not refresh mil ring: %w", err)
	}

	const itemWords = daqingest.MilDaqItemSize / 8
	var out []MILSample

	for i := 0; i < max; i++ {
		if s.ring.Size() < itemWords {
			break
		}
		raw, err := s.ring.readBlock(s.client.Accessor(), itemWords)
		if err != nil {
			return out, 0, fmt.Errorf("fgfeedback: could not read mil-daq item: %w", err)
		}
		item := daqingest.UnpackMilDaqItem(raw)
		out = append(out, MILSample{FgNumber: item.FgMacro, Item: item})
		s.ring.advance(itemWords)
	}

	if err := s.client.AckRing(s.ring.Admin); err != nil {
		return out, 0, fmt.Errorf("fgfeedback: could not ack mil ring: %w", err)
	}
	return out, int(s.ring.Size() / itemWords), nil
}

// ringView wraps a ring.Admin with the host-side cursor walk a single
// Pull call needs: read fixed-size units starting at Start, locally
// advancing Start (never written back to the wire — only Acknowledge's
// cumulative WasRead is) until AckRing releases the whole batch at once.
type ringView struct {
	*ring.Admin
}

func (v *ringView) readBlock(acc interface {
	ReadBurst(addr uint32, n, wordSize int) ([]byte, error)
}, words uint32) ([]byte, error) {
	addr := v.Offset + v.Start*8
	return acc.ReadBurst(addr, int(words*8), 1)
}

func (v *ringView) advance(words uint32) {
	v.Acknowledge(words)
	v.Start = v.Increment(v.Start, words)
}
