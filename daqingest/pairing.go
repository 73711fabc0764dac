// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daqingest

import (
	"encoding/binary"
)

// FeedbackTuple is one (timestamp, actValue, setValue) delivered to an
// upper-layer consumer after pairing.
type FeedbackTuple struct {
	Timestamp uint64
	ActValue  int32
	SetValue  int32
}

// Block is a reordered DAQ block (descriptor, then payload samples) ready
// for pairing.
type Block struct {
	Desc    Descriptor
	Payload []byte // SampleSize-byte raw samples
}

// PairPolicy selects how Pairer decides two sibling blocks belong to the
// same ramp.
type PairPolicy int

const (
	PolicyBySequence PairPolicy = iota
	PolicyByTimestamp
)

// PairHooks are optional diagnostics for borderline pairing decisions.
type PairHooks struct {
	// OnDeviation fires when a sequence-number difference exceeds ±1, or
	// a timestamp difference exceeds the configured tolerance, and the
	// two sides are paired anyway (timestamp policy) or dropped back to
	// waiting (sequence policy).
	OnDeviation func(reason string)
}

// Pairer fuses a stream's "set" and "actual" DAQ blocks into
// FeedbackTuples, one policy applied uniformly across all streams it
// serves.
type Pairer struct {
	policy    PairPolicy
	tolerance uint32 // REL_PHASE_TOLERANCE, in units of sampleTime
	hooks     PairHooks

	pendingSet map[int]Block
	pendingAct map[int]Block
}

// NewPairer returns a Pairer applying policy uniformly; tolerance is only
// meaningful for PolicyByTimestamp.
func NewPairer(policy PairPolicy, tolerance uint32, hooks PairHooks) *Pairer {
	return &Pairer{
		policy:     policy,
		tolerance:  tolerance,
		hooks:      hooks,
		pendingSet: make(map[int]Block),
		pendingAct: make(map[int]Block),
	}
}

// PushSet submits a "set" stream block for streamID, returning tuples if
// it could be immediately paired with a waiting "actual" block.
func (p *Pairer) PushSet(streamID int, b Block) []FeedbackTuple {
	if act, ok := p.pendingAct[streamID]; ok {
		tuples, paired, resync := p.tryPair(b, act)
		if paired {
			delete(p.pendingAct, streamID)
			return tuples
		}
		if resync {
			// the pending actual side deviated too far to ever pair with
			// this set block: it's stale, drop it so the stream
			// resynchronizes on the next matched pair instead of
			// comparing every future block against it.
			delete(p.pendingAct, streamID)
		}
	}
	p.pendingSet[streamID] = b
	return nil
}

// PushActual submits an "actual" stream block for streamID, returning
// tuples if it could be immediately paired with a waiting "set" block.
func (p *Pairer) PushActual(streamID int, b Block) []FeedbackTuple {
	if set, ok := p.pendingSet[streamID]; ok {
		tuples, paired, resync := p.tryPair(set, b)
		if paired {
			delete(p.pendingSet, streamID)
			return tuples
		}
		if resync {
			delete(p.pendingSet, streamID)
		}
	}
	p.pendingAct[streamID] = b
	return nil
}

// tryPair reports whether set/act pair, and if not, whether the pending
// opposite-side block is stale enough to discard (the "resynchronize by
// discarding the older side" behavior for a large sequence deviation).
func (p *Pairer) tryPair(set, act Block) (tuples []FeedbackTuple, paired, resync bool) {
	switch p.policy {
	case PolicyBySequence:
		return p.tryPairBySequence(set, act)
	case PolicyByTimestamp:
		return p.tryPairByTimestamp(set, act)
	default:
		return nil, false, false
	}
}

func (p *Pairer) tryPairBySequence(set, act Block) (tuples []FeedbackTuple, paired, resync bool) {
	diff := int(act.Desc.Sequence) - int(set.Desc.Sequence)
	switch {
	case diff == 0:
		return p.synthesize(set, act), true, false
	case diff == 1 || diff == -1 || diff == 255 || diff == -255:
		// within one round of each other: wait for the next block on
		// whichever side is behind.
		return nil, false, false
	default:
		if p.hooks.OnDeviation != nil {
			p.hooks.OnDeviation("sequence number deviation exceeds +/-1")
		}
		return nil, false, true
	}
}

func (p *Pairer) tryPairByTimestamp(set, act Block) (tuples []FeedbackTuple, paired, resync bool) {
	sampleTime := int64(set.Desc.SampleTime)
	delta := int64(act.Desc.Timestamp) - int64(set.Desc.Timestamp)
	if delta < 0 {
		delta = -delta
	}
	tol := int64(p.tolerance) * sampleTime
	if delta > tol {
		return nil, false, false
	}
	if delta != 0 && p.hooks.OnDeviation != nil {
		p.hooks.OnDeviation("timestamp deviation within tolerance but non-zero")
	}
	return p.synthesize(set, act), true, false
}

// synthesize produces one tuple per sample index common to both payloads;
// the timestamp of sample i is t_set + i*sampleTime.
func (p *Pairer) synthesize(set, act Block) []FeedbackTuple {
	n := len(set.Payload) / SampleSize
	if m := len(act.Payload) / SampleSize; m < n {
		n = m
	}
	tuples := make([]FeedbackTuple, n)
	for i := 0; i < n; i++ {
		tuples[i] = FeedbackTuple{
			Timestamp: set.Desc.Timestamp + uint64(i)*uint64(set.Desc.SampleTime),
			SetValue:  int32(binary.BigEndian.Uint32(set.Payload[i*SampleSize:])),
			ActValue:  int32(binary.BigEndian.Uint32(act.Payload[i*SampleSize:])),
		}
	}
	return tuples
}
