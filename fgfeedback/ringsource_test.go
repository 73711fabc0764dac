// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fgfeedback_test

import (
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/gsi-scu/fgctl/bus"
	"github.com/gsi-scu/fgctl/daqingest"
	"github.com/gsi-scu/fgctl/fgfeedback"
	"github.com/gsi-scu/fgctl/hostram"
	"github.com/gsi-scu/fgctl/mmu"
	"github.com/gsi-scu/fgctl/ring"
	"github.com/stretchr/testify/require"
)

type fakeMem struct{ data []byte }

func newFakeMem(n int) *fakeMem { return &fakeMem{data: make([]byte, n)} }
func (m *fakeMem) ReadAt(p []byte, off int64) (int, error) {
	return copy(p, m.data[off:]), nil
}
func (m *fakeMem) WriteAt(p []byte, off int64) (int, error) {
	if int(off)+len(p) > len(m.data) {
		return 0, io.ErrShortWrite
	}
	return copy(m.data[off:], p), nil
}

func serveEtherbone(conn net.Conn, mem *fakeMem) {
	for {
		hdr := make([]byte, 9)
		if _, err := io.ReadFull(conn, hdr); err != nil {
			return
		}
		op := hdr[0]
		addr := binary.BigEndian.Uint32(hdr[1:5])
		length := binary.BigEndian.Uint32(hdr[5:9])
		switch op {
		case 1:
			buf := make([]byte, length)
			_, _ = mem.ReadAt(buf, int64(addr))
			_, _ = conn.Write(buf)
		case 2:
			payload := make([]byte, length)
			if _, err := io.ReadFull(conn, payload); err != nil {
				return
			}
			_, _ = mem.WriteAt(payload, int64(addr))
			_, _ = conn.Write([]byte{0})
		default:
			return
		}
	}
}

// TestADDACRingSourcePullsAndPairs builds one ADDAC "set" block and one
// "actual" block directly in a fake bulk-RAM buffer the way the
// firmware-side daqingest.Ingest would, publishes the ring header, and
// checks that ADDACRingSource reads them back over the wire, pairs them,
// and produces one feedback sample per sample index.
func TestADDACRingSourcePullsAndPairs(t *testing.T) {
	mem := newFakeMem(1 << 16)
	fwAcc := bus.NewAccessor(mem)

	dir := mmu.New(fwAcc, 0, uint32(len(mem.data)), true)
	require.NoError(t, dir.Init())

	const ringWords = 256
	start, _, status, err := dir.Allocate(mmu.TagADDACDaq, ring.HeaderSize+ringWords*8, true)
	require.NoError(t, err)
	require.Equal(t, mmu.OK, status)

	fwRing := ring.NewAdmin(start+ring.HeaderSize, ringWords)

	writeBlock := func(desc daqingest.Descriptor, values []int32) {
		payload := make([]byte, len(values)*daqingest.SampleSize)
		for i, v := range values {
			binary.BigEndian.PutUint32(payload[i*4:], uint32(v))
		}
		raw := append(desc.Pack(), payload...)
		addr := fwRing.Offset + fwRing.End*8
		require.NoError(t, fwAcc.WriteBurst(addr, pad8(raw)))
		fwRing.Push(uint32(len(pad8(raw)) / 8))
	}

	setDesc := daqingest.Descriptor{Slot: 4, Channel: 0, Mode: daqingest.ModeContinuous, Sequence: 10, Timestamp: 1000, SampleTime: 5}
	actDesc := daqingest.Descriptor{Slot: 4, Channel: 1, Mode: daqingest.ModeContinuous, Sequence: 10, Timestamp: 1000, SampleTime: 5}
	writeBlock(setDesc, []int32{100, 110})
	writeBlock(actDesc, []int32{99, 108})

	require.NoError(t, ring.PublishHeader(fwAcc, fwRing.Offset-ring.HeaderSize, fwRing))

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	go serveEtherbone(server, mem)

	hc := hostram.FromConn(client)

	pairer := daqingest.NewPairer(daqingest.PolicyBySequence, 0, daqingest.PairHooks{})
	role := func(slot, channel uint8) (uint32, bool, bool) {
		if slot != 4 {
			return 0, false, false
		}
		switch channel {
		case 0:
			return 42, true, true
		case 1:
			return 42, false, true
		default:
			return 0, false, false
		}
	}

	src, err := fgfeedback.NewADDACRingSource(hc, pairer, role)
	require.NoError(t, err)

	samples, remaining, err := src.PullADDAC(16)
	require.NoError(t, err)
	require.Equal(t, 0, remaining)
	require.Len(t, samples, 2)
	require.EqualValues(t, 42, samples[0].FgNumber)
	require.Equal(t, int32(100), samples[0].Tuple.SetValue)
	require.Equal(t, int32(99), samples[0].Tuple.ActValue)
	require.Equal(t, int32(110), samples[1].Tuple.SetValue)
	require.Equal(t, int32(108), samples[1].Tuple.ActValue)
}

func pad8(b []byte) []byte {
	if len(b)%8 == 0 {
		return b
	}
	return append(b, make([]byte, 8-len(b)%8)...)
}
