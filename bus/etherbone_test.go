// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bus_test

import (
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/gsi-scu/fgctl/bus"
	"github.com/stretchr/testify/require"
)

// fakeEtherboneServer answers one read and one write request against an
// in-memory byte array, just enough to exercise the wire framing
// EtherboneAccessor speaks.
func fakeEtherboneServer(t *testing.T, conn net.Conn, mem []byte) {
	t.Helper()
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
			_, _ = conn.Write(mem[addr : addr+length])
		case 2:
			payload := make([]byte, length)
			if _, err := io.ReadFull(conn, payload); err != nil {
				return
			}
			copy(mem[addr:], payload)
			_, _ = conn.Write([]byte{0})
		default:
			return
		}
	}
}

func TestEtherboneAccessor(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	mem := make([]byte, 64)
	go fakeEtherboneServer(t, server, mem)

	eb := bus.NewEtherboneAccessor(client)
	acc := bus.NewAccessor(eb)

	require.NoError(t, acc.WriteU32(8, 0xdeadbeef))
	v, err := acc.ReadU32(8)
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), v)

	require.NoError(t, acc.WriteBurst(16, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	buf, err := acc.ReadBurst(16, 8, 1)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, buf)
}
