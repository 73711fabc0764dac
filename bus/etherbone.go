// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bus

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
)

// EtherboneAccessor is the host-side transport: it turns ReadAt/WriteAt
// calls into request/response frames over a net.Conn standing in for the
// Wishbone/Etherbone link (the real wire protocol is out of scope; this is the thin
// client the rest of the host tools dial against). A single connection
// serves one transaction at a time, matching the half-duplex nature of the
// real link.
type EtherboneAccessor struct {
	mu   sync.Mutex
	conn net.Conn
}

// NewEtherboneAccessor returns an EtherboneAccessor issuing requests over
// conn. Wrap it with NewAccessor to get the typed bus.Accessor API.
func NewEtherboneAccessor(conn net.Conn) *EtherboneAccessor {
	return &EtherboneAccessor{conn: conn}
}

// Close closes the underlying connection.
func (e *EtherboneAccessor) Close() error {
	return e.conn.Close()
}

// wire frame: opcode(1) || addr(4) || length(4) || payload
const (
	opRead  = 1
	opWrite = 2
)

// ReadAt reads len(p) bytes starting at byte offset off, round-tripping one
// request/response frame.
func (e *EtherboneAccessor) ReadAt(p []byte, off int64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	hdr := make([]byte, 9)
	hdr[0] = opRead
	binary.BigEndian.PutUint32(hdr[1:5], uint32(off))
	binary.BigEndian.PutUint32(hdr[5:9], uint32(len(p)))
	if _, err := e.conn.Write(hdr); err != nil {
		return 0, fmt.Errorf("bus: could not send etherbone read request: %w", err)
	}

	n, err := io.ReadFull(e.conn, p)
	if err != nil {
		return n, fmt.Errorf("bus: could not read etherbone response: %w", err)
	}
	return n, nil
}

// WriteAt writes p starting at byte offset off, round-tripping one
// request/ack frame.
func (e *EtherboneAccessor) WriteAt(p []byte, off int64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	hdr := make([]byte, 9)
	hdr[0] = opWrite
	binary.BigEndian.PutUint32(hdr[1:5], uint32(off))
	binary.BigEndian.PutUint32(hdr[5:9], uint32(len(p)))
	if _, err := e.conn.Write(hdr); err != nil {
		return 0, fmt.Errorf("bus: could not send etherbone write header: %w", err)
	}
	if _, err := e.conn.Write(p); err != nil {
		return 0, fmt.Errorf("bus: could not send etherbone write payload: %w", err)
	}

	ack := make([]byte, 1)
	if _, err := io.ReadFull(e.conn, ack); err != nil {
		return 0, fmt.Errorf("bus: could not read etherbone write ack: %w", err)
	}
	if ack[0] != 0 {
		return 0, fmt.Errorf("bus: etherbone write rejected, status=%d", ack[0])
	}
	return len(p), nil
}

var (
	_ io.ReaderAt = (*EtherboneAccessor)(nil)
	_ io.WriterAt = (*EtherboneAccessor)(nil)
	_ io.Closer   = (*EtherboneAccessor)(nil)
)
