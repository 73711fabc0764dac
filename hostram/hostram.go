// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hostram is the Linux-side library that mirrors the bus and MMU
// directory (4.A/4.B) against a running front-end over Etherbone: it
// dials the bulk-RAM window, opens the MMU directory in read-mostly mode
// (the host only ever writes the "was-read" acknowledgement cell of a
// ring) and hands out ring.Admin views of the directory's named regions.
//
// This mirrors Ddr3Access/SramAccess from the original spec and
// eda/pio.go's mmap-binding style, adapted to dial a net.Conn instead of
// mmapping /dev/mem.
package hostram // import "github.com/gsi-scu/fgctl/hostram"

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/gsi-scu/fgctl/bus"
	"github.com/gsi-scu/fgctl/mmu"
	"github.com/gsi-scu/fgctl/ring"
)

// Option configures a Client.
type Option func(*config)

type config struct {
	burstThreshold int
	dialTimeout    time.Duration
	anchorOffset   uint32
	ramEnd         uint32
}

// WithBurstThreshold sets the bus.Accessor burst threshold used for bulk
// reads of directory entries and ring payloads.
func WithBurstThreshold(n int) Option {
	return func(cfg *config) { cfg.burstThreshold = n }
}

// WithDialTimeout bounds how long Dial waits to connect.
func WithDialTimeout(d time.Duration) Option {
	return func(cfg *config) { cfg.dialTimeout = d }
}

// WithAnchor overrides the default MMU anchor offset and RAM-end bound,
// for front-ends whose bulk-RAM layout differs from the default SCU3/SCU4
// convention.
func WithAnchor(anchorOffset, ramEnd uint32) Option {
	return func(cfg *config) {
		cfg.anchorOffset = anchorOffset
		cfg.ramEnd = ramEnd
	}
}

const (
	// defaultAnchorOffset is the fixed word offset of the MMU anchor from
	// the bulk-RAM base.
	defaultAnchorOffset = 0
	defaultRAMEnd       = 1 << 24 // 16 MiB, a conservative SCU3 DDR3 window
)

// Client is the host-side handle on one front-end's bulk RAM: a dialed
// Etherbone-style connection, the typed bus.Accessor built on top of it,
// and the MMU directory view.
type Client struct {
	eb   *bus.EtherboneAccessor
	acc  *bus.Accessor
	dir  *mmu.Directory
	addr string
}

// Dial connects to a front-end's bulk-RAM endpoint at addr (e.g.
// "tcp/asl-scuxx:60368" style URLs are resolved by the caller to a plain
// "host:port" before calling Dial; URL parsing is a CLI concern out of
// scope here) and returns a Client able to read the MMU directory and any
// ring it names.
func Dial(addr string, opts ...Option) (*Client, error) {
	cfg := config{burstThreshold: 1, dialTimeout: 5 * time.Second, anchorOffset: defaultAnchorOffset, ramEnd: defaultRAMEnd}
	for _, opt := range opts {
		opt(&cfg)
	}

	conn, err := net.DialTimeout("tcp", addr, cfg.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("hostram: could not dial %q: %w", addr, err)
	}

	c := newClient(conn, addr, cfg)
	return c, nil
}

// FromConn builds a Client directly on top of an already-established
// connection, for callers that dial or accept the connection themselves
// (tests, or a caller layering TLS/auth before handing off the conn).
func FromConn(conn net.Conn, opts ...Option) *Client {
	cfg := config{burstThreshold: 1, anchorOffset: defaultAnchorOffset, ramEnd: defaultRAMEnd}
	for _, opt := range opts {
		opt(&cfg)
	}
	return newClient(conn, conn.RemoteAddr().String(), cfg)
}

func newClient(conn net.Conn, addr string, cfg config) *Client {
	eb := bus.NewEtherboneAccessor(conn)
	acc := bus.NewAccessor(eb, bus.WithBurstThreshold(cfg.burstThreshold))
	dir := mmu.New(acc, cfg.anchorOffset, cfg.ramEnd, false)

	return &Client{eb: eb, acc: acc, dir: dir, addr: addr}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.eb.Close()
}

// Addr reports the dialed address, for diagnostics.
func (c *Client) Addr() string { return c.addr }

// Accessor exposes the raw typed accessor, for collaborators (fgfeedback,
// the log daemon) that need direct register access beyond the MMU/ring
// views, e.g. reading the per-channel signal mailbox.
func (c *Client) Accessor() *bus.Accessor { return c.acc }

// Directory exposes the read-only MMU directory view.
func (c *Client) Directory() *mmu.Directory { return c.dir }

// OpenRing locates tag in the directory and returns a ring.Admin bound to
// its region, reading the current {Start, End, WasRead} from the wire.
// ErrTagNotFound is returned if the front-end has not allocated that tag
// yet (e.g. it booted with logging disabled).
func (c *Client) OpenRing(tag uint16) (*ring.Admin, error) {
	entry, ok, err := c.dir.Lookup(tag)
	if err != nil {
		return nil, fmt.Errorf("hostram: could not look up tag 0x%x: %w", tag, err)
	}
	if !ok {
		return nil, fmt.Errorf("hostram: %w: tag=0x%x", ErrTagNotFound, tag)
	}

	// The region's first ring.HeaderSize bytes are the {start, end,
	// was_read} admin cell the firmware publishes on every tick; the
	// payload ring itself starts right after it (the host
	// never mutates a producer-owned field other than was_read).
	payloadWords := (entry.Length - ring.HeaderSize) / 8
	a := ring.NewAdmin(entry.StartIndex+ring.HeaderSize, payloadWords)
	if err := c.RefreshRing(a); err != nil {
		return nil, err
	}
	return a, nil
}

// RefreshRing re-reads a's Start/End/WasRead cells from the wire; the host
// calls this before every Pull/drain since the firmware is the sole writer
// of Start/End.
func (c *Client) RefreshRing(a *ring.Admin) error {
	start, end, wasRead, err := ring.ReadHeader(c.acc, a.Offset-ring.HeaderSize)
	if err != nil {
		return fmt.Errorf("hostram: could not refresh ring admin: %w", err)
	}
	a.Start = start
	a.End = end
	a.WasRead = wasRead
	return nil
}

// AckRing writes a.WasRead back to the wire, releasing the consumed slots
// to the firmware producer. This is the one field the host is permitted to
// mutate in a ring's admin cell.
func (c *Client) AckRing(a *ring.Admin) error {
	headerOffset := a.Offset - ring.HeaderSize
	if err := c.acc.WriteU32(headerOffset+8, a.WasRead); err != nil {
		return fmt.Errorf("hostram: could not write was_read at 0x%x: %w", headerOffset+8, err)
	}
	return nil
}

// ErrTagNotFound is returned by OpenRing when the directory has no entry
// for the requested tag.
var ErrTagNotFound = errors.New("hostram: tag not found")
