// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"net"
)

// Request mirrors cmd/scu-fw's commandPort wire frame: a SaftCommand name
// plus its channel and optional argument, JSON-encoded one per line.
type Request struct {
	Name    string `json:"name"`
	Channel int    `json:"channel"`
	Arg     int64  `json:"arg"`
}

// Reply answers a Request.
type Reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// terminal is a persistent connection to a scu-fw command port, sending
// one Request and reading back one Reply per call.
type terminal struct {
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

func newTerminal(addr string) (*terminal, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &terminal{conn: conn, enc: json.NewEncoder(conn), dec: json.NewDecoder(conn)}, nil
}

func (t *terminal) Send(req Request) error {
	if err := t.enc.Encode(req); err != nil {
		return fmt.Errorf("scu-shell: could not send command: %w", err)
	}
	var reply Reply
	if err := t.dec.Decode(&reply); err != nil {
		return fmt.Errorf("scu-shell: could not read reply: %w", err)
	}
	if !reply.OK {
		return fmt.Errorf("scu-fw: %s", reply.Error)
	}
	return nil
}

func (t *terminal) Close() error {
	return t.conn.Close()
}
