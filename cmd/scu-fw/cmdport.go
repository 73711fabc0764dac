// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"

	"github.com/gsi-scu/fgctl/irq"
)

// Request is one line of cmd/scu-shell's wire protocol, mirroring
// eda-ctl's JSON command frames: a SaftCommand name plus its channel and
// optional argument.
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

// commandPort is scu-fw's TCP counterpart to cmd/scu-shell: it decodes one
// JSON Request per line and forwards it to PushSaftCommand, the same queue
// commandStep drains every tick.
type commandPort struct {
	ln net.Listener
	fw *firmware
}

// newCommandPort listens on addr and returns a port ready to Run. An empty
// addr disables the port (scu-fw is then only controllable via the tdaq
// run-control surface).
func newCommandPort(addr string, fw *firmware) (*commandPort, error) {
	if addr == "" {
		return nil, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("scu-fw: could not listen on %q: %w", addr, err)
	}
	return &commandPort{ln: ln, fw: fw}, nil
}

// Run accepts connections until the listener is closed, handling each on
// its own goroutine the way eda-ctl's server.run does.
func (p *commandPort) Run() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		go p.handle(conn)
	}
}

func (p *commandPort) Close() error {
	return p.ln.Close()
}

func (p *commandPort) handle(conn net.Conn) {
	defer conn.Close()

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("scu-fw: command port: could not decode request: %+v", err)
			}
			return
		}

		err := p.fw.PushSaftCommand(irq.SaftCommand{Name: req.Name, Channel: req.Channel, Arg: req.Arg})
		reply := Reply{OK: err == nil}
		if err != nil {
			reply.Error = err.Error()
		}
		if err := enc.Encode(reply); err != nil {
			log.Printf("scu-fw: command port: could not encode reply: %+v", err)
			return
		}
	}
}
