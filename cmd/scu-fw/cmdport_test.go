// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"net"
	"testing"

	"github.com/gsi-scu/fgctl/irq"
	"github.com/stretchr/testify/require"
)

func TestCommandPortForwardsToSaftQueue(t *testing.T) {
	fw := &firmware{saftQ: irq.NewBoundedQueue[irq.SaftCommand](8)}

	port, err := newCommandPort("127.0.0.1:0", fw)
	require.NoError(t, err)
	defer port.Close()
	go port.Run()

	conn, err := net.Dial("tcp", port.ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	enc := json.NewEncoder(conn)
	dec := json.NewDecoder(conn)

	require.NoError(t, enc.Encode(Request{Name: "ENABLE", Channel: 3, Arg: 1000}))
	var reply Reply
	require.NoError(t, dec.Decode(&reply))
	require.True(t, reply.OK)

	cmd, ok := fw.saftQ.Pop()
	require.True(t, ok)
	require.Equal(t, irq.SaftCommand{Name: "ENABLE", Channel: 3, Arg: 1000}, cmd)
}

func TestNewCommandPortDisabledOnEmptyAddr(t *testing.T) {
	fw := &firmware{saftQ: irq.NewBoundedQueue[irq.SaftCommand](8)}
	port, err := newCommandPort("", fw)
	require.NoError(t, err)
	require.Nil(t, port)
}

func TestCommandPortQueueOverflow(t *testing.T) {
	fw := &firmware{saftQ: irq.NewBoundedQueue[irq.SaftCommand](1)}
	port, err := newCommandPort("127.0.0.1:0", fw)
	require.NoError(t, err)
	defer port.Close()
	go port.Run()

	conn, err := net.Dial("tcp", port.ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	enc := json.NewEncoder(conn)
	dec := json.NewDecoder(conn)

	require.NoError(t, enc.Encode(Request{Name: "ENABLE", Channel: 1}))
	var first Reply
	require.NoError(t, dec.Decode(&first))
	require.True(t, first.OK)

	require.NoError(t, enc.Encode(Request{Name: "ENABLE", Channel: 2}))
	var second Reply
	require.NoError(t, dec.Decode(&second))
	require.False(t, second.OK)
	require.NotEmpty(t, second.Error)
}
