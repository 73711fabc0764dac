// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fgfeedback

import (
	"context"
	"fmt"

	"github.com/gsi-scu/fgctl/conddb"
)

// Persist writes every currently registered channel's (socket, fgNumber,
// threshold, timeout) to store, so a restarted daemon can rebuild its
// registry with Restore instead of waiting for a fresh SCAN. Call
// periodically, e.g. once per RESET(ADDAC|MIL) command handled.
func (a *Administration) Persist(ctx context.Context, store *conddb.DB) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, dev := range a.devices {
		for _, c := range dev.channels {
			reg := conddb.ChannelRegistration{
				Socket:    dev.socket.String(),
				FgNumber:  c.fgNumber,
				Threshold: c.threshold,
				TimeoutNS: c.timeout,
			}
			if err := store.SaveChannel(ctx, reg); err != nil {
				return fmt.Errorf("fgfeedback: could not persist channel %d on %s: %w", c.fgNumber, dev.socket, err)
			}
		}
	}
	return nil
}

// RestoredChannel is one registration loaded back from store, awaiting a
// fresh OnData callback before it can be re-registered (callbacks are not
// persisted; the daemon supplies them again at startup).
type RestoredChannel struct {
	Socket    string
	FgNumber  uint32
	Threshold int32
	TimeoutNS uint64
}

// Restore loads every persisted registration from store. The caller is
// responsible for mapping each RestoredChannel's textual Socket back to a
// fgchannel.Socket and re-registering it with a live OnData callback via
// RegisterChannel; Administration does not reconstruct callbacks itself.
func Restore(ctx context.Context, store *conddb.DB) ([]RestoredChannel, error) {
	regs, err := store.LoadChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("fgfeedback: could not restore channel registry: %w", err)
	}
	out := make([]RestoredChannel, len(regs))
	for i, r := range regs {
		out[i] = RestoredChannel{
			Socket:    r.Socket,
			FgNumber:  r.FgNumber,
			Threshold: r.Threshold,
			TimeoutNS: r.TimeoutNS,
		}
	}
	return out, nil
}
