// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"time"

	"github.com/gsi-scu/fgctl/hostram"
	"github.com/gsi-scu/fgctl/logfifo"
	"github.com/gsi-scu/fgctl/ring"
)

// taiUnixEpochOffset is the fixed TAI-UTC leap-second offset this daemon
// assumes when -utc is set; a production deployment would source this
// from the same leap-second table SAFTLIB uses, out of scope here.
const taiUnixEpochOffset = 37 * time.Second

type daemon struct {
	client  *hostram.Client
	ring    *ring.Admin
	puller  *logfifo.Puller
	symtab  logfifo.SymbolTable
	allowed map[uint32]bool
	utc     bool
	strip   bool
	sink    io.Writer

	alertAfter    time.Duration
	lastRecordAt  time.Time
	alerted       bool
}

func (d *daemon) run(freq time.Duration, maxPull int, stop <-chan os.Signal) error {
	tick := time.NewTicker(freq)
	defer tick.Stop()

	d.lastRecordAt = nowFunc()

	for {
		select {
		case <-stop:
			log.Printf("shutting down...")
			return nil
		case <-tick.C:
			if err := d.poll(maxPull); err != nil {
				log.Printf("poll error: %+v", err)
			}
		}
	}
}

func (d *daemon) poll(maxPull int) error {
	if err := d.client.RefreshRing(d.ring); err != nil {
		return fmt.Errorf("scu-logd: could not refresh ring admin: %w", err)
	}

	recs, err := d.puller.Pull(maxPull)
	if err != nil {
		return fmt.Errorf("scu-logd: could not pull records: %w", err)
	}

	if len(recs) == 0 {
		d.checkAlarm()
		return nil
	}
	d.lastRecordAt = nowFunc()
	d.alerted = false

	for _, rec := range recs {
		if d.allowed != nil && !d.allowed[rec.Filter] {
			continue
		}
		line, err := logfifo.Render(rec, d.symtab)
		if err != nil {
			log.Printf("could not render record (filter=%d): %+v", rec.Filter, err)
			continue
		}
		d.writeLine(rec, line)
	}

	return d.client.AckRing(d.ring)
}

func (d *daemon) writeLine(rec logfifo.Record, line string) {
	if d.strip {
		line = stripANSI(line)
	}
	ts := formatTimestamp(rec.Timestamp, d.utc)
	fmt.Fprintf(d.sink, "%s [%d] %s\n", ts, rec.Filter, line)
}

func (d *daemon) checkAlarm() {
	if d.alertAfter == 0 || d.alerted {
		return
	}
	if nowFunc().Sub(d.lastRecordAt) < d.alertAfter {
		return
	}
	d.alerted = true
	alertFifoStall(d.client.Addr(), d.alertAfter)
}

// nowFunc is overridden in tests.
var nowFunc = time.Now

func formatTimestamp(taiNanos uint64, utc bool) string {
	if !utc {
		return fmt.Sprintf("%d", taiNanos)
	}
	t := time.Unix(0, int64(taiNanos)).Add(-taiUnixEpochOffset).UTC()
	return t.Format(time.RFC3339Nano)
}

var ansiRE = regexp.MustCompile("\x1b\\[[0-9;]*[a-zA-Z]")

func stripANSI(s string) string {
	return ansiRE.ReplaceAllString(s, "")
}
