// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command scu-logd is the host-side log-fifo daemon: it periodically
// pulls records from a running front-end's log fifo, filters them by an
// allowed-filter bitset, renders the format string found at each record's
// firmware address, and writes the resulting lines to syslog, a file, or
// stdout. It self-monitors with pmon and, on a persistently empty or stuck
// fifo, can raise a mail alert, the same alerting idiom cmd/eda-ctl uses
// for a stalled DAQ output file.
package main // import "github.com/gsi-scu/fgctl/cmd/scu-logd"

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gsi-scu/fgctl/hostram"
	"github.com/gsi-scu/fgctl/logfifo"
	"github.com/gsi-scu/fgctl/mmu"
)

func main() {
	log.SetPrefix("scu-logd: ")
	log.SetFlags(0)

	if err := xmain(os.Args[1:]); err != nil {
		log.Fatalf("%+v", err)
	}
}

func xmain(args []string) error {
	var (
		fset = flag.NewFlagSet("scu-logd", flag.ContinueOnError)

		addr    = fset.String("addr", envOr("SCU_URL", "dev/wbm0"), "front-end bulk-RAM address, e.g. tcp/asl-scuxx:60368")
		filters = fset.String("filters", "", "comma-separated list of allowed filter values (default: all)")
		freq    = fset.Duration("freq", 200*time.Millisecond, "poll interval")
		maxPull = fset.Int("max-pull", 64, "max records pulled per poll")
		out     = fset.String("out", "stdout", "output sink: stdout, syslog, or a file path")
		utc     = fset.Bool("utc", false, "render timestamps as UTC instead of TAI nanoseconds")
		stripAnsi = fset.Bool("strip-ansi", false, "strip ANSI escape sequences from rendered lines")
		lockPort  = fset.Int("lock-port", 0, "loopback TCP port for the single-instance lock (default: derived from addr)")
		doMon     = fset.Bool("pmon", false, "enable pmon self-monitoring")
		monFreq   = fset.Duration("pmon-freq", 5*time.Second, "pmon sampling frequency")
		alertAfter = fset.Duration("alert-after", 0, "send a mail alert if no records are pulled for this long (0 disables)")
	)

	if err := fset.Parse(args); err != nil {
		return fmt.Errorf("could not parse input arguments: %w", err)
	}

	allowed, err := parseFilters(*filters)
	if err != nil {
		return fmt.Errorf("could not parse -filters: %w", err)
	}

	unlock, err := acquireSingleInstanceLock(*addr, *lockPort)
	if err != nil {
		return fmt.Errorf("could not acquire single-instance lock: %w", err)
	}
	defer unlock()

	sink, closeSink, err := newSink(*out)
	if err != nil {
		return fmt.Errorf("could not open output sink %q: %w", *out, err)
	}
	defer closeSink()

	client, err := hostram.Dial(dialAddr(*addr))
	if err != nil {
		return fmt.Errorf("could not dial front-end %q: %w", *addr, err)
	}
	defer client.Close()

	ring, err := client.OpenRing(mmu.TagLM32Log)
	if err != nil {
		return fmt.Errorf("could not open log fifo: %w", err)
	}

	if *doMon {
		stopMon := startSelfMonitor(*monFreq)
		defer stopMon()
	}

	d := &daemon{
		client:  client,
		ring:    ring,
		puller:  logfifo.NewPuller(client.Accessor(), ring),
		symtab:  logfifo.NewBusSymbolTable(client.Accessor()),
		allowed: allowed,
		utc:     *utc,
		strip:   *stripAnsi,
		sink:    sink,
		alertAfter: *alertAfter,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	return d.run(*freq, *maxPull, stop)
}

func dialAddr(addr string) string {
	// "dev/wbm0" and "tcp/host:port" style URLs are resolved by external
	// SAFTLIB/Etherbone tooling; here we only strip a "tcp/" prefix.
	return strings.TrimPrefix(addr, "tcp/")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseFilters(s string) (map[uint32]bool, error) {
	if s == "" {
		return nil, nil // nil means "allow all"
	}
	allowed := make(map[uint32]bool)
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		v, err := strconv.ParseUint(tok, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid filter value %q: %w", tok, err)
		}
		allowed[uint32(v)] = true
	}
	return allowed, nil
}

// acquireSingleInstanceLock binds a loopback TCP port derived from addr
// (or the explicit override) to detect a concurrently running scu-logd
// pointed at the same front-end, in place of an external lock manager.
func acquireSingleInstanceLock(addr string, port int) (func(), error) {
	if port == 0 {
		port = 49152 + int(fnv32(addr)%(65535-49152))
	}
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("another scu-logd instance appears to already be running for %q (port %d busy): %w", addr, port, err)
	}
	return func() { _ = ln.Close() }, nil
}

func fnv32(s string) uint32 {
	const (
		offset = 2166136261
		prime  = 16777619
	)
	h := uint32(offset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}
