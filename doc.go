// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fgctl holds the real-time kernel and host-side companions of
// an SCU front-end: the function-generator execution engine, the MIL
// finite-state machine, the DAQ ring-buffer pipeline, the shared-RAM
// memory allocator, the log fifo and the interrupt substrate, plus the
// Linux host libraries and daemons that consume them over the bus.
package fgctl // import "github.com/gsi-scu/fgctl"

import (
	"fmt"
	"runtime/debug"
)

// Version returns the version of fgctl and its checksum.
// The returned values are only valid in binaries built with module support.
func Version() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	return versionOf(b)
}

func versionOf(b *debug.BuildInfo) (version, sum string) {
	if b == nil {
		return "", ""
	}

	const root = "github.com/gsi-scu/fgctl"
	for _, m := range b.Deps {
		if m.Path != root {
			continue
		}
		if m.Replace != nil {
			switch {
			case m.Replace.Version != "" && m.Replace.Path != "":
				return fmt.Sprintf("%s %s", m.Replace.Path, m.Replace.Version), m.Replace.Sum
			case m.Replace.Version != "":
				return m.Replace.Version, m.Replace.Sum
			case m.Replace.Path != "":
				return m.Replace.Path, m.Replace.Sum
			default:
				return m.Version + "*", ""
			}
		}
		return m.Version, m.Sum
	}
	return "", ""
}
