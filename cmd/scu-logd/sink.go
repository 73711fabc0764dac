// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"log/syslog"
	"os"
)

// newSink opens the output destination named by out: "stdout", "syslog",
// or a file path. The returned close func is always safe to defer, even
// for stdout (a no-op).
func newSink(out string) (io.Writer, func(), error) {
	switch out {
	case "", "stdout":
		return os.Stdout, func() {}, nil
	case "syslog":
		w, err := syslog.New(syslog.LOG_INFO|syslog.LOG_DAEMON, "scu-logd")
		if err != nil {
			return nil, nil, fmt.Errorf("could not connect to syslog: %w", err)
		}
		return w, func() { _ = w.Close() }, nil
	default:
		f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("could not open %q: %w", out, err)
		}
		return f, func() { _ = f.Close() }, nil
	}
}
