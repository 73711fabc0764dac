// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bus_test

import (
	"io"
)

// fakeMem is an in-memory io.ReaderAt/io.WriterAt standing in for mapped
// device memory in tests, the same role eda's fake rwer plays for reg32.
type fakeMem struct {
	data []byte
}

func newFakeMem(n int) *fakeMem { return &fakeMem{data: make([]byte, n)} }

func (m *fakeMem) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || int(off) > len(m.data) {
		return 0, io.ErrUnexpectedEOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *fakeMem) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || int(off)+len(p) > len(m.data) {
		return 0, io.ErrShortWrite
	}
	return copy(m.data[off:], p), nil
}
