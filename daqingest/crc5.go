// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daqingest

// crc5Poly is the generator x^4+x^2+x^0 (the implicit leading x^5 term is
// dropped, as is conventional), i.e. the polynomial x^5+x^4+x^2+1
// documented for the descriptor's integrity check.
const crc5Poly = 0x15

// crc5Seed is the CRC shift-register's initial value, matching the
// firmware's documented seed.
const crc5Seed = 0x1f

// crc5 computes the 5-bit CRC of data, MSB-first, matching the firmware's
// descriptor CRC field.
func crc5(data []byte) uint8 {
	crc := uint8(crc5Seed)
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			bit := (b >> uint(i)) & 1
			msb := (crc >> 4) & 1
			crc = (crc << 1) & 0x1f
			if bit^msb == 1 {
				crc ^= crc5Poly
			}
		}
	}
	return crc & 0x1f
}
