// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logfifo

import (
	"fmt"
	"strconv"
	"strings"
)

// Render resolves rec's format string via symtab and substitutes its
// conversions with rec.Param, in order. Supported conversions are exactly
// %s/%S (address -> string), %c, %d/%i, %u, %x/%X, %o, %p, and the
// non-ANSI extension %b (binary). A conversion may be preceded by a
// padding character (one of ' ', '0', '.', '_') and a decimal width of at
// most two digits. Each conversion consumes exactly one parameter slot;
// conversions in excess of MaxParams are rendered as literal text (the
// slot silently "runs out", matching the documented drop of excess
// conversions).
func Render(rec Record, symtab SymbolTable) (string, error) {
	format, err := symtab.StringAt(rec.FormatAddr)
	if err != nil {
		return "", fmt.Errorf("logfifo: could not resolve format at 0x%x: %w", rec.FormatAddr, err)
	}

	var (
		out   strings.Builder
		pidx  int
		param = func() (uint32, bool) {
			if pidx >= MaxParams {
				return 0, false
			}
			v := rec.Param[pidx]
			pidx++
			return v, true
		}
	)

	runes := []rune(format)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c != '%' {
			out.WriteRune(c)
			continue
		}
		i++
		if i >= len(runes) {
			out.WriteRune('%')
			break
		}

		pad := byte(' ')
		switch runes[i] {
		case '0', ' ', '.', '_':
			pad = byte(runes[i])
			i++
		}

		width := 0
		for digits := 0; i < len(runes) && digits < 2 && runes[i] >= '0' && runes[i] <= '9'; digits++ {
			width = width*10 + int(runes[i]-'0')
			i++
		}

		if i >= len(runes) {
			break
		}

		v, ok := param()
		if !ok {
			// no more argument slots: emit the conversion verbatim.
			out.WriteByte('%')
			out.WriteRune(runes[i])
			continue
		}

		text, err := convert(runes[i], v, symtab)
		if err != nil {
			return "", err
		}
		out.WriteString(pad2(text, width, pad))
	}

	return out.String(), nil
}

func pad2(s string, width int, pad byte) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(string(pad), width-len(s)) + s
}

func convert(conv rune, v uint32, symtab SymbolTable) (string, error) {
	switch conv {
	case 'd', 'i':
		return strconv.FormatInt(int64(int32(v)), 10), nil
	case 'u':
		return strconv.FormatUint(uint64(v), 10), nil
	case 'x':
		return strconv.FormatUint(uint64(v), 16), nil
	case 'X':
		return strings.ToUpper(strconv.FormatUint(uint64(v), 16)), nil
	case 'o':
		return strconv.FormatUint(uint64(v), 8), nil
	case 'b':
		return strconv.FormatUint(uint64(v), 2), nil
	case 'p':
		return fmt.Sprintf("0x%x", v), nil
	case 'c':
		return string(rune(v)), nil
	case 's', 'S':
		s, err := symtab.StringAt(v)
		if err != nil {
			return "", fmt.Errorf("logfifo: could not resolve %%%c argument at 0x%x: %w", conv, v, err)
		}
		return s, nil
	default:
		return "", fmt.Errorf("logfifo: unsupported conversion %%%c", conv)
	}
}
