// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	for _, tc := range []struct {
		input string
		want  Request
	}{
		{"scan", Request{Name: "SCAN"}},
		{"ENABLE 3", Request{Name: "ENABLE", Channel: 3}},
		{"enable 3 1000", Request{Name: "ENABLE", Channel: 3, Arg: 1000}},
		{"DISABLE 2", Request{Name: "DISABLE", Channel: 2}},
		{"mil_gap_interval 0 500", Request{Name: "MIL_GAP_INTERVAL", Channel: 0, Arg: 500}},
	} {
		t.Run(tc.input, func(t *testing.T) {
			got, err := parseCommand(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseCommandErrors(t *testing.T) {
	for _, input := range []string{"", "ENABLE", "MIL_GAP_INTERVAL 1", "FROBNICATE 1", "ENABLE abc"} {
		t.Run(input, func(t *testing.T) {
			_, err := parseCommand(input)
			require.Error(t, err)
		})
	}
}

func TestCompleter(t *testing.T) {
	assert.Equal(t, []string{"ENABLE"}, completer("EN"))
	assert.ElementsMatch(t, commandNames, completer(""))
	assert.Empty(t, completer("ZZZ"))
}
