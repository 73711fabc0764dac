// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command scu-shell is an interactive line-editing console for issuing
// ENABLE/DISABLE/SCAN/MIL_GAP_INTERVAL commands against a running
// cmd/scu-fw instance over its TCP command port.
package main // import "github.com/gsi-scu/fgctl/cmd/scu-shell"

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/peterh/liner"
)

func main() {
	log.SetPrefix("scu-shell: ")
	log.SetFlags(0)
	if err := xmain(os.Args[1:]); err != nil {
		log.Fatalf("%+v", err)
	}
}

func xmain(args []string) error {
	fs := flag.NewFlagSet("scu-shell", flag.ExitOnError)
	addr := fs.String("addr", "localhost:8033", "host:port of the scu-fw command port")
	historyFile := fs.String("history", "", "path to a liner history file ('' disables persistence)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	term, err := newTerminal(*addr)
	if err != nil {
		return fmt.Errorf("scu-shell: could not connect to %q: %w", *addr, err)
	}
	defer term.Close()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(completer)

	if *historyFile != "" {
		if f, err := os.Open(*historyFile); err == nil {
			_, _ = line.ReadHistory(f)
			f.Close()
		}
	}

	for {
		input, err := line.Prompt("scu-shell> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				break
			}
			return fmt.Errorf("scu-shell: could not read prompt: %w", err)
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if input == "quit" || input == "exit" {
			break
		}

		req, err := parseCommand(input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			continue
		}
		if err := term.Send(req); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println("ok")
	}

	if *historyFile != "" {
		if f, err := os.Create(*historyFile); err == nil {
			_, _ = line.WriteHistory(f)
			f.Close()
		}
	}
	return nil
}

var commandNames = []string{"ENABLE", "DISABLE", "SCAN", "MIL_GAP_INTERVAL"}

func completer(line string) []string {
	var out []string
	for _, name := range commandNames {
		if strings.HasPrefix(name, strings.ToUpper(line)) {
			out = append(out, name)
		}
	}
	return out
}

// parseCommand turns one console line into a Request. Accepted forms:
//
//	ENABLE <channel> [arg]
//	DISABLE <channel>
//	SCAN
//	MIL_GAP_INTERVAL <channel> <arg>
func parseCommand(input string) (Request, error) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return Request{}, fmt.Errorf("scu-shell: empty command")
	}
	name := strings.ToUpper(fields[0])

	switch name {
	case "SCAN":
		return Request{Name: name}, nil
	case "ENABLE", "DISABLE":
		if len(fields) < 2 {
			return Request{}, fmt.Errorf("scu-shell: %s requires a channel argument", name)
		}
		ch, err := strconv.Atoi(fields[1])
		if err != nil {
			return Request{}, fmt.Errorf("scu-shell: invalid channel %q: %w", fields[1], err)
		}
		var arg int64
		if len(fields) > 2 {
			arg, err = strconv.ParseInt(fields[2], 10, 64)
			if err != nil {
				return Request{}, fmt.Errorf("scu-shell: invalid arg %q: %w", fields[2], err)
			}
		}
		return Request{Name: name, Channel: ch, Arg: arg}, nil
	case "MIL_GAP_INTERVAL":
		if len(fields) < 3 {
			return Request{}, fmt.Errorf("scu-shell: MIL_GAP_INTERVAL requires <channel> <arg>")
		}
		ch, err := strconv.Atoi(fields[1])
		if err != nil {
			return Request{}, fmt.Errorf("scu-shell: invalid channel %q: %w", fields[1], err)
		}
		arg, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return Request{}, fmt.Errorf("scu-shell: invalid arg %q: %w", fields[2], err)
		}
		return Request{Name: name, Channel: ch, Arg: arg}, nil
	default:
		return Request{}, fmt.Errorf("scu-shell: unknown command %q (try ENABLE, DISABLE, SCAN, MIL_GAP_INTERVAL)", fields[0])
	}
}
