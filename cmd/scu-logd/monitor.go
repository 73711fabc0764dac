// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"crypto/tls"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sbinet/pmon"
	mail "gopkg.in/gomail.v2"
)

// startSelfMonitor watches this process's own CPU/RSS while it tails the
// log fifo, the same idiom cmd/daq-boot uses to watch the C++ DAQ
// processes it launches. It returns a stop func.
func startSelfMonitor(freq time.Duration) func() {
	p, err := pmon.Monitor(os.Getpid())
	if err != nil {
		log.Printf("could not start pmon self-monitoring: %+v", err)
		return func() {}
	}
	p.W = os.Stderr
	p.Freq = freq

	go func() {
		if err := p.Run(); err != nil {
			log.Printf("pmon self-monitoring stopped: %+v", err)
		}
	}()

	return func() {
		if err := p.Kill(); err != nil {
			log.Printf("could not stop pmon self-monitoring: %+v", err)
		}
	}
}

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = splitNonEmpty(os.Getenv("MAIL_TGTS"))
)

// alertFifoStall sends a mail alert when the log fifo has yielded no
// records for longer than -alert-after, the host-side analogue of the
// firmware's on_fifo_alarm hook: a stuck fifo usually means
// the front-end has stopped logging or the bus link dropped.
func alertFifoStall(addr string, after time.Duration) {
	log.Printf("no log records pulled from %q in %v", addr, after)

	if alertMailUsr == "" || alertMailPwd == "" || alertMailSrv == "" ||
		alertMailPort == 0 || len(alertMailTgts) == 0 {
		log.Printf("could not send mail alert: missing credentials")
		return
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", alertMailUsr)
	msg.SetHeader("Bcc", alertMailTgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[scu-logd] log fifo stalled: %q", addr))
	msg.SetBody("text/plain", fmt.Sprintf("front-end: %q\nno records pulled in: %v", addr, after))

	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	if err := dial.DialAndSend(msg); err != nil {
		log.Printf("could not send mail alert: %+v", err)
	}
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
