// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package terminal implements a line oriented command terminal over a
// serial link.
//
// Characters are echoed as they are typed. Backspace and delete erase the
// previous character, carriage return submits the line. A line that reaches
// the maximum length is submitted as is.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/GermanBionicSystems/envmon/serial"
)

const (
	// Banner is printed once by Run.
	Banner = "\n\r\t\tReal-Time Environment Monitor with RTC and DHT11\t\t\n\r"
	// Prompt is printed before each line.
	Prompt = "\n\n\r$$ "
	// MaxLine is the default maximum length of a line.
	MaxLine = 255
	// LimitNotice is printed when a line reaches the maximum length.
	LimitNotice = "\n\rMaximum limit of buffer reached. Cannot add more commands, sending for processing."
)

const (
	backspace = 0x08
	del       = 0x7F
	cr        = '\r'
	lf        = '\n'
)

// Opts holds the configuration options for a Terminal.
type Opts struct {
	Banner string
	Prompt string
	// MaxLine is the line length that forces submission. Default is
	// MaxLine.
	MaxLine int
	// Idle is called while no input is available. Default is
	// runtime.Gosched.
	Idle func()
	// OnError is called with the error returned by a command, if any.
	OnError func(line string, err error)
}

// DefaultOpts holds the default configuration options.
var DefaultOpts = Opts{
	Banner:  Banner,
	Prompt:  Prompt,
	MaxLine: MaxLine,
}

// Terminal reads command lines from r and runs them from a Table.
//
// r may be non-blocking: serial.ErrNoData is treated as "try again".
type Terminal struct {
	r       io.ByteReader
	w       io.Writer
	table   *Table
	banner  string
	prompt  string
	maxLine int
	idle    func()
	onError func(string, error)
	lastCR  bool
}

// New returns a Terminal. The Opts can be nil.
func New(r io.ByteReader, w io.Writer, t *Table, opts *Opts) *Terminal {
	if opts == nil {
		opts = &DefaultOpts
	}
	term := &Terminal{
		r:       r,
		w:       w,
		table:   t,
		banner:  opts.Banner,
		prompt:  opts.Prompt,
		maxLine: opts.MaxLine,
		idle:    opts.Idle,
		onError: opts.OnError,
	}
	if term.maxLine <= 0 {
		term.maxLine = MaxLine
	}
	if term.idle == nil {
		term.idle = runtime.Gosched
	}
	return term
}

func (t *Terminal) String() string {
	return fmt.Sprintf("terminal(%d)", t.maxLine)
}

// Run prints the banner then reads and executes lines until ctx is done or
// the input ends. It returns nil at the end of the input.
func (t *Terminal) Run(ctx context.Context) error {
	if _, err := io.WriteString(t.w, t.banner); err != nil {
		return err
	}
	for {
		if _, err := io.WriteString(t.w, t.prompt); err != nil {
			return err
		}
		line, err := t.ReadLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := t.table.Exec(t.w, line); err != nil && t.onError != nil {
			t.onError(line, err)
		}
	}
}

// ReadLine reads one line, echoing and editing it.
//
// A partial line at the end of the input is discarded and io.EOF returned.
func (t *Terminal) ReadLine(ctx context.Context) (string, error) {
	buf := make([]byte, 0, t.maxLine)
	for {
		c, err := t.readByte(ctx)
		if err != nil {
			return "", err
		}
		afterCR := t.lastCR
		t.lastCR = c == cr
		switch c {
		case cr, lf:
			if c == lf && afterCR {
				continue
			}
			if _, err := io.WriteString(t.w, "\n\r"); err != nil {
				return "", err
			}
			return string(buf), nil
		case backspace, del:
			if len(buf) == 0 {
				continue
			}
			buf = buf[:len(buf)-1]
			if _, err := io.WriteString(t.w, "\b \b"); err != nil {
				return "", err
			}
		default:
			if _, err := t.w.Write([]byte{c}); err != nil {
				return "", err
			}
			buf = append(buf, c)
			if len(buf) == t.maxLine {
				if _, err := io.WriteString(t.w, LimitNotice); err != nil {
					return "", err
				}
				return string(buf), nil
			}
		}
	}
}

func (t *Terminal) readByte(ctx context.Context) (byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		c, err := t.r.ReadByte()
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, serial.ErrNoData) {
			return 0, err
		}
		t.idle()
	}
}
