// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package serial

import (
	"context"
	"errors"
	"io"
	"sync"

	"periph.io/x/conn/v3"
)

// Line is a Port on top of an io.ReadWriter.
//
// The receive data register holds one byte; a background reader refills it
// once it has been read. Bytes written to the transmit data register are
// flushed to the writer after every dispatch, so TxReady is always true.
type Line struct {
	rw   io.ReadWriter
	name string

	mu      sync.Mutex
	rdr     byte
	rdrFull bool
	rxIE    bool
	txIE    bool
	out     []byte

	kick chan struct{}
}

// NewLine returns a Line reading and writing rw. name is used by String.
func NewLine(rw io.ReadWriter, name string) *Line {
	return &Line{rw: rw, name: name, kick: make(chan struct{}, 1)}
}

func (l *Line) String() string {
	return l.name
}

// RxReady implements Port.
func (l *Line) RxReady() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rdrFull
}

// TxReady implements Port.
func (l *Line) TxReady() bool {
	return true
}

// ReadData implements Port.
func (l *Line) ReadData() byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rdrFull = false
	l.signal()
	return l.rdr
}

// WriteData implements Port.
func (l *Line) WriteData(b byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = append(l.out, b)
}

// EnableRxInterrupt implements Port.
func (l *Line) EnableRxInterrupt(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rxIE = on
	l.signal()
}

// EnableTxInterrupt implements Port.
func (l *Line) EnableTxInterrupt(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.txIE = on
	l.signal()
}

// Serve dispatches interrupts to handler until ctx is done or the
// underlying reader or writer fails. handler is called from a single
// goroutine while an enabled interrupt condition is asserted.
//
// io.EOF from the reader ends Serve with a nil error once pending output is
// flushed.
func (l *Line) Serve(ctx context.Context, handler func()) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	in := make(chan byte)
	errc := make(chan error, 1)
	go func() {
		var buf [1]byte
		for {
			n, err := l.rw.Read(buf[:])
			if n == 1 {
				select {
				case in <- buf[0]:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				errc <- err
				return
			}
		}
	}()
	for {
		for l.asserted() {
			handler()
			if err := l.flush(); err != nil {
				return err
			}
		}
		var recv chan byte
		if !l.RxReady() {
			recv = in
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-recv:
			l.mu.Lock()
			l.rdr = c
			l.rdrFull = true
			l.mu.Unlock()
		case <-l.kick:
		case err := <-errc:
			if errors.Is(err, io.EOF) {
				// Drain what the foreground already queued.
				for l.asserted() {
					handler()
				}
				return l.flush()
			}
			return err
		}
	}
}

func (l *Line) asserted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return (l.rxIE && l.rdrFull) || l.txIE
}

func (l *Line) flush() error {
	l.mu.Lock()
	out := l.out
	l.out = nil
	l.mu.Unlock()
	if len(out) == 0 {
		return nil
	}
	_, err := l.rw.Write(out)
	return err
}

// signal wakes up Serve. l.mu must be held.
func (l *Line) signal() {
	select {
	case l.kick <- struct{}{}:
	default:
	}
}

// ConnReadWriter adapts a conn.Conn, like the one returned by
// uart.Port.Connect, to an io.ReadWriter.
type ConnReadWriter struct {
	Conn conn.Conn
}

// Read reads a single byte with one transaction.
func (c *ConnReadWriter) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := c.Conn.Tx(nil, p[:1]); err != nil {
		return 0, err
	}
	return 1, nil
}

// Write writes p with one transaction.
func (c *ConnReadWriter) Write(p []byte) (int, error) {
	if err := c.Conn.Tx(p, nil); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *ConnReadWriter) String() string {
	return c.Conn.String()
}

var _ Port = &Line{}
var _ io.ReadWriter = &ConnReadWriter{}
var _ conn.Resource = &Transport{}
