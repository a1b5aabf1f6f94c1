// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package serial

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/GermanBionicSystems/envmon/ringbuf"
)

// Port is the register view of a UART.
type Port interface {
	// RxReady reports whether the receive data register holds a byte.
	RxReady() bool
	// TxReady reports whether the transmit data register can accept a byte.
	TxReady() bool
	// ReadData reads the receive data register and clears RxReady.
	ReadData() byte
	// WriteData writes the transmit data register.
	WriteData(b byte)
	EnableRxInterrupt(on bool)
	EnableTxInterrupt(on bool)
}

var (
	// ErrRetry is returned when the outbound buffer is full. The caller
	// should retry the remaining bytes later.
	ErrRetry = errors.New("serial: transmit buffer full")
	// ErrNoData is returned by ReadByte when no byte has been received.
	ErrNoData = errors.New("serial: no data")
)

// Opts holds the configuration options for a Transport.
type Opts struct {
	// Idle is called between two attempts of Write. Default is
	// runtime.Gosched.
	Idle func()
	// WriteSpins is the number of attempts without progress after which
	// Write gives up.
	WriteSpins int
}

// DefaultOpts holds the default configuration options.
var DefaultOpts = Opts{
	WriteSpins: 100000,
}

// Transport is a buffered serial transport driven by HandleInterrupt.
type Transport struct {
	port   Port
	rx, tx *ringbuf.Buffer
	idle   func()
	spins  int

	// mu is the critical section shared by the interrupt handler and the
	// foreground path enabling the transmit interrupt.
	mu   sync.Mutex
	txOn bool

	dropped atomic.Uint32
}

// New returns a Transport using rx for received bytes and tx for bytes to
// send. The receive interrupt is enabled, the transmit interrupt disabled.
//
// The Opts can be nil.
func New(p Port, rx, tx *ringbuf.Buffer, opts *Opts) (*Transport, error) {
	if p == nil || rx == nil || tx == nil {
		return nil, errors.New("serial: port and buffers are required")
	}
	if rx == tx {
		return nil, errors.New("serial: rx and tx must be distinct buffers")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	t := &Transport{port: p, rx: rx, tx: tx, idle: opts.Idle, spins: opts.WriteSpins}
	if t.idle == nil {
		t.idle = runtime.Gosched
	}
	if t.spins <= 0 {
		t.spins = DefaultOpts.WriteSpins
	}
	t.mu.Lock()
	p.EnableTxInterrupt(false)
	p.EnableRxInterrupt(true)
	t.mu.Unlock()
	return t, nil
}

func (t *Transport) String() string {
	if s, ok := t.port.(fmt.Stringer); ok {
		return "serial(" + s.String() + ")"
	}
	return "serial"
}

// Send queues p for transmission one byte at a time. On the first byte that
// does not fit it returns the number of bytes queued and ErrRetry.
func (t *Transport) Send(p []byte) (int, error) {
	for i, c := range p {
		if !t.tx.Put(c) {
			return i, ErrRetry
		}
		t.enableTx()
	}
	return len(p), nil
}

// Write implements io.Writer. It retries Send until all of p is queued or
// no progress was made for WriteSpins attempts.
func (t *Transport) Write(p []byte) (int, error) {
	total := 0
	for stalled := 0; total < len(p); {
		n, err := t.Send(p[total:])
		total += n
		if err == nil {
			break
		}
		if n != 0 {
			stalled = 0
		} else if stalled++; stalled >= t.spins {
			return total, err
		}
		t.idle()
	}
	return total, nil
}

// RecvByte returns the oldest received byte. It never blocks and returns
// false when nothing was received.
func (t *Transport) RecvByte() (byte, bool) {
	return t.rx.Get()
}

// ReadByte implements io.ByteReader. It returns ErrNoData when nothing was
// received.
func (t *Transport) ReadByte() (byte, error) {
	if c, ok := t.rx.Get(); ok {
		return c, nil
	}
	return 0, ErrNoData
}

// HandleInterrupt services the UART. It moves at most one received byte into
// the inbound buffer and at most one outbound byte to the data register.
//
// A received byte that does not fit is discarded and counted in Dropped.
func (t *Transport) HandleInterrupt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port.RxReady() {
		if c := t.port.ReadData(); !t.rx.Put(c) {
			t.dropped.Add(1)
		}
	}
	if t.txOn && t.port.TxReady() {
		if c, ok := t.tx.Get(); ok {
			t.port.WriteData(c)
		} else {
			t.txOn = false
			t.port.EnableTxInterrupt(false)
		}
	}
}

// TxEnabled reports whether the transmit interrupt is enabled.
func (t *Transport) TxEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.txOn
}

// Pending returns the number of bytes waiting to be transmitted.
func (t *Transport) Pending() int {
	return t.tx.Len()
}

// Buffered returns the number of received bytes not yet read.
func (t *Transport) Buffered() int {
	return t.rx.Len()
}

// Dropped returns the number of received bytes discarded because the
// inbound buffer was full.
func (t *Transport) Dropped() uint32 {
	return t.dropped.Load()
}

// Halt masks both interrupts. Queued bytes stay in the buffers.
func (t *Transport) Halt() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.txOn = false
	t.port.EnableTxInterrupt(false)
	t.port.EnableRxInterrupt(false)
	return nil
}

func (t *Transport) enableTx() {
	t.mu.Lock()
	if !t.txOn {
		t.txOn = true
		t.port.EnableTxInterrupt(true)
	}
	t.mu.Unlock()
}
