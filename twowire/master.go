// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package twowire

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/GermanBionicSystems/envmon/ticks"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// LockThreshold is the default number of polls of the completion flag after
// which the bus is considered wedged.
const LockThreshold = 200

var (
	// ErrNack is returned by Tx when the target does not acknowledge.
	ErrNack = errors.New("twowire: no acknowledge")
	// ErrRecovered is returned by Tx when the bus had to be recovered during
	// the transaction. The transaction was abandoned.
	ErrRecovered = errors.New("twowire: bus recovered during transaction")
)

// Opts holds the configuration options for a Master.
type Opts struct {
	// Threshold is the number of polls of the completion flag before
	// recovery. Default is LockThreshold.
	Threshold int
	// OnRecover, if set, is called after every recovery with the value the
	// lock-detect counter reached. It runs inside the transaction and must
	// not call back into the Master.
	OnRecover func(lockDetect int)
}

// DefaultOpts holds the default configuration options.
var DefaultOpts = Opts{
	Threshold: LockThreshold,
}

// Master is a two-wire bus master.
//
// Transactions are serialized. Only one master may drive the bus.
type Master struct {
	r         Registers
	threshold int
	onRecover func(int)

	mu         sync.Mutex
	phase      Phase
	lockDetect int
	recovered  bool
	recoveries uint32
}

// New returns a Master driving r and enables the controller.
//
// The Opts can be nil.
func New(r Registers, opts *Opts) *Master {
	if opts == nil {
		opts = &DefaultOpts
	}
	m := &Master{r: r, threshold: opts.Threshold, onRecover: opts.OnRecover}
	if m.threshold <= 0 {
		m.threshold = LockThreshold
	}
	m.set(IICEN)
	return m
}

func (m *Master) String() string {
	if s, ok := m.r.(fmt.Stringer); ok {
		return "twowire(" + s.String() + ")"
	}
	return "twowire"
}

// Read8 reads one byte from the device at the 8-bit write address dev.
//
// It never fails. If the bus had to be recovered the returned byte is not
// meaningful; check Recovered.
func (m *Master) Read8(dev uint8) byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = Start
	m.set(TX)
	m.set(MST)
	m.phase = Address
	m.r.Write(D, dev)
	m.wait()
	m.set(RSTA)
	m.r.Write(D, dev|1)
	m.wait()
	m.phase = Data
	m.clear(TX)
	m.set(TXAK)
	m.r.Read(D)
	m.wait()
	m.phase = Stop
	m.clear(MST)
	data := m.r.Read(D)
	m.phase = Idle
	return data
}

// Write8 writes data to the device at the 8-bit write address dev.
//
// It never fails. Check Recovered to know whether the bus was wedged.
func (m *Master) Write8(dev, data uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = Start
	m.set(TX)
	m.set(MST)
	m.phase = Address
	m.r.Write(D, dev)
	m.wait()
	m.phase = Data
	m.r.Write(D, data)
	m.wait()
	m.phase = Stop
	m.clear(MST)
	m.phase = Idle
}

// Tx implements i2c.Bus.
//
// addr is a 7-bit address. The write part, if any, is followed by a repeated
// start and the read part; every byte read except the last is acknowledged.
// Unlike Read8 and Write8, Tx stops at the first missing acknowledge
// or bus recovery and reports it.
func (m *Master) Tx(addr uint16, w, r []byte) error {
	if addr > 0x7F {
		return fmt.Errorf("twowire: invalid 7-bit address %#x", addr)
	}
	dev := uint8(addr << 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = Start
	m.set(TX)
	m.set(MST)
	if len(w) != 0 || len(r) == 0 {
		m.phase = Address
		m.r.Write(D, dev)
		if err := m.ack(); err != nil {
			return fmt.Errorf("twowire: address %#x: %w", addr, err)
		}
		m.phase = Data
		for i, b := range w {
			m.r.Write(D, b)
			if err := m.ack(); err != nil {
				return fmt.Errorf("twowire: write byte %d to %#x: %w", i, addr, err)
			}
		}
		if len(r) != 0 {
			m.set(RSTA)
		}
	}
	if len(r) != 0 {
		m.phase = Address
		m.r.Write(D, dev|1)
		if err := m.ack(); err != nil {
			return fmt.Errorf("twowire: address %#x: %w", addr, err)
		}
		m.phase = Data
		m.clear(TX)
		if len(r) == 1 {
			m.set(TXAK)
		} else {
			m.clear(TXAK)
		}
		m.r.Read(D)
		for i := range r {
			if m.wait() {
				m.phase = Idle
				return fmt.Errorf("twowire: read byte %d from %#x: %w", i, addr, ErrRecovered)
			}
			switch i {
			case len(r) - 1:
				m.phase = Stop
				m.clear(MST)
			case len(r) - 2:
				m.set(TXAK)
			}
			r[i] = m.r.Read(D)
		}
		m.clear(TXAK)
		m.phase = Idle
		return nil
	}
	m.phase = Stop
	m.clear(MST)
	m.phase = Idle
	return nil
}

// SetSpeed implements i2c.Bus. It is supported when the Registers implement
// it.
func (m *Master) SetSpeed(f physic.Frequency) error {
	if s, ok := m.r.(interface{ SetSpeed(physic.Frequency) error }); ok {
		return s.SetSpeed(f)
	}
	return errors.New("twowire: SetSpeed is not supported")
}

// Close implements i2c.BusCloser. It disables the controller and closes the
// Registers if they implement io.Closer.
func (m *Master) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clear(IICEN)
	if c, ok := m.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Phase returns the phase of the transaction in progress.
func (m *Master) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Recovered reports whether a recovery ran since the last ClearRecovered.
func (m *Master) Recovered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recovered
}

// ClearRecovered resets the flag returned by Recovered.
func (m *Master) ClearRecovered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recovered = false
}

// LockDetect returns the value the lock-detect counter had at the end of
// the last wait.
func (m *Master) LockDetect() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lockDetect
}

// Recoveries returns the number of recoveries since New.
func (m *Master) Recoveries() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recoveries
}

//

// wait polls for completion of the current byte transfer, recovering the bus
// if it does not complete. It returns true if recovery ran.
func (m *Master) wait() bool {
	n, ok := ticks.Spin(m.complete, m.threshold)
	m.lockDetect = n
	if !ok {
		m.recover()
	}
	m.r.Write(S, IICIF)
	return !ok
}

// ack waits for the current transfer and checks the acknowledge. On failure
// the transaction is terminated.
func (m *Master) ack() error {
	if m.wait() {
		m.phase = Idle
		return ErrRecovered
	}
	if m.r.Read(S)&RXAK != 0 {
		m.phase = Stop
		m.clear(MST)
		m.phase = Idle
		return ErrNack
	}
	return nil
}

// recover releases a wedged bus.
func (m *Master) recover() {
	m.clear(IICEN)
	m.set(TX)
	m.set(MST)
	m.set(IICEN)
	// Clock a dummy byte so a target holding SDA finishes its transfer.
	m.set(MST | TX)
	m.r.Write(D, 0xFF)
	ticks.Spin(m.complete, m.threshold)
	m.r.Write(S, IICIF)
	m.r.Write(S, ARBL)
	// Start.
	m.clear(IICEN)
	m.set(TX)
	m.set(MST)
	m.set(IICEN)
	// Stop.
	m.clear(IICEN)
	m.set(MST)
	m.clear(MST)
	m.clear(TX)
	m.set(IICEN)
	m.r.Write(S, IICIF)
	m.r.Write(S, ARBL)
	m.recovered = true
	m.recoveries++
	if m.onRecover != nil {
		m.onRecover(m.lockDetect)
	}
}

func (m *Master) complete() bool {
	return m.r.Read(S)&IICIF != 0
}

func (m *Master) set(bits uint8) {
	m.r.Write(C1, m.r.Read(C1)|bits)
}

func (m *Master) clear(bits uint8) {
	m.r.Write(C1, m.r.Read(C1)&^bits)
}

var _ i2c.BusCloser = &Master{}
