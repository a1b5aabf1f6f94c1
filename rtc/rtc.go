// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package rtc is an elapsed time clock advanced by a seconds interrupt.
//
// The clock counts hours, minutes and seconds since startup or the last
// Reset, and reports every update as "H:MM:SS" to an optional callback,
// typically a character display.
package rtc

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3"
)

// Opts holds the configuration options for a Clock.
type Opts struct {
	// Period is the interval between two ticks of the host driver. Default
	// is one second.
	Period time.Duration
	// Clock drives Start. Default is the real clock.
	Clock clockwork.Clock
	// OnUpdate is called with the formatted time after every Tick, outside
	// of the Clock lock.
	OnUpdate func(now string)
}

// Clock counts elapsed seconds.
type Clock struct {
	period   time.Duration
	clock    clockwork.Clock
	onUpdate func(string)

	mu      sync.Mutex
	seconds uint32
	minutes uint32
	hours   uint32

	runMu sync.Mutex
	stop  chan struct{}
	wg    sync.WaitGroup
}

// New returns a stopped Clock at 0:00:00. The Opts can be nil.
func New(opts *Opts) *Clock {
	c := &Clock{period: time.Second}
	if opts != nil {
		if opts.Period > 0 {
			c.period = opts.Period
		}
		c.clock = opts.Clock
		c.onUpdate = opts.OnUpdate
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	return c
}

// Tick advances the clock by one second. It is the seconds interrupt
// handler.
func (c *Clock) Tick() {
	c.mu.Lock()
	c.seconds++
	if c.seconds == 60 {
		c.seconds = 0
		c.minutes++
		if c.minutes == 60 {
			c.minutes = 0
			c.hours++
		}
	}
	s := c.format()
	c.mu.Unlock()
	if c.onUpdate != nil {
		c.onUpdate(s)
	}
}

// Reset sets the clock back to 0:00:00. The display catches up on the next
// Tick.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seconds, c.minutes, c.hours = 0, 0, 0
}

// Elapsed returns the time counted since startup or the last Reset.
func (c *Clock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Duration(c.hours)*time.Hour + time.Duration(c.minutes)*time.Minute + time.Duration(c.seconds)*time.Second
}

// String returns the time as "H:MM:SS".
func (c *Clock) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format()
}

// Start ticks the clock every period until Halt is called.
func (c *Clock) Start() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.stop != nil {
		return errors.New("rtc: already started")
	}
	c.stop = make(chan struct{})
	t := c.clock.NewTicker(c.period)
	c.wg.Add(1)
	go c.run(t, c.stop)
	return nil
}

// Halt implements conn.Resource. It stops the host driver, if running.
func (c *Clock) Halt() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.stop == nil {
		return nil
	}
	close(c.stop)
	c.wg.Wait()
	c.stop = nil
	return nil
}

func (c *Clock) run(t clockwork.Ticker, stop <-chan struct{}) {
	defer c.wg.Done()
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.Chan():
			c.Tick()
		}
	}
}

func (c *Clock) format() string {
	return fmt.Sprintf("%d:%02d:%02d", c.hours, c.minutes, c.seconds)
}

var _ conn.Resource = &Clock{}
var _ fmt.Stringer = &Clock{}
