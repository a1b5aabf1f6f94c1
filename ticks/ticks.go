// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ticks

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3"
)

// Ticks is a number of timer periods.
type Ticks uint32

// Opts holds the configuration options for a Source.
type Opts struct {
	// Period is the interval between two calls to Tick. Default is 1µs.
	Period time.Duration
	// Idle is called on every iteration of a busy wait. Default is
	// runtime.Gosched, which lets the host driver goroutine run.
	Idle func()
}

// DefaultOpts holds the default configuration options.
var DefaultOpts = Opts{
	Period: time.Microsecond,
}

// Source is a tick counter. Create one per system and pass it to the
// drivers that measure intervals.
type Source struct {
	period time.Duration
	idle   func()

	startup atomic.Uint32 // written by Tick only
	mark    atomic.Uint32 // written by Reset only

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// New returns a stopped Source. The Opts can be nil.
func New(opts *Opts) (*Source, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.Period <= 0 {
		return nil, errors.New("ticks: period must be positive")
	}
	s := &Source{period: opts.Period, idle: opts.Idle}
	if s.idle == nil {
		s.idle = runtime.Gosched
	}
	return s, nil
}

// Tick advances the counter by one period. It is the periodic interrupt
// handler and must only be called from one context.
func (s *Source) Tick() {
	s.startup.Add(1)
}

// Now returns the number of ticks since startup.
func (s *Source) Now() Ticks {
	return Ticks(s.startup.Load())
}

// Reset restarts the interval measured by Elapsed.
func (s *Source) Reset() {
	s.mark.Store(s.startup.Load())
}

// Elapsed returns the number of ticks since the last Reset.
func (s *Source) Elapsed() Ticks {
	return Ticks(s.startup.Load() - s.mark.Load())
}

// Period returns the interval between two ticks.
func (s *Source) Period() time.Duration {
	return s.period
}

// Ticks converts d to a number of ticks, rounding up so that a wait of the
// returned length is never shorter than d.
func (s *Source) Ticks(d time.Duration) Ticks {
	if d <= 0 {
		return 0
	}
	return Ticks((d + s.period - 1) / s.period)
}

// Duration converts t to a duration.
func (s *Source) Duration(t Ticks) time.Duration {
	return time.Duration(t) * s.period
}

// Delay busy-waits for n ticks.
func (s *Source) Delay(n Ticks) {
	s.Reset()
	for s.Elapsed() < n {
		s.idle()
	}
}

// WaitFor polls cond until it returns true or limit ticks have elapsed. It
// returns false on timeout. cond is always evaluated at least once.
func (s *Source) WaitFor(cond func() bool, limit Ticks) bool {
	s.Reset()
	for {
		if cond() {
			return true
		}
		if s.Elapsed() >= limit {
			return false
		}
		s.idle()
	}
}

// Spin polls cond at most max times without consulting any clock. It returns
// the number of failed polls and whether cond was observed true.
func Spin(cond func() bool, max int) (int, bool) {
	n := 0
	for !cond() {
		if n >= max {
			return n, false
		}
		n++
	}
	return n, true
}

// Start drives the counter from the host monotonic clock until Halt is
// called. Periods missed by the scheduler are caught up, so Now never runs
// ahead of wall time.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return errors.New("ticks: already started")
	}
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.stop)
	return nil
}

// Halt implements conn.Resource. It stops the host driver, if running.
func (s *Source) Halt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return nil
	}
	close(s.stop)
	s.wg.Wait()
	s.stop = nil
	return nil
}

func (s *Source) String() string {
	return fmt.Sprintf("ticks(%s)", s.period)
}

func (s *Source) run(stop <-chan struct{}) {
	defer s.wg.Done()
	base := time.Now()
	var issued uint64
	for {
		select {
		case <-stop:
			return
		default:
		}
		due := uint64(time.Since(base) / s.period)
		for ; issued < due; issued++ {
			s.Tick()
		}
		if s.period >= time.Millisecond {
			time.Sleep(s.period)
		} else {
			runtime.Gosched()
		}
	}
}

var _ conn.Resource = &Source{}
