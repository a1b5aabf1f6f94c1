// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ringbuf implements a fixed-capacity circular byte queue that can be
// shared between an interrupt handler and foreground code without a lock.
//
// Each Buffer has exactly one producer context, calling Enqueue or Put, and
// exactly one consumer context, calling Dequeue or Get. Only the producer
// advances the write index and only the consumer advances the read index;
// the occupied count is updated atomically by both. Operations never block:
// they accept or return as many bytes as currently fit or are available.
package ringbuf

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
)

// DefaultCapacity is the capacity used for the serial buffers.
const DefaultCapacity = 255

// ErrCorrupt is returned when the buffer indices or count are already out of
// range before an operation starts.
var ErrCorrupt = errors.New("ringbuf: corrupted state")

// Buffer is a single-producer single-consumer byte FIFO.
type Buffer struct {
	data  []byte
	read  atomic.Uint32 // advanced by the consumer only
	write atomic.Uint32 // advanced by the producer only
	count atomic.Uint32
}

// New returns an empty Buffer holding up to capacity bytes. The storage is
// allocated once and never resized.
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 || capacity > math.MaxUint16 {
		return nil, fmt.Errorf("ringbuf: invalid capacity %d", capacity)
	}
	return &Buffer{data: make([]byte, capacity)}, nil
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Len returns the number of bytes queued.
func (b *Buffer) Len() int {
	return int(b.count.Load())
}

// Free returns the number of bytes that can be enqueued right now.
func (b *Buffer) Free() int {
	return len(b.data) - b.Len()
}

// Enqueue appends up to len(p) bytes and returns how many were appended. It
// returns 0 when the buffer is full.
func (b *Buffer) Enqueue(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if !b.valid() {
		return 0, ErrCorrupt
	}
	n := uint32(len(b.data))
	w := b.write.Load()
	added := 0
	for added < len(p) && b.count.Load() < n {
		b.data[w] = p[added]
		if w++; w == n {
			w = 0
		}
		b.write.Store(w)
		b.count.Add(1)
		added++
	}
	return added, nil
}

// Dequeue removes up to len(p) bytes into p and returns how many were
// removed. Freed slots are zeroed. It returns 0 when the buffer is empty.
func (b *Buffer) Dequeue(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if !b.valid() {
		return 0, ErrCorrupt
	}
	n := uint32(len(b.data))
	r := b.read.Load()
	removed := 0
	for removed < len(p) && b.count.Load() > 0 {
		p[removed] = b.data[r]
		b.data[r] = 0
		if r++; r == n {
			r = 0
		}
		b.read.Store(r)
		b.count.Add(^uint32(0))
		removed++
	}
	return removed, nil
}

// Put appends a single byte. It returns false if the buffer is full.
func (b *Buffer) Put(c byte) bool {
	var one [1]byte
	one[0] = c
	n, err := b.Enqueue(one[:])
	return err == nil && n == 1
}

// Get removes a single byte. It returns false if the buffer is empty.
func (b *Buffer) Get() (byte, bool) {
	var one [1]byte
	n, err := b.Dequeue(one[:])
	return one[0], err == nil && n == 1
}

// Reset empties the buffer, zeroes the storage and rewinds both indices. The
// caller must ensure neither the producer nor the consumer is active.
func (b *Buffer) Reset() {
	clear(b.data)
	b.read.Store(0)
	b.write.Store(0)
	b.count.Store(0)
}

func (b *Buffer) String() string {
	return fmt.Sprintf("ringbuf(%d/%d)", b.Len(), b.Cap())
}

func (b *Buffer) valid() bool {
	n := uint32(len(b.data))
	return b.count.Load() <= n && b.read.Load() < n && b.write.Load() < n
}
