// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2023 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

// Package mempool pools the buffers packets are encoded into before the bytes
// are queued for the transport.
package mempool

import (
	"bytes"
	"sync"
)

// DefaultMaxCap is the largest buffer the default pool keeps for reuse.
const DefaultMaxCap = 64 * 1024

var encodePool = New(DefaultMaxCap)

// GetBuffer takes a Buffer from the default pool.
func GetBuffer() *bytes.Buffer { return encodePool.Get() }

// PutBuffer returns a Buffer to the default pool.
func PutBuffer(x *bytes.Buffer) { encodePool.Put(x) }

// Encode calls fn with a pooled buffer and returns a copy of the bytes it
// wrote, so the buffer can be reused as soon as Encode returns.
func Encode(fn func(buf *bytes.Buffer) error) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	if err := fn(buf); err != nil {
		return nil, err
	}

	return append([]byte(nil), buf.Bytes()...), nil
}

// Pool is a pool of bytes.Buffer. Buffers which have grown beyond the max
// capacity are dropped rather than kept, so a single large message does not
// pin its memory for the life of the pool.
type Pool struct {
	pool sync.Pool
	max  int // no limit if <= 0
}

// New returns a buffer pool which keeps buffers up to max bytes of capacity.
func New(max int) *Pool {
	return &Pool{
		pool: sync.Pool{
			New: func() any { return new(bytes.Buffer) },
		},
		max: max,
	}
}

// Get returns an empty Buffer from the pool.
func (p *Pool) Get() *bytes.Buffer {
	return p.pool.Get().(*bytes.Buffer)
}

// Put resets the Buffer and returns it to the pool, unless it is too large.
func (p *Pool) Put(x *bytes.Buffer) {
	if p.max > 0 && x.Cap() > p.max {
		return
	}

	x.Reset()
	p.pool.Put(x)
}
