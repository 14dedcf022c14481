// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package mqtt

import (
	"sync"
)

// fifo is an unbounded queue drained by a single goroutine. Pushing never
// blocks, so it can be used while the client lock is held.
type fifo[T any] struct {
	sync.Mutex
	items []T
	wake  chan struct{} // signalled when items are pushed
}

// newFifo returns an empty queue.
func newFifo[T any]() *fifo[T] {
	return &fifo[T]{
		wake: make(chan struct{}, 1),
	}
}

// push appends values to the queue and wakes the consumer.
func (q *fifo[T]) push(v ...T) {
	if len(v) == 0 {
		return
	}

	q.Lock()
	q.items = append(q.items, v...)
	q.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// take removes and returns everything in the queue.
func (q *fifo[T]) take() []T {
	q.Lock()
	defer q.Unlock()
	items := q.items
	q.items = nil
	return items
}

// len returns the number of queued values.
func (q *fifo[T]) len() int {
	q.Lock()
	defer q.Unlock()
	return len(q.items)
}
