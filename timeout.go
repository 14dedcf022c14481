// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package mqtt

import (
	"time"
)

// timeout calls fn once under the client lock after a duration, unless it has
// been cancelled first.
type timeout struct {
	cl        *Client
	timer     *time.Timer
	cancelled bool // guarded by the client lock
}

// newTimeout starts a one-shot timer. fn is called with the client lock held.
func newTimeout(cl *Client, d time.Duration, fn func()) *timeout {
	t := &timeout{cl: cl}
	t.timer = time.AfterFunc(d, func() {
		cl.lock()
		defer cl.unlock()
		if t.cancelled {
			return
		}

		t.cancelled = true
		fn()
	})

	return t
}

// cancel stops the timer. It must be called with the client lock held, and is
// safe to call more than once.
func (t *timeout) cancel() {
	t.cancelled = true
	t.timer.Stop()
}
