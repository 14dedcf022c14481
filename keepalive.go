// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package mqtt

import (
	"time"

	"github.com/mochi-mqtt/client/packets"
)

// pinger watches one direction of the connection for inactivity. Each time the
// interval elapses without a reset a PINGREQ is written; if a second interval
// elapses still without a reset the connection is considered dead.
//
// The client keeps two pingers: one reset by every packet sent and by PINGRESP,
// and one reset by every chunk of data received. All fields are guarded by the
// client lock.
type pinger struct {
	cl       *Client
	name     string        // used in logs
	interval time.Duration // zero disables the pinger
	timer    *time.Timer
	gen      uint64 // invalidates timers which fired after a reset or cancel
	isReset  bool   // activity was seen since the last check
}

// newPinger returns a pinger for the client.
func newPinger(cl *Client, name string) *pinger {
	return &pinger{
		cl:   cl,
		name: name,
	}
}

// reset records activity and restarts the interval.
func (p *pinger) reset() {
	p.isReset = true
	p.stop()
	if p.interval > 0 {
		p.arm()
	}
}

// cancel stops the pinger until it is next reset.
func (p *pinger) cancel() {
	p.isReset = false
	p.stop()
}

// stop halts any pending timer.
func (p *pinger) stop() {
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// arm starts a timer for the current generation.
func (p *pinger) arm() {
	gen := p.gen
	p.timer = time.AfterFunc(p.interval, func() {
		p.fire(gen)
	})
}

// fire checks for activity once the interval has elapsed.
func (p *pinger) fire(gen uint64) {
	p.cl.lock()
	defer p.cl.unlock()

	if gen != p.gen {
		return
	}

	if !p.isReset {
		p.cl.Log.Debug("keepalive timed out", "pinger", p.name, "client", p.cl.ID)
		p.cl.disconnected(ErrPingTimeout)
		return
	}

	p.isReset = false
	p.timer = nil
	if err := p.cl.write(packets.Packet{
		FixedHeader: packets.FixedHeader{
			Type: packets.Pingreq,
		},
	}); err != nil {
		p.cl.disconnected(wrap(ErrInternalError, err))
		return
	}

	p.arm()
}
