// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 J. Blake / mochi-co
// SPDX-FileContributor: mochi-co

package mqtt

import (
	"sort"
	"sync"

	"github.com/mochi-mqtt/client/packets"
)

// Flight is a packet whose acknowledgement handshake has not completed.
type Flight struct {
	Packet         packets.Packet // the packet awaiting acknowledgement
	Sequence       uint64         // the order in which the flight was first sent
	PubrecReceived bool           // a qos 2 publish for which PUBREC has arrived

	token   *Token          // completed when a publish or unsubscribe resolves
	sub     *SubscribeToken // completed when a subscribe resolves
	timeout *timeout        // the optional subscribe/unsubscribe timeout
	handler MessageHandler  // receives messages matching an acknowledged subscription
}

// resolve completes whichever token the flight carries.
func (f *Flight) resolve(err error) {
	if f.timeout != nil {
		f.timeout.cancel()
	}

	if f.token != nil {
		f.token.complete(err)
	}

	if f.sub != nil {
		f.sub.completeWith(nil, err)
	}
}

// Inflight is a map of in-flight packets keyed on packet id.
type Inflight struct {
	sync.RWMutex
	internal map[uint16]*Flight // internal contains the inflight packets
}

// NewInflights returns a new instance of an Inflight packets map.
func NewInflights() *Inflight {
	return &Inflight{
		internal: map[uint16]*Flight{},
	}
}

// Set adds or updates an inflight packet by packet id. Returns true if the id
// was not previously in flight.
func (i *Inflight) Set(f *Flight) bool {
	i.Lock()
	defer i.Unlock()

	_, ok := i.internal[f.Packet.PacketID]
	i.internal[f.Packet.PacketID] = f
	return !ok
}

// Get returns an inflight packet by packet id.
func (i *Inflight) Get(id uint16) (*Flight, bool) {
	i.RLock()
	defer i.RUnlock()

	f, ok := i.internal[id]
	return f, ok
}

// Len returns the size of the inflight messages map.
func (i *Inflight) Len() int {
	i.RLock()
	defer i.RUnlock()
	return len(i.internal)
}

// GetAll returns all the inflight packets in ascending send sequence.
func (i *Inflight) GetAll() []*Flight {
	i.RLock()
	defer i.RUnlock()

	m := make([]*Flight, 0, len(i.internal))
	for _, v := range i.internal {
		m = append(m, v)
	}

	sort.Slice(m, func(i, j int) bool {
		if m[i].Sequence == m[j].Sequence {
			return m[i].Packet.PacketID < m[j].Packet.PacketID
		}
		return m[i].Sequence < m[j].Sequence
	})

	return m
}

// Delete removes an in-flight message from the map. Returns true if the message existed.
func (i *Inflight) Delete(id uint16) bool {
	i.Lock()
	defer i.Unlock()

	_, ok := i.internal[id]
	delete(i.internal, id)

	return ok
}

// Clear removes every in-flight message, returning those that were removed.
func (i *Inflight) Clear() []*Flight {
	all := i.GetAll()

	i.Lock()
	defer i.Unlock()
	i.internal = map[uint16]*Flight{}

	return all
}
