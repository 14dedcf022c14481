// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package mqtt

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/mochi-mqtt/client/packets"
	"github.com/mochi-mqtt/client/storage"
)

// nextPacketID returns the first free packet identifier at or after nextID,
// wrapping from 65535 back to 1. It returns false if all are in flight.
func (cl *Client) nextPacketID() (uint16, bool) {
	if cl.sent.Len() >= math.MaxUint16 {
		return 0, false
	}

	id := cl.nextID
	for i := 0; i < math.MaxUint16; i++ {
		if id == 0 {
			id = 1
		}

		if _, ok := cl.sent.Get(id); !ok {
			return id, true
		}

		id++
	}

	return 0, false
}

// requiresAck assigns a packet identifier and send sequence to a flight and
// records it as awaiting acknowledgement. Publish flights are also persisted.
func (cl *Client) requiresAck(f *Flight) error {
	id, ok := cl.nextPacketID()
	if !ok {
		cl.hooks.OnPacketIDExhausted(cl, f.Packet)
		cl.Log.Warn("packet ids exhausted", "client", cl.ID, "inflight", cl.sent.Len())
		return ErrIdentifierExhausted
	}

	f.Packet.PacketID = id
	cl.sequence++
	f.Sequence = cl.sequence

	if err := cl.persist(storage.SentKey, f); err != nil {
		return wrap(ErrInternalError, err)
	}

	cl.sent.Set(f)
	cl.nextID = id + 1
	if cl.nextID == 0 {
		cl.nextID = 1
	}

	cl.refreshInflight()
	return nil
}

// expire fails a subscribe or unsubscribe which was not acknowledged in time.
func (cl *Client) expire(id uint16, kind Code) {
	f, ok := cl.sent.Get(id)
	if !ok {
		return
	}

	cl.sent.Delete(id)
	cl.refreshInflight()
	f.resolve(kind)
}

// handlePacket processes a packet received on the current connection.
func (cl *Client) handlePacket(pk packets.Packet) {
	atomic.AddInt64(&cl.Info.PacketsReceived, 1)

	pk, err := cl.hooks.OnPacketRead(cl, pk)
	if err != nil {
		return
	}

	switch pk.FixedHeader.Type {
	case packets.Connack:
		cl.processConnack(pk)
	case packets.Publish:
		cl.processPublish(pk)
	case packets.Puback:
		cl.processPuback(pk)
	case packets.Pubcomp:
		cl.processPubcomp(pk)
	case packets.Pubrec:
		cl.processPubrec(pk)
	case packets.Pubrel:
		cl.processPubrel(pk)
	case packets.Suback:
		cl.processSuback(pk)
	case packets.Unsuback:
		cl.processUnsuback(pk)
	case packets.Pingresp:
		cl.sendPinger.reset()
	default:
		cl.disconnected(fmt.Errorf("%w: %s", ErrInvalidMessageType, packets.Names[pk.FixedHeader.Type]))
	}
}

// processConnack completes a connection attempt. On acceptance every flight
// is replayed in send order, with qos 2 publishes which have already seen
// PUBREC replayed as PUBREL.
func (cl *Client) processConnack(pk packets.Packet) {
	if cl.connectTimeout != nil {
		cl.connectTimeout.cancel()
		cl.connectTimeout = nil
	}

	if cl.connectOpts.CleanSession {
		cl.discardSession()
	}

	if pk.ReturnCode != packets.CodeAccepted.Code {
		code, ok := packets.ConnackCodes[pk.ReturnCode]
		if !ok {
			code = packets.Code{Code: pk.ReturnCode, Reason: fmt.Sprintf("connection refused: return code %d", pk.ReturnCode)}
		}
		cl.disconnected(wrap(ErrConnackRejected, code))
		return
	}

	cl.connected = true
	cl.hostIndex = len(cl.hosts)
	atomic.StoreInt64(&cl.Info.Connected, 1)
	cl.Log.Info("connected", "client", cl.ID, "server", cl.conn.uri.String(), "version", cl.version, "session_present", pk.SessionPresent)

	for _, f := range cl.sent.GetAll() {
		if f.Packet.FixedHeader.Type == packets.Publish && f.PubrecReceived {
			cl.scheduleMessage(ackPacket(packets.Pubrel, f.Packet.PacketID), nil)
			continue
		}

		if f.Packet.FixedHeader.Type == packets.Publish {
			f.Packet.FixedHeader.Dup = true
		}

		cl.scheduleMessage(f.Packet, nil)
	}

	cl.hooks.OnSessionEstablished(cl, pk)
	if cl.connectToken != nil {
		cl.connectToken.complete(nil)
		cl.connectToken = nil
	}

	cl.processQueue()
}

// processPublish handles an application message from the server.
func (cl *Client) processPublish(pk packets.Packet) {
	switch pk.FixedHeader.Qos {
	case 0:
		cl.receiveMessage(pk)
	case 1:
		cl.scheduleMessage(ackPacket(packets.Puback, pk.PacketID), nil)
		cl.receiveMessage(pk)
	case 2:
		f := &Flight{Packet: pk}
		if err := cl.persist(storage.ReceivedKey, f); err != nil {
			cl.Log.Warn("unable to persist received message", "error", err, "client", cl.ID, "packet_id", pk.PacketID)
		}
		cl.received.Set(f)
		cl.refreshInflight()
		cl.scheduleMessage(ackPacket(packets.Pubrec, pk.PacketID), nil)
	default:
		cl.disconnected(wrap(ErrInvalidType, packets.ErrProtocolViolationQosOutOfRange))
	}
}

// awaiting returns the sent flight which the acknowledgement answers. Flights
// waiting on a different acknowledgement, or at a different stage, are not
// returned.
func (cl *Client) awaiting(pk packets.Packet) (*Flight, bool) {
	f, ok := cl.sent.Get(pk.PacketID)
	if ok {
		fh := f.Packet.FixedHeader
		switch pk.FixedHeader.Type {
		case packets.Puback:
			ok = fh.Type == packets.Publish && fh.Qos == 1
		case packets.Pubrec:
			ok = fh.Type == packets.Publish && fh.Qos == 2
		case packets.Pubcomp:
			ok = fh.Type == packets.Publish && fh.Qos == 2 && f.PubrecReceived
		case packets.Suback:
			ok = fh.Type == packets.Subscribe
		case packets.Unsuback:
			ok = fh.Type == packets.Unsubscribe
		default:
			ok = false
		}
	}

	if !ok {
		cl.Log.Debug("ignoring unmatched acknowledgement", "client", cl.ID, "type", packets.Names[pk.FixedHeader.Type], "packet_id", pk.PacketID)
		return nil, false
	}

	return f, true
}

// processPuback completes a qos 1 publish.
func (cl *Client) processPuback(pk packets.Packet) {
	if f, ok := cl.awaiting(pk); ok {
		cl.completePublish(f)
	}
}

// processPubcomp completes a qos 2 publish which has been released.
func (cl *Client) processPubcomp(pk packets.Packet) {
	if f, ok := cl.awaiting(pk); ok {
		cl.completePublish(f)
	}
}

// completePublish removes an acknowledged publish and reports its delivery.
func (cl *Client) completePublish(f *Flight) {
	id := f.Packet.PacketID
	cl.sent.Delete(id)
	cl.unpersist(storage.SentKey, id)
	cl.refreshInflight()
	cl.hooks.OnQosComplete(cl, f.Packet)
	cl.delivered(messageFromPacket(f.Packet))
	f.resolve(nil)
}

// processPubrec moves a qos 2 publish to its release phase.
func (cl *Client) processPubrec(pk packets.Packet) {
	f, ok := cl.awaiting(pk)
	if !ok {
		return
	}

	f.PubrecReceived = true
	if err := cl.persist(storage.SentKey, f); err != nil {
		cl.Log.Warn("unable to persist pubrec state", "error", err, "client", cl.ID, "packet_id", pk.PacketID)
	}

	cl.scheduleMessage(ackPacket(packets.Pubrel, pk.PacketID), nil)
}

// processPubrel delivers a qos 2 message held since its PUBLISH arrived. PUBCOMP
// is always sent, even if the message is unknown.
func (cl *Client) processPubrel(pk packets.Packet) {
	cl.unpersist(storage.ReceivedKey, pk.PacketID)
	if f, ok := cl.received.Get(pk.PacketID); ok {
		cl.received.Delete(pk.PacketID)
		cl.refreshInflight()
		cl.receiveMessage(f.Packet)
	}

	cl.scheduleMessage(ackPacket(packets.Pubcomp, pk.PacketID), nil)
}

// processSuback completes a subscribe. The subscription fails if the server
// rejected any of the filters.
func (cl *Client) processSuback(pk packets.Packet) {
	f, ok := cl.awaiting(pk)
	if !ok {
		return
	}

	if f.timeout != nil {
		f.timeout.cancel()
	}

	cl.sent.Delete(pk.PacketID)
	cl.refreshInflight()

	var err error
	for _, code := range pk.ReturnCodes {
		if code == packets.SubackFailure {
			err = ErrSubscribeRejected
			break
		}
	}

	if err == nil {
		if f.handler != nil {
			for _, filter := range f.Packet.Topics {
				cl.topics.Subscribe(filter, f.handler)
			}
		}
		cl.hooks.OnSubscribed(cl, f.Packet, pk.ReturnCodes)
	}

	if f.sub != nil {
		f.sub.completeWith(pk.ReturnCodes, err)
	}
}

// processUnsuback completes an unsubscribe.
func (cl *Client) processUnsuback(pk packets.Packet) {
	f, ok := cl.awaiting(pk)
	if !ok {
		return
	}

	cl.sent.Delete(pk.PacketID)
	cl.refreshInflight()
	for _, filter := range f.Packet.Topics {
		cl.topics.Unsubscribe(filter)
	}
	cl.hooks.OnUnsubscribed(cl, f.Packet)
	f.resolve(nil)
}

// receiveMessage hands an application message to the user, then to the
// handler of each matching subscription.
func (cl *Client) receiveMessage(pk packets.Packet) {
	atomic.AddInt64(&cl.Info.MessagesReceived, 1)
	cl.hooks.OnMessageArrived(cl, pk)

	m := messageFromPacket(pk)
	if cl.opts.OnMessageArrived != nil {
		cl.later(func() {
			cl.opts.OnMessageArrived(m)
		})
	}

	for _, h := range cl.topics.Handlers(pk.TopicName) {
		h := h
		cl.later(func() {
			h(m)
		})
	}
}

// ackPacket returns an acknowledgement packet of the given type.
func ackPacket(t byte, id uint16) packets.Packet {
	pk := packets.Packet{
		FixedHeader: packets.NewFixedHeader(t),
		PacketID:    id,
	}

	return pk
}
