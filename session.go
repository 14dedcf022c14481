// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package mqtt

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/mochi-mqtt/client/packets"
	"github.com/mochi-mqtt/client/storage"
	"github.com/mochi-mqtt/client/transport"
)

// localKey returns the store namespace of a client: the server host, port and
// path (unless it is empty, "/" or the default websocket path), and the client
// identifier.
func localKey(uri *url.URL, clientID string) string {
	var b strings.Builder
	b.WriteString(uri.Hostname())
	b.WriteString(":")
	b.WriteString(uri.Port())
	if uri.Path != "" && uri.Path != "/" && uri.Path != transport.DefaultPath {
		b.WriteString(":")
		b.WriteString(uri.Path)
	}
	b.WriteString(":")
	b.WriteString(clientID)
	b.WriteString(":")
	return b.String()
}

// storeKey returns the key of a stored message.
func (cl *Client) storeKey(prefix string, id uint16) string {
	return prefix + cl.localKey + strconv.Itoa(int(id))
}

// persist writes an in-flight publish to the store under the prefix.
func (cl *Client) persist(prefix string, f *Flight) error {
	if f.Packet.FixedHeader.Type != packets.Publish {
		return nil
	}

	b, err := storage.FromPacket(f.Packet, f.Sequence, f.PubrecReceived).MarshalBinary()
	if err != nil {
		return err
	}

	key := cl.storeKey(prefix, f.Packet.PacketID)
	if err := cl.Store.Set(key, b); err != nil {
		cl.Log.Error("failed to persist message", "error", err, "key", key)
		return err
	}

	return nil
}

// unpersist removes a message from the store.
func (cl *Client) unpersist(prefix string, id uint16) {
	key := cl.storeKey(prefix, id)
	if err := cl.Store.Delete(key); err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
		cl.Log.Error("failed to delete stored message", "error", err, "key", key)
	}
}

// restore loads the messages a previous client with the same local key left
// in the store. Restored outbound messages are marked as duplicates, and the
// send sequence continues after the highest restored value.
func (cl *Client) restore() error {
	for _, prefix := range []string{storage.SentKey, storage.ReceivedKey} {
		keys, err := cl.Store.Keys(prefix + cl.localKey)
		if err != nil {
			return wrap(ErrInvalidStoredData, err)
		}

		for _, key := range keys {
			f, err := cl.restoreKey(key)
			if err != nil {
				return err
			}

			if prefix == storage.SentKey {
				f.Packet.FixedHeader.Dup = true
				cl.sent.Set(f)
				if f.Sequence > cl.sequence {
					cl.sequence = f.Sequence
				}
			} else {
				cl.received.Set(f)
			}
		}
	}

	cl.refreshInflight()
	if n := cl.sent.Len() + cl.received.Len(); n > 0 {
		cl.Log.Info("restored in-flight messages", "client", cl.ID, "sent", cl.sent.Len(), "received", cl.received.Len())
	}

	return nil
}

// restoreKey decodes a single stored message.
func (cl *Client) restoreKey(key string) (*Flight, error) {
	v, err := cl.Store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidStoredData, key, err)
	}

	var m storage.Message
	if err := m.UnmarshalBinary(v); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidStoredData, key, err)
	}

	pk, err := m.ToPacket()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidStoredData, key, err)
	}

	if pk.PacketID == 0 {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidStoredData, key, packets.ErrMalformedPacketID)
	}

	return &Flight{
		Packet:         pk,
		Sequence:       m.Sequence,
		PubrecReceived: m.PubRecReceived,
	}, nil
}

// discardSession drops every in-flight message, in memory and in the store.
// Pending operations fail with ErrSessionDiscarded.
func (cl *Client) discardSession() {
	for _, f := range cl.sent.Clear() {
		cl.unpersist(storage.SentKey, f.Packet.PacketID)
		f.resolve(ErrSessionDiscarded)
		if f.Packet.FixedHeader.Type == packets.Publish {
			cl.hooks.OnQosDropped(cl, f.Packet)
			atomic.AddInt64(&cl.Info.InflightDropped, 1)
		}
	}

	for _, f := range cl.received.Clear() {
		cl.unpersist(storage.ReceivedKey, f.Packet.PacketID)
	}

	cl.topics = NewTopicsIndex()

	cl.refreshInflight()
}
