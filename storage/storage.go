// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

// Package storage defines the durable key/value facility the client uses to keep
// unacknowledged messages across reconnects and restarts, and the record format
// written into it.
package storage

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"os"

	"github.com/mochi-mqtt/client/packets"
)

const (
	SentKey     = "Sent:"     // key prefix of outbound in-flight messages
	ReceivedKey = "Received:" // key prefix of inbound qos 2 messages awaiting release

	// MessageVersion is the version number written into every stored message.
	MessageVersion = 1
)

var (
	// ErrDBFileNotOpen indicates that the file database (e.g. bolt/badger) wasn't open for reading.
	ErrDBFileNotOpen = errors.New("db file not open")

	// ErrKeyNotFound indicates that no value is stored under the requested key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrInvalidConfigType indicates a different Type of config value was expected to what was received.
	ErrInvalidConfigType = errors.New("invalid config type provided")

	// ErrUnsupportedType indicates a stored record holds a packet type the client never persists.
	ErrUnsupportedType = errors.New("unsupported stored packet type")
)

// Store is a durable key/value store scoped to a single client session namespace.
// Implementations must be safe to call from multiple goroutines.
type Store interface {
	ID() string
	Init(config any) error
	SetLogger(l *slog.Logger)
	Stop() error
	Set(key string, value []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
	Keys(prefix string) ([]string, error)
}

// Base provides the logger shared by the stores.
type Base struct {
	Log *slog.Logger
}

// SetLogger sets the logger used by the store.
func (b *Base) SetLogger(l *slog.Logger) {
	b.Log = l
}

// EnsureLogger sets a default logger if none has been provided. Store
// implementations call it from Init.
func (b *Base) EnsureLogger() {
	if b.Log == nil {
		b.Log = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
}

// Serializable is an interface for objects that can be serialized and deserialized.
type Serializable interface {
	UnmarshalBinary([]byte) error
	MarshalBinary() (data []byte, err error)
}

// Message is a storable representation of an in-flight PUBLISH.
type Message struct {
	PayloadMessage    PayloadMessage `json:"payloadMessage"`           // the application message
	Sequence          uint64         `json:"sequence,omitempty"`       // the send order of an outbound message
	MessageIdentifier uint16         `json:"messageIdentifier"`        // the packet identifier
	Version           int            `json:"version"`                  // the record format version
	Type              byte           `json:"type"`                     // the packet type, always PUBLISH
	PubRecReceived    bool           `json:"pubRecReceived,omitempty"` // a qos 2 outbound message which has seen PUBREC
}

// PayloadMessage is the application message part of a stored PUBLISH.
type PayloadMessage struct {
	PayloadHex      string `json:"payloadHex"`      // the payload as lowercase hex
	DestinationName string `json:"destinationName"` // the topic name
	Qos             byte   `json:"qos"`             // the quality of service
	Duplicate       bool   `json:"duplicate"`       // the dup flag
	Retained        bool   `json:"retained"`        // the retain flag
}

// MarshalBinary encodes the values into a json string.
func (d Message) MarshalBinary() (data []byte, err error) {
	return json.Marshal(d)
}

// UnmarshalBinary decodes a json string into a struct.
func (d *Message) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, d)
}

// FromPacket builds a storable message from a publish packet.
func FromPacket(pk packets.Packet, sequence uint64, pubRecReceived bool) Message {
	return Message{
		Type:              pk.FixedHeader.Type,
		MessageIdentifier: pk.PacketID,
		Version:           MessageVersion,
		PubRecReceived:    pubRecReceived,
		Sequence:          sequence,
		PayloadMessage: PayloadMessage{
			PayloadHex:      hex.EncodeToString(pk.Payload),
			DestinationName: pk.TopicName,
			Qos:             pk.FixedHeader.Qos,
			Duplicate:       pk.FixedHeader.Dup,
			Retained:        pk.FixedHeader.Retain,
		},
	}
}

// ToPacket converts a storage.Message back to a publish packet. Any stored type
// other than PUBLISH, or an undecodable payload, is reported as an error.
func (d *Message) ToPacket() (packets.Packet, error) {
	if d.Type != packets.Publish {
		return packets.Packet{}, ErrUnsupportedType
	}

	payload, err := hex.DecodeString(d.PayloadMessage.PayloadHex)
	if err != nil {
		return packets.Packet{}, err
	}

	return packets.Packet{
		FixedHeader: packets.FixedHeader{
			Type:   packets.Publish,
			Qos:    d.PayloadMessage.Qos,
			Dup:    d.PayloadMessage.Duplicate,
			Retain: d.PayloadMessage.Retained,
		},
		PacketID:  d.MessageIdentifier,
		TopicName: d.PayloadMessage.DestinationName,
		Payload:   payload,
	}, nil
}
