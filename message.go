// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package mqtt

import (
	"gopkg.in/yaml.v3"

	"github.com/mochi-mqtt/client/packets"
)

// Message is an application message sent or received on a topic.
type Message struct {
	Payload   []byte `yaml:"payload" json:"payload"`     // the message payload
	Topic     string `yaml:"topic" json:"topic"`         // the destination topic name
	Qos       byte   `yaml:"qos" json:"qos"`             // the quality of service, 0, 1 or 2
	Retained  bool   `yaml:"retained" json:"retained"`   // the retain flag
	Duplicate bool   `yaml:"duplicate" json:"duplicate"` // set by the client when redelivering a stored message
}

// NewMessage returns a qos 0 message with a string payload.
func NewMessage(topic string, payload string) *Message {
	return &Message{
		Topic:   topic,
		Payload: []byte(payload),
	}
}

// PayloadString decodes the payload as utf-8 text. Payloads which are not
// well-formed utf-8 return packets.ErrMalformedUTF8.
func (m *Message) PayloadString() (string, error) {
	return packets.DecodeUTF8(m.Payload)
}

// messageYAML is the yaml form of a Message, with a text payload.
type messageYAML struct {
	Payload  string `yaml:"payload"`
	Topic    string `yaml:"topic"`
	Qos      byte   `yaml:"qos"`
	Retained bool   `yaml:"retained"`
}

// MarshalYAML writes the message with its payload as text.
func (m Message) MarshalYAML() (any, error) {
	return messageYAML{
		Payload:  string(m.Payload),
		Topic:    m.Topic,
		Qos:      m.Qos,
		Retained: m.Retained,
	}, nil
}

// UnmarshalYAML reads a message with a text payload, such as a will message
// in a config file.
func (m *Message) UnmarshalYAML(value *yaml.Node) error {
	var v messageYAML
	if err := value.Decode(&v); err != nil {
		return err
	}

	*m = Message{
		Payload:  []byte(v.Payload),
		Topic:    v.Topic,
		Qos:      v.Qos,
		Retained: v.Retained,
	}

	return nil
}

// validate checks that the message can be published.
func (m *Message) validate() error {
	if !IsValidFilter(m.Topic, true) {
		return invalidArgument("topic", m.Topic)
	}

	if m.Qos > 2 {
		return invalidArgument("qos", m.Qos)
	}

	if _, err := packets.EncodeUTF8(m.Topic); err != nil {
		return wrap(ErrMalformedUnicode, err)
	}

	return nil
}

// packet returns the publish packet carrying the message.
func (m *Message) packet() packets.Packet {
	return packets.Packet{
		FixedHeader: packets.FixedHeader{
			Type:   packets.Publish,
			Qos:    m.Qos,
			Retain: m.Retained,
			Dup:    m.Duplicate,
		},
		TopicName: m.Topic,
		Payload:   m.Payload,
	}
}

// messageFromPacket returns the application message carried by a publish packet.
func messageFromPacket(pk packets.Packet) *Message {
	return &Message{
		Payload:   pk.Payload,
		Topic:     pk.TopicName,
		Qos:       pk.FixedHeader.Qos,
		Retained:  pk.FixedHeader.Retain,
		Duplicate: pk.FixedHeader.Dup,
	}
}
