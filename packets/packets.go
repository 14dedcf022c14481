// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

import (
	"bytes"
	"strconv"
)

// Packet is an MQTT packet. Instead of providing a packet interface and variant
// packet structs, this is a single concrete packet type to cover all packet
// types, keyed by the fixed header type.
type Packet struct {
	FixedHeader      FixedHeader
	Topics           []string // SUBSCRIBE and UNSUBSCRIBE topic filters
	Qoss             []byte   // SUBSCRIBE requested qos, one per filter
	ReturnCodes      []byte   // SUBACK return codes, one per filter
	Payload          []byte
	Username         []byte
	Password         []byte
	WillMessage      []byte
	ClientIdentifier string
	TopicName        string
	WillTopic        string
	PacketID         uint16
	Keepalive        uint16
	ReturnCode       byte
	ProtocolVersion  byte
	WillQos          byte
	CleanSession     bool
	WillFlag         bool
	WillRetain       bool
	UsernameFlag     bool
	PasswordFlag     bool
	SessionPresent   bool
}

// Encode writes the packet to buf as a complete MQTT frame.
func (pk *Packet) Encode(buf *bytes.Buffer) error {
	switch pk.FixedHeader.Type {
	case Connect:
		return pk.ConnectEncode(buf)
	case Connack:
		return pk.ConnackEncode(buf)
	case Publish:
		return pk.PublishEncode(buf)
	case Puback, Pubrec, Pubrel, Pubcomp, Unsuback:
		return pk.identifierEncode(buf)
	case Subscribe:
		return pk.SubscribeEncode(buf)
	case Suback:
		return pk.SubackEncode(buf)
	case Unsubscribe:
		return pk.UnsubscribeEncode(buf)
	case Pingreq, Pingresp, Disconnect:
		return pk.emptyEncode(buf)
	default:
		return ErrUnknownPacketType
	}
}

// Decode frames and decodes the packet which begins at offset in buf. If buf does not
// yet hold the complete frame, a nil packet and the unchanged offset are returned so
// that the caller can keep the undecoded bytes and retry once more data arrives.
// Otherwise the decoded packet and the offset of the first byte after it are returned.
func Decode(buf []byte, offset int) (*Packet, int, error) {
	start := offset
	if offset >= len(buf) {
		return nil, start, nil
	}

	pk := new(Packet)
	if err := pk.FixedHeader.Decode(buf[offset]); err != nil {
		return nil, start, err
	}

	remaining, next, ok, err := decodeLength(buf, offset+1)
	if err != nil {
		return nil, start, err
	}

	if !ok || next+remaining > len(buf) {
		return nil, start, nil
	}

	pk.FixedHeader.Remaining = remaining
	body := make([]byte, remaining)
	copy(body, buf[next:next+remaining])

	if err := pk.decodeBody(body); err != nil {
		return nil, start, err
	}

	return pk, next + remaining, nil
}

// decodeBody decodes the variable header and payload of the packet.
func (pk *Packet) decodeBody(buf []byte) error {
	switch pk.FixedHeader.Type {
	case Connect:
		return pk.ConnectDecode(buf)
	case Connack:
		return pk.ConnackDecode(buf)
	case Publish:
		return pk.PublishDecode(buf)
	case Puback, Pubrec, Pubrel, Pubcomp, Unsuback:
		return pk.identifierDecode(buf)
	case Subscribe:
		return pk.SubscribeDecode(buf)
	case Suback:
		return pk.SubackDecode(buf)
	case Unsubscribe:
		return pk.UnsubscribeDecode(buf)
	default:
		return nil // pings, disconnect and reserved types carry no body we read
	}
}

// ConnectEncode encodes a connect packet.
func (pk *Packet) ConnectEncode(buf *bytes.Buffer) error {
	name, ok := protocolNames[pk.ProtocolVersion]
	if !ok {
		return ErrProtocolViolationVersion
	}

	protoName, _ := encodeBytes(name)
	flag := encodeBool(pk.CleanSession)<<1 | encodeBool(pk.WillFlag)<<2 | pk.WillQos<<3 | encodeBool(pk.WillRetain)<<5 | encodeBool(pk.PasswordFlag)<<6 | encodeBool(pk.UsernameFlag)<<7

	clientID, err := encodeString(pk.ClientIdentifier)
	if err != nil {
		return err
	}

	var willTopic, willMessage, username, password []byte

	// If will flag is set, add topic and message.
	if pk.WillFlag {
		if willTopic, err = encodeString(pk.WillTopic); err != nil {
			return err
		}

		if willMessage, err = encodeBytes(pk.WillMessage); err != nil {
			return err
		}
	}

	// If username flag is set, add username.
	if pk.UsernameFlag {
		if username, err = encodeBytes(pk.Username); err != nil {
			return err
		}
	}

	// If password flag is set, add password.
	if pk.PasswordFlag {
		if password, err = encodeBytes(pk.Password); err != nil {
			return err
		}
	}

	pk.FixedHeader.Remaining = len(protoName) + 1 + 1 + 2 + len(clientID) +
		len(willTopic) + len(willMessage) + len(username) + len(password)
	if err := pk.FixedHeader.Encode(buf); err != nil {
		return err
	}

	buf.Write(protoName)
	buf.WriteByte(pk.ProtocolVersion)
	buf.WriteByte(flag)
	buf.Write(encodeUint16(pk.Keepalive))
	buf.Write(clientID)
	buf.Write(willTopic)
	buf.Write(willMessage)
	buf.Write(username)
	buf.Write(password)

	return nil
}

// ConnectDecode decodes a connect packet.
func (pk *Packet) ConnectDecode(buf []byte) error {
	var offset int
	var err error

	name, offset, err := decodeBytes(buf, 0)
	if err != nil {
		return ErrMalformedProtocolName
	}

	pk.ProtocolVersion, offset, err = decodeByte(buf, offset)
	if err != nil {
		return ErrMalformedProtocolVersion
	}

	if want, ok := protocolNames[pk.ProtocolVersion]; !ok || !bytes.Equal(want, name) {
		return ErrProtocolViolationVersion
	}

	flags, offset, err := decodeByte(buf, offset)
	if err != nil {
		return ErrMalformedFlags
	}
	pk.CleanSession = 1&(flags>>1) > 0
	pk.WillFlag = 1&(flags>>2) > 0
	pk.WillQos = 3 & (flags >> 3) // this one is not a bool
	pk.WillRetain = 1&(flags>>5) > 0
	pk.PasswordFlag = 1&(flags>>6) > 0
	pk.UsernameFlag = 1&(flags>>7) > 0

	pk.Keepalive, offset, err = decodeUint16(buf, offset)
	if err != nil {
		return ErrMalformedKeepalive
	}

	pk.ClientIdentifier, offset, err = decodeString(buf, offset)
	if err != nil {
		return ErrMalformedClientID
	}

	if pk.WillFlag {
		pk.WillTopic, offset, err = decodeString(buf, offset)
		if err != nil {
			return ErrMalformedWillTopic
		}

		pk.WillMessage, offset, err = decodeBytes(buf, offset)
		if err != nil {
			return ErrMalformedWillMessage
		}
	}

	if pk.UsernameFlag {
		pk.Username, offset, err = decodeBytes(buf, offset)
		if err != nil {
			return ErrMalformedUsername
		}
	}

	if pk.PasswordFlag {
		pk.Password, _, err = decodeBytes(buf, offset)
		if err != nil {
			return ErrMalformedPassword
		}
	}

	return nil
}

// ConnackEncode encodes a Connack packet.
func (pk *Packet) ConnackEncode(buf *bytes.Buffer) error {
	pk.FixedHeader.Remaining = 2
	if err := pk.FixedHeader.Encode(buf); err != nil {
		return err
	}
	buf.WriteByte(encodeBool(pk.SessionPresent))
	buf.WriteByte(pk.ReturnCode)
	return nil
}

// ConnackDecode decodes a Connack packet.
func (pk *Packet) ConnackDecode(buf []byte) error {
	var offset int
	var err error

	pk.SessionPresent, offset, err = decodeByteBool(buf, 0)
	if err != nil {
		return ErrMalformedSessionPresent
	}

	pk.ReturnCode, _, err = decodeByte(buf, offset)
	if err != nil {
		return ErrMalformedReturnCode
	}

	return nil
}

// PublishEncode encodes a Publish packet.
func (pk *Packet) PublishEncode(buf *bytes.Buffer) error {
	topicName, err := encodeString(pk.TopicName)
	if err != nil {
		return err
	}

	var packetID []byte
	if pk.FixedHeader.Qos > 0 {
		// A PUBLISH packet MUST NOT contain a packet identifier if its QoS value is set to 0.
		if pk.PacketID == 0 {
			return ErrProtocolViolationNoPacketID
		}

		packetID = encodeUint16(pk.PacketID)
	}

	pk.FixedHeader.Remaining = len(topicName) + len(packetID) + len(pk.Payload)
	if err := pk.FixedHeader.Encode(buf); err != nil {
		return err
	}

	buf.Write(topicName)
	buf.Write(packetID)
	buf.Write(pk.Payload)

	return nil
}

// PublishDecode extracts the data values from the packet.
func (pk *Packet) PublishDecode(buf []byte) error {
	var offset int
	var err error

	pk.TopicName, offset, err = decodeString(buf, 0)
	if err == ErrMalformedUTF8 {
		return err
	} else if err != nil {
		return ErrMalformedTopic
	}

	if pk.FixedHeader.Qos > 0 {
		pk.PacketID, offset, err = decodeUint16(buf, offset)
		if err != nil {
			return ErrMalformedPacketID
		}
	}

	pk.Payload = buf[offset:]

	return nil
}

// identifierEncode encodes the PUBACK, PUBREC, PUBREL, PUBCOMP and UNSUBACK packets,
// which carry nothing but a packet identifier.
func (pk *Packet) identifierEncode(buf *bytes.Buffer) error {
	pk.FixedHeader.Remaining = 2
	if err := pk.FixedHeader.Encode(buf); err != nil {
		return err
	}
	buf.Write(encodeUint16(pk.PacketID))
	return nil
}

// identifierDecode decodes a packet which carries only a packet identifier.
func (pk *Packet) identifierDecode(buf []byte) error {
	var err error
	pk.PacketID, _, err = decodeUint16(buf, 0)
	if err != nil {
		return ErrMalformedPacketID
	}
	return nil
}

// emptyEncode encodes the PINGREQ, PINGRESP and DISCONNECT packets.
func (pk *Packet) emptyEncode(buf *bytes.Buffer) error {
	pk.FixedHeader.Remaining = 0
	return pk.FixedHeader.Encode(buf)
}

// SubackEncode encodes a Suback packet.
func (pk *Packet) SubackEncode(buf *bytes.Buffer) error {
	packetID := encodeUint16(pk.PacketID)
	pk.FixedHeader.Remaining = len(packetID) + len(pk.ReturnCodes)
	if err := pk.FixedHeader.Encode(buf); err != nil {
		return err
	}

	buf.Write(packetID)
	buf.Write(pk.ReturnCodes) // granted qos or failure, one per filter

	return nil
}

// SubackDecode decodes a Suback packet.
func (pk *Packet) SubackDecode(buf []byte) error {
	var offset int
	var err error

	pk.PacketID, offset, err = decodeUint16(buf, offset)
	if err != nil {
		return ErrMalformedPacketID
	}

	pk.ReturnCodes = buf[offset:]

	return nil
}

// SubscribeEncode encodes a Subscribe packet.
func (pk *Packet) SubscribeEncode(buf *bytes.Buffer) error {
	if pk.PacketID == 0 {
		return ErrProtocolViolationNoPacketID
	}

	if len(pk.Topics) == 0 || len(pk.Topics) != len(pk.Qoss) {
		return ErrProtocolViolationNoFilters
	}

	var body bytes.Buffer
	body.Write(encodeUint16(pk.PacketID))
	for i, topic := range pk.Topics {
		if pk.Qoss[i] > 2 {
			return ErrProtocolViolationQosOutOfRange
		}

		b, err := encodeString(topic)
		if err != nil {
			return err
		}

		body.Write(b)
		body.WriteByte(pk.Qoss[i])
	}

	pk.FixedHeader.Remaining = body.Len()
	if err := pk.FixedHeader.Encode(buf); err != nil {
		return err
	}

	buf.Write(body.Bytes())
	return nil
}

// SubscribeDecode decodes a Subscribe packet.
func (pk *Packet) SubscribeDecode(buf []byte) error {
	var offset int
	var err error

	pk.PacketID, offset, err = decodeUint16(buf, 0)
	if err != nil {
		return ErrMalformedPacketID
	}

	// Keep decoding until there's no space left.
	for offset < len(buf) {
		var topic string
		topic, offset, err = decodeString(buf, offset)
		if err != nil {
			return ErrMalformedTopic
		}
		pk.Topics = append(pk.Topics, topic)

		var qos byte
		qos, offset, err = decodeByte(buf, offset)
		if err != nil {
			return ErrMalformedQos
		}

		if qos > 2 {
			return ErrProtocolViolationQosOutOfRange
		}

		pk.Qoss = append(pk.Qoss, qos)
	}

	return nil
}

// UnsubscribeEncode encodes an Unsubscribe packet.
func (pk *Packet) UnsubscribeEncode(buf *bytes.Buffer) error {
	if pk.PacketID == 0 {
		return ErrProtocolViolationNoPacketID
	}

	if len(pk.Topics) == 0 {
		return ErrProtocolViolationNoFilters
	}

	var body bytes.Buffer
	body.Write(encodeUint16(pk.PacketID))
	for _, topic := range pk.Topics {
		b, err := encodeString(topic)
		if err != nil {
			return err
		}
		body.Write(b)
	}

	pk.FixedHeader.Remaining = body.Len()
	if err := pk.FixedHeader.Encode(buf); err != nil {
		return err
	}

	buf.Write(body.Bytes())
	return nil
}

// UnsubscribeDecode decodes an Unsubscribe packet.
func (pk *Packet) UnsubscribeDecode(buf []byte) error {
	var offset int
	var err error

	pk.PacketID, offset, err = decodeUint16(buf, 0)
	if err != nil {
		return ErrMalformedPacketID
	}

	for offset < len(buf) {
		var topic string
		topic, offset, err = decodeString(buf, offset)
		if err != nil {
			return ErrMalformedTopic
		}
		pk.Topics = append(pk.Topics, topic)
	}

	return nil
}

// FormatID returns the PacketID field as a decimal integer.
func (pk *Packet) FormatID() string {
	return strconv.FormatUint(uint64(pk.PacketID), 10)
}
