// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

// Code contains a reason code and reason string for a response.
type Code struct {
	Reason string
	Code   byte
}

// String returns the readable reason for a code.
func (c Code) String() string {
	return c.Reason
}

// Error returns the readable reason for a code.
func (c Code) Error() string {
	return c.Reason
}

// CONNACK return codes.
var (
	CodeAccepted                  = Code{Code: 0x00, Reason: "connection accepted"}
	ErrRefusedProtocolVersion     = Code{Code: 0x01, Reason: "connection refused: unacceptable protocol version"}
	ErrRefusedIdentifierRejected  = Code{Code: 0x02, Reason: "connection refused: identifier rejected"}
	ErrRefusedServerUnavailable   = Code{Code: 0x03, Reason: "connection refused: server unavailable"}
	ErrRefusedBadUsernamePassword = Code{Code: 0x04, Reason: "connection refused: bad user name or password"}
	ErrRefusedNotAuthorized       = Code{Code: 0x05, Reason: "connection refused: not authorized"}

	// ConnackCodes indexes the CONNACK return codes by their byte value.
	ConnackCodes = map[byte]Code{
		0x00: CodeAccepted,
		0x01: ErrRefusedProtocolVersion,
		0x02: ErrRefusedIdentifierRejected,
		0x03: ErrRefusedServerUnavailable,
		0x04: ErrRefusedBadUsernamePassword,
		0x05: ErrRefusedNotAuthorized,
	}
)

// SubackFailure is the SUBACK return code indicating a rejected filter.
const SubackFailure byte = 0x80

// Codec errors.
var (
	ErrMalformedPacket                = Code{Code: 0x81, Reason: "malformed packet"}
	ErrMalformedProtocolName          = Code{Code: 0x81, Reason: "malformed packet: protocol name"}
	ErrMalformedProtocolVersion       = Code{Code: 0x81, Reason: "malformed packet: protocol version"}
	ErrMalformedFlags                 = Code{Code: 0x81, Reason: "malformed packet: flags"}
	ErrMalformedKeepalive             = Code{Code: 0x81, Reason: "malformed packet: keepalive"}
	ErrMalformedClientID              = Code{Code: 0x81, Reason: "malformed packet: client id"}
	ErrMalformedWillTopic             = Code{Code: 0x81, Reason: "malformed packet: will topic"}
	ErrMalformedWillMessage           = Code{Code: 0x81, Reason: "malformed packet: will message"}
	ErrMalformedUsername              = Code{Code: 0x81, Reason: "malformed packet: username"}
	ErrMalformedPassword              = Code{Code: 0x81, Reason: "malformed packet: password"}
	ErrMalformedSessionPresent        = Code{Code: 0x81, Reason: "malformed packet: session present"}
	ErrMalformedReturnCode            = Code{Code: 0x81, Reason: "malformed packet: return code"}
	ErrMalformedTopic                 = Code{Code: 0x81, Reason: "malformed packet: topic name"}
	ErrMalformedPacketID              = Code{Code: 0x81, Reason: "malformed packet: packet id"}
	ErrMalformedQos                   = Code{Code: 0x81, Reason: "malformed packet: qos"}
	ErrMalformedOffsetUintOutOfRange  = Code{Code: 0x81, Reason: "malformed packet: offset uint out of range"}
	ErrMalformedOffsetBytesOutOfRange = Code{Code: 0x81, Reason: "malformed packet: offset bytes out of range"}
	ErrMalformedOffsetByteOutOfRange  = Code{Code: 0x81, Reason: "malformed packet: offset byte out of range"}
	ErrMalformedOffsetBoolOutOfRange  = Code{Code: 0x81, Reason: "malformed packet: offset boolean out of range"}
	ErrMalformedVariableByteInteger   = Code{Code: 0x81, Reason: "malformed packet: variable byte integer out of range"}
	ErrMalformedUTF8                  = Code{Code: 0x81, Reason: "malformed packet: invalid utf-8 data"}
	ErrMalformedUnicode               = Code{Code: 0x81, Reason: "malformed packet: invalid unicode string"}
	ErrInvalidFlags                   = Code{Code: 0x81, Reason: "malformed packet: invalid flags set for packet"}
	ErrUnknownPacketType              = Code{Code: 0x81, Reason: "malformed packet: unknown packet type"}
	ErrProtocolViolationNoPacketID    = Code{Code: 0x82, Reason: "protocol violation: missing packet id"}
	ErrProtocolViolationQosOutOfRange = Code{Code: 0x82, Reason: "protocol violation: qos out of range"}
	ErrProtocolViolationNoFilters     = Code{Code: 0x82, Reason: "protocol violation: must contain at least one filter"}
	ErrProtocolViolationVersion       = Code{Code: 0x82, Reason: "protocol violation: unsupported protocol version"}
	ErrPacketTooLarge                 = Code{Code: 0x95, Reason: "packet too large"}
	ErrRejectPacket                   = Code{Code: 0xFE, Reason: "packet rejected"}
)
