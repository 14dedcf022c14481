// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package mqtt

import (
	"fmt"
)

// Code is a client error kind, carrying a stable numeric code and a readable reason.
type Code struct {
	Reason string
	Code   int
}

// String returns the readable reason for a code.
func (c Code) String() string {
	return c.Reason
}

// Error returns the readable reason for a code.
func (c Code) Error() string {
	return c.Reason
}

// Client error kinds.
var (
	CodeOK                    = Code{Code: 0, Reason: "ok"}
	ErrConnectTimeout         = Code{Code: 1, Reason: "connect timed out"}
	ErrSubscribeTimeout       = Code{Code: 2, Reason: "subscribe timed out"}
	ErrUnsubscribeTimeout     = Code{Code: 3, Reason: "unsubscribe timed out"}
	ErrPingTimeout            = Code{Code: 4, Reason: "ping timed out"}
	ErrInternalError          = Code{Code: 5, Reason: "internal error"}
	ErrConnackRejected        = Code{Code: 6, Reason: "connection refused by server"}
	ErrSocketError            = Code{Code: 7, Reason: "socket error"}
	ErrSocketClosed           = Code{Code: 8, Reason: "socket closed"}
	ErrMalformedUTF           = Code{Code: 9, Reason: "malformed utf data"}
	ErrInvalidState           = Code{Code: 11, Reason: "invalid state"}
	ErrInvalidType            = Code{Code: 12, Reason: "invalid type"}
	ErrInvalidArgument        = Code{Code: 13, Reason: "invalid argument"}
	ErrUnsupportedOperation   = Code{Code: 14, Reason: "unsupported operation"}
	ErrInvalidStoredData      = Code{Code: 15, Reason: "invalid data in local storage"}
	ErrInvalidMessageType     = Code{Code: 16, Reason: "invalid mqtt message type"}
	ErrMalformedUnicode       = Code{Code: 17, Reason: "malformed unicode string"}
	ErrIdentifierExhausted    = Code{Code: 18, Reason: "no free message identifiers"}
	ErrSessionDiscarded       = Code{Code: 19, Reason: "in-flight message discarded by clean session"}
	ErrConnectAborted         = Code{Code: 20, Reason: "connect aborted by disconnect"}
	ErrSubscribeRejected      = Code{Code: 21, Reason: "subscription rejected by server"}
	ErrMessageTooLarge        = Code{Code: 22, Reason: "message too large"}
	ErrNotConnected           = fmt.Errorf("%w: not connected", ErrInvalidState)
	ErrAlreadyConnected       = fmt.Errorf("%w: already connected", ErrInvalidState)
	ErrAlreadyConnecting      = fmt.Errorf("%w: already connecting", ErrInvalidState)
	ErrNotConnectingConnected = fmt.Errorf("%w: not connecting or connected", ErrInvalidState)
	ErrClientClosed           = fmt.Errorf("%w: client closed", ErrInvalidState)
)

// wrap joins an error kind with the error which caused it, so that errors.Is
// matches both.
func wrap(kind Code, cause error) error {
	if cause == nil {
		return kind
	}

	return fmt.Errorf("%w: %w", kind, cause)
}

// invalidArgument returns an ErrInvalidArgument describing the offending option.
func invalidArgument(name string, value any) error {
	return fmt.Errorf("%w: %v for %s", ErrInvalidArgument, value, name)
}
