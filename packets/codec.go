// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

import (
	"bytes"
	"encoding/binary"
	"unicode/utf16"
	"unicode/utf8"
)

const (
	// MaxRemainingLength is the largest value a four byte remaining length can hold.
	MaxRemainingLength = 268435455

	maxStringLength = 65535
)

// decodeUint16 extracts the value of two bytes from a byte array.
func decodeUint16(buf []byte, offset int) (uint16, int, error) {
	if len(buf) < offset+2 {
		return 0, 0, ErrMalformedOffsetUintOutOfRange
	}

	return binary.BigEndian.Uint16(buf[offset : offset+2]), offset + 2, nil
}

// decodeString extracts a length-prefixed utf-8 string from a byte array, beginning at an offset.
func decodeString(buf []byte, offset int) (string, int, error) {
	b, n, err := decodeBytes(buf, offset)
	if err != nil {
		return "", 0, err
	}

	s, err := DecodeUTF8(b)
	if err != nil {
		return "", 0, err
	}

	return s, n, nil
}

// decodeBytes extracts a byte array from a byte array, beginning at an offset. Used primarily for message payloads.
func decodeBytes(buf []byte, offset int) ([]byte, int, error) {
	length, next, err := decodeUint16(buf, offset)
	if err != nil {
		return make([]byte, 0), 0, err
	}

	if next+int(length) > len(buf) {
		return make([]byte, 0), 0, ErrMalformedOffsetBytesOutOfRange
	}

	return buf[next : next+int(length)], next + int(length), nil
}

// decodeByte extracts the value of a byte from a byte array.
func decodeByte(buf []byte, offset int) (byte, int, error) {
	if len(buf) <= offset {
		return 0, 0, ErrMalformedOffsetByteOutOfRange
	}
	return buf[offset], offset + 1, nil
}

// decodeByteBool extracts the value of a byte from a byte array and returns a bool.
func decodeByteBool(buf []byte, offset int) (bool, int, error) {
	if len(buf) <= offset {
		return false, 0, ErrMalformedOffsetBoolOutOfRange
	}
	return 1&buf[offset] > 0, offset + 1, nil
}

// encodeBool returns a byte instead of a bool.
func encodeBool(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// encodeBytes encodes a byte array to a length-prefixed byte array. Used primarily for message payloads.
func encodeBytes(val []byte) ([]byte, error) {
	if len(val) > maxStringLength {
		return nil, ErrPacketTooLarge
	}

	// In most circumstances the number of bytes being encoded is small.
	// Setting the cap to a low amount allows us to account for those without
	// triggering allocation growth on append unless we need to.
	buf := make([]byte, 2, 32)
	binary.BigEndian.PutUint16(buf, uint16(len(val)))
	return append(buf, val...), nil
}

// encodeUint16 encodes a uint16 value to a byte array.
func encodeUint16(val uint16) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, val)
	return buf
}

// encodeString encodes a string to a length-prefixed utf-8 byte array.
func encodeString(val string) ([]byte, error) {
	b, err := EncodeUTF8(val)
	if err != nil {
		return nil, err
	}

	return encodeBytes(b)
}

// EncodeUTF8 returns the utf-8 bytes of a string. Code points above U+FFFF are written
// as four byte sequences. Strings holding invalid sequences or encoded surrogate halves
// (which cannot appear in well-formed text) are rejected with ErrMalformedUnicode.
func EncodeUTF8(val string) ([]byte, error) {
	out := make([]byte, 0, len(val))
	for i := 0; i < len(val); {
		r, size := utf8.DecodeRuneInString(val[i:])
		if r == utf8.RuneError && size <= 1 {
			return nil, ErrMalformedUnicode
		}

		switch {
		case r <= 0x7F:
			out = append(out, byte(r))
		case r <= 0x7FF:
			out = append(out, byte(r>>6)&0x1F|0xC0, byte(r)&0x3F|0x80)
		case r <= 0xFFFF:
			out = append(out, byte(r>>12)&0x0F|0xE0, byte(r>>6)&0x3F|0x80, byte(r)&0x3F|0x80)
		default:
			out = append(out, byte(r>>18)&0x07|0xF0, byte(r>>12)&0x3F|0x80, byte(r>>6)&0x3F|0x80, byte(r)&0x3F|0x80)
		}

		i += size
	}

	return out, nil
}

// DecodeUTF8 parses utf-8 bytes into a string. Each four byte sequence is first split into
// a utf-16 surrogate pair and then recombined, so text beyond the basic multilingual plane
// survives intact. Continuation bytes outside 0x80-0xBF, truncated sequences and lead
// bytes of 0xF8 or above fail with ErrMalformedUTF8.
func DecodeUTF8(b []byte) (string, error) {
	units, err := decodeUTF16(b)
	if err != nil {
		return "", err
	}

	return string(utf16.Decode(units)), nil
}

// decodeUTF16 converts utf-8 bytes into utf-16 code units.
func decodeUTF16(b []byte) ([]uint16, error) {
	out := make([]uint16, 0, len(b))
	for pos := 0; pos < len(b); {
		lead := b[pos]
		pos++

		var cp, n int
		switch {
		case lead < 0x80:
			cp = int(lead)
		case lead < 0xC0:
			return nil, ErrMalformedUTF8 // stray continuation byte
		case lead < 0xE0:
			cp, n = int(lead)-0xC0, 1
		case lead < 0xF0:
			cp, n = int(lead)-0xE0, 2
		case lead < 0xF8:
			cp, n = int(lead)-0xF0, 3
		default:
			return nil, ErrMalformedUTF8
		}

		for ; n > 0; n-- {
			if pos >= len(b) || b[pos] < 0x80 || b[pos] > 0xBF {
				return nil, ErrMalformedUTF8
			}
			cp = cp<<6 | int(b[pos]-0x80)
			pos++
		}

		if cp > 0xFFFF {
			cp -= 0x10000
			out = append(out, uint16(0xD800+(cp>>10)), uint16(0xDC00+(cp&0x3FF)))
			continue
		}

		out = append(out, uint16(cp))
	}

	return out, nil
}

// encodeLength writes length bits for the header.
func encodeLength(b *bytes.Buffer, length int64) {
	for {
		eb := byte(length % 128)
		length /= 128
		if length > 0 {
			eb |= 0x80
		}
		b.WriteByte(eb)
		if length == 0 {
			break
		}
	}
}

// decodeLength reads a remaining length value from buf, starting at offset. It returns
// the length, the offset of the first byte after the length, and false if the buffer
// ended before the final length byte arrived.
func decodeLength(buf []byte, offset int) (int, int, bool, error) {
	var value, multiplier int
	for i := 0; i < 4; i++ {
		if offset >= len(buf) {
			return 0, offset, false, nil
		}

		eb := buf[offset]
		offset++
		value |= int(eb&127) << multiplier
		if eb&128 == 0 {
			return value, offset, true, nil
		}

		multiplier += 7
	}

	return 0, offset, false, ErrMalformedVariableByteInteger
}
