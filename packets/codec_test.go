// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeLength(t *testing.T) {
	tt := []struct {
		length int64
		want   []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{16383, []byte{0xff, 0x7f}},
		{16384, []byte{0x80, 0x80, 0x01}},
		{2097151, []byte{0xff, 0xff, 0x7f}},
		{2097152, []byte{0x80, 0x80, 0x80, 0x01}},
		{MaxRemainingLength, []byte{0xff, 0xff, 0xff, 0x7f}},
	}

	for _, tx := range tt {
		buf := new(bytes.Buffer)
		encodeLength(buf, tx.length)
		require.Equal(t, tx.want, buf.Bytes(), "length %d", tx.length)

		n, next, ok, err := decodeLength(tx.want, 0)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, int(tx.length), n)
		require.Equal(t, len(tx.want), next)
	}
}

func TestDecodeLengthIncomplete(t *testing.T) {
	_, _, ok, err := decodeLength([]byte{0x80, 0x80}, 0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDecodeLengthOverflow(t *testing.T) {
	_, _, _, err := decodeLength([]byte{0x80, 0x80, 0x80, 0x80, 0x01}, 0)
	require.ErrorIs(t, err, ErrMalformedVariableByteInteger)
}

func TestFixedHeaderEncodeTooLarge(t *testing.T) {
	fh := FixedHeader{Type: Publish, Remaining: MaxRemainingLength + 1}
	require.ErrorIs(t, fh.Encode(new(bytes.Buffer)), ErrPacketTooLarge)
}

func TestEncodeUTF8(t *testing.T) {
	tt := []struct {
		in   string
		want []byte
	}{
		{"", []byte{}},
		{"a/b", []byte{'a', '/', 'b'}},
		{"é", []byte{0xc3, 0xa9}},
		{"€", []byte{0xe2, 0x82, 0xac}},
		{"\U0001F600", []byte{0xf0, 0x9f, 0x98, 0x80}},
	}

	for _, tx := range tt {
		got, err := EncodeUTF8(tx.in)
		require.NoError(t, err, tx.in)
		require.Equal(t, tx.want, got, tx.in)
	}
}

func TestEncodeUTF8Invalid(t *testing.T) {
	_, err := EncodeUTF8(string([]byte{'a', 0xff}))
	require.ErrorIs(t, err, ErrMalformedUnicode)
}

func TestDecodeUTF8(t *testing.T) {
	for _, s := range []string{"", "a/b/c", "é", "€uro", "smile \U0001F600 done", "\U0010FFFF"} {
		b, err := EncodeUTF8(s)
		require.NoError(t, err)

		got, err := DecodeUTF8(b)
		require.NoError(t, err)
		require.Equal(t, s, got)
	}
}

func TestDecodeUTF8Invalid(t *testing.T) {
	tt := []struct {
		desc string
		in   []byte
	}{
		{"stray continuation", []byte{0x80}},
		{"truncated two byte", []byte{0xc3}},
		{"truncated four byte", []byte{0xf0, 0x9f, 0x98}},
		{"bad continuation", []byte{0xc3, 0x28}},
		{"five byte lead", []byte{0xf8, 0x80, 0x80, 0x80, 0x80}},
	}

	for _, tx := range tt {
		_, err := DecodeUTF8(tx.in)
		require.ErrorIs(t, err, ErrMalformedUTF8, tx.desc)
	}
}

func TestEncodeBytesTooLong(t *testing.T) {
	_, err := encodeBytes(make([]byte, maxStringLength+1))
	require.ErrorIs(t, err, ErrPacketTooLarge)

	b, err := encodeBytes(make([]byte, maxStringLength))
	require.NoError(t, err)
	require.Equal(t, []byte{0xff, 0xff}, b[:2])
}

func TestCodeError(t *testing.T) {
	require.Equal(t, "packet too large", ErrPacketTooLarge.Error())
	require.Equal(t, "connection accepted", CodeAccepted.String())
	require.Equal(t, ErrRefusedServerUnavailable, ConnackCodes[0x03])
}
