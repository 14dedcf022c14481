// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: werbenhu

package pebble

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	pebbledb "github.com/cockroachdb/pebble"
	"github.com/mochi-mqtt/client/storage"
	"github.com/stretchr/testify/require"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

func newStore(t *testing.T, mode string) *Store {
	s := new(Store)
	s.SetLogger(logger)
	err := s.Init(&Options{
		Path: filepath.Join(t.TempDir(), "pebble"),
		Mode: mode,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Stop()
	})
	return s
}

func TestKeyUpperBound(t *testing.T) {
	require.Equal(t, []byte("Sent;"), keyUpperBound([]byte("Sent:")))
	require.Equal(t, []byte{0x01}, keyUpperBound([]byte{0x00, 0xff}))
	require.Nil(t, keyUpperBound([]byte{0xff, 0xff}))
}

func TestID(t *testing.T) {
	s := new(Store)
	require.Equal(t, "pebble-db", s.ID())
}

func TestInitBadConfig(t *testing.T) {
	s := new(Store)
	err := s.Init(map[string]any{})
	require.ErrorIs(t, err, storage.ErrInvalidConfigType)
}

func TestInitMode(t *testing.T) {
	s := newStore(t, "sync")
	require.Equal(t, pebbledb.Sync, s.mode)

	s = newStore(t, "")
	require.Equal(t, pebbledb.NoSync, s.mode)
}

func TestSetGetDelete(t *testing.T) {
	s := newStore(t, NoSync)

	require.NoError(t, s.Set(storage.SentKey+"a:1", []byte("one")))
	v, err := s.Get(storage.SentKey + "a:1")
	require.NoError(t, err)
	require.Equal(t, []byte("one"), v)

	require.NoError(t, s.Delete(storage.SentKey+"a:1"))
	_, err = s.Get(storage.SentKey + "a:1")
	require.ErrorIs(t, err, storage.ErrKeyNotFound)
}

func TestKeys(t *testing.T) {
	s := newStore(t, Sync)

	require.NoError(t, s.Set(storage.SentKey+"a:1", []byte("one")))
	require.NoError(t, s.Set(storage.SentKey+"a:2", []byte("two")))
	require.NoError(t, s.Set(storage.SentKey+"b:1", []byte("three")))
	require.NoError(t, s.Set(storage.ReceivedKey+"a:1", []byte("four")))

	keys, err := s.Keys(storage.SentKey + "a:")
	require.NoError(t, err)
	require.Equal(t, []string{storage.SentKey + "a:1", storage.SentKey + "a:2"}, keys)

	keys, err = s.Keys("")
	require.NoError(t, err)
	require.Len(t, keys, 4)
}

func TestNotOpen(t *testing.T) {
	s := new(Store)
	require.ErrorIs(t, s.Set("a", nil), storage.ErrDBFileNotOpen)
	require.ErrorIs(t, s.Delete("a"), storage.ErrDBFileNotOpen)
	_, err := s.Get("a")
	require.ErrorIs(t, err, storage.ErrDBFileNotOpen)
	_, err = s.Keys("a")
	require.ErrorIs(t, err, storage.ErrDBFileNotOpen)
	require.NoError(t, s.Stop())
}
