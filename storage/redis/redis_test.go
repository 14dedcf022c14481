// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package redis

import (
	"log/slog"
	"os"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/go-redis/redis/v8"
	"github.com/mochi-mqtt/client/storage"
	"github.com/stretchr/testify/require"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

func newStore(t *testing.T, addr string) *Store {
	s := new(Store)
	s.SetLogger(logger)

	err := s.Init(&Options{
		Options: &redis.Options{
			Addr: addr,
		},
	})
	require.NoError(t, err)

	return s
}

func teardown(t *testing.T, s *Store) {
	if s.db != nil {
		err := s.db.FlushAll(s.ctx).Err()
		require.NoError(t, err)
		require.NoError(t, s.Stop())
	}
}

func TestID(t *testing.T) {
	s := new(Store)
	require.Equal(t, "redis-db", s.ID())
}

func TestHKey(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newStore(t, mr.Addr())
	defer teardown(t, s)
	require.Equal(t, defaultHPrefix+"test", s.hKey("test"))
}

func TestInitBadConfig(t *testing.T) {
	s := new(Store)
	err := s.Init(map[string]any{})
	require.ErrorIs(t, err, storage.ErrInvalidConfigType)
}

func TestInitBadAddr(t *testing.T) {
	s := new(Store)
	s.SetLogger(logger)
	err := s.Init(&Options{
		Options: &redis.Options{
			Addr: "127.0.0.1:1",
		},
	})
	require.Error(t, err)
}

func TestSetGetDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newStore(t, mr.Addr())
	defer teardown(t, s)

	require.NoError(t, s.Set(storage.SentKey+"a:1", []byte("one")))
	require.True(t, mr.Exists(defaultHPrefix+hashName))

	v, err := s.Get(storage.SentKey + "a:1")
	require.NoError(t, err)
	require.Equal(t, []byte("one"), v)

	require.NoError(t, s.Delete(storage.SentKey+"a:1"))
	_, err = s.Get(storage.SentKey + "a:1")
	require.ErrorIs(t, err, storage.ErrKeyNotFound)
}

func TestKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newStore(t, mr.Addr())
	defer teardown(t, s)

	require.NoError(t, s.Set(storage.SentKey+"a:2", []byte("two")))
	require.NoError(t, s.Set(storage.SentKey+"a:1", []byte("one")))
	require.NoError(t, s.Set(storage.SentKey+"b:1", []byte("three")))
	require.NoError(t, s.Set(storage.ReceivedKey+"a:1", []byte("four")))

	keys, err := s.Keys(storage.SentKey + "a:")
	require.NoError(t, err)
	require.Equal(t, []string{storage.SentKey + "a:1", storage.SentKey + "a:2"}, keys)
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
