// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	redis "github.com/go-redis/redis/v8"
	"github.com/mochi-mqtt/client/storage"
)

// defaultAddr is the default address to the redis service.
const defaultAddr = "localhost:6379"

// defaultHPrefix is a prefix to better identify hsets created by mochi mqtt.
const defaultHPrefix = "mochi-"

// hashName is the name of the hash holding the in-flight messages.
const hashName = "inflight"

// Options contains configuration settings for the redis service.
type Options struct {
	HPrefix string         `yaml:"h_prefix" json:"h_prefix"`
	Options *redis.Options `yaml:"-" json:"-"`
}

// Store is a durable message store using Redis as a backend. All values are
// kept as fields of a single hash.
type Store struct {
	storage.Base
	config *Options        // options for connecting to the Redis instance.
	db     *redis.Client   // the Redis instance
	ctx    context.Context // a context for the connection
}

// ID returns the id of the store.
func (s *Store) ID() string {
	return "redis-db"
}

// hKey returns a hash set key with a unique prefix.
func (s *Store) hKey(v string) string {
	return s.config.HPrefix + v
}

// Init initializes and connects to the redis service.
func (s *Store) Init(config any) error {
	if _, ok := config.(*Options); !ok && config != nil {
		return storage.ErrInvalidConfigType
	}

	s.ctx = context.Background()
	s.EnsureLogger()

	if config == nil {
		config = new(Options)
	}

	s.config = config.(*Options)
	if s.config.Options == nil {
		s.config.Options = &redis.Options{
			Addr: defaultAddr,
		}
	}

	if s.config.HPrefix == "" {
		s.config.HPrefix = defaultHPrefix
	}

	s.Log.Info("connecting to redis service",
		"address", s.config.Options.Addr,
		"username", s.config.Options.Username,
		"password-len", len(s.config.Options.Password),
		"db", s.config.Options.DB)

	s.db = redis.NewClient(s.config.Options)
	_, err := s.db.Ping(s.ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping service: %w", err)
	}

	s.Log.Info("connected to redis service")

	return nil
}

// Stop closes the redis connection.
func (s *Store) Stop() error {
	if s.db == nil {
		return nil
	}

	s.Log.Info("disconnecting from redis service")
	err := s.db.Close()
	s.db = nil
	return err
}

// Set stores a key-value pair in the hash.
func (s *Store) Set(k string, v []byte) error {
	if s.db == nil {
		return storage.ErrDBFileNotOpen
	}

	err := s.db.HSet(s.ctx, s.hKey(hashName), k, v).Err()
	if err != nil {
		s.Log.Error("failed to upsert data", "error", err, "key", k)
	}
	return err
}

// Delete deletes a key-value pair from the hash.
func (s *Store) Delete(k string) error {
	if s.db == nil {
		return storage.ErrDBFileNotOpen
	}

	err := s.db.HDel(s.ctx, s.hKey(hashName), k).Err()
	if err != nil {
		s.Log.Error("failed to delete data", "error", err, "key", k)
	}
	return err
}

// Get retrieves the value associated with a key from the hash.
func (s *Store) Get(k string) ([]byte, error) {
	if s.db == nil {
		return nil, storage.ErrDBFileNotOpen
	}

	v, err := s.db.HGet(s.ctx, s.hKey(hashName), k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrKeyNotFound
	}

	return v, err
}

// Keys returns the hash fields having the specified prefix, in ascending order.
func (s *Store) Keys(prefix string) ([]string, error) {
	if s.db == nil {
		return nil, storage.ErrDBFileNotOpen
	}

	all, err := s.db.HKeys(s.ctx, s.hKey(hashName)).Result()
	if err != nil {
		s.Log.Error("failed to HKeys", "error", err)
		return nil, err
	}

	var keys []string
	for _, k := range all {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)
	return keys, nil
}
