// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: werbenhu

package pebble

import (
	"errors"
	"fmt"
	"strings"

	pebbledb "github.com/cockroachdb/pebble"
	"github.com/mochi-mqtt/client/storage"
)

const (
	// defaultDbFile is the default file path for the pebble db file.
	defaultDbFile = ".pebble"
)

// keyUpperBound returns the upper bound for a given byte slice by incrementing the last byte.
// It returns nil if all bytes are incremented and equal to 0.
func keyUpperBound(b []byte) []byte {
	end := make([]byte, len(b))
	copy(end, b)
	for i := len(end) - 1; i >= 0; i-- {
		end[i] = end[i] + 1
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

const (
	NoSync = "NoSync" // NoSync specifies the default write options for writes which do not synchronize to disk.
	Sync   = "Sync"   // Sync specifies the default write options for writes which synchronize to disk.
)

// Options contains configuration settings for the pebble DB instance.
type Options struct {
	Options *pebbledb.Options
	Mode    string `yaml:"mode" json:"mode"`
	Path    string `yaml:"path" json:"path"`
}

// Store is a durable message store using pebble DB as a backend.
type Store struct {
	storage.Base
	config *Options               // options for configuring the pebble DB instance.
	db     *pebbledb.DB           // the pebble DB instance
	mode   *pebbledb.WriteOptions // mode holds the optional per-query parameters for Set and Delete operations
}

// ID returns the id of the store.
func (s *Store) ID() string {
	return "pebble-db"
}

// Init initializes and opens the pebble instance.
func (s *Store) Init(config any) error {
	if _, ok := config.(*Options); !ok && config != nil {
		return storage.ErrInvalidConfigType
	}

	if config == nil {
		s.config = new(Options)
	} else {
		s.config = config.(*Options)
	}

	s.EnsureLogger()

	if len(s.config.Path) == 0 {
		s.config.Path = defaultDbFile
	}

	if s.config.Options == nil {
		s.config.Options = &pebbledb.Options{}
	}
	s.config.Options.Logger = s

	s.mode = pebbledb.NoSync
	if strings.EqualFold(s.config.Mode, Sync) {
		s.mode = pebbledb.Sync
	}

	var err error
	s.db, err = pebbledb.Open(s.config.Path, s.config.Options)
	if err != nil {
		return err
	}

	return nil
}

// Stop closes the pebble instance.
func (s *Store) Stop() error {
	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil
	return err
}

// Set stores a key-value pair in the database.
func (s *Store) Set(k string, v []byte) error {
	if s.db == nil {
		return storage.ErrDBFileNotOpen
	}

	err := s.db.Set([]byte(k), v, s.mode)
	if err != nil {
		s.Log.Error("failed to upsert data", "error", err, "key", k)
	}
	return err
}

// Delete deletes a key-value pair from the database.
func (s *Store) Delete(k string) error {
	if s.db == nil {
		return storage.ErrDBFileNotOpen
	}

	err := s.db.Delete([]byte(k), s.mode)
	if err != nil {
		s.Log.Error("failed to delete data", "error", err, "key", k)
	}
	return err
}

// Get retrieves the value associated with a key from the database.
func (s *Store) Get(k string) ([]byte, error) {
	if s.db == nil {
		return nil, storage.ErrDBFileNotOpen
	}

	value, closer, err := s.db.Get([]byte(k))
	if errors.Is(err, pebbledb.ErrNotFound) {
		return nil, storage.ErrKeyNotFound
	} else if err != nil {
		return nil, err
	}
	defer closer.Close()

	return append([]byte{}, value...), nil
}

// Keys returns the keys having the specified prefix in the database.
func (s *Store) Keys(prefix string) ([]string, error) {
	if s.db == nil {
		return nil, storage.ErrDBFileNotOpen
	}

	iter, err := s.db.NewIter(&pebbledb.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: keyUpperBound([]byte(prefix)),
	})
	if err != nil {
		s.Log.Error("failed to iter data", "error", err, "prefix", prefix)
		return nil, err
	}
	defer iter.Close()

	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Key()))
	}

	return keys, iter.Error()
}

// Infof satisfies the pebble interface for an info logger.
func (s *Store) Infof(m string, v ...any) {
	s.Log.Info(fmt.Sprintf(strings.ToLower(strings.Trim(m, "\n")), v...), "v", v)
}

// Errorf satisfies the pebble interface for an error logger.
func (s *Store) Errorf(m string, v ...any) {
	s.Log.Error(fmt.Sprintf(strings.ToLower(strings.Trim(m, "\n")), v...), "v", v)
}

// Fatalf satisfies the pebble interface for a fatal logger.
func (s *Store) Fatalf(m string, v ...any) {
	s.Log.Error(fmt.Sprintf(strings.ToLower(strings.Trim(m, "\n")), v...), "v", v)
	panic(fmt.Sprintf(m, v...))
}
