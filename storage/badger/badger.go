// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co, gsagula, werbenhu

package badger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/mochi-mqtt/client/storage"
)

const (
	// defaultDbFile is the default file path for the badger db file.
	defaultDbFile         = ".badger"
	defaultGcInterval     = 5 * 60 // gc interval in seconds
	defaultGcDiscardRatio = 0.5
)

// Options contains configuration settings for the BadgerDB instance.
type Options struct {
	Options *badgerdb.Options
	Path    string `yaml:"path" json:"path"`
	// GcDiscardRatio specifies the ratio of log discard compared to the maximum possible log discard.
	// discardRatio must be in the range (0.0, 1.0), both endpoints excluded, otherwise, it will be set to the default value of 0.5.
	GcDiscardRatio float64 `yaml:"gc_discard_ratio" json:"gc_discard_ratio"`
	GcInterval     int64   `yaml:"gc_interval" json:"gc_interval"`
}

// Store is a durable message store using a BadgerDB file store as a backend.
type Store struct {
	storage.Base
	config   *Options     // options for configuring the BadgerDB instance.
	gcTicker *time.Ticker // Ticker for BadgerDB garbage collection.
	db       *badgerdb.DB // the BadgerDB instance.
}

// ID returns the id of the store.
func (s *Store) ID() string {
	return "badger-db"
}

// gcLoop periodically runs the garbage collection process to reclaim space in the value log files.
// Refer to: https://dgraph.io/docs/badger/get-started/#garbage-collection
func (s *Store) gcLoop() {
	for range s.gcTicker.C {
	again:
		// If the process returns nil (success), repeat the process.
		err := s.db.RunValueLogGC(s.config.GcDiscardRatio)
		if err == nil {
			goto again
		}
	}
}

// Init initializes and opens the badger instance.
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

	if s.config.GcInterval == 0 {
		s.config.GcInterval = defaultGcInterval
	}

	if s.config.GcDiscardRatio <= 0.0 || s.config.GcDiscardRatio >= 1.0 {
		s.config.GcDiscardRatio = defaultGcDiscardRatio
	}

	if s.config.Options == nil {
		defaultOpts := badgerdb.DefaultOptions(s.config.Path)
		s.config.Options = &defaultOpts
	}
	s.config.Options.Logger = s

	var err error
	s.db, err = badgerdb.Open(*s.config.Options)
	if err != nil {
		return err
	}

	s.gcTicker = time.NewTicker(time.Duration(s.config.GcInterval) * time.Second)
	go s.gcLoop()

	return nil
}

// Stop closes the badger instance.
func (s *Store) Stop() error {
	if s.gcTicker != nil {
		s.gcTicker.Stop()
	}

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

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(k), v)
	})
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

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(k))
	})
	if err != nil {
		s.Log.Error("failed to delete data", "error", err, "key", k)
	}
	return err
}

// Get retrieves the value associated with a key from the database.
func (s *Store) Get(k string) (v []byte, err error) {
	if s.db == nil {
		return nil, storage.ErrDBFileNotOpen
	}

	err = s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(k))
		if err != nil {
			return err
		}
		v, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, storage.ErrKeyNotFound
	}

	return v, err
}

// Keys returns the keys having the specified prefix in the database.
func (s *Store) Keys(prefix string) (keys []string, err error) {
	if s.db == nil {
		return nil, storage.ErrDBFileNotOpen
	}

	err = s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		iterator := txn.NewIterator(opts)
		defer iterator.Close()

		for iterator.Seek([]byte(prefix)); iterator.ValidForPrefix([]byte(prefix)); iterator.Next() {
			keys = append(keys, string(iterator.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		s.Log.Error("failed to find data", "error", err, "prefix", prefix)
	}

	return keys, err
}

// Errorf satisfies the badger interface for an error logger.
func (s *Store) Errorf(m string, v ...any) {
	s.Log.Error(fmt.Sprintf(strings.ToLower(strings.Trim(m, "\n")), v...), "v", v)
}

// Warningf satisfies the badger interface for a warning logger.
func (s *Store) Warningf(m string, v ...any) {
	s.Log.Warn(fmt.Sprintf(strings.ToLower(strings.Trim(m, "\n")), v...), "v", v)
}

// Infof satisfies the badger interface for an info logger.
func (s *Store) Infof(m string, v ...any) {
	s.Log.Info(fmt.Sprintf(strings.ToLower(strings.Trim(m, "\n")), v...), "v", v)
}

// Debugf satisfies the badger interface for a debug logger.
func (s *Store) Debugf(m string, v ...any) {
	s.Log.Debug(fmt.Sprintf(strings.ToLower(strings.Trim(m, "\n")), v...), "v", v)
}
