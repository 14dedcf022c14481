// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co, werbenhu

// Package bolt provides a durable message store backed by a single boltdb file.
package bolt

import (
	"bytes"
	"errors"
	"time"

	"github.com/mochi-mqtt/client/storage"
	"go.etcd.io/bbolt"
)

var (
	ErrBucketNotFound = errors.New("bucket not found")
)

const (
	// defaultDbFile is the default file path for the boltdb file.
	defaultDbFile = ".bolt"

	// defaultTimeout is the default time to hold a connection to the file.
	defaultTimeout = 250 * time.Millisecond

	defaultBucket = "mochi-client"
)

// Options contains configuration settings for the bolt instance.
type Options struct {
	Options *bbolt.Options
	Bucket  string `yaml:"bucket" json:"bucket"`
	Path    string `yaml:"path" json:"path"`
}

// Store is a durable message store using a boltdb file as a backend.
type Store struct {
	storage.Base
	config *Options  // options for configuring the boltdb instance.
	db     *bbolt.DB // the boltdb instance.
}

// ID returns the id of the store.
func (s *Store) ID() string {
	return "bolt-db"
}

// Init initializes and opens the boltdb file.
func (s *Store) Init(config any) error {
	if _, ok := config.(*Options); !ok && config != nil {
		return storage.ErrInvalidConfigType
	}

	if config == nil {
		config = new(Options)
	}

	s.EnsureLogger()

	s.config = config.(*Options)
	if s.config.Options == nil {
		s.config.Options = &bbolt.Options{
			Timeout: defaultTimeout,
		}
	}
	if len(s.config.Path) == 0 {
		s.config.Path = defaultDbFile
	}

	if len(s.config.Bucket) == 0 {
		s.config.Bucket = defaultBucket
	}

	var err error
	s.db, err = bbolt.Open(s.config.Path, 0600, s.config.Options)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(s.config.Bucket))
		return err
	})
}

// Stop closes the boltdb instance.
func (s *Store) Stop() error {
	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil
	return err
}

// bucket returns the store bucket from a transaction.
func (s *Store) bucket(tx *bbolt.Tx) (*bbolt.Bucket, error) {
	bucket := tx.Bucket([]byte(s.config.Bucket))
	if bucket == nil {
		return nil, ErrBucketNotFound
	}
	return bucket, nil
}

// Set stores a key-value pair in the database.
func (s *Store) Set(k string, v []byte) error {
	if s.db == nil {
		return storage.ErrDBFileNotOpen
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := s.bucket(tx)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(k), v)
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

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := s.bucket(tx)
		if err != nil {
			return err
		}
		return bucket.Delete([]byte(k))
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

	err = s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := s.bucket(tx)
		if err != nil {
			return err
		}

		value := bucket.Get([]byte(k))
		if value == nil {
			return storage.ErrKeyNotFound
		}

		// values are only valid for the life of the transaction.
		v = append([]byte{}, value...)
		return nil
	})

	return v, err
}

// Keys returns the keys having the specified prefix in the database.
func (s *Store) Keys(prefix string) (keys []string, err error) {
	if s.db == nil {
		return nil, storage.ErrDBFileNotOpen
	}

	err = s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := s.bucket(tx)
		if err != nil {
			return err
		}

		c := bucket.Cursor()
		for k, _ := c.Seek([]byte(prefix)); k != nil && bytes.HasPrefix(k, []byte(prefix)); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		s.Log.Error("failed to iter data", "error", err, "prefix", prefix)
	}

	return keys, err
}
