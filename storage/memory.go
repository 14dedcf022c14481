// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package storage

import (
	"sort"
	"strings"
	"sync"
)

// Memory is a Store which keeps values in a map. It is the default store, and
// holds state only for the lifetime of the process.
type Memory struct {
	Base
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns a ready to use in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data: map[string][]byte{},
	}
}

// ID returns the id of the store.
func (m *Memory) ID() string {
	return "memory"
}

// Init initializes the store.
func (m *Memory) Init(config any) error {
	if config != nil {
		return ErrInvalidConfigType
	}

	m.EnsureLogger()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string][]byte{}
	}

	return nil
}

// Stop is a no-op for the memory store.
func (m *Memory) Stop() error {
	return nil
}

// Set stores a copy of value under key.
func (m *Memory) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte{}, value...)
	return nil
}

// Get returns the value stored under key.
func (m *Memory) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}

	return append([]byte{}, v...), nil
}

// Delete removes key from the store.
func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Keys returns all keys which begin with prefix, in ascending order.
func (m *Memory) Keys(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)
	return keys, nil
}
