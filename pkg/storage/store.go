// Copyright 2023 The sparrowmq Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storage provides a generic key-value store interface together with
// an in-memory and a PostgreSQL-backed implementation. The session registry
// uses it to persist durable session snapshots across broker restarts.
package storage

import (
	"errors"
	"strings"
	"sync"
)

// ErrNotFound is returned when a key is not present in the store.
var ErrNotFound = errors.New("not found")

// Store is a minimal key-value abstraction. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get retrieves the value for key, or ErrNotFound.
	Get(key string) (interface{}, error)
	// Set inserts or replaces the value for key.
	Set(key string, value interface{}) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
	// Keys lists every stored key starting with prefix.
	Keys(prefix string) ([]string, error)
}

// MemStore is the in-memory Store used by default and in tests. A RWMutex
// guards the underlying map.
type MemStore struct {
	data map[string]interface{}
	mu   sync.RWMutex
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		data: make(map[string]interface{}),
	}
}

// Get retrieves a value under a read lock.
func (s *MemStore) Get(key string) (interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return value, nil
}

// Set inserts or replaces a value under the write lock.
func (s *MemStore) Set(key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// Delete removes a value under the write lock.
func (s *MemStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Keys lists the stored keys with the given prefix, in no particular order.
func (s *MemStore) Keys(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
