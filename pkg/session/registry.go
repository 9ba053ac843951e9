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

package session

import (
	"fmt"
	"log"
	"sync"

	"github.com/turtacn/sparrowmq/pkg/storage"
)

// Registry is the process-wide map from a derived session key to durable
// session State. It is an owned instance, one per broker node, never a
// package global: tests and in-process cluster setups construct isolated
// registries.
//
// When several logical broker nodes share one process (cluster-in-process
// testing), a bare client identity would collide across nodes. A configured
// node identity is therefore prefixed into the key, keeping each node's
// sessions disjoint while remaining a pure function of (nodeID, clientID).
//
// An optional backing store persists snapshots of durable (non-clean)
// sessions, so they survive a broker restart.
type Registry struct {
	nodeID string
	store  storage.Store

	mu     sync.RWMutex
	states map[string]*State
}

// NewRegistry creates a registry for the given node identity. nodeID may be
// empty for a single-node deployment; store may be nil to disable
// persistence.
func NewRegistry(nodeID string, store storage.Store) *Registry {
	return &Registry{
		nodeID: nodeID,
		store:  store,
		states: make(map[string]*State),
	}
}

// Key derives the registry key for clientID: nodeID + clientID when a node
// identity is configured, the bare clientID otherwise.
func (r *Registry) Key(clientID string) string {
	if r.nodeID != "" {
		return r.nodeID + clientID
	}
	return clientID
}

// LookupOrCreate returns the State for clientID, creating it atomically when
// absent. Concurrent calls for the same identity all observe the same
// instance; exactly one caller creates it. A registry miss consults the
// backing store first, so a durable session resumes with its persisted
// subscription set.
func (r *Registry) LookupOrCreate(clientID string) *State {
	key := r.Key(clientID)

	r.mu.RLock()
	st, ok := r.states[key]
	r.mu.RUnlock()
	if ok {
		return st
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.states[key]; ok {
		return st
	}
	st = r.load(key, clientID)
	if st == nil {
		st = NewState(clientID)
	}
	r.states[key] = st
	return st
}

// load restores a persisted snapshot, or returns nil.
func (r *Registry) load(key, clientID string) *State {
	if r.store == nil {
		return nil
	}
	v, err := r.store.Get(key)
	if err != nil {
		return nil
	}
	data, ok := v.([]byte)
	if !ok {
		return nil
	}
	st, err := restoreState(data)
	if err != nil {
		log.Printf("[WARN] Discarding corrupt session snapshot for client %q: %v", clientID, err)
		return nil
	}
	log.Printf("[INFO] Restored durable session for client %q (%d subscriptions)",
		clientID, len(st.subscriptions))
	return st
}

// Get returns the State for clientID, if present.
func (r *Registry) Get(clientID string) (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.states[r.Key(clientID)]
	return st, ok
}

// Remove deletes the entry for clientID, along with any persisted snapshot.
// Removing an absent identity is a no-op.
func (r *Registry) Remove(clientID string) {
	key := r.Key(clientID)
	r.mu.Lock()
	delete(r.states, key)
	r.mu.Unlock()
	if r.store != nil {
		if err := r.store.Delete(key); err != nil {
			log.Printf("[ERROR] Failed to delete session snapshot for client %q: %v", clientID, err)
		}
	}
}

// Snapshot returns an independent copy of the current entries, keyed by the
// derived session key. Callers may iterate it without holding the registry's
// lock.
func (r *Registry) Snapshot() map[string]*State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*State, len(r.states))
	for key, st := range r.states {
		out[key] = st
	}
	return out
}

// Persist writes st's snapshot to the backing store. A nil store makes it a
// no-op; durable sessions then only live as long as the process.
func (r *Registry) Persist(st *State) error {
	if r.store == nil {
		return nil
	}
	data, err := st.snapshot()
	if err != nil {
		return fmt.Errorf("failed to snapshot session for client %q: %w", st.ClientID(), err)
	}
	if err := r.store.Set(r.Key(st.ClientID()), data); err != nil {
		return fmt.Errorf("failed to persist session for client %q: %w", st.ClientID(), err)
	}
	return nil
}
