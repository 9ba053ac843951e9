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

package connection

import "sync"

// Directory maps client identities to their currently active connection,
// process-wide. Individual operations are atomic; the directory itself never
// evicts anything. When Add displaces a previous occupant, the caller decides
// whether the displaced connection must be destroyed (MQTT mandates that a
// second CONNECT with the same client identity disconnects the first).
type Directory struct {
	mu    sync.RWMutex
	conns map[string]Connection
}

// NewDirectory creates an empty Directory.
func NewDirectory() *Directory {
	return &Directory{conns: make(map[string]Connection)}
}

// Add records conn as the active connection for clientID and returns the
// connection it displaced, or nil if the identity was not present.
func (d *Directory) Add(clientID string, conn Connection) Connection {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev := d.conns[clientID]
	d.conns[clientID] = conn
	return prev
}

// IsCurrent reports whether conn is still the directory's entry for clientID.
// The comparison is reference identity, not value equality: a connection that
// lost an identity race must not mistake its successor for itself.
func (d *Directory) IsCurrent(clientID string, conn Connection) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.conns[clientID] == conn
}

// Remove drops the entry for clientID, if any.
func (d *Directory) Remove(clientID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.conns, clientID)
}

// Len returns the number of currently registered identities.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.conns)
}
