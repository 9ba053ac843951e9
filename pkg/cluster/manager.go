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

// Package cluster connects broker nodes over gRPC. Each node fans its locally
// originated consumer notifications out to every peer and republishes the
// notifications it receives onto the local event bus, where the duplicate
// evictor acts on them.
package cluster

import (
	"context"
	"log"
	"sync"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/turtacn/sparrowmq/pkg/events"
	clusterpb "github.com/turtacn/sparrowmq/pkg/proto/cluster"
)

// Manager owns this node's view of the cluster: the pool of peer clients and
// the bus subscription that forwards local notifications to them.
type Manager struct {
	NodeID      string
	NodeAddress string

	bus *events.Bus
	sub *eventstream.Subscription

	mu    sync.RWMutex
	peers map[string]*Client
}

// NewManager creates a manager for the local node. Start wires it to the bus.
func NewManager(nodeID, nodeAddress string, bus *events.Bus) *Manager {
	return &Manager{
		NodeID:      nodeID,
		NodeAddress: nodeAddress,
		bus:         bus,
		peers:       make(map[string]*Client),
	}
}

// Start subscribes the manager to the local bus. Locally originated
// notifications (distance zero) are forwarded to every connected peer with
// the distance bumped, so receivers can tell relayed events from their own.
func (m *Manager) Start() {
	m.sub = m.bus.Subscribe(func(n events.Notification) {
		if n.Distance != 0 {
			return
		}
		m.forward(n)
	})
}

// Stop detaches the manager from the bus and closes every peer connection.
func (m *Manager) Stop() {
	if m.sub != nil {
		m.bus.Unsubscribe(m.sub)
		m.sub = nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, peer := range m.peers {
		peer.Close()
		delete(m.peers, id)
	}
}

// AddPeer connects to a peer node's notification service. Adding a peer that
// is already connected is a no-op.
func (m *Manager) AddPeer(ctx context.Context, peerID, address string) {
	m.mu.Lock()
	if _, exists := m.peers[peerID]; exists {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	log.Printf("[INFO] Cluster: connecting to peer %s at %s", peerID, address)
	client := NewClient(m.NodeID)
	if err := client.Connect(ctx, address); err != nil {
		log.Printf("[ERROR] Cluster: failed to connect to peer %s: %v", peerID, err)
		return
	}

	m.mu.Lock()
	m.peers[peerID] = client
	m.mu.Unlock()
}

// RemovePeer disconnects from a peer. Removing an unknown peer is a no-op.
func (m *Manager) RemovePeer(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if peer, ok := m.peers[peerID]; ok {
		peer.Close()
		delete(m.peers, peerID)
	}
}

// Peers returns the ids of the currently connected peers.
func (m *Manager) Peers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.peers))
	for id := range m.peers {
		out = append(out, id)
	}
	return out
}

// forward sends n to every peer. Each send runs on its own goroutine; a slow
// or dead peer must not hold up the publisher, the bus runs handlers inline.
func (m *Manager) forward(n events.Notification) {
	req := &clusterpb.ConsumerNotification{
		ProtocolName: n.ProtocolName,
		Type:         int32(n.Type),
		Distance:     int32(n.Distance) + 1,
		RoutingName:  n.RoutingName,
		ClientId:     n.ClientID,
		FromNode:     m.NodeID,
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, peer := range m.peers {
		go func(peerID string, c *Client) {
			if _, err := c.Notify(context.Background(), req); err != nil {
				log.Printf("[ERROR] Cluster: failed to notify peer %s: %v", peerID, err)
			}
		}(id, peer)
	}
}
