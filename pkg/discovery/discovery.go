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

// Package discovery locates the other broker nodes of a cluster, either from
// a static peer list or from Kubernetes service endpoints.
package discovery

import "context"

// Peer is one remote broker node.
type Peer struct {
	ID      string
	Address string
}

// Discovery enumerates the cluster's peer nodes.
type Discovery interface {
	DiscoverPeers(ctx context.Context) ([]Peer, error)
}

// StaticDiscovery serves a fixed peer list from configuration.
type StaticDiscovery struct {
	peers []Peer
}

// NewStaticDiscovery returns a Discovery over the given peers.
func NewStaticDiscovery(peers []Peer) *StaticDiscovery {
	return &StaticDiscovery{peers: peers}
}

// DiscoverPeers returns a copy of the configured peer list.
func (s *StaticDiscovery) DiscoverPeers(ctx context.Context) ([]Peer, error) {
	out := make([]Peer, len(s.peers))
	copy(out, s.peers)
	return out, nil
}
