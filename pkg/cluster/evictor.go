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

package cluster

import (
	"log"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/turtacn/sparrowmq/pkg/events"
	"github.com/turtacn/sparrowmq/pkg/metrics"
	"github.com/turtacn/sparrowmq/pkg/postoffice"
)

// Evictor enforces single-connection-per-client-identity across the cluster.
// When a consumer for an MQTT client identity appears on another node, any
// local consumer still holding that identity belongs to a stale connection
// and gets its connection destroyed.
//
// Only relayed notifications (distance > 0) are acted on: a node's own
// consumer creations would otherwise evict the very connection that caused
// them.
type Evictor struct {
	nodeID string
	po     *postoffice.PostOffice
	bus    *events.Bus
	sub    *eventstream.Subscription
}

// NewEvictor creates an evictor over the local post office. Start wires it to
// the bus.
func NewEvictor(nodeID string, po *postoffice.PostOffice, bus *events.Bus) *Evictor {
	return &Evictor{nodeID: nodeID, po: po, bus: bus}
}

// Start subscribes the evictor to the bus.
func (e *Evictor) Start() {
	e.sub = e.bus.Subscribe(e.handle)
}

// Stop detaches the evictor from the bus.
func (e *Evictor) Stop() {
	if e.sub != nil {
		e.bus.Unsubscribe(e.sub)
		e.sub = nil
	}
}

func (e *Evictor) handle(n events.Notification) {
	if n.Type != events.ConsumerCreated {
		return
	}
	if n.ProtocolName != events.MQTTProtocolName {
		return
	}
	if n.Distance <= 0 {
		return
	}

	q := e.po.Binding(n.RoutingName)
	if q == nil {
		return
	}

	for _, c := range q.Consumers() {
		if c.ClientID() != n.ClientID {
			continue
		}
		log.Printf("[WARN] Evicting stale connection for client %q: identity reconnected on node %s",
			n.ClientID, n.FromNode)
		metrics.DuplicateEvictionsTotal.WithLabelValues(n.FromNode).Inc()
		c.Connection().Destroy()
	}
}
