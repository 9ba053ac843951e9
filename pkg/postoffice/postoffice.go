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

// Package postoffice maps routing names (MQTT topic filters) to queues and
// their attached consumers. It is the broker's binding lookup: message routing
// resolves published topics against the bindings, and the cluster duplicate
// evictor enumerates a queue's consumers to find the one holding a stale
// client identity. Filters support the MQTT wildcards '+' and '#'.
package postoffice

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/turtacn/sparrowmq/pkg/actor"
	"github.com/turtacn/sparrowmq/pkg/connection"
)

// Delivery is the message placed on a consumer's mailbox for each routed
// publish.
type Delivery struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// Consumer is one subscription's attachment to a queue. It records the owning
// client identity and the remoting connection so that duplicate-identity
// enforcement can tear the right connection down.
type Consumer struct {
	id       string
	clientID string
	conn     connection.Connection
	mailbox  *actor.Mailbox
	qos      byte
}

// NewConsumer creates a consumer for clientID delivering into mailbox.
func NewConsumer(clientID string, conn connection.Connection, mailbox *actor.Mailbox, qos byte) *Consumer {
	return &Consumer{
		id:       uuid.NewString(),
		clientID: clientID,
		conn:     conn,
		mailbox:  mailbox,
		qos:      qos,
	}
}

// ID returns the consumer's process-local diagnostic id.
func (c *Consumer) ID() string { return c.id }

// ClientID returns the client identity that owns this consumer.
func (c *Consumer) ClientID() string { return c.clientID }

// Connection returns the consumer's remoting connection.
func (c *Consumer) Connection() connection.Connection { return c.conn }

// QoS returns the granted QoS of the subscription.
func (c *Consumer) QoS() byte { return c.qos }

// Queue is the set of consumers bound under one routing name.
type Queue struct {
	name      string
	mu        sync.RWMutex
	consumers []*Consumer
}

// Name returns the queue's routing name.
func (q *Queue) Name() string { return q.name }

// AddConsumer attaches c to the queue. A consumer delivering into a mailbox
// that is already attached replaces the previous attachment (a client
// re-subscribing to the same filter updates its QoS instead of duplicating
// deliveries).
func (q *Queue) AddConsumer(c *Consumer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, existing := range q.consumers {
		if existing.mailbox == c.mailbox {
			q.consumers[i] = c
			return
		}
	}
	q.consumers = append(q.consumers, c)
}

// RemoveConsumer detaches c. Removing a consumer that is not attached is a
// no-op.
func (q *Queue) RemoveConsumer(c *Consumer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, existing := range q.consumers {
		if existing == c {
			q.consumers = append(q.consumers[:i], q.consumers[i+1:]...)
			return
		}
	}
}

// Consumers returns an independent copy of the current consumer set, so
// callers may iterate without holding the queue's lock. The snapshot may be
// stale by the time it is used; callers must treat acting on a gone consumer
// as a no-op.
func (q *Queue) Consumers() []*Consumer {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*Consumer, len(q.consumers))
	copy(out, q.consumers)
	return out
}

func (q *Queue) len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.consumers)
}

// deliver routes one publish to every consumer. A full mailbox drops the
// delivery for that consumer rather than stalling the publisher.
func (q *Queue) deliver(d Delivery) int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	n := 0
	for _, c := range q.consumers {
		msg := d
		if msg.QoS > c.qos {
			msg.QoS = c.qos
		}
		if c.mailbox.TrySend(msg) {
			n++
		}
	}
	return n
}

// PostOffice is the process-wide binding registry.
type PostOffice struct {
	mu       sync.RWMutex
	bindings map[string]*Queue
}

// New creates an empty PostOffice.
func New() *PostOffice {
	return &PostOffice{bindings: make(map[string]*Queue)}
}

// Binding resolves a routing name to its queue, or nil when no such binding
// exists.
func (p *PostOffice) Binding(routingName string) *Queue {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bindings[routingName]
}

// EnsureQueue returns the queue bound under routingName, creating it if
// needed.
func (p *PostOffice) EnsureQueue(routingName string) *Queue {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.bindings[routingName]
	if !ok {
		q = &Queue{name: routingName}
		p.bindings[routingName] = q
	}
	return q
}

// Attach ensures the binding for routingName exists and attaches c to its
// queue in one step under the registry lock. Ensuring and attaching
// separately would race a concurrent RemoveConsumer dropping the binding,
// leaving c on a queue the router can no longer find.
func (p *PostOffice) Attach(routingName string, c *Consumer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.bindings[routingName]
	if !ok {
		q = &Queue{name: routingName}
		p.bindings[routingName] = q
	}
	q.AddConsumer(c)
}

// RemoveConsumer detaches c from the queue bound under routingName and drops
// the binding once its last consumer is gone.
func (p *PostOffice) RemoveConsumer(routingName string, c *Consumer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.bindings[routingName]
	if !ok {
		return
	}
	q.RemoveConsumer(c)
	if q.len() == 0 {
		delete(p.bindings, routingName)
	}
}

// Route delivers a publish on topic to every consumer of every binding whose
// filter matches. It returns the number of deliveries enqueued.
func (p *PostOffice) Route(topic string, d Delivery) int {
	p.mu.RLock()
	var matched []*Queue
	for name, q := range p.bindings {
		if MatchFilter(topic, name) {
			matched = append(matched, q)
		}
	}
	p.mu.RUnlock()

	n := 0
	for _, q := range matched {
		n += q.deliver(d)
	}
	return n
}

// MatchFilter reports whether a concrete topic matches a subscription filter
// under MQTT wildcard rules: '+' matches exactly one level, '#' matches any
// number of trailing levels and must be the filter's last segment.
func MatchFilter(topic, filter string) bool {
	topicSegments := strings.Split(topic, "/")
	filterSegments := strings.Split(filter, "/")

	for i := 0; i < len(filterSegments); i++ {
		if i >= len(topicSegments) {
			return filterSegments[i] == "#" && i == len(filterSegments)-1
		}
		seg := filterSegments[i]
		if seg == "#" {
			return i == len(filterSegments)-1
		}
		if seg != "+" && seg != topicSegments[i] {
			return false
		}
	}
	return len(topicSegments) == len(filterSegments)
}
