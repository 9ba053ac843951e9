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

package broker

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/turtacn/sparrowmq/pkg/actor"
	"github.com/turtacn/sparrowmq/pkg/connection"
	"github.com/turtacn/sparrowmq/pkg/events"
	"github.com/turtacn/sparrowmq/pkg/postoffice"
	"github.com/turtacn/sparrowmq/pkg/retainer"
	"github.com/turtacn/sparrowmq/pkg/session"
)

// maxGrantedQoS caps subscriptions; QoS 2 delivery is not implemented.
const maxGrantedQoS = 1

// protocolHandler is the inbound side of the packet pipeline. Stopping it
// tells the packet loop to quit dispatching; the socket close that follows
// unblocks the pending read.
type protocolHandler struct {
	stopped atomic.Bool
}

func (h *protocolHandler) Stop() { h.stopped.Store(true) }

func (h *protocolHandler) Stopped() bool { return h.stopped.Load() }

// subscriptionManager materializes the session state's subscription set as
// live post-office consumers while the session is attached. Every consumer
// attachment is announced on the event bus, where the cluster manager picks
// it up for fan-out.
type subscriptionManager struct {
	broker  *Broker
	state   *session.State
	conn    connection.Connection
	mailbox *actor.Mailbox

	mu        sync.Mutex
	consumers map[string]*postoffice.Consumer
}

func newSubscriptionManager(b *Broker, st *session.State, conn connection.Connection, mailbox *actor.Mailbox) *subscriptionManager {
	return &subscriptionManager{
		broker:    b,
		state:     st,
		conn:      conn,
		mailbox:   mailbox,
		consumers: make(map[string]*postoffice.Consumer),
	}
}

// Start re-establishes a consumer for every subscription already in the
// state, so a resumed durable session receives messages again without
// resubscribing.
func (m *subscriptionManager) Start() error {
	for filter, qos := range m.state.Subscriptions() {
		m.attach(filter, qos)
	}
	return nil
}

// Stop detaches every live consumer. The state's subscription set is left
// alone; a durable session resumes from it on reconnect.
func (m *subscriptionManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for filter, c := range m.consumers {
		m.broker.po.RemoveConsumer(filter, c)
		delete(m.consumers, filter)
		m.notify(events.ConsumerClosed, filter)
	}
	return nil
}

// Clean discards whatever Stop left behind. The state itself is cleared by
// the session.
func (m *subscriptionManager) Clean() error {
	return m.Stop()
}

// Subscribe attaches a consumer for filter and records the subscription in
// the session state. It returns the granted QoS.
func (m *subscriptionManager) Subscribe(filter string, qos byte) byte {
	if qos > maxGrantedQoS {
		qos = maxGrantedQoS
	}
	m.attach(filter, qos)
	m.state.AddSubscription(filter, qos)
	log.Printf("[INFO] Client %q subscribed to %q (qos=%d)", m.state.ClientID(), filter, qos)
	return qos
}

// Unsubscribe detaches the consumer for filter and drops the subscription
// from the session state.
func (m *subscriptionManager) Unsubscribe(filter string) {
	m.mu.Lock()
	c, ok := m.consumers[filter]
	if ok {
		delete(m.consumers, filter)
	}
	m.mu.Unlock()
	if ok {
		m.broker.po.RemoveConsumer(filter, c)
		m.notify(events.ConsumerClosed, filter)
	}
	m.state.RemoveSubscription(filter)
	log.Printf("[INFO] Client %q unsubscribed from %q", m.state.ClientID(), filter)
}

func (m *subscriptionManager) attach(filter string, qos byte) {
	c := postoffice.NewConsumer(m.state.ClientID(), m.conn, m.mailbox, qos)
	m.broker.po.Attach(filter, c)

	m.mu.Lock()
	m.consumers[filter] = c
	m.mu.Unlock()

	m.notify(events.ConsumerCreated, filter)
}

func (m *subscriptionManager) notify(t events.NotificationType, filter string) {
	m.broker.bus.Publish(events.Notification{
		Type:         t,
		ProtocolName: events.MQTTProtocolName,
		Distance:     0,
		RoutingName:  filter,
		ClientID:     m.state.ClientID(),
		FromNode:     m.broker.nodeID,
	})
}

// publishManager accepts inbound publishes from the packet loop and routes
// them through the post office. It is gated: publishes before Start or after
// Stop are refused.
type publishManager struct {
	broker  *Broker
	state   *session.State
	running atomic.Bool
}

func newPublishManager(b *Broker, st *session.State) *publishManager {
	return &publishManager{broker: b, state: st}
}

func (m *publishManager) Start() error {
	m.running.Store(true)
	return nil
}

func (m *publishManager) Stop() error {
	m.running.Store(false)
	return nil
}

// Clean discards the session's in-flight publish bookkeeping. The records
// live in the state, which the session clears; nothing else is held here.
func (m *publishManager) Clean() error {
	return nil
}

// Publish routes one inbound message.
func (m *publishManager) Publish(topic string, payload []byte, qos byte, retain bool) error {
	if !m.running.Load() {
		return fmt.Errorf("session for client %q is not accepting publishes", m.state.ClientID())
	}
	m.broker.publish(m.state.ClientID(), topic, payload, qos, retain)
	return nil
}

// retainManager replays retained messages into the session's delivery
// mailbox when it subscribes to a matching filter.
type retainManager struct {
	retainer *retainer.Retainer
	mailbox  *actor.Mailbox
}

func newRetainManager(r *retainer.Retainer, mailbox *actor.Mailbox) *retainManager {
	return &retainManager{retainer: r, mailbox: mailbox}
}

func (m *retainManager) Replay(filter string, qos byte) error {
	msgs, err := m.retainer.Match(filter)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		d := postoffice.Delivery{
			Topic:   msg.Topic,
			Payload: msg.Payload,
			QoS:     msg.QoS,
			Retain:  true,
		}
		if d.QoS > qos {
			d.QoS = qos
		}
		if !m.mailbox.TrySend(d) {
			log.Printf("[WARN] Dropping retained replay on %q: delivery mailbox full", msg.Topic)
		}
	}
	return nil
}
