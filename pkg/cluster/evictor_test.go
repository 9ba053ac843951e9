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
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/turtacn/sparrowmq/pkg/actor"
	"github.com/turtacn/sparrowmq/pkg/events"
	"github.com/turtacn/sparrowmq/pkg/postoffice"
)

type evictableConn struct {
	clientID string
	destroys atomic.Int32
}

func (c *evictableConn) ClientID() string            { return c.clientID }
func (c *evictableConn) Write(p []byte) (int, error) { return len(p), nil }
func (c *evictableConn) Destroy()                    { c.destroys.Add(1) }

func setupEvictor(t *testing.T) (*events.Bus, *postoffice.PostOffice, *Evictor) {
	t.Helper()
	bus := events.NewBus()
	po := postoffice.New()
	ev := NewEvictor("node-1", po, bus)
	ev.Start()
	t.Cleanup(ev.Stop)
	return bus, po, ev
}

func attachConsumer(po *postoffice.PostOffice, routing, clientID string) *evictableConn {
	conn := &evictableConn{clientID: clientID}
	c := postoffice.NewConsumer(clientID, conn, actor.NewMailbox(8), 0)
	po.EnsureQueue(routing).AddConsumer(c)
	return conn
}

func TestEvictor_RelayedDuplicateEvicts(t *testing.T) {
	bus, po, _ := setupEvictor(t)
	conn := attachConsumer(po, "devices/1/state", "client-a")

	bus.Publish(events.Notification{
		Type:         events.ConsumerCreated,
		ProtocolName: events.MQTTProtocolName,
		Distance:     1,
		RoutingName:  "devices/1/state",
		ClientID:     "client-a",
		FromNode:     "node-2",
	})

	assert.Equal(t, int32(1), conn.destroys.Load())
}

func TestEvictor_LocalNotificationIgnored(t *testing.T) {
	bus, po, _ := setupEvictor(t)
	conn := attachConsumer(po, "devices/1/state", "client-a")

	// Distance zero means the consumer was created here; destroying it
	// would kill the connection that just subscribed.
	bus.Publish(events.Notification{
		Type:         events.ConsumerCreated,
		ProtocolName: events.MQTTProtocolName,
		Distance:     0,
		RoutingName:  "devices/1/state",
		ClientID:     "client-a",
		FromNode:     "node-1",
	})

	assert.Equal(t, int32(0), conn.destroys.Load())
}

func TestEvictor_OtherProtocolIgnored(t *testing.T) {
	bus, po, _ := setupEvictor(t)
	conn := attachConsumer(po, "devices/1/state", "client-a")

	bus.Publish(events.Notification{
		Type:         events.ConsumerCreated,
		ProtocolName: "AMQP",
		Distance:     1,
		RoutingName:  "devices/1/state",
		ClientID:     "client-a",
		FromNode:     "node-2",
	})

	assert.Equal(t, int32(0), conn.destroys.Load())
}

func TestEvictor_ConsumerClosedIgnored(t *testing.T) {
	bus, po, _ := setupEvictor(t)
	conn := attachConsumer(po, "devices/1/state", "client-a")

	bus.Publish(events.Notification{
		Type:         events.ConsumerClosed,
		ProtocolName: events.MQTTProtocolName,
		Distance:     1,
		RoutingName:  "devices/1/state",
		ClientID:     "client-a",
		FromNode:     "node-2",
	})

	assert.Equal(t, int32(0), conn.destroys.Load())
}

func TestEvictor_DifferentClientUntouched(t *testing.T) {
	bus, po, _ := setupEvictor(t)
	connA := attachConsumer(po, "devices/1/state", "client-a")
	connB := attachConsumer(po, "devices/1/state", "client-b")

	bus.Publish(events.Notification{
		Type:         events.ConsumerCreated,
		ProtocolName: events.MQTTProtocolName,
		Distance:     1,
		RoutingName:  "devices/1/state",
		ClientID:     "client-a",
		FromNode:     "node-2",
	})

	assert.Equal(t, int32(1), connA.destroys.Load())
	assert.Equal(t, int32(0), connB.destroys.Load())
}

func TestEvictor_UnknownBindingIsNoOp(t *testing.T) {
	bus, _, _ := setupEvictor(t)

	// No binding for the routing name; the notification must be absorbed.
	bus.Publish(events.Notification{
		Type:         events.ConsumerCreated,
		ProtocolName: events.MQTTProtocolName,
		Distance:     1,
		RoutingName:  "nothing/here",
		ClientID:     "client-a",
		FromNode:     "node-2",
	})
}

func TestEvictor_StoppedEvictorIgnoresBus(t *testing.T) {
	bus, po, ev := setupEvictor(t)
	conn := attachConsumer(po, "devices/1/state", "client-a")
	ev.Stop()

	bus.Publish(events.Notification{
		Type:         events.ConsumerCreated,
		ProtocolName: events.MQTTProtocolName,
		Distance:     1,
		RoutingName:  "devices/1/state",
		ClientID:     "client-a",
		FromNode:     "node-2",
	})

	assert.Equal(t, int32(0), conn.destroys.Load())
}
