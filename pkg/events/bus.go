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

// Package events carries broker-internal notifications between components.
// Producers publish typed notifications on a Bus; consumers register handlers
// against the stream and react to the variants they care about. The cluster
// duplicate evictor is the main consumer.
package events

import "github.com/asynkron/protoactor-go/eventstream"

// NotificationType tags the kind of broker event a Notification describes.
type NotificationType int

const (
	// ConsumerCreated is emitted whenever a consumer is attached to a
	// queue, locally (distance 0) or as relayed from another node in the
	// cluster (distance > 0).
	ConsumerCreated NotificationType = iota
	// ConsumerClosed is emitted when a consumer detaches from a queue.
	ConsumerClosed
)

// MQTTProtocolName identifies notifications originating from the MQTT
// protocol front-end.
const MQTTProtocolName = "MQTT"

// Notification is a broker-wide event. Distance counts cluster hops from the
// originating node: zero means the event happened on this node.
type Notification struct {
	Type         NotificationType
	ProtocolName string
	Distance     int
	RoutingName  string
	ClientID     string
	FromNode     string
}

// Bus is a typed facade over a protoactor event stream. A Bus is owned by a
// broker node; tests construct isolated instances.
type Bus struct {
	stream *eventstream.EventStream
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{stream: eventstream.NewEventStream()}
}

// Publish delivers n to every current subscriber. Handlers run synchronously
// on the publisher's goroutine, in subscription order.
func (b *Bus) Publish(n Notification) {
	b.stream.Publish(n)
}

// Subscribe registers fn for all notifications. The returned subscription is
// passed to Unsubscribe to deregister.
func (b *Bus) Subscribe(fn func(Notification)) *eventstream.Subscription {
	return b.stream.Subscribe(func(evt interface{}) {
		if n, ok := evt.(Notification); ok {
			fn(n)
		}
	})
}

// Unsubscribe removes a subscription obtained from Subscribe.
func (b *Bus) Unsubscribe(sub *eventstream.Subscription) {
	b.stream.Unsubscribe(sub)
}
