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

package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus()

	var got []Notification
	sub := bus.Subscribe(func(n Notification) {
		got = append(got, n)
	})
	defer bus.Unsubscribe(sub)

	n := Notification{
		Type:         ConsumerCreated,
		ProtocolName: MQTTProtocolName,
		Distance:     1,
		RoutingName:  "devices/alpha",
		ClientID:     "client-a",
		FromNode:     "node-2",
	}
	bus.Publish(n)

	require.Len(t, got, 1)
	assert.Equal(t, n, got[0])
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	calls := 0
	sub := bus.Subscribe(func(Notification) { calls++ })

	bus.Publish(Notification{Type: ConsumerCreated})
	bus.Unsubscribe(sub)
	bus.Publish(Notification{Type: ConsumerCreated})

	assert.Equal(t, 1, calls)
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus()

	a, b := 0, 0
	subA := bus.Subscribe(func(Notification) { a++ })
	subB := bus.Subscribe(func(Notification) { b++ })
	defer bus.Unsubscribe(subA)
	defer bus.Unsubscribe(subB)

	bus.Publish(Notification{Type: ConsumerClosed})

	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}
