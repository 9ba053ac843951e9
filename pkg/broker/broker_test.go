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
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/sparrowmq/pkg/connection"
	"github.com/turtacn/sparrowmq/pkg/events"
	"github.com/turtacn/sparrowmq/pkg/retainer"
	"github.com/turtacn/sparrowmq/pkg/session"
	"github.com/turtacn/sparrowmq/pkg/storage"
)

// writeConnect encodes and sends a raw CONNECT packet, for tests that need a
// connection outside paho's lifecycle management.
func writeConnect(w io.Writer, pk *packets.Packet) error {
	var buf bytes.Buffer
	if err := pk.ConnectEncode(&buf); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// startTestBroker starts a broker on a random port and returns it with its
// address and registry.
func startTestBroker(ctx context.Context, t *testing.T) (*Broker, *session.Registry, string) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()

	reg := session.NewRegistry("test-node", nil)
	ret := retainer.New(storage.NewMemStore(), &retainer.Config{})
	t.Cleanup(func() { ret.Close() })
	b := New("test-node", reg, ret, events.NewBus())

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
					if !t.Failed() {
						t.Logf("failed to accept connection: %v", err)
					}
				}
				return
			}
			go b.handleConnection(ctx, conn)
		}
	}()
	t.Cleanup(func() { _ = listener.Close() })

	return b, reg, fmt.Sprintf("tcp://%s", addr)
}

func newTestClient(addr, clientID string, clean bool) mqtt.Client {
	opts := mqtt.NewClientOptions().
		AddBroker(addr).
		SetClientID(clientID).
		SetCleanSession(clean).
		SetAutoReconnect(false)
	return mqtt.NewClient(opts)
}

func connectClient(t *testing.T, c mqtt.Client) {
	t.Helper()
	token := c.Connect()
	require.True(t, token.WaitTimeout(2*time.Second), "timed out connecting")
	require.NoError(t, token.Error())
}

func TestBroker_ConnectDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b, reg, addr := startTestBroker(ctx, t)

	client := newTestClient(addr, "client-connect", false)
	connectClient(t, client)
	assert.True(t, client.IsConnected())

	st, ok := reg.Get("client-connect")
	require.True(t, ok)
	assert.True(t, st.Attached())
	assert.Equal(t, 1, b.Directory().Len())

	client.Disconnect(100)
	require.Eventually(t, func() bool {
		return b.Directory().Len() == 0
	}, 2*time.Second, 20*time.Millisecond)

	// Non-clean session survives the disconnect, detached.
	st, ok = reg.Get("client-connect")
	require.True(t, ok)
	assert.False(t, st.Attached())
}

func TestBroker_CleanSessionDiscardedOnDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b, reg, addr := startTestBroker(ctx, t)

	client := newTestClient(addr, "client-clean", true)
	connectClient(t, client)

	subToken := client.Subscribe("test/topic", 0, nil)
	require.True(t, subToken.WaitTimeout(time.Second))
	require.NoError(t, subToken.Error())

	client.Disconnect(100)
	require.Eventually(t, func() bool {
		return b.Directory().Len() == 0
	}, 2*time.Second, 20*time.Millisecond)

	_, ok := reg.Get("client-clean")
	assert.False(t, ok, "clean session must be discarded on disconnect")
}

func TestBroker_SubscribePublish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, _, addr := startTestBroker(ctx, t)

	msgCh := make(chan mqtt.Message, 1)
	opts := mqtt.NewClientOptions().AddBroker(addr).SetClientID("client-subpub").SetAutoReconnect(false)
	opts.SetDefaultPublishHandler(func(client mqtt.Client, msg mqtt.Message) {
		msgCh <- msg
	})
	client := mqtt.NewClient(opts)
	token := client.Connect()
	require.True(t, token.WaitTimeout(2*time.Second))
	require.NoError(t, token.Error())
	defer client.Disconnect(100)

	subToken := client.Subscribe("test/topic", 0, nil)
	require.True(t, subToken.WaitTimeout(time.Second), "timed out subscribing")
	require.NoError(t, subToken.Error())

	pubToken := client.Publish("test/topic", 0, false, "hello world")
	require.True(t, pubToken.WaitTimeout(time.Second), "timed out publishing")
	require.NoError(t, pubToken.Error())

	select {
	case msg := <-msgCh:
		assert.Equal(t, "test/topic", msg.Topic())
		assert.Equal(t, "hello world", string(msg.Payload()))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestBroker_WildcardSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, _, addr := startTestBroker(ctx, t)

	msgCh := make(chan mqtt.Message, 2)
	opts := mqtt.NewClientOptions().AddBroker(addr).SetClientID("client-wild").SetAutoReconnect(false)
	opts.SetDefaultPublishHandler(func(client mqtt.Client, msg mqtt.Message) {
		msgCh <- msg
	})
	client := mqtt.NewClient(opts)
	token := client.Connect()
	require.True(t, token.WaitTimeout(2*time.Second))
	require.NoError(t, token.Error())
	defer client.Disconnect(100)

	subToken := client.Subscribe("devices/+/state", 0, nil)
	require.True(t, subToken.WaitTimeout(time.Second))
	require.NoError(t, subToken.Error())

	pubToken := client.Publish("devices/42/state", 0, false, "on")
	require.True(t, pubToken.WaitTimeout(time.Second))
	require.NoError(t, pubToken.Error())

	select {
	case msg := <-msgCh:
		assert.Equal(t, "devices/42/state", msg.Topic())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for wildcard-matched message")
	}
}

func TestBroker_RetainedMessageReplay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, _, addr := startTestBroker(ctx, t)

	pub := newTestClient(addr, "client-ret-pub", true)
	connectClient(t, pub)
	pubToken := pub.Publish("status/led", 0, true, "green")
	require.True(t, pubToken.WaitTimeout(time.Second))
	require.NoError(t, pubToken.Error())
	pub.Disconnect(100)

	msgCh := make(chan mqtt.Message, 1)
	opts := mqtt.NewClientOptions().AddBroker(addr).SetClientID("client-ret-sub").SetAutoReconnect(false)
	opts.SetDefaultPublishHandler(func(client mqtt.Client, msg mqtt.Message) {
		msgCh <- msg
	})
	sub := mqtt.NewClient(opts)
	token := sub.Connect()
	require.True(t, token.WaitTimeout(2*time.Second))
	require.NoError(t, token.Error())
	defer sub.Disconnect(100)

	subToken := sub.Subscribe("status/#", 0, nil)
	require.True(t, subToken.WaitTimeout(time.Second))
	require.NoError(t, subToken.Error())

	select {
	case msg := <-msgCh:
		assert.Equal(t, "status/led", msg.Topic())
		assert.Equal(t, "green", string(msg.Payload()))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for retained replay")
	}
}

func TestBroker_DurableSessionResumesSubscriptions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b, reg, addr := startTestBroker(ctx, t)

	first := newTestClient(addr, "client-durable", false)
	connectClient(t, first)
	subToken := first.Subscribe("jobs/done", 1, nil)
	require.True(t, subToken.WaitTimeout(time.Second))
	require.NoError(t, subToken.Error())
	first.Disconnect(100)
	require.Eventually(t, func() bool {
		return b.Directory().Len() == 0
	}, 2*time.Second, 20*time.Millisecond)

	// The subscription outlives the connection.
	st, ok := reg.Get("client-durable")
	require.True(t, ok)
	assert.Contains(t, st.Subscriptions(), "jobs/done")

	// Reconnect without resubscribing; delivery resumes from the durable
	// subscription set.
	msgCh := make(chan mqtt.Message, 1)
	opts := mqtt.NewClientOptions().
		AddBroker(addr).
		SetClientID("client-durable").
		SetCleanSession(false).
		SetAutoReconnect(false)
	opts.SetDefaultPublishHandler(func(client mqtt.Client, msg mqtt.Message) {
		msgCh <- msg
	})
	second := mqtt.NewClient(opts)
	token := second.Connect()
	require.True(t, token.WaitTimeout(2*time.Second))
	require.NoError(t, token.Error())
	defer second.Disconnect(100)

	pub := newTestClient(addr, "client-durable-pub", true)
	connectClient(t, pub)
	defer pub.Disconnect(100)
	pubToken := pub.Publish("jobs/done", 0, false, "42")
	require.True(t, pubToken.WaitTimeout(time.Second))
	require.NoError(t, pubToken.Error())

	select {
	case msg := <-msgCh:
		assert.Equal(t, "jobs/done", msg.Topic())
		assert.Equal(t, "42", string(msg.Payload()))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery on resumed subscription")
	}
}

func TestBroker_DuplicateClientTakeover(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b, _, addr := startTestBroker(ctx, t)

	lost := make(chan struct{}, 1)
	opts := mqtt.NewClientOptions().
		AddBroker(addr).
		SetClientID("client-dup").
		SetAutoReconnect(false)
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		lost <- struct{}{}
	})
	first := mqtt.NewClient(opts)
	token := first.Connect()
	require.True(t, token.WaitTimeout(2*time.Second))
	require.NoError(t, token.Error())

	second := newTestClient(addr, "client-dup", false)
	connectClient(t, second)
	defer second.Disconnect(100)

	select {
	case <-lost:
	case <-time.After(2 * time.Second):
		t.Fatal("first connection was not displaced")
	}
	assert.Equal(t, 1, b.Directory().Len(), "exactly one connection holds the identity")
}

func TestBroker_RejectsNonMQTTBytes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b, _, addr := startTestBroker(ctx, t)

	conn, err := net.Dial("tcp", addr[len("tcp://"):])
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET / HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)

	// The broker closes the connection without a session ever existing.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.Error(t, err)
	assert.Equal(t, 0, b.Directory().Len())
}

func TestBroker_WillPublishedOnUngracefulDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, _, addr := startTestBroker(ctx, t)

	msgCh := make(chan mqtt.Message, 1)
	opts := mqtt.NewClientOptions().AddBroker(addr).SetClientID("client-will-sub").SetAutoReconnect(false)
	opts.SetDefaultPublishHandler(func(client mqtt.Client, msg mqtt.Message) {
		msgCh <- msg
	})
	sub := mqtt.NewClient(opts)
	token := sub.Connect()
	require.True(t, token.WaitTimeout(2*time.Second))
	require.NoError(t, token.Error())
	defer sub.Disconnect(100)

	subToken := sub.Subscribe("status/client-will", 0, nil)
	require.True(t, subToken.WaitTimeout(time.Second))
	require.NoError(t, subToken.Error())

	// Raw CONNECT with a will, then a hard socket close: no DISCONNECT, so
	// the broker must fire the will.
	raw, err := net.Dial("tcp", addr[len("tcp://"):])
	require.NoError(t, err)
	pk := &packets.Packet{
		FixedHeader:     packets.FixedHeader{Type: packets.Connect},
		ProtocolVersion: 4,
		Connect: packets.ConnectParams{
			ProtocolName:     []byte("MQTT"),
			ClientIdentifier: "client-will",
			Clean:            true,
			WillFlag:         true,
			WillTopic:        "status/client-will",
			WillPayload:      []byte("gone"),
		},
	}
	require.NoError(t, writeConnect(raw, pk))

	// Wait for the CONNACK so the session exists before the hard close.
	connack := make([]byte, 4)
	raw.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = raw.Read(connack)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	select {
	case msg := <-msgCh:
		assert.Equal(t, "status/client-will", msg.Topic())
		assert.Equal(t, "gone", string(msg.Payload()))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for will message")
	}
}

func TestBroker_RejectedAttachLeavesNoDirectoryEntry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := session.NewRegistry("test-node", nil)
	ret := retainer.New(storage.NewMemStore(), &retainer.Config{})
	t.Cleanup(func() { ret.Close() })
	b := New("test-node", reg, ret, events.NewBus())

	// Hold the state attached, as a live session elsewhere would.
	st := reg.LookupOrCreate("client-held")
	require.True(t, st.Attach())

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	go io.Copy(io.Discard, client) // drain the rejection CONNACK

	conn := connection.NewTCPConn(server)
	pk := &packets.Packet{
		FixedHeader: packets.FixedHeader{Type: packets.Connect},
		Connect:     packets.ConnectParams{ClientIdentifier: "client-held"},
	}
	_, _, ok := b.connect(ctx, conn, pk)
	require.False(t, ok)

	// The failed handshake must not leave the dead connection as the
	// identity's current occupant.
	assert.Equal(t, 0, b.Directory().Len())
	assert.False(t, b.Directory().IsCurrent("client-held", conn))
}

func TestBroker_QoS1PublishAcked(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, _, addr := startTestBroker(ctx, t)

	msgCh := make(chan mqtt.Message, 1)
	opts := mqtt.NewClientOptions().AddBroker(addr).SetClientID("client-qos1").SetAutoReconnect(false)
	opts.SetDefaultPublishHandler(func(client mqtt.Client, msg mqtt.Message) {
		msgCh <- msg
	})
	client := mqtt.NewClient(opts)
	token := client.Connect()
	require.True(t, token.WaitTimeout(2*time.Second))
	require.NoError(t, token.Error())
	defer client.Disconnect(100)

	subToken := client.Subscribe("qos1/topic", 1, nil)
	require.True(t, subToken.WaitTimeout(time.Second))
	require.NoError(t, subToken.Error())

	// The token only completes once the broker PUBACKs.
	pubToken := client.Publish("qos1/topic", 1, false, "payload")
	require.True(t, pubToken.WaitTimeout(2*time.Second), "timed out waiting for PUBACK")
	require.NoError(t, pubToken.Error())

	select {
	case msg := <-msgCh:
		assert.Equal(t, "qos1/topic", msg.Topic())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for QoS 1 delivery")
	}
}
