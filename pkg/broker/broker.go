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

// package broker contains the MQTT protocol front-end: the accept loop with
// protocol sniffing, the CONNECT handshake binding a connection to its
// session, and the packet loop driving the session's managers.
package broker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net"

	"github.com/google/uuid"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/turtacn/sparrowmq/pkg/actor"
	"github.com/turtacn/sparrowmq/pkg/connection"
	"github.com/turtacn/sparrowmq/pkg/events"
	"github.com/turtacn/sparrowmq/pkg/metrics"
	"github.com/turtacn/sparrowmq/pkg/postoffice"
	"github.com/turtacn/sparrowmq/pkg/retainer"
	"github.com/turtacn/sparrowmq/pkg/session"
	"github.com/turtacn/sparrowmq/pkg/sniffer"
	"github.com/turtacn/sparrowmq/pkg/supervisor"
)

// connackIdentifierRejected is the MQTT 3.1.1 CONNACK return code sent when a
// session state cannot be attached.
const connackIdentifierRejected = 0x02

// mailboxSize is the per-session delivery mailbox capacity. Routing drops
// deliveries once a consumer's mailbox is full.
const mailboxSize = 100

// Broker owns one node's protocol front-end: the connection directory, the
// post-office bindings, and the supervisor running delivery actors.
type Broker struct {
	nodeID    string
	sup       supervisor.Supervisor
	registry  *session.Registry
	retainer  *retainer.Retainer
	bus       *events.Bus
	directory *connection.Directory
	po        *postoffice.PostOffice
}

// New creates a Broker for the given node. The registry, retainer, and bus
// are shared with the rest of the node (cluster manager, evictor).
func New(nodeID string, registry *session.Registry, ret *retainer.Retainer, bus *events.Bus) *Broker {
	return &Broker{
		nodeID:    nodeID,
		sup:       supervisor.NewOneForOneSupervisor(),
		registry:  registry,
		retainer:  ret,
		bus:       bus,
		directory: connection.NewDirectory(),
		po:        postoffice.New(),
	}
}

// PostOffice exposes the broker's binding registry, for the duplicate
// evictor.
func (b *Broker) PostOffice() *postoffice.PostOffice { return b.po }

// Directory exposes the broker's connection directory.
func (b *Broker) Directory() *connection.Directory { return b.directory }

// StartServer listens for connections on addr until ctx is canceled.
func (b *Broker) StartServer(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	defer listener.Close()
	log.Printf("[INFO] MQTT broker listening on %s", addr)

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
					log.Printf("[ERROR] Failed to accept connection: %v", err)
				}
				continue
			}
			go b.handleConnection(ctx, conn)
		}
	}()

	<-ctx.Done()
	log.Println("[INFO] Listener is shutting down.")
	return nil
}

// handleConnection manages one client connection from sniff to teardown.
func (b *Broker) handleConnection(ctx context.Context, netConn net.Conn) {
	metrics.ConnectionsTotal.Inc()
	conn := connection.NewTCPConn(netConn)
	defer conn.Destroy()

	reader := bufio.NewReader(netConn)

	// Classify the connection before handing any byte to the MQTT codec.
	prefix, err := reader.Peek(sniffer.PrefixLen)
	if err != nil || !sniffer.IsMQTT(prefix) {
		metrics.ConnectionsRejectedTotal.Inc()
		log.Printf("[WARN] Rejecting connection from %s: byte prefix is not MQTT", netConn.RemoteAddr())
		return
	}

	pk, err := readPacket(reader)
	if err != nil {
		log.Printf("[ERROR] Failed to read first packet from %s: %v", netConn.RemoteAddr(), err)
		return
	}
	if pk.FixedHeader.Type != packets.Connect {
		log.Printf("[WARN] First packet from %s is not CONNECT. Closing.", netConn.RemoteAddr())
		return
	}

	sess, handler, ok := b.connect(ctx, conn, pk)
	if !ok {
		return
	}

	graceful := b.packetLoop(reader, conn, sess, handler)

	st := sess.State()
	if graceful {
		// A clean DISCONNECT withdraws the will.
		st.ClearWill()
	} else if w := st.Will(); w != nil {
		log.Printf("[INFO] Publishing will for client %q to topic %q", conn.ClientID(), w.Topic)
		b.publish(conn.ClientID(), w.Topic, w.Payload, w.QoS, w.Retain)
	}
	// The deferred Destroy runs the teardown hook, stopping the session.
}

// connect runs the CONNECT handshake: identity assignment, displacement of a
// previous connection holding the identity, state lookup and attach, manager
// wiring, and the CONNACK.
func (b *Broker) connect(ctx context.Context, conn *connection.TCPConn, pk *packets.Packet) (*session.Session, *protocolHandler, bool) {
	clientID := pk.Connect.ClientIdentifier
	assigned := false
	if clientID == "" {
		clientID = uuid.NewString()
		assigned = true
		log.Printf("[INFO] Assigned client id %q to connection from %s", clientID, conn.RemoteAddr())
	}
	// A generated identity cannot resume anything.
	clean := pk.Connect.Clean || assigned
	conn.SetClientID(clientID)

	// Last connection wins: a previous connection holding this identity is
	// destroyed synchronously, which stops its session and detaches the
	// state before we try to attach it.
	if displaced := b.directory.Add(clientID, conn); displaced != nil {
		log.Printf("[WARN] Client %q reconnected, destroying previous connection", clientID)
		metrics.DuplicateEvictionsTotal.WithLabelValues(b.nodeID).Inc()
		displaced.Destroy()
	}

	sessionPresent := false
	if clean {
		b.registry.Remove(clientID)
	} else {
		_, sessionPresent = b.registry.Get(clientID)
	}
	st := b.registry.LookupOrCreate(clientID)

	sess := session.New(conn, b.registry)
	sess.SetClean(clean)
	if err := sess.SetSessionState(st); err != nil {
		log.Printf("[ERROR] Cannot attach session state for client %q: %v", clientID, err)
		// The connection is already in the directory but its teardown hook
		// is not registered yet; drop the entry here or it would linger as
		// the identity's current occupant after the deferred Destroy.
		if b.directory.IsCurrent(clientID, conn) {
			b.directory.Remove(clientID)
		}
		writePacket(conn, &packets.Packet{
			FixedHeader: packets.FixedHeader{Type: packets.Connack},
			ReasonCode:  connackIdentifierRejected,
		})
		return nil, nil, false
	}

	if pk.Connect.WillFlag {
		st.SetWill(&session.WillMessage{
			Topic:   pk.Connect.WillTopic,
			Payload: pk.Connect.WillPayload,
			QoS:     pk.Connect.WillQos,
			Retain:  pk.Connect.WillRetain,
		})
	}

	mailbox := actor.NewMailbox(mailboxSize)
	handler := &protocolHandler{}
	subs := newSubscriptionManager(b, st, conn, mailbox)
	publish := newPublishManager(b, st)
	retain := newRetainManager(b.retainer, mailbox)
	sess.BindManagers(handler, publish, subs, retain)
	sess.SetDeliverySession(newDeliverySession(ctx, b.sup, clientID, st, conn, mailbox))

	conn.OnDestroy(func() {
		if err := sess.Stop(); err != nil {
			log.Printf("[ERROR] Error stopping session for client %q: %v", clientID, err)
		}
		if b.directory.IsCurrent(clientID, conn) {
			b.directory.Remove(clientID)
		}
	})

	if err := sess.Start(); err != nil {
		log.Printf("[ERROR] Failed to start session for client %q: %v", clientID, err)
		return nil, nil, false
	}

	resp := &packets.Packet{
		FixedHeader:    packets.FixedHeader{Type: packets.Connack},
		ReasonCode:     packets.CodeSuccess.Code,
		SessionPresent: sessionPresent,
	}
	if err := writePacket(conn, resp); err != nil {
		log.Printf("[ERROR] Failed to write CONNACK to client %q: %v", clientID, err)
		return nil, nil, false
	}
	log.Printf("[INFO] Client %q connected (clean=%v, session_present=%v)", clientID, clean, sessionPresent)
	return sess, handler, true
}

// packetLoop dispatches packets until DISCONNECT (graceful), a read error, or
// the protocol handler being stopped. It reports whether the client left
// gracefully.
func (b *Broker) packetLoop(reader *bufio.Reader, conn *connection.TCPConn, sess *session.Session, handler *protocolHandler) bool {
	clientID := conn.ClientID()
	subs := sess.SubscriptionManager().(*subscriptionManager)
	publish := sess.PublishManager().(*publishManager)

	for {
		pk, err := readPacket(reader)
		if err != nil {
			if err != io.EOF && !handler.Stopped() {
				log.Printf("[WARN] Error reading packet from client %q: %v", clientID, err)
			}
			return false
		}
		if handler.Stopped() {
			return false
		}

		switch pk.FixedHeader.Type {
		case packets.Subscribe:
			granted := make([]byte, 0, len(pk.Filters))
			for _, sub := range pk.Filters {
				qos := subs.Subscribe(sub.Filter, sub.Qos)
				granted = append(granted, qos)
				if err := sess.RetainManager().Replay(sub.Filter, qos); err != nil {
					log.Printf("[WARN] Failed to replay retained messages for client %q: %v", clientID, err)
				}
			}
			err = writePacket(conn, &packets.Packet{
				FixedHeader: packets.FixedHeader{Type: packets.Suback},
				PacketID:    pk.PacketID,
				ReasonCodes: granted,
			})

		case packets.Unsubscribe:
			for _, sub := range pk.Filters {
				subs.Unsubscribe(sub.Filter)
			}
			err = writePacket(conn, &packets.Packet{
				FixedHeader: packets.FixedHeader{Type: packets.Unsuback},
				PacketID:    pk.PacketID,
			})

		case packets.Publish:
			if perr := publish.Publish(pk.TopicName, pk.Payload, pk.FixedHeader.Qos, pk.FixedHeader.Retain); perr != nil {
				log.Printf("[WARN] Dropping publish from client %q: %v", clientID, perr)
			}
			if pk.FixedHeader.Qos > 0 {
				err = writePacket(conn, &packets.Packet{
					FixedHeader: packets.FixedHeader{Type: packets.Puback},
					PacketID:    pk.PacketID,
				})
			}

		case packets.Puback:
			if !sess.State().AckInflight(pk.PacketID) {
				log.Printf("[WARN] Client %q acked unknown packet id %d", clientID, pk.PacketID)
			}

		case packets.Pingreq:
			err = writePacket(conn, &packets.Packet{FixedHeader: packets.FixedHeader{Type: packets.Pingresp}})

		case packets.Disconnect:
			log.Printf("[INFO] Client %q sent DISCONNECT.", clientID)
			return true

		default:
			log.Printf("[WARN] Client %q sent unhandled packet type: %v", clientID, pk.FixedHeader.Type)
		}

		if err != nil {
			log.Printf("[ERROR] Error handling packet for client %q: %v", clientID, err)
			return false
		}
	}
}

// publish routes one message locally and hands it to the retainer when
// flagged. Used for both client publishes and will messages.
func (b *Broker) publish(clientID, topic string, payload []byte, qos byte, retain bool) {
	if retain {
		if err := b.retainer.Retain(topic, payload, qos, clientID); err != nil {
			log.Printf("[WARN] Failed to retain message on topic %q: %v", topic, err)
		}
	}
	b.po.Route(topic, postoffice.Delivery{
		Topic:   topic,
		Payload: payload,
		QoS:     qos,
	})
}
