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
	"context"
	"fmt"
	"log"

	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/turtacn/sparrowmq/pkg/actor"
	"github.com/turtacn/sparrowmq/pkg/connection"
	"github.com/turtacn/sparrowmq/pkg/postoffice"
	"github.com/turtacn/sparrowmq/pkg/session"
	"github.com/turtacn/sparrowmq/pkg/supervisor"
)

// deliveryActor drains the session's mailbox and writes each delivery to the
// client as a PUBLISH packet. It runs supervised; a write error terminates
// the actor and the supervisor applies the restart strategy.
type deliveryActor struct {
	clientID string
	state    *session.State
	conn     connection.Connection
}

func (a *deliveryActor) Start(ctx context.Context, mb *actor.Mailbox) error {
	log.Printf("[INFO] Delivery actor started for client %q", a.clientID)
	for {
		msg, err := mb.Receive(ctx)
		if err != nil {
			log.Printf("[INFO] Delivery actor for client %q shutting down: %v", a.clientID, err)
			return nil
		}
		d, ok := msg.(postoffice.Delivery)
		if !ok {
			log.Printf("[WARN] Delivery actor for client %q received unknown message type: %T", a.clientID, msg)
			continue
		}
		if err := a.deliver(d); err != nil {
			return err
		}
	}
}

func (a *deliveryActor) deliver(d postoffice.Delivery) error {
	pk := &packets.Packet{
		FixedHeader: packets.FixedHeader{
			Type:   packets.Publish,
			Qos:    d.QoS,
			Retain: d.Retain,
		},
		TopicName: d.Topic,
		Payload:   d.Payload,
	}
	if d.QoS > 0 {
		pk.PacketID = a.state.NextPacketID()
		a.state.TrackInflight(session.InflightPublish{
			PacketID: pk.PacketID,
			Topic:    d.Topic,
			Payload:  d.Payload,
			QoS:      d.QoS,
		})
	}
	if err := writePacket(a.conn, pk); err != nil {
		return fmt.Errorf("failed to write publish to client %q: %w", a.clientID, err)
	}
	return nil
}

// deliverySession is the session-facing handle on a running delivery actor.
type deliverySession struct {
	id     string
	cancel context.CancelFunc
}

// newDeliverySession starts a supervised delivery actor for the session and
// returns its handle. The actor dies with ctx, with the session's Stop, or
// with the first failed write; the transient strategy restarts it only in
// the last case.
func newDeliverySession(ctx context.Context, sup supervisor.Supervisor, clientID string, st *session.State, conn connection.Connection, mailbox *actor.Mailbox) *deliverySession {
	childCtx, cancel := context.WithCancel(ctx)
	sup.StartChild(childCtx, supervisor.Spec{
		ID:      fmt.Sprintf("delivery-%s", clientID),
		Actor:   &deliveryActor{clientID: clientID, state: st, conn: conn},
		Restart: supervisor.RestartTransient,
		Mailbox: mailbox,
	})
	return &deliverySession{id: clientID, cancel: cancel}
}

// Stop terminates the delivery actor.
func (d *deliverySession) Stop() error {
	d.cancel()
	return nil
}

// Close releases the pipeline. Nothing is buffered outside the mailbox, so
// there is only the terminal log line; failed marks an abnormal close.
func (d *deliverySession) Close(failed bool) error {
	if failed {
		log.Printf("[WARN] Delivery session for client %q closed abnormally", d.id)
	}
	return nil
}
