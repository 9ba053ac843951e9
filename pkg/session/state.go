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

package session

import (
	"encoding/json"
	"sync"
	"sync/atomic"
)

// WillMessage is the last-will configuration a client supplied at CONNECT.
// The core only stores and clears it; publishing is the broker's business.
type WillMessage struct {
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
	QoS     byte   `json:"qos"`
	Retain  bool   `json:"retain"`
}

// InflightPublish is an outbound QoS>0 publish awaiting acknowledgment.
type InflightPublish struct {
	PacketID uint16 `json:"packet_id"`
	Topic    string `json:"topic"`
	Payload  []byte `json:"payload"`
	QoS      byte   `json:"qos"`
}

// State is the durable, connection-independent record for one client
// identity. It outlives any single connection: a non-clean session keeps its
// State in the registry across reconnects, and exactly one live Session may
// hold it attached at a time. The attached flag transition is a compare-and-
// set, which makes it the synchronization point between racing attach
// attempts on the same identity.
type State struct {
	clientID string
	attached atomic.Bool

	mu            sync.RWMutex
	subscriptions map[string]byte
	will          *WillMessage
	inflight      map[uint16]InflightPublish
	nextPacketID  uint16
}

// NewState creates an empty, detached State for clientID.
func NewState(clientID string) *State {
	return &State{
		clientID:      clientID,
		subscriptions: make(map[string]byte),
		inflight:      make(map[uint16]InflightPublish),
	}
}

// ClientID returns the identity this state belongs to.
func (st *State) ClientID() string { return st.clientID }

// Attach marks the state attached. It reports false if another session
// already holds it; the caller must not proceed with the binding in that
// case.
func (st *State) Attach() bool {
	return st.attached.CompareAndSwap(false, true)
}

// Detach marks the state as no longer held by a live session.
func (st *State) Detach() {
	st.attached.Store(false)
}

// Attached reports whether a live session currently holds this state.
func (st *State) Attached() bool {
	return st.attached.Load()
}

// AddSubscription records a subscription with its granted QoS.
func (st *State) AddSubscription(topic string, qos byte) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.subscriptions[topic] = qos
}

// RemoveSubscription drops a subscription.
func (st *State) RemoveSubscription(topic string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.subscriptions, topic)
}

// Subscriptions returns an independent copy of the subscription set.
func (st *State) Subscriptions() map[string]byte {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make(map[string]byte, len(st.subscriptions))
	for topic, qos := range st.subscriptions {
		out[topic] = qos
	}
	return out
}

// SetWill stores the client's last-will message.
func (st *State) SetWill(w *WillMessage) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.will = w
}

// Will returns the stored last-will message, or nil.
func (st *State) Will() *WillMessage {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.will
}

// ClearWill discards the last-will message. Called on graceful DISCONNECT,
// which must not trigger the will.
func (st *State) ClearWill() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.will = nil
}

// NextPacketID returns the next outbound packet id, skipping zero.
func (st *State) NextPacketID() uint16 {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.nextPacketID++
	if st.nextPacketID == 0 {
		st.nextPacketID = 1
	}
	return st.nextPacketID
}

// TrackInflight records an unacknowledged outbound publish.
func (st *State) TrackInflight(p InflightPublish) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.inflight[p.PacketID] = p
}

// AckInflight drops the inflight record for packetID, reporting whether one
// existed.
func (st *State) AckInflight(packetID uint16) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.inflight[packetID]
	delete(st.inflight, packetID)
	return ok
}

// Clear wipes the state's content: subscriptions, will, and inflight
// records. The identity and attachment flag are untouched.
func (st *State) Clear() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.subscriptions = make(map[string]byte)
	st.will = nil
	st.inflight = make(map[uint16]InflightPublish)
	st.nextPacketID = 0
}

// stateSnapshot is the JSON shape persisted for durable sessions. Inflight
// records are deliberately not persisted; redelivery after a broker restart
// starts from the subscription set.
type stateSnapshot struct {
	ClientID      string          `json:"client_id"`
	Subscriptions map[string]byte `json:"subscriptions"`
	Will          *WillMessage    `json:"will,omitempty"`
}

func (st *State) snapshot() ([]byte, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	snap := stateSnapshot{
		ClientID:      st.clientID,
		Subscriptions: st.subscriptions,
		Will:          st.will,
	}
	return json.Marshal(snap)
}

func restoreState(data []byte) (*State, error) {
	var snap stateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	st := NewState(snap.ClientID)
	for topic, qos := range snap.Subscriptions {
		st.subscriptions[topic] = qos
	}
	st.will = snap.Will
	return st, nil
}
