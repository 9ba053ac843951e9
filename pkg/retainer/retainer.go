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

// Package retainer stores MQTT retained messages. One message is kept per
// topic; a retained publish with an empty payload clears it. Messages live in
// the broker's key-value store, so a persistent backend carries them across
// restarts.
package retainer

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/turtacn/sparrowmq/pkg/postoffice"
	"github.com/turtacn/sparrowmq/pkg/storage"
)

// keyPrefix namespaces retained messages inside the shared store.
const keyPrefix = "retained/"

// Message is one retained message.
type Message struct {
	Topic      string     `json:"topic"`
	Payload    []byte     `json:"payload"`
	QoS        byte       `json:"qos"`
	Timestamp  time.Time  `json:"timestamp"`
	ExpiryTime *time.Time `json:"expiry_time,omitempty"`
	ClientID   string     `json:"client_id,omitempty"`
}

// Config defines retainer limits and expiry behavior.
type Config struct {
	// MessageExpiryInterval is the retention time; zero means no expiry.
	MessageExpiryInterval time.Duration `yaml:"message_expiry_interval" json:"message_expiry_interval"`

	// MaxPayloadSize caps the size of a retained payload; zero means no cap.
	MaxPayloadSize int64 `yaml:"max_payload_size" json:"max_payload_size"`

	// CleanupInterval is how often expired messages are purged.
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

// DefaultConfig returns the default retainer configuration.
func DefaultConfig() *Config {
	return &Config{
		MessageExpiryInterval: 0,
		MaxPayloadSize:        1024 * 1024,
		CleanupInterval:       5 * time.Minute,
	}
}

// Retainer manages the retained message set.
type Retainer struct {
	store  storage.Store
	config *Config
	mu     sync.Mutex

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
}

// New creates a retainer over store. A nil config uses the defaults.
func New(store storage.Store, config *Config) *Retainer {
	if config == nil {
		config = DefaultConfig()
	}
	r := &Retainer{
		store:       store,
		config:      config,
		stopCleanup: make(chan struct{}),
	}
	if config.CleanupInterval > 0 {
		r.startCleanupRoutine()
	}
	return r
}

// Retain stores the retained message for topic, replacing any previous one.
// An empty payload clears the topic's retained message instead.
func (r *Retainer) Retain(topic string, payload []byte, qos byte, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(payload) == 0 {
		log.Printf("[INFO] Clearing retained message for topic: %s", topic)
		return r.store.Delete(keyPrefix + topic)
	}

	if r.config.MaxPayloadSize > 0 && int64(len(payload)) > r.config.MaxPayloadSize {
		return fmt.Errorf("retained payload size %d exceeds maximum %d", len(payload), r.config.MaxPayloadSize)
	}

	msg := Message{
		Topic:     topic,
		Payload:   payload,
		QoS:       qos,
		Timestamp: time.Now(),
		ClientID:  clientID,
	}
	if r.config.MessageExpiryInterval > 0 {
		expiry := msg.Timestamp.Add(r.config.MessageExpiryInterval)
		msg.ExpiryTime = &expiry
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode retained message for topic %s: %w", topic, err)
	}
	return r.store.Set(keyPrefix+topic, data)
}

// Match returns the unexpired retained messages whose topic matches filter,
// under MQTT wildcard rules.
func (r *Retainer) Match(filter string) ([]Message, error) {
	keys, err := r.store.Keys(keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list retained messages: %w", err)
	}

	now := time.Now()
	var out []Message
	for _, key := range keys {
		topic := strings.TrimPrefix(key, keyPrefix)
		if !postoffice.MatchFilter(topic, filter) {
			continue
		}
		msg, ok := r.get(key)
		if !ok {
			continue
		}
		if msg.ExpiryTime != nil && now.After(*msg.ExpiryTime) {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// Clear removes the retained message for topic, if any.
func (r *Retainer) Clear(topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Delete(keyPrefix + topic)
}

// Close shuts down the cleanup routine.
func (r *Retainer) Close() error {
	if r.cleanupTicker != nil {
		r.cleanupTicker.Stop()
		close(r.stopCleanup)
	}
	return nil
}

func (r *Retainer) get(key string) (Message, bool) {
	v, err := r.store.Get(key)
	if err != nil {
		return Message{}, false
	}
	data, ok := v.([]byte)
	if !ok {
		return Message{}, false
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("[WARN] Discarding corrupt retained message under %s: %v", key, err)
		return Message{}, false
	}
	return msg, true
}

func (r *Retainer) startCleanupRoutine() {
	r.cleanupTicker = time.NewTicker(r.config.CleanupInterval)
	go func() {
		for {
			select {
			case <-r.cleanupTicker.C:
				r.cleanupExpired()
			case <-r.stopCleanup:
				return
			}
		}
	}()
}

func (r *Retainer) cleanupExpired() {
	keys, err := r.store.Keys(keyPrefix)
	if err != nil {
		log.Printf("[ERROR] Failed to list retained messages for cleanup: %v", err)
		return
	}

	now := time.Now()
	deleted := 0
	for _, key := range keys {
		msg, ok := r.get(key)
		if !ok {
			continue
		}
		if msg.ExpiryTime != nil && now.After(*msg.ExpiryTime) {
			if err := r.store.Delete(key); err != nil {
				log.Printf("[ERROR] Failed to delete expired retained message for topic %s: %v", msg.Topic, err)
				continue
			}
			deleted++
		}
	}
	if deleted > 0 {
		log.Printf("[INFO] Retainer cleanup: deleted %d expired messages", deleted)
	}
}
