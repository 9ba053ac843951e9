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

// Package session holds the durable per-client session state, the registry
// that keys it cluster-safely, and the connection-bound Session lifecycle:
// created at handshake, started once attached to its state, stopped exactly
// once when the connection goes away.
package session

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/turtacn/sparrowmq/pkg/connection"
	"github.com/turtacn/sparrowmq/pkg/metrics"
)

// ErrStateAttached is returned when a session tries to attach a State that
// another live session already holds.
var ErrStateAttached = errors.New("session state is already attached")

// Session is the live, connection-bound object wrapping one State while a
// client is attached. It owns its collaborator managers (same lifetime, one
// each) and holds a non-owning reference to its State; the registry owns the
// canonical copy.
//
// A Session is never restarted: once stopped, a new connection gets a new
// Session.
type Session struct {
	id   string
	conn connection.Connection

	registry *Registry

	mu      sync.Mutex
	state   *State
	clean   bool
	started bool
	stopped bool

	handler       ProtocolHandler
	publish       PublishManager
	subscriptions SubscriptionManager
	retain        RetainManager
	server        DeliverySession
}

// New creates a Session for conn against registry. The collaborator managers
// are bound afterwards via BindManagers; they need the session reference to
// be constructed.
func New(conn connection.Connection, registry *Registry) *Session {
	s := &Session{
		id:       uuid.NewString(),
		conn:     conn,
		registry: registry,
	}
	log.Printf("[INFO] Session created: %s", s.id)
	return s
}

// BindManagers wires the session's collaborator managers. Called exactly
// once, before Start.
func (s *Session) BindManagers(handler ProtocolHandler, publish PublishManager, subscriptions SubscriptionManager, retain RetainManager) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
	s.publish = publish
	s.subscriptions = subscriptions
	s.retain = retain
}

// ID returns the session's generated diagnostic id. It is opaque and
// process-local; correctness-bearing lookups use the client identity.
func (s *Session) ID() string { return s.id }

// Connection returns the transport connection this session is bound to.
func (s *Session) Connection() connection.Connection { return s.conn }

// Registry returns the registry holding this session's durable state.
func (s *Session) Registry() *Registry { return s.registry }

// State returns the bound durable state, or nil before SetSessionState.
func (s *Session) State() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RetainManager returns the session's retained-message manager.
func (s *Session) RetainManager() RetainManager { return s.retain }

// SubscriptionManager returns the session's subscription manager.
func (s *Session) SubscriptionManager() SubscriptionManager { return s.subscriptions }

// PublishManager returns the session's publish manager.
func (s *Session) PublishManager() PublishManager { return s.publish }

// IsClean reports whether the session discards its durable state on stop.
func (s *Session) IsClean() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clean
}

// SetClean sets the clean-session flag from the CONNECT packet.
func (s *Session) SetClean(clean bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clean = clean
}

// Stopped reports whether Stop has run.
func (s *Session) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// SetDeliverySession binds the server-side delivery pipeline, once it
// exists.
func (s *Session) SetDeliverySession(server DeliverySession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.server = server
}

// SetSessionState binds the durable state and marks it attached. Binding
// fails with ErrStateAttached when another live session holds the state, and
// is rejected outright when this session is already bound: rebinding would
// leave the session's identity undefined.
func (s *Session) SetSessionState(st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != nil {
		return fmt.Errorf("session %s is already bound to client %q", s.id, s.state.ClientID())
	}
	if !st.Attach() {
		return fmt.Errorf("%w: client %q", ErrStateAttached, st.ClientID())
	}
	s.state = st
	return nil
}

// Start brings the session live after a successful CONNECT. The publish
// manager starts before the subscription manager so no inbound message can
// be dispatched before the delivery side is ready.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.publish.Start(); err != nil {
		return fmt.Errorf("failed to start publish manager: %w", err)
	}
	if err := s.subscriptions.Start(); err != nil {
		return fmt.Errorf("failed to start subscription manager: %w", err)
	}
	s.stopped = false
	s.started = true
	metrics.SessionsActive.Inc()
	return nil
}

// Stop tears the session down. The body runs exactly once no matter how many
// callers race into it; later calls are no-ops. An error in one step is
// collected and does not prevent the remaining steps from being attempted,
// and the session is marked stopped at the end regardless, so a failed
// teardown is never retried against half-released resources.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	defer func() {
		s.stopped = true
		// The gauge only tracks sessions that made it through Start; a
		// session torn down mid-handshake was never counted.
		if s.started {
			s.started = false
			metrics.SessionsActive.Dec()
		}
	}()

	var errs []error

	if s.handler != nil {
		s.handler.Stop()
	}
	if s.subscriptions != nil {
		if err := s.subscriptions.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("subscription manager stop: %w", err))
		}
	}
	if s.publish != nil {
		if err := s.publish.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("publish manager stop: %w", err))
		}
	}
	if s.server != nil {
		if err := s.server.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("delivery session stop: %w", err))
		}
		if err := s.server.Close(false); err != nil {
			errs = append(errs, fmt.Errorf("delivery session close: %w", err))
		}
	}
	if s.state != nil {
		s.state.Detach()
	}

	if s.clean {
		if err := s.cleanState(); err != nil {
			errs = append(errs, err)
		}
		// Removal is keyed by the connection's client identity. It must
		// match the bound state's identity; a divergence would orphan the
		// registry entry.
		clientID := s.conn.ClientID()
		if s.state != nil && clientID != s.state.ClientID() {
			log.Printf("[WARN] Session %s: connection client id %q differs from bound state %q",
				s.id, clientID, s.state.ClientID())
		}
		s.registry.Remove(clientID)
	} else if s.state != nil {
		if err := s.registry.Persist(s.state); err != nil {
			errs = append(errs, err)
		}
	}

	log.Printf("[INFO] Session stopped: %s", s.id)
	return errors.Join(errs...)
}

// cleanState discards subscriptions, in-flight publish state, and the
// state's content.
func (s *Session) cleanState() error {
	var errs []error
	if s.subscriptions != nil {
		if err := s.subscriptions.Clean(); err != nil {
			errs = append(errs, fmt.Errorf("subscription manager clean: %w", err))
		}
	}
	if s.publish != nil {
		if err := s.publish.Clean(); err != nil {
			errs = append(errs, fmt.Errorf("publish manager clean: %w", err))
		}
	}
	if s.state != nil {
		s.state.Clear()
	}
	return errors.Join(errs...)
}
