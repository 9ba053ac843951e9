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

// Package connection holds the transport-facing view of a client connection
// and the process-wide directory that enforces the single active connection
// per client identity.
package connection

import (
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
)

// Connection is the narrow view of a remoting connection the session core
// needs: its client identity, a write primitive, and a one-way forced
// teardown.
type Connection interface {
	io.Writer

	// ClientID returns the client identity presented at handshake time.
	// Empty until the CONNECT has been processed.
	ClientID() string

	// Destroy forcibly tears the connection down. It must be safe to call
	// any number of times and from any goroutine, including on a
	// connection that is already mid-teardown.
	Destroy()
}

// TCPConn wraps a net.Conn as a Connection. The client identity is assigned
// once the CONNECT packet has been decoded; the teardown hook lets the owner
// stop the attached session synchronously when the connection is destroyed.
type TCPConn struct {
	conn      net.Conn
	clientID  atomic.Value // string
	destroyed atomic.Bool

	mu       sync.Mutex
	teardown func()
}

// NewTCPConn wraps conn.
func NewTCPConn(conn net.Conn) *TCPConn {
	return &TCPConn{conn: conn}
}

// SetClientID records the identity presented by the CONNECT packet.
func (c *TCPConn) SetClientID(clientID string) {
	c.clientID.Store(clientID)
}

// ClientID returns the recorded client identity, or "" before the handshake.
func (c *TCPConn) ClientID() string {
	if v := c.clientID.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// OnDestroy registers the teardown hook invoked by the first Destroy call.
func (c *TCPConn) OnDestroy(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardown = fn
}

// Write sends raw bytes to the client.
func (c *TCPConn) Write(p []byte) (int, error) {
	return c.conn.Write(p)
}

// Destroy runs the teardown hook and closes the socket. Only the first call
// does anything; a destroy racing a graceful close is a no-op.
func (c *TCPConn) Destroy() {
	if !c.destroyed.CompareAndSwap(false, true) {
		return
	}
	c.mu.Lock()
	fn := c.teardown
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
	if err := c.conn.Close(); err != nil {
		log.Printf("[WARN] Error closing connection for client %q: %v", c.ClientID(), err)
	}
}

// Destroyed reports whether Destroy has been called.
func (c *TCPConn) Destroyed() bool {
	return c.destroyed.Load()
}

// RemoteAddr exposes the peer address for logging.
func (c *TCPConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
