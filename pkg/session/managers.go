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

// The session owns one of each collaborator manager, created with the
// session and torn down with it. The concrete implementations live in the
// broker package; the session only drives their lifecycle.

// ProtocolHandler is the inbound side of the connection's protocol pipeline.
// Stop tells it to quit dispatching further frames into the session.
type ProtocolHandler interface {
	Stop()
}

// PublishManager handles outbound message delivery and inflight publish
// bookkeeping for one session.
type PublishManager interface {
	Start() error
	Stop() error
	// Clean discards the session's in-flight publish state.
	Clean() error
}

// SubscriptionManager materializes the session state's subscription set as
// live consumers while the session is attached.
type SubscriptionManager interface {
	Start() error
	Stop() error
	// Clean discards the session's subscriptions.
	Clean() error
}

// RetainManager replays retained messages into a session when it subscribes
// to a matching filter.
type RetainManager interface {
	Replay(filter string, qos byte) error
}

// DeliverySession is the server-side delivery pipeline feeding the
// connection, when one exists.
type DeliverySession interface {
	Stop() error
	// Close releases the delivery pipeline. failed marks an abnormal
	// close; a session teardown closes gracefully with failed=false.
	Close(failed bool) error
}
