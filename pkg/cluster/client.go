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

package cluster

import (
	"context"
	"log"

	clusterpb "github.com/turtacn/sparrowmq/pkg/proto/cluster"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client wraps the gRPC connection to one peer's notification service.
type Client struct {
	// NodeID is the unique identifier of the local node.
	NodeID string
	conn   *grpc.ClientConn
	client clusterpb.NotificationServiceClient
}

// NewClient creates a new, un-connected cluster client.
func NewClient(nodeID string) *Client {
	return &Client{NodeID: nodeID}
}

// connectFunc is a package-level variable so tests can substitute an
// in-process transport for the real dial.
var connectFunc = func(c *Client, ctx context.Context, targetAddress string) error {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	conn, err := grpc.DialContext(ctx, targetAddress, opts...)
	if err != nil {
		return err
	}
	c.conn = conn
	c.client = clusterpb.NewNotificationServiceClient(conn)
	log.Printf("[INFO] Cluster: connected to peer at %s", targetAddress)
	return nil
}

// Connect establishes the gRPC connection to the peer at targetAddress.
func (c *Client) Connect(ctx context.Context, targetAddress string) error {
	return connectFunc(c, ctx, targetAddress)
}

// Close terminates the connection to the peer.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// Notify delivers a consumer notification to the peer.
func (c *Client) Notify(ctx context.Context, req *clusterpb.ConsumerNotification) (*clusterpb.NotificationAck, error) {
	return c.client.Notify(ctx, req)
}
