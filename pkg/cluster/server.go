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

	"github.com/turtacn/sparrowmq/pkg/events"
	pb "github.com/turtacn/sparrowmq/pkg/proto/cluster"
)

// Server receives notifications from peers and republishes them onto the
// local event bus. The incoming distance is preserved, so every local
// subscriber can tell a relayed event from one that originated here.
type Server struct {
	pb.UnimplementedNotificationServiceServer
	NodeID string
	bus    *events.Bus
}

// NewServer creates a notification server publishing onto bus.
func NewServer(nodeID string, bus *events.Bus) *Server {
	return &Server{NodeID: nodeID, bus: bus}
}

func (s *Server) Notify(ctx context.Context, req *pb.ConsumerNotification) (*pb.NotificationAck, error) {
	if req.FromNode == s.NodeID {
		// A peer echoing our own notification back; nothing to do.
		return &pb.NotificationAck{Success: true}, nil
	}
	log.Printf("[INFO] Cluster: notification from node %s (type=%d, client=%q, routing=%q, distance=%d)",
		req.FromNode, req.Type, req.ClientId, req.RoutingName, req.Distance)

	s.bus.Publish(events.Notification{
		Type:         events.NotificationType(req.Type),
		ProtocolName: req.ProtocolName,
		Distance:     int(req.Distance),
		RoutingName:  req.RoutingName,
		ClientID:     req.ClientId,
		FromNode:     req.FromNode,
	})
	return &pb.NotificationAck{Success: true}, nil
}
