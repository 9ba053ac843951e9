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

// package main is the entrypoint for the sparrowmq broker.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/sparrowmq/pkg/broker"
	"github.com/turtacn/sparrowmq/pkg/cluster"
	"github.com/turtacn/sparrowmq/pkg/config"
	"github.com/turtacn/sparrowmq/pkg/discovery"
	"github.com/turtacn/sparrowmq/pkg/events"
	"github.com/turtacn/sparrowmq/pkg/metrics"
	clusterpb "github.com/turtacn/sparrowmq/pkg/proto/cluster"
	"github.com/turtacn/sparrowmq/pkg/retainer"
	"github.com/turtacn/sparrowmq/pkg/session"
	"google.golang.org/grpc"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or JSON config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	bc := cfg.Broker

	log.Printf("Starting sparrowmq broker, node %s", bc.NodeID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := cfg.OpenStore()
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}

	registry := session.NewRegistry(bc.NodeID, store)
	ret := retainer.New(store, &bc.Retainer)
	defer ret.Close()

	bus := events.NewBus()
	b := broker.New(bc.NodeID, registry, ret, bus)

	// Duplicate sessions announced by peers get their local connections torn
	// down here.
	evictor := cluster.NewEvictor(bc.NodeID, b.PostOffice(), bus)
	evictor.Start()
	defer evictor.Stop()

	clusterMgr := cluster.NewManager(bc.NodeID, bc.NodeID+bc.GRPCPort, bus)
	clusterMgr.Start()
	defer clusterMgr.Stop()

	grpcServer := grpc.NewServer()
	clusterpb.RegisterNotificationServiceServer(grpcServer, cluster.NewServer(bc.NodeID, bus))
	lis, err := net.Listen("tcp", bc.GRPCPort)
	if err != nil {
		log.Fatalf("Failed to listen for gRPC: %v", err)
	}
	go func() {
		log.Printf("gRPC server listening on %s", bc.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("gRPC server failed: %v", err)
		}
	}()
	defer grpcServer.Stop()

	go metrics.Serve(bc.MetricsPort)

	go runDiscovery(ctx, bc, clusterMgr)

	go func() {
		if err := b.StartServer(ctx, bc.MQTTPort); err != nil {
			log.Fatalf("Broker server failed: %v", err)
		}
	}()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)
	<-shutdownChan

	log.Println("Shutdown signal received. Shutting down...")
}

// runDiscovery connects the cluster manager to every discovered peer, either
// once from the static list or on a refresh loop against Kubernetes.
func runDiscovery(ctx context.Context, bc config.BrokerConfig, mgr *cluster.Manager) {
	if !bc.Discovery.Kubernetes {
		for _, p := range bc.Peers {
			go mgr.AddPeer(ctx, p.ID, p.Address)
		}
		return
	}

	namespace := bc.Discovery.Namespace
	if namespace == "" {
		namespace = "default"
	}
	disc, err := discovery.NewKubeDiscovery(namespace, bc.Discovery.Service, "grpc")
	if err != nil {
		log.Printf("Could not initialize Kubernetes discovery: %v", err)
		return
	}

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			peers, err := disc.DiscoverPeers(ctx)
			if err != nil {
				log.Printf("Failed to discover peers: %v", err)
				continue
			}
			log.Printf("Discovered %d peers", len(peers))
			for _, peer := range peers {
				go mgr.AddPeer(ctx, peer.ID, peer.Address)
			}
		}
	}
}
