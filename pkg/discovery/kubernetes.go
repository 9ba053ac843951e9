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

package discovery

import (
	"context"
	"fmt"
	"os"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// KubeDiscovery finds peers through the endpoints of a headless Kubernetes
// service. The pod's own endpoint is excluded by hostname.
type KubeDiscovery struct {
	client    kubernetes.Interface
	namespace string
	service   string
	portName  string
	self      string
}

// NewKubeDiscovery builds a KubeDiscovery from the pod's in-cluster service
// account. It fails outside a cluster.
func NewKubeDiscovery(namespace, service, portName string) (*KubeDiscovery, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("could not get in-cluster config: %w", err)
	}
	client, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("could not create clientset: %w", err)
	}
	hostname, _ := os.Hostname()
	return &KubeDiscovery{
		client:    client,
		namespace: namespace,
		service:   service,
		portName:  portName,
		self:      hostname,
	}, nil
}

// NewKubeDiscoveryWithClient builds a KubeDiscovery over an existing client.
// self is the hostname of this pod, excluded from the peer list.
func NewKubeDiscoveryWithClient(client kubernetes.Interface, namespace, service, portName, self string) *KubeDiscovery {
	return &KubeDiscovery{
		client:    client,
		namespace: namespace,
		service:   service,
		portName:  portName,
		self:      self,
	}
}

// DiscoverPeers lists the service's endpoint addresses that carry the named
// port, skipping this pod's own address.
func (k *KubeDiscovery) DiscoverPeers(ctx context.Context) ([]Peer, error) {
	endpoints, err := k.client.CoreV1().Endpoints(k.namespace).Get(ctx, k.service, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get endpoints for service %s: %w", k.service, err)
	}

	var peers []Peer
	for _, subset := range endpoints.Subsets {
		var port int32
		for _, p := range subset.Ports {
			if p.Name == k.portName {
				port = p.Port
				break
			}
		}
		if port == 0 {
			continue
		}
		for _, addr := range subset.Addresses {
			if addr.Hostname != "" && addr.Hostname == k.self {
				continue
			}
			peers = append(peers, Peer{
				ID:      addr.Hostname,
				Address: fmt.Sprintf("%s:%d", addr.IP, port),
			})
		}
	}
	return peers, nil
}
