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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestStaticDiscovery(t *testing.T) {
	peers := []Peer{
		{ID: "node-2", Address: "node-2:8081"},
		{ID: "node-3", Address: "node-3:8081"},
	}
	d := NewStaticDiscovery(peers)

	got, err := d.DiscoverPeers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, peers, got)

	// The returned slice is a copy; mutating it must not leak back.
	got[0].Address = "mutated"
	again, err := d.DiscoverPeers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "node-2:8081", again[0].Address)
}

func TestStaticDiscovery_Empty(t *testing.T) {
	d := NewStaticDiscovery(nil)
	got, err := d.DiscoverPeers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestKubeDiscovery_DiscoverPeers(t *testing.T) {
	clientset := fake.NewSimpleClientset(&v1.Endpoints{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "sparrowmq",
			Namespace: "default",
		},
		Subsets: []v1.EndpointSubset{
			{
				Addresses: []v1.EndpointAddress{
					{IP: "10.0.0.1", Hostname: "pod-1"},
					{IP: "10.0.0.2", Hostname: "pod-2"},
				},
				Ports: []v1.EndpointPort{
					{Name: "grpc", Port: 8081},
				},
			},
		},
	})

	kd := NewKubeDiscoveryWithClient(clientset, "default", "sparrowmq", "grpc", "pod-1")
	peers, err := kd.DiscoverPeers(context.Background())
	require.NoError(t, err)

	require.Len(t, peers, 1)
	assert.Equal(t, "pod-2", peers[0].ID)
	assert.Equal(t, "10.0.0.2:8081", peers[0].Address)

	// Subsets without the named port contribute nothing.
	kd.portName = "unknown-port"
	peers, err = kd.DiscoverPeers(context.Background())
	require.NoError(t, err)
	assert.Len(t, peers, 0)
}

func TestKubeDiscovery_MissingService(t *testing.T) {
	kd := NewKubeDiscoveryWithClient(fake.NewSimpleClientset(), "default", "absent", "grpc", "pod-1")
	_, err := kd.DiscoverPeers(context.Background())
	assert.Error(t, err)
}
