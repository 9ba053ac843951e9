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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/sparrowmq/pkg/storage"
)

func TestRegistry_Key(t *testing.T) {
	single := NewRegistry("", nil)
	assert.Equal(t, "client-a", single.Key("client-a"))

	node1 := NewRegistry("node1", nil)
	node2 := NewRegistry("node2", nil)
	assert.Equal(t, "node1client-a", node1.Key("client-a"))
	assert.NotEqual(t, node1.Key("client-a"), node2.Key("client-a"),
		"the same client on different nodes must key to distinct entries")
}

func TestRegistry_LookupOrCreate(t *testing.T) {
	reg := NewRegistry("node1", nil)

	st := reg.LookupOrCreate("client-a")
	require.NotNil(t, st)
	assert.Equal(t, "client-a", st.ClientID())

	// Same identity, same instance.
	assert.Same(t, st, reg.LookupOrCreate("client-a"))

	// Different identity, different instance.
	other := reg.LookupOrCreate("client-b")
	assert.NotSame(t, st, other)
}

func TestRegistry_LookupOrCreateConcurrent(t *testing.T) {
	reg := NewRegistry("node1", nil)

	const racers = 64
	results := make([]*State, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = reg.LookupOrCreate("client-a")
		}(i)
	}
	wg.Wait()

	for i := 1; i < racers; i++ {
		assert.Same(t, results[0], results[i],
			"every concurrent lookup must observe the single created state")
	}
}

func TestRegistry_GetAndRemove(t *testing.T) {
	reg := NewRegistry("", nil)

	_, ok := reg.Get("client-a")
	assert.False(t, ok)

	st := reg.LookupOrCreate("client-a")
	got, ok := reg.Get("client-a")
	require.True(t, ok)
	assert.Same(t, st, got)

	reg.Remove("client-a")
	_, ok = reg.Get("client-a")
	assert.False(t, ok)

	// Removing an absent identity is a no-op.
	reg.Remove("client-a")
}

func TestRegistry_Snapshot(t *testing.T) {
	reg := NewRegistry("node1", nil)
	reg.LookupOrCreate("client-a")
	reg.LookupOrCreate("client-b")

	snap := reg.Snapshot()
	assert.Len(t, snap, 2)
	assert.Contains(t, snap, "node1client-a")
	assert.Contains(t, snap, "node1client-b")

	// The snapshot is a copy; mutating it does not touch the registry.
	delete(snap, "node1client-a")
	_, ok := reg.Get("client-a")
	assert.True(t, ok)
}

func TestRegistry_PersistAndRestore(t *testing.T) {
	store := storage.NewMemStore()

	reg := NewRegistry("node1", store)
	st := reg.LookupOrCreate("client-a")
	st.AddSubscription("sensors/#", 1)
	st.SetWill(&WillMessage{Topic: "status/client-a", Payload: []byte("gone"), QoS: 1})
	require.NoError(t, reg.Persist(st))

	// A fresh registry over the same store, as after a broker restart.
	reg2 := NewRegistry("node1", store)
	restored := reg2.LookupOrCreate("client-a")
	assert.NotSame(t, st, restored)
	assert.Equal(t, "client-a", restored.ClientID())
	assert.Equal(t, map[string]byte{"sensors/#": 1}, restored.Subscriptions())
	require.NotNil(t, restored.Will())
	assert.Equal(t, "status/client-a", restored.Will().Topic)
	assert.False(t, restored.Attached(), "restored sessions start detached")
}

func TestRegistry_RemoveDeletesSnapshot(t *testing.T) {
	store := storage.NewMemStore()
	reg := NewRegistry("", store)

	st := reg.LookupOrCreate("client-a")
	require.NoError(t, reg.Persist(st))
	_, err := store.Get("client-a")
	require.NoError(t, err)

	reg.Remove("client-a")
	_, err = store.Get("client-a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRegistry_CorruptSnapshotIgnored(t *testing.T) {
	store := storage.NewMemStore()
	require.NoError(t, store.Set("client-a", []byte("{not json")))

	reg := NewRegistry("", store)
	st := reg.LookupOrCreate("client-a")
	require.NotNil(t, st)
	assert.Empty(t, st.Subscriptions(), "a corrupt snapshot yields a fresh state")
}

func TestState_PacketIDSkipsZero(t *testing.T) {
	st := NewState("client-a")
	st.nextPacketID = 65534

	assert.Equal(t, uint16(65535), st.NextPacketID())
	assert.Equal(t, uint16(1), st.NextPacketID(), "the packet id counter wraps past zero")
}

func TestState_Inflight(t *testing.T) {
	st := NewState("client-a")
	st.TrackInflight(InflightPublish{PacketID: 7, Topic: "a/b", Payload: []byte("x"), QoS: 1})

	assert.True(t, st.AckInflight(7))
	assert.False(t, st.AckInflight(7), "a second ack for the same packet id finds nothing")
}
