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

package retainer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/sparrowmq/pkg/storage"
)

func newTestRetainer(t *testing.T, cfg *Config) *Retainer {
	t.Helper()
	if cfg == nil {
		cfg = &Config{CleanupInterval: 0}
	}
	r := New(storage.NewMemStore(), cfg)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRetainer_RetainAndMatch(t *testing.T) {
	r := newTestRetainer(t, nil)

	require.NoError(t, r.Retain("devices/1/state", []byte("on"), 1, "client-a"))
	require.NoError(t, r.Retain("devices/2/state", []byte("off"), 0, "client-b"))

	msgs, err := r.Match("devices/1/state")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("on"), msgs[0].Payload)
	assert.Equal(t, byte(1), msgs[0].QoS)
	assert.Equal(t, "client-a", msgs[0].ClientID)

	msgs, err = r.Match("devices/+/state")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	msgs, err = r.Match("#")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	msgs, err = r.Match("other/#")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRetainer_ReplaceKeepsLatest(t *testing.T) {
	r := newTestRetainer(t, nil)

	require.NoError(t, r.Retain("a/b", []byte("first"), 0, "client-a"))
	require.NoError(t, r.Retain("a/b", []byte("second"), 0, "client-a"))

	msgs, err := r.Match("a/b")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("second"), msgs[0].Payload)
}

func TestRetainer_EmptyPayloadClears(t *testing.T) {
	r := newTestRetainer(t, nil)

	require.NoError(t, r.Retain("a/b", []byte("x"), 0, "client-a"))
	require.NoError(t, r.Retain("a/b", nil, 0, "client-a"))

	msgs, err := r.Match("a/b")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRetainer_PayloadSizeLimit(t *testing.T) {
	r := newTestRetainer(t, &Config{MaxPayloadSize: 4})

	assert.Error(t, r.Retain("a/b", []byte("too large"), 0, "client-a"))
	assert.NoError(t, r.Retain("a/b", []byte("ok"), 0, "client-a"))
}

func TestRetainer_ExpiredMessagesSkipped(t *testing.T) {
	r := newTestRetainer(t, &Config{MessageExpiryInterval: time.Nanosecond})

	require.NoError(t, r.Retain("a/b", []byte("x"), 0, "client-a"))
	time.Sleep(10 * time.Millisecond)

	msgs, err := r.Match("a/b")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRetainer_SurvivesRestart(t *testing.T) {
	store := storage.NewMemStore()

	r1 := New(store, &Config{})
	require.NoError(t, r1.Retain("a/b", []byte("x"), 1, "client-a"))
	require.NoError(t, r1.Close())

	r2 := New(store, &Config{})
	defer r2.Close()
	msgs, err := r2.Match("a/b")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("x"), msgs[0].Payload)
}
