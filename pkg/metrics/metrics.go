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

// package metrics provides Prometheus metrics for the broker front-end.
package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal counts every accepted transport connection, whether
	// or not it turned out to speak MQTT.
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sparrowmq_connections_total",
		Help: "The total number of connections accepted by the broker.",
	})

	// ConnectionsRejectedTotal counts connections closed because the sniffed
	// byte prefix did not classify as MQTT.
	ConnectionsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sparrowmq_connections_rejected_total",
		Help: "The total number of connections rejected by protocol sniffing.",
	})

	// SessionsActive tracks the number of currently attached sessions.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sparrowmq_sessions_active",
		Help: "The number of sessions currently attached to a connection.",
	})

	// DuplicateEvictionsTotal counts connections destroyed because another
	// connection claimed the same client identity, locally or cluster-wide.
	DuplicateEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sparrowmq_duplicate_evictions_total",
		Help: "The total number of connections evicted over a duplicate client identity.",
	},
		[]string{"origin"},
	)

	// SupervisorRestartsTotal counts restarts of supervised actors.
	SupervisorRestartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sparrowmq_supervisor_restarts_total",
		Help: "The total number of times a supervised actor has been restarted.",
	},
		[]string{"actor_id"},
	)
)

// Serve starts an HTTP server to expose the Prometheus metrics.
func Serve(addr string) {
	http.Handle("/metrics", promhttp.Handler())
	log.Printf("Metrics server listening on %s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		logFatalf("Metrics server failed: %v", err)
	}
}

// logFatalf can be replaced by tests to prevent process exit.
var logFatalf = log.Fatalf
