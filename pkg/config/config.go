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

// Package config loads and validates broker configuration from YAML or JSON
// files, with sensible defaults when no file is given.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/turtacn/sparrowmq/pkg/retainer"
	"github.com/turtacn/sparrowmq/pkg/storage"
	"gopkg.in/yaml.v2"
)

// Storage backends for durable session snapshots and retained messages.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// PeerConfig identifies one static cluster peer.
type PeerConfig struct {
	ID      string `yaml:"id" json:"id"`
	Address string `yaml:"address" json:"address"`
}

// StorageConfig selects the backing store.
type StorageConfig struct {
	Backend  string                 `yaml:"backend" json:"backend"`
	Postgres storage.PostgresConfig `yaml:"postgres" json:"postgres"`
}

// DiscoveryConfig selects how cluster peers are found. With kubernetes
// enabled the static peer list is ignored.
type DiscoveryConfig struct {
	Kubernetes bool   `yaml:"kubernetes" json:"kubernetes"`
	Namespace  string `yaml:"namespace" json:"namespace"`
	Service    string `yaml:"service" json:"service"`
}

// BrokerConfig is the per-node broker configuration. NodeID doubles as the
// session registry's node identity.
type BrokerConfig struct {
	NodeID      string          `yaml:"node_id" json:"node_id"`
	MQTTPort    string          `yaml:"mqtt_port" json:"mqtt_port"`
	GRPCPort    string          `yaml:"grpc_port" json:"grpc_port"`
	MetricsPort string          `yaml:"metrics_port" json:"metrics_port"`
	Peers       []PeerConfig    `yaml:"peers" json:"peers"`
	Storage     StorageConfig   `yaml:"storage" json:"storage"`
	Discovery   DiscoveryConfig `yaml:"discovery" json:"discovery"`
	Retainer    retainer.Config `yaml:"retainer" json:"retainer"`
}

// Config holds the complete configuration.
type Config struct {
	Broker BrokerConfig `yaml:"broker" json:"broker"`
}

// DefaultConfig returns a single-node default configuration.
func DefaultConfig() *Config {
	return &Config{
		Broker: BrokerConfig{
			NodeID:      "sparrowmq-node",
			MQTTPort:    ":1883",
			GRPCPort:    ":8081",
			MetricsPort: ":8082",
			Storage: StorageConfig{
				Backend: StorageMemory,
			},
			Retainer: *retainer.DefaultConfig(),
		},
	}
}

// LoadConfig loads the configuration from configPath. An empty path yields
// the defaults.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		log.Println("[INFO] No config file specified, using default configuration")
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	config := DefaultConfig()
	ext := strings.ToLower(filepath.Ext(configPath))

	switch ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	case ".json":
		err = json.Unmarshal(data, config)
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log.Printf("[INFO] Configuration loaded from %s", configPath)
	return config, nil
}

// SaveConfig writes the configuration to configPath.
func SaveConfig(config *Config, configPath string) error {
	var data []byte
	var err error

	ext := strings.ToLower(filepath.Ext(configPath))
	switch ext {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(config)
	case ".json":
		data, err = json.MarshalIndent(config, "", "  ")
	default:
		return fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json)", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configPath, err)
	}

	log.Printf("[INFO] Configuration saved to %s", configPath)
	return nil
}

func validateConfig(config *Config) error {
	b := &config.Broker
	if b.NodeID == "" {
		return fmt.Errorf("node_id cannot be empty")
	}
	if b.MQTTPort == "" {
		return fmt.Errorf("mqtt_port cannot be empty")
	}

	switch b.Storage.Backend {
	case StorageMemory:
	case StoragePostgres:
		if b.Storage.Postgres.Host == "" {
			return fmt.Errorf("storage backend %q requires a postgres host", StoragePostgres)
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s (supported: %s, %s)",
			b.Storage.Backend, StorageMemory, StoragePostgres)
	}

	peerIDs := make(map[string]bool)
	for i, peer := range b.Peers {
		if peer.ID == "" {
			return fmt.Errorf("peer %d: id cannot be empty", i)
		}
		if peer.ID == b.NodeID {
			return fmt.Errorf("peer %s: a node cannot list itself as a peer", peer.ID)
		}
		if peerIDs[peer.ID] {
			return fmt.Errorf("duplicate peer id: %s", peer.ID)
		}
		peerIDs[peer.ID] = true
		if peer.Address == "" {
			return fmt.Errorf("peer %s: address cannot be empty", peer.ID)
		}
	}

	if b.Discovery.Kubernetes && b.Discovery.Service == "" {
		return fmt.Errorf("kubernetes discovery requires a service name")
	}
	return nil
}

// OpenStore constructs the configured session/retained-message store.
func (c *Config) OpenStore() (storage.Store, error) {
	switch c.Broker.Storage.Backend {
	case StoragePostgres:
		return storage.NewPostgresStore(c.Broker.Storage.Postgres)
	default:
		return storage.NewMemStore(), nil
	}
}
