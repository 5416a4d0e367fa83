// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-json-experiment/json"
)

// Transport modes for the server.
const (
	// TransportHTTP serves the unary JSON-RPC endpoint only.
	TransportHTTP = "http"
	// TransportWS serves the WebSocket streaming endpoint only.
	TransportWS = "ws"
	// TransportBoth serves both endpoints.
	TransportBoth = "both"
)

// Storage backends for the server.
const (
	// StorageMemory keeps tasks in process memory.
	StorageMemory = "memory"
	// StorageDatabase persists tasks to a GORM-supported database.
	StorageDatabase = "database"
)

// Config is the server configuration, loadable from a JSON file with
// environment variable overrides.
type Config struct {
	// Host and Port form the listen address.
	Host string `json:"host"`
	Port int    `json:"port"`

	// Transport selects which endpoints are served: http, ws, or both.
	Transport string `json:"transport"`

	// Storage selects the task store backend: memory or database.
	Storage string `json:"storage"`

	// DatabaseDSN is the connection string when Storage is database.
	DatabaseDSN string `json:"databaseDsn,omitzero"`

	// SubscriberBuffer is the per-subscriber event queue depth.
	SubscriberBuffer int `json:"subscriberBuffer,omitzero"`

	// SubscriptionTTL is how long a subscription for a task that never
	// materializes is kept before being reaped.
	SubscriptionTTL time.Duration `json:"subscriptionTtl,omitzero"`

	// PushSigningSecret, when set, signs push notification deliveries with
	// an HS256 JWT.
	PushSigningSecret string `json:"pushSigningSecret,omitzero"`

	// AgentName, AgentDescription and AgentVersion populate the agent card.
	AgentName        string `json:"agentName,omitzero"`
	AgentDescription string `json:"agentDescription,omitzero"`
	AgentVersion     string `json:"agentVersion,omitzero"`
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() Config {
	return Config{
		Host:             "127.0.0.1",
		Port:             8080,
		Transport:        TransportBoth,
		Storage:          StorageMemory,
		SubscriberBuffer: 32,
		SubscriptionTTL:  5 * time.Minute,
		AgentName:        "a2a-server",
		AgentVersion:     "dev",
	}
}

// LoadConfig reads a JSON config file, falling back to defaults for absent
// fields, then applies environment overrides. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays A2A_* environment variables onto the config.
func (c *Config) applyEnv() {
	if v := os.Getenv("A2A_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("A2A_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("A2A_TRANSPORT"); v != "" {
		c.Transport = v
	}
	if v := os.Getenv("A2A_STORAGE"); v != "" {
		c.Storage = v
	}
	if v := os.Getenv("A2A_DATABASE_DSN"); v != "" {
		c.DatabaseDSN = v
	}
	if v := os.Getenv("A2A_PUSH_SIGNING_SECRET"); v != "" {
		c.PushSigningSecret = v
	}
	if v := os.Getenv("A2A_SUBSCRIPTION_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			c.SubscriptionTTL = ttl
		}
	}
}

// Validate ensures the Config is coherent.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportHTTP, TransportWS, TransportBoth:
	default:
		return fmt.Errorf("invalid transport %q: want http, ws, or both", c.Transport)
	}
	switch c.Storage {
	case StorageMemory:
	case StorageDatabase:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("database storage requires a DSN")
		}
	default:
		return fmt.Errorf("invalid storage %q: want memory or database", c.Storage)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
