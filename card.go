// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

// AgentCapabilities advertises the optional protocol features an agent
// supports.
type AgentCapabilities struct {
	Streaming         bool `json:"streaming"`
	PushNotifications bool `json:"pushNotifications"`
}

// AgentCard is the discovery document served at /.well-known/agent.json.
// Only the envelope needed to reach the task surface is modeled here.
type AgentCard struct {
	Name         string            `json:"name"`
	Description  string            `json:"description,omitzero"`
	URL          string            `json:"url"`
	Version      string            `json:"version,omitzero"`
	Capabilities AgentCapabilities `json:"capabilities"`
}
