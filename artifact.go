// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"fmt"
)

// Artifact is a named output produced by a task: an ordered list of content
// parts plus open metadata. A streaming artifact is delivered as a sequence
// of chunks that share one artifact ID; the store appends chunk parts to the
// existing entry in place.
type Artifact struct {
	ArtifactID  string         `json:"artifactId"`
	Name        string         `json:"name,omitzero"`
	Description string         `json:"description,omitzero"`
	Parts       []Part         `json:"parts,omitzero"`
	Metadata    map[string]any `json:"metadata,omitzero"`
}

// Validate ensures the Artifact is valid.
func (a *Artifact) Validate() error {
	if a.ArtifactID == "" {
		return fmt.Errorf("artifact ID cannot be empty")
	}
	for i, p := range a.Parts {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("artifact %s part %d: %w", a.ArtifactID, i, err)
		}
	}
	return nil
}
