// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"fmt"
	"time"
)

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// PartKind discriminates the content variants of a Part.
type PartKind string

// Part kinds.
const (
	PartKindText PartKind = "text"
	PartKindFile PartKind = "file"
	PartKindData PartKind = "data"
)

// FileContent is a file carried inside a part, either inline or by URI.
type FileContent struct {
	Name     string `json:"name,omitzero"`
	MimeType string `json:"mimeType,omitzero"`
	URI      string `json:"uri,omitzero"`
	Bytes    []byte `json:"bytes,omitzero"`
}

// Part is one segment of message or artifact content. Exactly one of Text,
// File, or Data is meaningful, selected by Kind.
type Part struct {
	Kind PartKind       `json:"kind"`
	Text string         `json:"text,omitzero"`
	File *FileContent   `json:"file,omitzero"`
	Data map[string]any `json:"data,omitzero"`
}

// Validate ensures the Part is valid.
func (p Part) Validate() error {
	switch p.Kind {
	case PartKindText:
		return nil
	case PartKindFile:
		if p.File == nil {
			return fmt.Errorf("file part has no file content")
		}
		if p.File.URI == "" && len(p.File.Bytes) == 0 {
			return fmt.Errorf("file part needs a URI or inline bytes")
		}
		return nil
	case PartKindData:
		return nil
	default:
		return fmt.Errorf("unknown part kind: %q", string(p.Kind))
	}
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Kind: PartKindText, Text: text}
}

// Message is a single exchange in a task's history.
type Message struct {
	MessageID string         `json:"messageId,omitzero"`
	Role      Role           `json:"role"`
	Parts     []Part         `json:"parts,omitzero"`
	Metadata  map[string]any `json:"metadata,omitzero"`
	CreatedAt time.Time      `json:"createdAt,omitzero"`
}

// Validate ensures the Message is valid.
func (m *Message) Validate() error {
	if m.Role != RoleUser && m.Role != RoleAgent {
		return fmt.Errorf("unknown message role: %q", string(m.Role))
	}
	if len(m.Parts) == 0 {
		return fmt.Errorf("message has no parts")
	}
	for i, p := range m.Parts {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}
	}
	return nil
}

// Text concatenates the message's text parts, newline separated.
func (m *Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Kind != PartKindText {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += p.Text
	}
	return out
}
