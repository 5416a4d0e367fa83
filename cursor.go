// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-json-experiment/json"
)

// Cursor is an opaque pagination token. It pins the position of the last
// returned task by its sort key (updated_at desc, id asc tie-break) rather
// than an offset, so pages stay stable while tasks are inserted around them.
type Cursor struct {
	UpdatedAt time.Time `json:"u"`
	ID        string    `json:"id"`
}

// Encode serializes the cursor to its opaque wire form.
func (c Cursor) Encode() string {
	raw, err := json.Marshal(c)
	if err != nil {
		// Cursor fields are a time and a string; marshaling cannot fail.
		panic(fmt.Sprintf("encode cursor: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses an opaque cursor token.
func DecodeCursor(s string) (*Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	if c.ID == "" {
		return nil, fmt.Errorf("invalid cursor: missing task ID")
	}
	return &c, nil
}

// Before reports whether a task at (updatedAt, id) sorts after the cursor
// position, i.e. belongs to a later page. Ordering is updated_at descending
// with ascending ID as the tie-break.
func (c Cursor) Before(updatedAt time.Time, id string) bool {
	if updatedAt.Before(c.UpdatedAt) {
		return true
	}
	return updatedAt.Equal(c.UpdatedAt) && id > c.ID
}
