// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestCursorRoundTrip(t *testing.T) {
	c := Cursor{
		UpdatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		ID:        "task-42",
	}

	decoded, err := DecodeCursor(c.Encode())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if diff := cmp.Diff(&c, decoded); diff != "" {
		t.Errorf("cursor mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, in := range []string{"not base64 ***", "aGVsbG8", ""} {
		if _, err := DecodeCursor(in); err == nil {
			t.Errorf("DecodeCursor(%q): expected error", in)
		}
	}
}

func TestCursorBefore(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := Cursor{UpdatedAt: at, ID: "task-b"}

	tests := []struct {
		name      string
		updatedAt time.Time
		id        string
		want      bool
	}{
		{"older row belongs to a later page", at.Add(-time.Second), "task-a", true},
		{"newer row was already paged", at.Add(time.Second), "task-z", false},
		{"tie with larger ID follows", at, "task-c", true},
		{"tie with smaller ID precedes", at, "task-a", false},
		{"the cursor row itself is excluded", at, "task-b", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Before(tt.updatedAt, tt.id); got != tt.want {
				t.Errorf("Before(%v, %q) = %v, want %v", tt.updatedAt, tt.id, got, tt.want)
			}
		})
	}
}
