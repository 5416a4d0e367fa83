// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"fmt"
	"net/url"
)

// AuthenticationInfo describes how to authenticate against a push
// notification webhook.
type AuthenticationInfo struct {
	// Schemes lists the accepted schemes, e.g. "bearer" or "basic".
	Schemes []string `json:"schemes,omitzero"`

	// Credentials carries the material for the chosen scheme.
	Credentials string `json:"credentials,omitzero"`
}

// PushNotificationConfig is a webhook target for task updates. Configs live
// independently of tasks: one may be provisioned before the task it names
// exists and survives the task reaching a terminal state.
type PushNotificationConfig struct {
	// ID distinguishes multiple configs for one task. Server-generated when
	// empty on set.
	ID string `json:"id,omitzero"`

	// URL is the webhook endpoint to POST task updates to.
	URL string `json:"url"`

	// Token, when set, is echoed back in the X-A2A-Notification-Token header
	// so the receiver can correlate deliveries.
	Token string `json:"token,omitzero"`

	// Authentication, when set, is applied to each delivery request.
	Authentication *AuthenticationInfo `json:"authentication,omitzero"`
}

// Validate ensures the PushNotificationConfig is valid.
func (c *PushNotificationConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("push notification config URL cannot be empty")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("push notification config URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("push notification config URL must be http or https, got %q", u.Scheme)
	}
	return nil
}
