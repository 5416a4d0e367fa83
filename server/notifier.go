// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/agentwire/a2a"
	"github.com/agentwire/a2a/server/task"
)

// NotificationTokenHeader carries the client-chosen correlation token back
// to the webhook receiver.
const NotificationTokenHeader = "X-A2A-Notification-Token"

// notificationTokenLifetime bounds how long a delivery's JWT stays valid.
const notificationTokenLifetime = 5 * time.Minute

// WebhookNotification is the JSON body POSTed to a push notification
// webhook: the task snapshot at the time of the change plus the event
// describing it.
type WebhookNotification struct {
	Task  *a2a.Task      `json:"task"`
	Event jsontext.Value `json:"event"`
}

// WebhookNotifier delivers task updates to registered webhooks over HTTP.
// When a signing secret is configured, each request carries a short-lived
// HS256 JWT in the Authorization header so receivers can verify the
// delivery came from this server.
type WebhookNotifier struct {
	client  *http.Client
	secret  []byte
	issuer  string
	logger  *slog.Logger
	metrics *Metrics
}

var _ task.Notifier = (*WebhookNotifier)(nil)

// NotifierOption configures a WebhookNotifier.
type NotifierOption func(*WebhookNotifier)

// WithNotifierClient sets the HTTP client used for deliveries.
func WithNotifierClient(client *http.Client) NotifierOption {
	return func(n *WebhookNotifier) { n.client = client }
}

// WithSigningSecret enables JWT signing of deliveries with the given HS256
// secret.
func WithSigningSecret(secret []byte) NotifierOption {
	return func(n *WebhookNotifier) { n.secret = secret }
}

// WithNotifierLogger sets the notifier's logger.
func WithNotifierLogger(logger *slog.Logger) NotifierOption {
	return func(n *WebhookNotifier) { n.logger = logger }
}

// WithNotifierMetrics attaches delivery metrics.
func WithNotifierMetrics(m *Metrics) NotifierOption {
	return func(n *WebhookNotifier) { n.metrics = m }
}

// NewWebhookNotifier creates a WebhookNotifier.
func NewWebhookNotifier(issuer string, opts ...NotifierOption) *WebhookNotifier {
	n := &WebhookNotifier{
		client: &http.Client{Timeout: 10 * time.Second},
		issuer: issuer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify implements [task.Notifier].
func (n *WebhookNotifier) Notify(ctx context.Context, config *a2a.PushNotificationConfig, t *a2a.Task, ev a2a.Event) error {
	rawEvent, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	body, err := json.Marshal(WebhookNotification{Task: t, Event: rawEvent})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if config.Token != "" {
		req.Header.Set(NotificationTokenHeader, config.Token)
	}
	if len(n.secret) > 0 {
		signed, err := n.signToken(t.ID, ev.Kind())
		if err != nil {
			return fmt.Errorf("sign notification token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+string(signed))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.count("error")
		return fmt.Errorf("deliver notification to %s: %w", config.URL, err)
	}
	defer func() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.count("rejected")
		return fmt.Errorf("webhook %s responded %d", config.URL, resp.StatusCode)
	}

	n.count("ok")
	n.logger.Debug("push notification delivered",
		"task_id", t.ID, "url", config.URL, "event", ev.Kind())
	return nil
}

func (n *WebhookNotifier) count(outcome string) {
	if n.metrics != nil {
		n.metrics.PushDeliveries.WithLabelValues(outcome).Inc()
	}
}

func (n *WebhookNotifier) signToken(taskID, eventKind string) ([]byte, error) {
	now := time.Now()
	token, err := jwt.NewBuilder().
		Issuer(n.issuer).
		IssuedAt(now).
		Expiration(now.Add(notificationTokenLifetime)).
		Claim("taskId", taskID).
		Claim("eventKind", eventKind).
		Build()
	if err != nil {
		return nil, err
	}
	return jwt.Sign(token, jwt.WithKey(jwa.HS256(), n.secret))
}
