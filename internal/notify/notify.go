// Package notify posts operator-facing alerts (safety freezes, auto-stop
// triggers, rollback events) to a Slack incoming webhook. Best-effort: a
// delivery failure is logged and swallowed, never propagated back into a
// gating decision.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ignite/outreach-control/internal/pkg/httpretry"
	"github.com/ignite/outreach-control/internal/pkg/logger"
)

// Notifier posts messages to a Slack incoming webhook URL.
type Notifier struct {
	webhookURL string
	http       httpretry.HTTPDoer
	timeout    time.Duration
}

// New builds a Notifier posting to webhookURL. An empty webhookURL makes
// every Send a silent no-op, so the core can run with notifications
// disabled in local/dev environments.
func New(webhookURL string, timeout time.Duration) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		http:       httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 2),
		timeout:    timeout,
	}
}

type slackPayload struct {
	Text string `json:"text"`
}

// Send posts text to the configured webhook. Errors are logged, not
// returned, since a Slack outage must never block send-queue processing.
func (n *Notifier) Send(ctx context.Context, text string) {
	if n.webhookURL == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	body, err := json.Marshal(slackPayload{Text: text})
	if err != nil {
		logger.Warn("notify: failed to marshal payload", "error", err.Error())
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		logger.Warn("notify: failed to build request", "error", err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		logger.Warn("notify: failed to deliver slack message", "error", err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		logger.Warn("notify: slack webhook returned non-2xx", "status", resp.StatusCode)
	}
}
