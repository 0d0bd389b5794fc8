// Package slack sends moderation audit notifications to Slack via incoming
// webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Deaeath/colossus-guard/internal/moderation"
)

const (
	maxReasonLen = 1000
	httpTimeout  = 10 * time.Second
)

// Notifier posts executed moderation actions to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, ActionExecuted
// is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// ActionExecuted posts the executed action to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) ActionExecuted(ctx context.Context, rec *moderation.ActionRecord, kind moderation.ActionKind) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(rec, kind)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(rec *moderation.ActionRecord, kind moderation.ActionKind) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(kind),
			{"type": "divider"},
			fieldsBlock(rec, kind),
			{"type": "divider"},
			reasonBlock(rec),
			{"type": "divider"},
			contextBlock(rec),
		},
	}
}

func headerBlock(kind moderation.ActionKind) map[string]any {
	text := fmt.Sprintf("%s Moderation Action: %s", actionEmoji(kind), kind)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(rec *moderation.ActionRecord, kind moderation.ActionKind) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Action:* %s", kind),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Tenant:* %s", rec.TenantID),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Target:* %s", rec.TargetActorID),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Channel:* %s", rec.ChannelID),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func reasonBlock(rec *moderation.ActionRecord) map[string]any {
	text := truncate(rec.Reason, maxReasonLen)
	if text == "" {
		text = "_No reason recorded._"
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Reason*\n\n%s", text),
		},
	}
}

func contextBlock(rec *moderation.ActionRecord) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("colossus-guard • action %s • %s", rec.ActionID, time.Now().UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func actionEmoji(kind moderation.ActionKind) string {
	switch kind {
	case moderation.ActionBan:
		return "\U0001f534" // red circle
	case moderation.ActionKick, moderation.ActionQuarantine:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
