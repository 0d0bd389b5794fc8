// Package platform is the REST client for the hosting chat-platform
// integration layer: posting reviewable alerts, attaching decision
// affordances, and executing moderation actions.
package platform

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

const httpTimeout = 10 * time.Second

// Client talks to the integration layer's HTTP API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// New creates a client for the integration layer at baseURL, authenticating
// with the given bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: httpTimeout},
	}
}

// PostReviewableAlert posts rendered alert content to the given channel and
// returns the platform message id, which becomes the alert's primary key.
func (c *Client) PostReviewableAlert(ctx context.Context, channelID, rendered string) (string, error) {
	var resp struct {
		MessageID string `json:"message_id"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/channels/%s/messages", channelID), map[string]any{
		"content": rendered,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

// AddDecisionAffordances attaches reaction symbols to a posted message so
// staff can signal a decision.
func (c *Client) AddDecisionAffordances(ctx context.Context, messageID string, symbols []string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/messages/%s/reactions", messageID), map[string]any{
		"symbols": symbols,
	}, nil)
}

// DeleteMessage removes a posted message. Used to roll back an alert post
// whose record could not be persisted.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/messages/%s", messageID), nil, nil)
}

// ExecuteModerationAction invokes the moderation actuator against an actor.
func (c *Client) ExecuteModerationAction(ctx context.Context, tenantID, actorID string, kind moderation.ActionKind, reason string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/tenants/%s/actions", tenantID), map[string]any{
		"actor_id": actorID,
		"kind":     string(kind),
		"reason":   reason,
	}, nil)
}

// EnsureReviewDestination asks the integration layer for the tenant's staff
// review channel, creating it if the platform supports that. An empty id
// means the tenant has no destination.
func (c *Client) EnsureReviewDestination(ctx context.Context, tenantID string) (string, error) {
	var resp struct {
		ChannelID string `json:"channel_id"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/tenants/%s/review-destination", tenantID), nil, &resp)
	if err != nil {
		return "", err
	}
	return resp.ChannelID, nil
}

// FetchRecentPrivilegedActions returns attribution entries for recent
// privileged actions of the given kind in a tenant.
func (c *Client) FetchRecentPrivilegedActions(ctx context.Context, tenantID, kind string, limit int) ([]moderation.Attribution, error) {
	var resp struct {
		Entries []moderation.Attribution `json:"entries"`
	}
	path := fmt.Sprintf("/tenants/%s/audit?kind=%s&limit=%d", tenantID, kind, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// do issues one request and maps platform failures onto the pipeline's error
// taxonomy: 404 -> ErrNotFound, 403 -> ErrPermissionDenied, anything else
// non-2xx (or transport failure) -> ErrTransientExternal.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("platform: marshal body: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("platform: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("platform: %s %s: %w: %w", method, path, moderation.ErrTransientExternal, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("platform: %s %s: %w", method, path, moderation.ErrNotFound)
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("platform: %s %s: %w", method, path, moderation.ErrPermissionDenied)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("platform: %s %s returned %d: %s: %w", method, path, resp.StatusCode, string(respBody), moderation.ErrTransientExternal)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("platform: decode response: %w", err)
		}
	}
	return nil
}
