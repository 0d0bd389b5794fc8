// Package consumer subscribes to the platform gateway event feed over a
// websocket and feeds decoded events into the moderation pipeline.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/linnemanlabs/go-core/log"
	v "github.com/linnemanlabs/go-core/version"

	"github.com/Deaeath/colossus-guard/internal/moderation"
)

// Event types carried on the gateway feed.
const (
	EventContent     = "content"
	EventAttribution = "attribution"
	EventDecision    = "decision"
)

// Frame is one gateway event. Seq is a monotonically increasing stream
// position; reconnects resume from the last seen value.
type Frame struct {
	Seq     int64           `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type contentPayload struct {
	TenantID    string   `json:"tenant_id"`
	ActorID     string   `json:"actor_id"`
	ChannelID   string   `json:"channel_id"`
	MessageID   string   `json:"message_id"`
	Text        string   `json:"text"`
	Attachments []string `json:"attachments"`
	IsBot       bool     `json:"is_bot"`
}

type attributionPayload struct {
	TenantID string    `json:"tenant_id"`
	ActorID  string    `json:"actor_id"`
	Kind     string    `json:"kind"`
	At       time.Time `json:"at"`
}

type decisionPayload struct {
	AlertID  string `json:"alert_id"`
	ActionID string `json:"action_id"`
	ActorID  string `json:"actor_id"`
	Symbol   string `json:"symbol"`
}

// Pipeline is the subset of the moderation service the consumer drives.
type Pipeline interface {
	HandleContent(ctx context.Context, c *moderation.Content) []string
	HandleAttribution(ctx context.Context, at *moderation.Attribution) (string, error)
	ResolveAlertDecision(ctx context.Context, alertID string, decision moderation.Decision, reviewerID string) (moderation.Effect, error)
	ResolveActionDecision(ctx context.Context, actionID string, kind moderation.ActionKind) (moderation.Effect, error)
}

// Consumer maintains the gateway subscription.
type Consumer struct {
	gatewayURL string
	token      string
	pipeline   Pipeline
	logger     log.Logger

	// most recent sequence number handled; read with atomics
	lastSeq atomic.Int64
}

// New creates a gateway consumer. Run must be called to start it.
func New(gatewayURL, token string, pipeline Pipeline, logger log.Logger) *Consumer {
	if logger == nil {
		logger = log.Nop()
	}
	return &Consumer{
		gatewayURL: gatewayURL,
		token:      token,
		pipeline:   pipeline,
		logger:     logger,
	}
}

// LastSeq returns the most recent stream position handled.
func (c *Consumer) LastSeq() int64 {
	return c.lastSeq.Load()
}

// Run subscribes and processes events until ctx is cancelled. Connection
// failures are retried with exponential backoff, resuming from the last
// handled sequence number.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn(ctx, "gateway connection lost, reconnecting",
			"error", err, "backoff", backoff.String(), "last_seq", c.LastSeq())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (c *Consumer) runOnce(ctx context.Context) error {
	u, err := url.Parse(c.gatewayURL)
	if err != nil {
		return fmt.Errorf("invalid gateway url: %w", err)
	}
	if seq := c.LastSeq(); seq > 0 {
		q := u.Query()
		q.Set("after", fmt.Sprintf("%d", seq))
		u.RawQuery = q.Encode()
	}

	header := http.Header{
		"User-Agent": []string{v.AppName + "/" + v.Version},
	}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("dialing gateway: %w", err)
	}
	defer conn.Close()

	c.logger.Info(ctx, "subscribed to gateway event feed",
		"gateway", c.gatewayURL, "after", c.LastSeq())

	// unblock ReadMessage when ctx is cancelled
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading gateway frame: %w", err)
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn(ctx, "dropping malformed gateway frame", "error", err)
			continue
		}

		c.lastSeq.Store(frame.Seq)
		if err := c.handleFrame(ctx, &frame); err != nil {
			// one bad event must not stall the stream
			c.logger.Error(ctx, err, "gateway event handling failed",
				"type", frame.Type, "seq", frame.Seq)
		}
	}
}

func (c *Consumer) handleFrame(ctx context.Context, frame *Frame) error {
	switch frame.Type {
	case EventContent:
		var p contentPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return fmt.Errorf("decoding content payload: %w", err)
		}
		c.pipeline.HandleContent(ctx, &moderation.Content{
			TenantID:    p.TenantID,
			ActorID:     p.ActorID,
			ChannelID:   p.ChannelID,
			MessageID:   p.MessageID,
			Text:        p.Text,
			Attachments: p.Attachments,
			IsBot:       p.IsBot,
		})
		return nil

	case EventAttribution:
		var p attributionPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return fmt.Errorf("decoding attribution payload: %w", err)
		}
		_, err := c.pipeline.HandleAttribution(ctx, &moderation.Attribution{
			TenantID: p.TenantID,
			ActorID:  p.ActorID,
			Kind:     p.Kind,
			At:       p.At,
		})
		return err

	case EventDecision:
		var p decisionPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return fmt.Errorf("decoding decision payload: %w", err)
		}
		return c.handleDecision(ctx, &p)

	default:
		// unknown event types are skipped so feed additions don't break us
		return nil
	}
}

func (c *Consumer) handleDecision(ctx context.Context, p *decisionPayload) error {
	if (p.AlertID == "") == (p.ActionID == "") {
		return errors.New("decision event needs exactly one of alert_id and action_id")
	}

	if p.AlertID != "" {
		var decision moderation.Decision
		switch p.Symbol {
		case moderation.SymbolApprove:
			decision = moderation.DecisionApprove
		case moderation.SymbolIgnore:
			decision = moderation.DecisionIgnore
		default:
			return fmt.Errorf("unknown decision symbol %q", p.Symbol)
		}
		_, err := c.pipeline.ResolveAlertDecision(ctx, p.AlertID, decision, p.ActorID)
		return err
	}

	var kind moderation.ActionKind
	switch p.Symbol {
	case moderation.SymbolWarn:
		kind = moderation.ActionWarn
	case moderation.SymbolKick:
		kind = moderation.ActionKick
	case moderation.SymbolBan:
		kind = moderation.ActionBan
	case moderation.SymbolQuarantine:
		kind = moderation.ActionQuarantine
	default:
		return fmt.Errorf("unknown action symbol %q", p.Symbol)
	}
	_, err := c.pipeline.ResolveActionDecision(ctx, p.ActionID, kind)
	return err
}
