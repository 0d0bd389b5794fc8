package moderation

import "context"

// Content is an inbound content-posted event as seen by the detectors.
type Content struct {
	TenantID    string
	ActorID     string
	ChannelID   string
	MessageID   string
	Text        string
	Attachments []string
	IsBot       bool
}

// Detector is the shared capability of the content detectors. A nil incident
// with nil error means no match. Detectors are pure given their inputs;
// collaborator failures (OCR, history reads) surface as errors and are
// handled per-event by the Service.
type Detector interface {
	Name() string
	Detect(ctx context.Context, c *Content) (*Incident, error)
}
