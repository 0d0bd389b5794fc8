package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Deaeath/colossus-guard/internal/moderation"
)

// History is the durable message history the duplicate detector needs.
// Repetition may be observed long after the original post or after a process
// restart, so this is persistence, not memory.
type History interface {
	RecordMessage(ctx context.Context, normalized string, occ *moderation.Occurrence) error
	FindDuplicates(ctx context.Context, normalized string) ([]moderation.Occurrence, error)
}

// DuplicateDetector raises a repeated_message incident when identical
// normalized content has been posted by more than one distinct actor,
// across tenants.
type DuplicateDetector struct {
	history  History
	minWords int
}

// NewDuplicateDetector builds a detector over the given history. Content
// below minWords words is never considered.
func NewDuplicateDetector(history History, minWords int) *DuplicateDetector {
	return &DuplicateDetector{history: history, minWords: minWords}
}

// Name implements moderation.Detector.
func (d *DuplicateDetector) Name() string { return "duplicate" }

// Detect implements moderation.Detector.
func (d *DuplicateDetector) Detect(ctx context.Context, c *moderation.Content) (*moderation.Incident, error) {
	normalized := normalizeContent(c.Text)
	if wordCount(normalized) < d.minWords {
		return nil, nil
	}

	occ := &moderation.Occurrence{
		TenantID:  c.TenantID,
		ActorID:   c.ActorID,
		ChannelID: c.ChannelID,
		MessageID: c.MessageID,
		CreatedAt: time.Now(),
	}
	if err := d.history.RecordMessage(ctx, normalized, occ); err != nil {
		return nil, fmt.Errorf("record message: %w", err)
	}

	occs, err := d.history.FindDuplicates(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("find duplicates: %w", err)
	}
	if len(occs) < 2 {
		return nil, nil
	}

	return &moderation.Incident{
		ID:            ulid.Make().String(),
		TenantID:      c.TenantID,
		SourceActorID: c.ActorID,
		Kind:          moderation.KindRepeatedMessage,
		Evidence: moderation.Evidence{
			Snippet:     c.Text,
			ChannelID:   c.ChannelID,
			MessageID:   c.MessageID,
			Occurrences: occs,
		},
		CreatedAt: time.Now(),
	}, nil
}
