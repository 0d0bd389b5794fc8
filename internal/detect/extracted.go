package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Deaeath/colossus-guard/internal/moderation"
)

// Extractor produces text from an image attachment. Implemented by the OCR
// collaborator; latency and failure are its concern, not the matcher's.
type Extractor interface {
	ExtractText(ctx context.Context, imageURL string) (string, error)
}

// ExtractedTextDetector runs the word-list matcher over OCR-extracted
// attachment text and raises nsfw_content incidents.
type ExtractedTextDetector struct {
	matcher   *Wordlist
	extractor Extractor
}

// NewExtractedTextDetector wires a Wordlist to an Extractor.
func NewExtractedTextDetector(matcher *Wordlist, extractor Extractor) *ExtractedTextDetector {
	return &ExtractedTextDetector{matcher: matcher, extractor: extractor}
}

// Name implements moderation.Detector.
func (d *ExtractedTextDetector) Name() string { return "extracted_text" }

// Detect implements moderation.Detector. The first attachment whose extracted
// text matches wins; an extraction failure aborts this detector for the event
// (the caller logs and moves on, it never blocks unrelated events).
func (d *ExtractedTextDetector) Detect(ctx context.Context, c *moderation.Content) (*moderation.Incident, error) {
	if d.matcher.Empty() || len(c.Attachments) == 0 {
		return nil, nil
	}
	for _, url := range c.Attachments {
		text, err := d.extractor.ExtractText(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", url, err)
		}
		m := d.matcher.Match(text)
		if m == nil {
			continue
		}
		return &moderation.Incident{
			ID:            ulid.Make().String(),
			TenantID:      c.TenantID,
			SourceActorID: c.ActorID,
			Kind:          moderation.KindNSFWContent,
			Evidence: moderation.Evidence{
				Snippet:       c.Text,
				ChannelID:     c.ChannelID,
				MessageID:     c.MessageID,
				ExtractedText: text,
				Term:          m.Term,
			},
			CreatedAt: time.Now(),
		}, nil
	}
	return nil, nil
}
