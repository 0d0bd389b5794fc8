package detect

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Deaeath/colossus-guard/internal/moderation"
)

// Wordlist matches normalized text against a configured phrase set and a set
// of compiled patterns. An empty configuration never matches.
type Wordlist struct {
	phrases  []string
	patterns []*regexp.Regexp
}

// NewWordlist builds a matcher from literal phrases and regular-expression
// patterns. Phrases are normalized once at construction; patterns are
// compiled case-insensitively. Invalid patterns are rejected.
func NewWordlist(phrases []string, patterns []string) (*Wordlist, error) {
	w := &Wordlist{}
	for _, p := range phrases {
		p = normalize(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		w.phrases = append(w.phrases, p)
	}
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		w.patterns = append(w.patterns, re)
	}
	return w, nil
}

// Empty reports whether the matcher has no phrases and no patterns.
func (w *Wordlist) Empty() bool {
	return len(w.phrases) == 0 && len(w.patterns) == 0
}

// Match returns the first phrase or pattern match in text, or nil.
// Phrase matching is case-insensitive substring over normalized text.
func (w *Wordlist) Match(text string) *Match {
	folded := normalize(text)
	for _, p := range w.phrases {
		if i := strings.Index(folded, p); i >= 0 {
			return &Match{Term: p, Start: i, End: i + len(p)}
		}
	}
	for _, re := range w.patterns {
		if loc := re.FindStringIndex(text); loc != nil {
			return &Match{Term: text[loc[0]:loc[1]], Start: loc[0], End: loc[1]}
		}
	}
	return nil
}

// WordlistDetector raises a flagged_word incident when message text matches
// the phrase set.
type WordlistDetector struct {
	matcher *Wordlist
}

// NewWordlistDetector wraps a Wordlist as a moderation.Detector.
func NewWordlistDetector(matcher *Wordlist) *WordlistDetector {
	return &WordlistDetector{matcher: matcher}
}

// Name implements moderation.Detector.
func (d *WordlistDetector) Name() string { return "wordlist" }

// Detect implements moderation.Detector.
func (d *WordlistDetector) Detect(_ context.Context, c *moderation.Content) (*moderation.Incident, error) {
	if d.matcher.Empty() || c.Text == "" {
		return nil, nil
	}
	m := d.matcher.Match(c.Text)
	if m == nil {
		return nil, nil
	}
	return &moderation.Incident{
		ID:            ulid.Make().String(),
		TenantID:      c.TenantID,
		SourceActorID: c.ActorID,
		Kind:          moderation.KindFlaggedWord,
		Evidence: moderation.Evidence{
			Snippet:   c.Text,
			ChannelID: c.ChannelID,
			MessageID: c.MessageID,
			Term:      m.Term,
		},
		CreatedAt: time.Now(),
	}, nil
}
