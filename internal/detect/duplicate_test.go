package detect

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Deaeath/colossus-guard/internal/moderation"
)

// memHistory implements History for testing.
type memHistory struct {
	mu      sync.Mutex
	seen    map[string][]moderation.Occurrence
	recErr  error
	findErr error
}

func newMemHistory() *memHistory {
	return &memHistory{seen: make(map[string][]moderation.Occurrence)}
}

func (h *memHistory) RecordMessage(_ context.Context, normalized string, occ *moderation.Occurrence) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.recErr != nil {
		return h.recErr
	}
	h.seen[normalized] = append(h.seen[normalized], *occ)
	return nil
}

func (h *memHistory) FindDuplicates(_ context.Context, normalized string) ([]moderation.Occurrence, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.findErr != nil {
		return nil, h.findErr
	}
	var out []moderation.Occurrence
	actors := make(map[string]bool)
	for _, occ := range h.seen[normalized] {
		if actors[occ.ActorID] {
			continue
		}
		actors[occ.ActorID] = true
		out = append(out, occ)
	}
	return out, nil
}

func TestDuplicate_BelowMinWords(t *testing.T) {
	t.Parallel()

	h := newMemHistory()
	d := NewDuplicateDetector(h, 5)

	inc, err := d.Detect(context.Background(), &moderation.Content{
		TenantID: "t1", ActorID: "u1", Text: "only four words here",
	})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if inc != nil {
		t.Fatal("4-word message must not produce an incident")
	}
	if len(h.seen) != 0 {
		t.Error("short content must not be recorded")
	}
}

func TestDuplicate_DistinctActorsAcrossTenants(t *testing.T) {
	t.Parallel()

	h := newMemHistory()
	d := NewDuplicateDetector(h, 5)
	ctx := context.Background()
	const text = "exactly five words right here"

	inc, err := d.Detect(ctx, &moderation.Content{
		TenantID: "t1", ActorID: "u1", ChannelID: "c1", MessageID: "m1", Text: text,
	})
	if err != nil {
		t.Fatalf("Detect first: %v", err)
	}
	if inc != nil {
		t.Fatal("single actor must not produce an incident")
	}

	inc, err = d.Detect(ctx, &moderation.Content{
		TenantID: "t2", ActorID: "u2", ChannelID: "c2", MessageID: "m2", Text: text,
	})
	if err != nil {
		t.Fatalf("Detect second: %v", err)
	}
	if inc == nil {
		t.Fatal("expected repeated_message incident for second distinct actor")
	}
	if inc.Kind != moderation.KindRepeatedMessage {
		t.Errorf("Kind = %q, want %q", inc.Kind, moderation.KindRepeatedMessage)
	}
	if len(inc.Evidence.Occurrences) != 2 {
		t.Fatalf("occurrences = %d, want 2 (one per actor)", len(inc.Evidence.Occurrences))
	}
}

func TestDuplicate_SameActorRepeatIsNotDuplicate(t *testing.T) {
	t.Parallel()

	h := newMemHistory()
	d := NewDuplicateDetector(h, 5)
	ctx := context.Background()
	const text = "exactly five words right here"

	for i := 0; i < 3; i++ {
		inc, err := d.Detect(ctx, &moderation.Content{TenantID: "t1", ActorID: "u1", Text: text})
		if err != nil {
			t.Fatalf("Detect: %v", err)
		}
		if inc != nil {
			t.Fatal("one actor repeating themselves is not a repeated_message")
		}
	}
}

func TestDuplicate_NormalizationIsCaseAndSpaceInsensitive(t *testing.T) {
	t.Parallel()

	h := newMemHistory()
	d := NewDuplicateDetector(h, 5)
	ctx := context.Background()

	_, _ = d.Detect(ctx, &moderation.Content{TenantID: "t1", ActorID: "u1", Text: "Exactly Five Words Right Here"})
	inc, err := d.Detect(ctx, &moderation.Content{TenantID: "t2", ActorID: "u2", Text: "exactly  five words right\there"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if inc == nil {
		t.Fatal("case and whitespace variants must compare equal")
	}
}

func TestDuplicate_HistoryErrorPropagates(t *testing.T) {
	t.Parallel()

	h := newMemHistory()
	h.recErr = errors.New("db down")
	d := NewDuplicateDetector(h, 1)

	_, err := d.Detect(context.Background(), &moderation.Content{TenantID: "t1", ActorID: "u1", Text: "hello"})
	if err == nil {
		t.Fatal("expected error from history")
	}
}
