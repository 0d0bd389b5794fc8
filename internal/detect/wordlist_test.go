package detect

import (
	"context"
	"testing"

	"github.com/Deaeath/colossus-guard/internal/moderation"
)

func TestWordlist_CaseInsensitiveSubstring(t *testing.T) {
	t.Parallel()

	w, err := NewWordlist([]string{"badword"}, nil)
	if err != nil {
		t.Fatalf("NewWordlist: %v", err)
	}

	m := w.Match("This contains BADWORD here")
	if m == nil {
		t.Fatal("expected match")
	}
	if m.Term != "badword" {
		t.Errorf("Term = %q, want %q", m.Term, "badword")
	}
	if m.Start < 0 || m.End <= m.Start {
		t.Errorf("span = [%d,%d), want a non-empty span", m.Start, m.End)
	}
}

func TestWordlist_EmptySetNeverMatches(t *testing.T) {
	t.Parallel()

	w, err := NewWordlist(nil, nil)
	if err != nil {
		t.Fatalf("NewWordlist: %v", err)
	}
	if !w.Empty() {
		t.Fatal("expected Empty")
	}
	if m := w.Match("anything at all"); m != nil {
		t.Fatalf("Match = %+v, want nil", m)
	}
}

func TestWordlist_FoldsAccents(t *testing.T) {
	t.Parallel()

	w, _ := NewWordlist([]string{"badword"}, nil)
	if m := w.Match("this is bádwörd text"); m == nil {
		t.Fatal("expected accented spelling to match after folding")
	}
}

func TestWordlist_Patterns(t *testing.T) {
	t.Parallel()

	w, err := NewWordlist(nil, []string{`b[a4]dw[o0]rd`})
	if err != nil {
		t.Fatalf("NewWordlist: %v", err)
	}
	m := w.Match("spelled B4DW0RD to dodge the list")
	if m == nil {
		t.Fatal("expected pattern match")
	}
	if m.Term != "B4DW0RD" {
		t.Errorf("Term = %q, want %q", m.Term, "B4DW0RD")
	}
}

func TestWordlist_InvalidPattern(t *testing.T) {
	t.Parallel()

	if _, err := NewWordlist(nil, []string{"("}); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestWordlistDetector_Detect(t *testing.T) {
	t.Parallel()

	w, _ := NewWordlist([]string{"badword"}, nil)
	d := NewWordlistDetector(w)

	inc, err := d.Detect(context.Background(), &moderation.Content{
		TenantID:  "t1",
		ActorID:   "u1",
		ChannelID: "c1",
		MessageID: "m1",
		Text:      "This contains BADWORD here",
	})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if inc == nil {
		t.Fatal("expected incident")
	}
	if inc.Kind != moderation.KindFlaggedWord {
		t.Errorf("Kind = %q, want %q", inc.Kind, moderation.KindFlaggedWord)
	}
	if inc.Evidence.Term != "badword" {
		t.Errorf("Term = %q, want %q", inc.Evidence.Term, "badword")
	}
	if inc.Evidence.MessageID != "m1" {
		t.Errorf("MessageID = %q, want m1", inc.Evidence.MessageID)
	}
	if inc.ID == "" {
		t.Error("expected incident id")
	}
}

func TestWordlistDetector_NoMatch(t *testing.T) {
	t.Parallel()

	w, _ := NewWordlist([]string{"badword"}, nil)
	d := NewWordlistDetector(w)

	inc, err := d.Detect(context.Background(), &moderation.Content{Text: "perfectly fine text"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if inc != nil {
		t.Fatalf("incident = %+v, want nil", inc)
	}
}
