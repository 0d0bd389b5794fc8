package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Deaeath/colossus-guard/internal/moderation"
)

func TestActionExecuted_PostsToWebhook(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL)
	rec := &moderation.ActionRecord{
		ActionID:      "01JN123",
		TenantID:      "t1",
		TargetActorID: "user-9",
		ChannelID:     "staff",
		Reason:        "rate anomaly: 7 privileged actions in 30s",
	}

	if err := n.ActionExecuted(context.Background(), rec, moderation.ActionBan); err != nil {
		t.Fatalf("ActionExecuted: %v", err)
	}

	blocks, ok := got["blocks"].([]any)
	if !ok {
		t.Fatal("expected blocks array in payload")
	}

	// header, divider, fields, divider, reason, divider, context = 7 blocks
	if len(blocks) != 7 {
		t.Errorf("blocks count = %d, want 7", len(blocks))
	}

	// Verify header contains the action kind and the ban emoji
	header := blocks[0].(map[string]any)
	headerText := header["text"].(map[string]any)["text"].(string)
	if !strings.Contains(headerText, "ban") {
		t.Errorf("header text = %q, want to contain ban", headerText)
	}
	if !strings.Contains(headerText, "\U0001f534") {
		t.Errorf("header should contain red circle for ban")
	}
}

func TestActionExecuted_NoOpWithoutURL(t *testing.T) {
	t.Parallel()

	n := New("")
	if err := n.ActionExecuted(context.Background(), &moderation.ActionRecord{}, moderation.ActionWarn); err != nil {
		t.Fatalf("ActionExecuted with empty URL should be no-op, got: %v", err)
	}
}

func TestActionExecuted_WebhookError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	n := New(srv.URL)
	err := n.ActionExecuted(context.Background(), &moderation.ActionRecord{ActionID: "a"}, moderation.ActionKick)
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("error = %v, want to mention status 400", err)
	}
}

func TestActionExecuted_TruncatesLongReason(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	longReason := strings.Repeat("x", 4000)
	n := New(srv.URL)
	err := n.ActionExecuted(context.Background(), &moderation.ActionRecord{
		ActionID: "01JN456",
		Reason:   longReason,
	}, moderation.ActionQuarantine)
	if err != nil {
		t.Fatalf("ActionExecuted: %v", err)
	}

	blocks := got["blocks"].([]any)
	reasonSection := blocks[4].(map[string]any)
	text := reasonSection["text"].(map[string]any)["text"].(string)

	// Text includes the "*Reason*\n\n" prefix, so the reason portion is what follows.
	if len(text) > maxReasonLen+len("*Reason*\n\n") {
		t.Errorf("reason text length = %d, expected <= %d", len(text), maxReasonLen+len("*Reason*\n\n"))
	}
	if !strings.HasSuffix(text, "...") {
		t.Error("expected truncated reason to end with ...")
	}
}

func TestActionEmoji(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		kind moderation.ActionKind
		want string
	}{
		{"ban", moderation.ActionBan, "\U0001f534"},
		{"kick", moderation.ActionKick, "\U0001f7e1"},
		{"quarantine", moderation.ActionQuarantine, "\U0001f7e1"},
		{"warn", moderation.ActionWarn, "\U0001f7e2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := actionEmoji(tt.kind)
			if got != tt.want {
				t.Errorf("actionEmoji(%q) = %q, want %q", tt.kind, got, tt.want)
			}
		})
	}
}

func FuzzSlackBuild(f *testing.F) {
	f.Add("t1", "user-1", "staff", "rate anomaly detected")
	f.Add("", "", "", "")
	f.Add("<@U123> mention", "*bold* _italic_", "~strike~", "```code```")
	f.Add("tenant\x00\x01", "actor\nline", "chan\ttab", strings.Repeat("x", 10000))

	f.Fuzz(func(t *testing.T, tenant, target, channel, reason string) {
		rec := &moderation.ActionRecord{
			ActionID:      "fuzz-id",
			TenantID:      tenant,
			TargetActorID: target,
			ChannelID:     channel,
			Reason:        reason,
		}

		// Must not panic
		msg := buildMessage(rec, moderation.ActionBan)

		// Must produce valid JSON
		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("buildMessage produced non-marshalable output: %v", err)
		}

		// Must round-trip
		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("buildMessage output does not round-trip: %v", err)
		}
	})
}
