package consumer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Deaeath/colossus-guard/internal/moderation"
)

type mockPipeline struct {
	mu           sync.Mutex
	contents     []*moderation.Content
	attributions []*moderation.Attribution
	alertCalls   []string
	actionCalls  []string
}

func (m *mockPipeline) HandleContent(_ context.Context, c *moderation.Content) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contents = append(m.contents, c)
	return nil
}

func (m *mockPipeline) HandleAttribution(_ context.Context, at *moderation.Attribution) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attributions = append(m.attributions, at)
	return "", nil
}

func (m *mockPipeline) ResolveAlertDecision(_ context.Context, alertID string, decision moderation.Decision, _ string) (moderation.Effect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alertCalls = append(m.alertCalls, alertID+"/"+string(decision))
	return moderation.EffectIgnored, nil
}

func (m *mockPipeline) ResolveActionDecision(_ context.Context, actionID string, kind moderation.ActionKind) (moderation.Effect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actionCalls = append(m.actionCalls, actionID+"/"+string(kind))
	return moderation.EffectActionExecuted, nil
}

func (m *mockPipeline) counts() (int, int, int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contents), len(m.attributions), len(m.alertCalls), len(m.actionCalls)
}

func mustFrame(t *testing.T, seq int64, typ string, payload any) *Frame {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return &Frame{Seq: seq, Type: typ, Payload: raw}
}

func TestHandleFrame_Content(t *testing.T) {
	t.Parallel()

	pipe := &mockPipeline{}
	c := New("ws://unused", "", pipe, nil)

	frame := mustFrame(t, 1, EventContent, contentPayload{
		TenantID: "t1", ActorID: "u1", ChannelID: "c1", MessageID: "m1", Text: "hello",
	})
	if err := c.handleFrame(context.Background(), frame); err != nil {
		t.Fatalf("handleFrame: %v", err)
	}
	if len(pipe.contents) != 1 || pipe.contents[0].Text != "hello" {
		t.Errorf("contents = %+v", pipe.contents)
	}
}

func TestHandleFrame_Attribution(t *testing.T) {
	t.Parallel()

	pipe := &mockPipeline{}
	c := New("ws://unused", "", pipe, nil)

	frame := mustFrame(t, 2, EventAttribution, attributionPayload{
		TenantID: "t1", ActorID: "u1", Kind: "role_delete", At: time.Now(),
	})
	if err := c.handleFrame(context.Background(), frame); err != nil {
		t.Fatalf("handleFrame: %v", err)
	}
	if len(pipe.attributions) != 1 || pipe.attributions[0].Kind != "role_delete" {
		t.Errorf("attributions = %+v", pipe.attributions)
	}
}

func TestHandleFrame_Decisions(t *testing.T) {
	t.Parallel()

	pipe := &mockPipeline{}
	c := New("ws://unused", "", pipe, nil)
	ctx := context.Background()

	if err := c.handleFrame(ctx, mustFrame(t, 3, EventDecision, decisionPayload{
		AlertID: "a-1", ActorID: "mod", Symbol: "approve",
	})); err != nil {
		t.Fatalf("alert decision: %v", err)
	}
	if err := c.handleFrame(ctx, mustFrame(t, 4, EventDecision, decisionPayload{
		ActionID: "act-1", ActorID: "mod", Symbol: "ban",
	})); err != nil {
		t.Fatalf("action decision: %v", err)
	}

	if len(pipe.alertCalls) != 1 || pipe.alertCalls[0] != "a-1/approve" {
		t.Errorf("alert calls = %v", pipe.alertCalls)
	}
	if len(pipe.actionCalls) != 1 || pipe.actionCalls[0] != "act-1/ban" {
		t.Errorf("action calls = %v", pipe.actionCalls)
	}
}

func TestHandleFrame_DecisionValidation(t *testing.T) {
	t.Parallel()

	pipe := &mockPipeline{}
	c := New("ws://unused", "", pipe, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		payload decisionPayload
	}{
		{"neither id", decisionPayload{Symbol: "approve"}},
		{"both ids", decisionPayload{AlertID: "a", ActionID: "b", Symbol: "approve"}},
		{"bad alert symbol", decisionPayload{AlertID: "a", Symbol: "nope"}},
		{"bad action symbol", decisionPayload{ActionID: "b", Symbol: "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.handleFrame(ctx, mustFrame(t, 5, EventDecision, tt.payload)); err == nil {
				t.Error("expected error")
			}
		})
	}
	if len(pipe.alertCalls)+len(pipe.actionCalls) != 0 {
		t.Errorf("unexpected dispatches: %v %v", pipe.alertCalls, pipe.actionCalls)
	}
}

func TestHandleFrame_UnknownTypeIgnored(t *testing.T) {
	t.Parallel()

	pipe := &mockPipeline{}
	c := New("ws://unused", "", pipe, nil)

	if err := c.handleFrame(context.Background(), &Frame{Seq: 9, Type: "presence"}); err != nil {
		t.Fatalf("handleFrame: %v", err)
	}
}

func TestRun_ConsumesStream(t *testing.T) {
	t.Parallel()

	frames := []string{
		`{"seq":1,"type":"content","payload":{"tenant_id":"t1","actor_id":"u1","text":"hi"}}`,
		`not json at all`,
		`{"seq":2,"type":"attribution","payload":{"tenant_id":"t1","actor_id":"u1","kind":"ban"}}`,
		`{"seq":3,"type":"decision","payload":{"alert_id":"a-1","actor_id":"mod","symbol":"ignore"}}`,
	}

	authCh := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCh <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	pipe := &mockPipeline{}
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(wsURL, "secret", pipe, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()

	deadline := time.After(5 * time.Second)
	for {
		nc, na, nal, _ := pipe.counts()
		if nc == 1 && na == 1 && nal == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out: contents=%d attributions=%d alerts=%d", nc, na, nal)
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}

	if got := <-authCh; got != "Bearer secret" {
		t.Errorf("Authorization = %q", got)
	}
	if c.LastSeq() != 3 {
		t.Errorf("LastSeq = %d, want 3", c.LastSeq())
	}
}
