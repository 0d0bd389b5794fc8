package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Deaeath/colossus-guard/internal/moderation"
)

func TestStore_CreateAndGetAlert(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	rec := &moderation.AlertRecord{AlertID: "a-1", SourceActorID: "u1", ChannelID: "c1", TenantID: "t1"}
	if err := s.CreateAlert(ctx, rec); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}

	got, ok, err := s.GetAlert(ctx, "a-1")
	if err != nil {
		t.Fatalf("GetAlert: %v", err)
	}
	if !ok {
		t.Fatal("expected alert to be found")
	}
	if got.SourceActorID != "u1" || got.ChannelID != "c1" || got.TenantID != "t1" {
		t.Errorf("record = (%q,%q,%q), want (u1,c1,t1)", got.SourceActorID, got.ChannelID, got.TenantID)
	}
	if got.Status != moderation.StatusPending {
		t.Errorf("Status = %q, want pending", got.Status)
	}
}

func TestStore_CreateAlertDuplicate(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	_ = s.CreateAlert(ctx, &moderation.AlertRecord{AlertID: "a-1"})
	err := s.CreateAlert(ctx, &moderation.AlertRecord{AlertID: "a-1"})
	if !errors.Is(err, moderation.ErrAlertExists) {
		t.Fatalf("err = %v, want ErrAlertExists", err)
	}
}

func TestStore_ClaimAlertOnce(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	_ = s.CreateAlert(ctx, &moderation.AlertRecord{AlertID: "a-1", SourceActorID: "u1"})

	rec, ok, err := s.ClaimAlert(ctx, "a-1")
	if err != nil {
		t.Fatalf("ClaimAlert: %v", err)
	}
	if !ok {
		t.Fatal("first claim must succeed")
	}
	if rec.SourceActorID != "u1" {
		t.Errorf("SourceActorID = %q, want u1", rec.SourceActorID)
	}

	// second claim and any lookup observe the record as gone
	if _, ok, _ := s.ClaimAlert(ctx, "a-1"); ok {
		t.Fatal("second claim must fail")
	}
	if _, ok, _ := s.GetAlert(ctx, "a-1"); ok {
		t.Fatal("resolved alert must not be returned by GetAlert")
	}
}

func TestStore_ClaimAlertMissing(t *testing.T) {
	t.Parallel()

	s := New()
	if _, ok, _ := s.ClaimAlert(context.Background(), "nope"); ok {
		t.Fatal("claim of missing id must fail")
	}
}

func TestStore_ClaimAlertConcurrent(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	_ = s.CreateAlert(ctx, &moderation.AlertRecord{AlertID: "a-1"})

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	var wins int

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, ok, _ := s.ClaimAlert(ctx, "a-1"); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}
}

func TestStore_ExpireAlertsBefore(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	old := time.Now().Add(-2 * time.Hour)
	_ = s.CreateAlert(ctx, &moderation.AlertRecord{AlertID: "a-old", CreatedAt: old})
	_ = s.CreateAlert(ctx, &moderation.AlertRecord{AlertID: "a-new", CreatedAt: time.Now()})

	n, err := s.ExpireAlertsBefore(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ExpireAlertsBefore: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}
	if _, ok, _ := s.ClaimAlert(ctx, "a-old"); ok {
		t.Fatal("expired alert must not be claimable")
	}
	if _, ok, _ := s.ClaimAlert(ctx, "a-new"); !ok {
		t.Fatal("fresh alert must still be claimable")
	}
}

func TestStore_ActionNamespaceIndependent(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	_ = s.CreateAlert(ctx, &moderation.AlertRecord{AlertID: "x-1"})
	_ = s.CreateAction(ctx, &moderation.ActionRecord{ActionID: "x-1", TargetActorID: "u9"})

	// claiming the alert must not disturb the action with the same id
	if _, ok, _ := s.ClaimAlert(ctx, "x-1"); !ok {
		t.Fatal("alert claim failed")
	}
	got, ok, err := s.ClaimAction(ctx, "x-1")
	if err != nil {
		t.Fatalf("ClaimAction: %v", err)
	}
	if !ok {
		t.Fatal("action claim failed")
	}
	if got.TargetActorID != "u9" {
		t.Errorf("TargetActorID = %q, want u9", got.TargetActorID)
	}
	if _, ok, _ := s.ClaimAction(ctx, "x-1"); ok {
		t.Fatal("second action claim must fail")
	}
}

func TestStore_TenantConfigRoundTrip(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	if _, ok, _ := s.GetTenantConfig(ctx, "t1"); ok {
		t.Fatal("expected no config for unknown tenant")
	}

	cfg := &moderation.TenantConfig{TenantID: "t1", ActionThreshold: 7, TimeWindowSeconds: 45, StaffChannelID: "staff"}
	if err := s.PutTenantConfig(ctx, cfg); err != nil {
		t.Fatalf("PutTenantConfig: %v", err)
	}

	got, ok, err := s.GetTenantConfig(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTenantConfig: %v", err)
	}
	if !ok {
		t.Fatal("expected config")
	}
	if got.ActionThreshold != 7 || got.TimeWindowSeconds != 45 || got.StaffChannelID != "staff" {
		t.Errorf("config = %+v", got)
	}
}

func TestStore_FindDuplicatesDistinctActors(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	const content = "normalized content"

	_ = s.RecordMessage(ctx, content, &moderation.Occurrence{TenantID: "t1", ActorID: "u1", MessageID: "m1"})
	_ = s.RecordMessage(ctx, content, &moderation.Occurrence{TenantID: "t1", ActorID: "u1", MessageID: "m2"})
	_ = s.RecordMessage(ctx, content, &moderation.Occurrence{TenantID: "t2", ActorID: "u2", MessageID: "m3"})

	occs, err := s.FindDuplicates(ctx, content)
	if err != nil {
		t.Fatalf("FindDuplicates: %v", err)
	}
	if len(occs) != 2 {
		t.Fatalf("occurrences = %d, want 2 (one per actor)", len(occs))
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	const n = 100

	var wg sync.WaitGroup
	wg.Add(n * 2)

	for i := 0; i < n; i++ {
		id := fmt.Sprintf("a-%d", i)
		go func() {
			defer wg.Done()
			_ = s.CreateAlert(ctx, &moderation.AlertRecord{AlertID: id})
		}()
		go func() {
			defer wg.Done()
			_, _, _ = s.GetAlert(ctx, id)
			_, _, _ = s.ClaimAlert(ctx, id)
		}()
	}
	wg.Wait()
}
