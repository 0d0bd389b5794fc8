// Package memstore provides an in-memory implementation of moderation.Store.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/Deaeath/colossus-guard/internal/moderation"
)

// Store holds moderation records in memory. Suitable for dev/testing; the
// claim operations give the same exactly-once guarantee as the SQL store.
type Store struct {
	mu      sync.Mutex
	alerts  map[string]*moderation.AlertRecord
	actions map[string]*moderation.ActionRecord
	tenants map[string]*moderation.TenantConfig
	history map[string][]moderation.Occurrence // normalized content -> occurrences
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		alerts:  make(map[string]*moderation.AlertRecord),
		actions: make(map[string]*moderation.ActionRecord),
		tenants: make(map[string]*moderation.TenantConfig),
		history: make(map[string][]moderation.Occurrence),
	}
}

// CreateAlert inserts a pending alert record.
func (s *Store) CreateAlert(_ context.Context, rec *moderation.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[rec.AlertID]; ok {
		return moderation.ErrAlertExists
	}
	cp := *rec
	cp.Status = moderation.StatusPending
	s.alerts[rec.AlertID] = &cp
	return nil
}

// GetAlert retrieves a pending alert record by id. Returns a copy.
func (s *Store) GetAlert(_ context.Context, alertID string) (*moderation.AlertRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.alerts[alertID]
	if !ok || rec.Status != moderation.StatusPending {
		return nil, false, nil
	}
	cp := *rec
	return &cp, true, nil
}

// ClaimAlert flips a pending alert to resolved; only the first claimant
// observes ok=true.
func (s *Store) ClaimAlert(_ context.Context, alertID string) (*moderation.AlertRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.alerts[alertID]
	if !ok || rec.Status != moderation.StatusPending {
		return nil, false, nil
	}
	rec.Status = moderation.StatusResolved
	cp := *rec
	return &cp, true, nil
}

// ExpireAlertsBefore flips stale pending alerts to expired.
func (s *Store) ExpireAlertsBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, rec := range s.alerts {
		if rec.Status == moderation.StatusPending && rec.CreatedAt.Before(cutoff) {
			rec.Status = moderation.StatusExpired
			n++
		}
	}
	return n, nil
}

// CreateAction inserts a pending action record.
func (s *Store) CreateAction(_ context.Context, rec *moderation.ActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actions[rec.ActionID]; ok {
		return moderation.ErrActionExists
	}
	cp := *rec
	cp.Status = moderation.StatusPending
	s.actions[rec.ActionID] = &cp
	return nil
}

// GetAction retrieves a pending action record by id. Returns a copy.
func (s *Store) GetAction(_ context.Context, actionID string) (*moderation.ActionRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.actions[actionID]
	if !ok || rec.Status != moderation.StatusPending {
		return nil, false, nil
	}
	cp := *rec
	return &cp, true, nil
}

// ClaimAction flips a pending action to resolved; only the first claimant
// observes ok=true.
func (s *Store) ClaimAction(_ context.Context, actionID string) (*moderation.ActionRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.actions[actionID]
	if !ok || rec.Status != moderation.StatusPending {
		return nil, false, nil
	}
	rec.Status = moderation.StatusResolved
	cp := *rec
	return &cp, true, nil
}

// GetTenantConfig retrieves a tenant's security config. Returns a copy.
func (s *Store) GetTenantConfig(_ context.Context, tenantID string) (*moderation.TenantConfig, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.tenants[tenantID]
	if !ok {
		return nil, false, nil
	}
	cp := *cfg
	return &cp, true, nil
}

// PutTenantConfig stores a copy of the tenant config.
func (s *Store) PutTenantConfig(_ context.Context, cfg *moderation.TenantConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cfg
	s.tenants[cfg.TenantID] = &cp
	return nil
}

// RecordMessage appends one occurrence to the content history.
func (s *Store) RecordMessage(_ context.Context, normalized string, occ *moderation.Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[normalized] = append(s.history[normalized], *occ)
	return nil
}

// FindDuplicates returns one occurrence per distinct actor for the content.
func (s *Store) FindDuplicates(_ context.Context, normalized string) ([]moderation.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	actors := make(map[string]bool)
	var out []moderation.Occurrence
	for _, occ := range s.history[normalized] {
		if actors[occ.ActorID] {
			continue
		}
		actors[occ.ActorID] = true
		out = append(out, occ)
	}
	return out, nil
}
