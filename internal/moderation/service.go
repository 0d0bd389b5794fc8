package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/linnemanlabs/go-core/log"
)

const (
	maxSnippetLen = 280

	// decision affordance symbols attached to posted alerts and menus
	SymbolApprove    = "approve"
	SymbolIgnore     = "ignore"
	SymbolWarn       = "warn"
	SymbolKick       = "kick"
	SymbolBan        = "ban"
	SymbolQuarantine = "quarantine"

	createRetries    = 3
	createRetryDelay = 200 * time.Millisecond

	tenantCacheSize = 1024
	tenantCacheTTL  = time.Minute
)

// Platform is what the Service needs from the hosting integration layer.
type Platform interface {
	PostReviewableAlert(ctx context.Context, channelID, rendered string) (string, error)
	AddDecisionAffordances(ctx context.Context, messageID string, symbols []string) error
	DeleteMessage(ctx context.Context, messageID string) error
	ExecuteModerationAction(ctx context.Context, tenantID, actorID string, kind ActionKind, reason string) error
	EnsureReviewDestination(ctx context.Context, tenantID string) (string, error)
	FetchRecentPrivilegedActions(ctx context.Context, tenantID, kind string, limit int) ([]Attribution, error)
}

// RateRecorder is the sliding-window anomaly detector's contract.
type RateRecorder interface {
	Record(tenantID, actorID string, now time.Time, threshold int, window time.Duration) *Incident
}

// Notifier receives an out-of-band callout after a moderation action
// executes, for operator audit channels.
type Notifier interface {
	ActionExecuted(ctx context.Context, rec *ActionRecord, kind ActionKind) error
}

// Service is the business boundary for the moderation pipeline. It owns
// detection dispatch, alert posting, decision resolution, and the pending-
// alert expiry sweep. Every inbound event is handled in its own failure
// scope: one failing detector or store call never aborts unrelated events.
type Service struct {
	store     Store
	platform  Platform
	detectors []Detector
	rate      RateRecorder
	defaults  Defaults
	botID     string
	alertTTL  time.Duration
	logger    log.Logger
	metrics   *Metrics
	notifier  Notifier

	tenantCache *expirable.LRU[string, TenantConfig]
}

// SetNotifier installs an optional audit notifier. Must be called before the
// service starts handling events.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// NewService creates the pipeline service. botID is the bot's own actor
// identity; events it produced are never inspected. alertTTL of zero
// disables expiry.
func NewService(store Store, platform Platform, rate RateRecorder, detectors []Detector, defaults Defaults, botID string, alertTTL time.Duration, logger log.Logger, metrics *Metrics) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:       store,
		platform:    platform,
		detectors:   detectors,
		rate:        rate,
		defaults:    defaults,
		botID:       botID,
		alertTTL:    alertTTL,
		logger:      logger,
		metrics:     metrics,
		tenantCache: expirable.NewLRU[string, TenantConfig](tenantCacheSize, nil, tenantCacheTTL),
	}
}

// HandleContent runs all applicable detectors over one content-posted event
// and dispatches an alert for every incident raised. Detector failures are
// logged and skipped; they never block the remaining detectors. Returns the
// alert ids that were posted.
func (s *Service) HandleContent(ctx context.Context, c *Content) []string {
	if s.metrics != nil {
		s.metrics.EventsTotal.WithLabelValues("content").Inc()
	}
	if c.IsBot || c.ActorID == s.botID {
		return nil
	}

	var posted []string
	for _, d := range s.detectors {
		start := time.Now()
		inc, err := d.Detect(ctx, c)
		if s.metrics != nil {
			s.metrics.DetectDuration.WithLabelValues(d.Name()).Observe(time.Since(start).Seconds())
		}
		if err != nil {
			// transient collaborator failure: log and skip, no retry
			s.logger.Error(ctx, err, "detector failed",
				"detector", d.Name(), "tenant", c.TenantID, "actor", c.ActorID)
			if s.metrics != nil {
				s.metrics.DetectFailures.WithLabelValues(d.Name()).Inc()
			}
			continue
		}
		if inc == nil {
			continue
		}
		if s.metrics != nil {
			s.metrics.IncidentsTotal.WithLabelValues(string(inc.Kind)).Inc()
		}
		alertID, err := s.Dispatch(ctx, inc)
		if err != nil {
			s.logger.Error(ctx, err, "alert dispatch failed",
				"incident", inc.ID, "kind", inc.Kind, "tenant", inc.TenantID)
			continue
		}
		posted = append(posted, alertID)
	}
	return posted
}

// HandleAttribution feeds one privileged-action attribution into the rate
// detector and dispatches an alert if the tenant's threshold is crossed.
func (s *Service) HandleAttribution(ctx context.Context, at *Attribution) (string, error) {
	if s.metrics != nil {
		s.metrics.EventsTotal.WithLabelValues("attribution").Inc()
	}
	if at.ActorID == s.botID {
		return "", nil
	}

	cfg := s.tenantConfig(ctx, at.TenantID)
	now := at.At
	if now.IsZero() {
		now = time.Now()
	}
	inc := s.rate.Record(at.TenantID, at.ActorID, now, cfg.ActionThreshold, cfg.Window())
	if inc == nil {
		return "", nil
	}
	inc.Evidence.Snippet = fmt.Sprintf("%d privileged actions (%s) within %ds", cfg.ActionThreshold, at.Kind, cfg.TimeWindowSeconds)

	// Attach the actor's recent privileged actions so reviewers see what
	// tripped the threshold. Evidence only; fetch failure never blocks the alert.
	recent, err := s.platform.FetchRecentPrivilegedActions(ctx, at.TenantID, at.Kind, cfg.ActionThreshold)
	if err != nil {
		s.logger.Warn(ctx, "privileged action lookup failed",
			"tenant", at.TenantID, "actor", at.ActorID, "error", err)
	}
	for _, r := range recent {
		if r.ActorID != at.ActorID {
			continue
		}
		inc.Evidence.Occurrences = append(inc.Evidence.Occurrences, Occurrence{
			TenantID:  r.TenantID,
			ActorID:   r.ActorID,
			CreatedAt: r.At,
		})
	}

	if s.metrics != nil {
		s.metrics.IncidentsTotal.WithLabelValues(string(inc.Kind)).Inc()
	}
	return s.Dispatch(ctx, inc)
}

// Dispatch posts an incident as a reviewable alert and durably records it.
// The record is created as part of the posting transaction: the store write
// is retried before the id is ever claimable, and if it ultimately fails the
// posted message is rolled back so no orphan alert can collect decisions.
func (s *Service) Dispatch(ctx context.Context, inc *Incident) (string, error) {
	start := time.Now()

	dest, err := s.reviewDestination(ctx, inc.TenantID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.AlertsTotal.WithLabelValues("no_destination").Inc()
		}
		// fail open: drop the incident, log, move on
		return "", err
	}

	alertID, err := s.platform.PostReviewableAlert(ctx, dest, renderAlert(inc))
	if err != nil {
		if s.metrics != nil {
			s.metrics.AlertsTotal.WithLabelValues("post_failed").Inc()
		}
		return "", fmt.Errorf("post alert: %w", err)
	}

	rec := &AlertRecord{
		AlertID:       alertID,
		SourceActorID: inc.SourceActorID,
		ChannelID:     inc.Evidence.ChannelID,
		TenantID:      inc.TenantID,
		Kind:          inc.Kind,
		Snippet:       truncate(inc.Evidence.Snippet, maxSnippetLen),
		Status:        StatusPending,
		CreatedAt:     time.Now(),
	}
	if err := s.createWithRetry(ctx, func() error { return s.store.CreateAlert(ctx, rec) }); err != nil {
		// roll back the post so no decision can reference an id the store
		// does not know about
		if delErr := s.platform.DeleteMessage(ctx, alertID); delErr != nil {
			s.logger.Error(ctx, delErr, "alert rollback delete failed", "alert_id", alertID)
		}
		if s.metrics != nil {
			s.metrics.AlertsTotal.WithLabelValues("store_failed").Inc()
		}
		return "", fmt.Errorf("persist alert record: %w", err)
	}

	if err := s.platform.AddDecisionAffordances(ctx, alertID, []string{SymbolApprove, SymbolIgnore}); err != nil {
		// non-fatal: the alert is durable and decidable through the API
		s.logger.Warn(ctx, "adding decision affordances failed", "alert_id", alertID, "error", err)
	}

	if s.metrics != nil {
		s.metrics.AlertsTotal.WithLabelValues("posted").Inc()
		s.metrics.DispatchLatency.Observe(time.Since(start).Seconds())
	}
	s.logger.Info(ctx, "alert posted",
		"alert_id", alertID, "kind", inc.Kind, "tenant", inc.TenantID, "actor", inc.SourceActorID)
	return alertID, nil
}

// ResolveAlertDecision consumes a staff decision for a pending alert. Of any
// number of concurrent signals for one alert id, exactly one observes a
// non-AlreadyResolved effect.
func (s *Service) ResolveAlertDecision(ctx context.Context, alertID string, decision Decision, reviewerID string) (Effect, error) {
	rec, ok, err := s.store.ClaimAlert(ctx, alertID)
	if err != nil {
		return "", fmt.Errorf("claim alert %s: %w", alertID, err)
	}
	if !ok {
		// duplicate or late signal, expected
		if s.metrics != nil {
			s.metrics.ResolvesTotal.WithLabelValues("alert", string(EffectAlreadyResolved)).Inc()
		}
		return EffectAlreadyResolved, nil
	}

	L := s.logger.With("alert_id", alertID, "tenant", rec.TenantID, "reviewer", reviewerID)

	if decision == DecisionIgnore {
		if s.metrics != nil {
			s.metrics.ResolvesTotal.WithLabelValues("alert", string(EffectIgnored)).Inc()
		}
		L.Info(ctx, "alert ignored")
		return EffectIgnored, nil
	}

	// approve: post the secondary action menu and record it
	dest, err := s.reviewDestination(ctx, rec.TenantID)
	if err != nil {
		return "", fmt.Errorf("approve alert %s: %w", alertID, err)
	}

	actionID, err := s.platform.PostReviewableAlert(ctx, dest, renderActionMenu(rec))
	if err != nil {
		return "", fmt.Errorf("post action menu: %w", err)
	}

	action := &ActionRecord{
		ActionID:      actionID,
		TargetActorID: rec.SourceActorID,
		ChannelID:     rec.ChannelID,
		TenantID:      rec.TenantID,
		Reason:        actionReason(rec),
		Status:        StatusPending,
		CreatedAt:     time.Now(),
	}
	if err := s.createWithRetry(ctx, func() error { return s.store.CreateAction(ctx, action) }); err != nil {
		if delErr := s.platform.DeleteMessage(ctx, actionID); delErr != nil {
			L.Error(ctx, delErr, "action menu rollback delete failed", "action_id", actionID)
		}
		return "", fmt.Errorf("persist action record: %w", err)
	}

	if err := s.platform.AddDecisionAffordances(ctx, actionID, []string{SymbolWarn, SymbolKick, SymbolBan, SymbolQuarantine}); err != nil {
		L.Warn(ctx, "adding action affordances failed", "action_id", actionID, "error", err)
	}

	if s.metrics != nil {
		s.metrics.ResolvesTotal.WithLabelValues("alert", string(EffectMenuPosted)).Inc()
	}
	L.Info(ctx, "alert approved, action menu posted", "action_id", actionID)
	return EffectMenuPosted, nil
}

// ResolveActionDecision consumes the chosen action for a pending action
// record and invokes the moderation actuator at most once.
func (s *Service) ResolveActionDecision(ctx context.Context, actionID string, kind ActionKind) (Effect, error) {
	rec, ok, err := s.store.ClaimAction(ctx, actionID)
	if err != nil {
		return "", fmt.Errorf("claim action %s: %w", actionID, err)
	}
	if !ok {
		if s.metrics != nil {
			s.metrics.ResolvesTotal.WithLabelValues("action", string(EffectAlreadyResolved)).Inc()
		}
		return EffectAlreadyResolved, nil
	}

	L := s.logger.With("action_id", actionID, "tenant", rec.TenantID, "target", rec.TargetActorID, "kind", kind)

	err = s.platform.ExecuteModerationAction(ctx, rec.TenantID, rec.TargetActorID, kind, rec.Reason)
	switch {
	case err == nil:
		if s.metrics != nil {
			s.metrics.ActionsTotal.WithLabelValues(string(kind), "ok").Inc()
			s.metrics.ResolvesTotal.WithLabelValues("action", string(EffectActionExecuted)).Inc()
		}
		L.Info(ctx, "moderation action executed")
		s.notifyActionExecuted(ctx, rec, kind)
		return EffectActionExecuted, nil

	case errors.Is(err, ErrNotFound):
		// target vanished between detection and execution; the claim already
		// removed the pending record, nothing further to do
		if s.metrics != nil {
			s.metrics.ActionsTotal.WithLabelValues(string(kind), "not_found").Inc()
		}
		L.Warn(ctx, "action target gone", "error", err)
		return EffectAborted, nil

	case errors.Is(err, ErrPermissionDenied):
		if s.metrics != nil {
			s.metrics.ActionsTotal.WithLabelValues(string(kind), "permission_denied").Inc()
		}
		L.Error(ctx, err, "actuator lacks permission")
		s.reportPermissionFailure(ctx, rec, kind)
		return EffectAborted, nil

	default:
		if s.metrics != nil {
			s.metrics.ActionsTotal.WithLabelValues(string(kind), "error").Inc()
		}
		return "", fmt.Errorf("execute action: %w", err)
	}
}

// notifyActionExecuted fires the audit notifier, if any. Notification
// failures are logged and never affect the action outcome.
func (s *Service) notifyActionExecuted(ctx context.Context, rec *ActionRecord, kind ActionKind) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.ActionExecuted(ctx, rec, kind); err != nil {
		s.logger.Error(ctx, err, "action notification failed",
			"action_id", rec.ActionID, "kind", kind)
	}
}

// GetAlert returns one pending alert record, for triage surfaces.
func (s *Service) GetAlert(ctx context.Context, alertID string) (*AlertRecord, bool, error) {
	return s.store.GetAlert(ctx, alertID)
}

// TenantConfig returns the tenant's effective security config.
func (s *Service) TenantConfig(ctx context.Context, tenantID string) TenantConfig {
	return s.tenantConfig(ctx, tenantID)
}

// UpdateTenantConfig persists a tenant config change and drops the cached
// entry so the next event observes the new values.
func (s *Service) UpdateTenantConfig(ctx context.Context, cfg *TenantConfig) error {
	if err := s.store.PutTenantConfig(ctx, cfg); err != nil {
		return fmt.Errorf("put tenant config: %w", err)
	}
	s.tenantCache.Remove(cfg.TenantID)
	return nil
}

// RunExpiry sweeps pending alerts older than the configured TTL until ctx is
// done. No-op when the TTL is zero.
func (s *Service) RunExpiry(ctx context.Context, interval time.Duration) {
	if s.alertTTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.store.ExpireAlertsBefore(ctx, time.Now().Add(-s.alertTTL))
			if err != nil {
				s.logger.Error(ctx, err, "alert expiry sweep failed")
				continue
			}
			if n > 0 {
				if s.metrics != nil {
					s.metrics.ExpiredTotal.Add(float64(n))
				}
				s.logger.Info(ctx, "expired stale alerts", "count", n)
			}
		}
	}
}

func (s *Service) tenantConfig(ctx context.Context, tenantID string) TenantConfig {
	if cfg, ok := s.tenantCache.Get(tenantID); ok {
		return cfg
	}
	cfg := TenantConfig{
		TenantID:          tenantID,
		ActionThreshold:   s.defaults.ActionThreshold,
		TimeWindowSeconds: s.defaults.TimeWindowSeconds,
	}
	stored, ok, err := s.store.GetTenantConfig(ctx, tenantID)
	if err != nil {
		// fall back to defaults; do not cache the failure
		s.logger.Error(ctx, err, "tenant config load failed", "tenant", tenantID)
		return cfg
	}
	if ok {
		cfg = *stored
		if cfg.ActionThreshold <= 0 {
			cfg.ActionThreshold = s.defaults.ActionThreshold
		}
		if cfg.TimeWindowSeconds <= 0 {
			cfg.TimeWindowSeconds = s.defaults.TimeWindowSeconds
		}
	}
	s.tenantCache.Add(tenantID, cfg)
	return cfg
}

// reviewDestination resolves the tenant's staff review channel, falling back
// to asking the platform. An unset destination is ErrNoDestination.
func (s *Service) reviewDestination(ctx context.Context, tenantID string) (string, error) {
	cfg := s.tenantConfig(ctx, tenantID)
	if cfg.StaffChannelID != "" {
		return cfg.StaffChannelID, nil
	}
	dest, err := s.platform.EnsureReviewDestination(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("ensure review destination: %w", err)
	}
	if dest == "" {
		return "", fmt.Errorf("tenant %s: %w", tenantID, ErrNoDestination)
	}
	return dest, nil
}

func (s *Service) reportPermissionFailure(ctx context.Context, rec *ActionRecord, kind ActionKind) {
	dest, err := s.reviewDestination(ctx, rec.TenantID)
	if err != nil {
		return
	}
	msg := fmt.Sprintf("Could not %s actor %s: missing permissions. Grant the bot the required role and re-approve if needed.", kind, rec.TargetActorID)
	if _, err := s.platform.PostReviewableAlert(ctx, dest, msg); err != nil {
		s.logger.Error(ctx, err, "permission failure report failed", "tenant", rec.TenantID)
	}
}

func (s *Service) createWithRetry(ctx context.Context, create func() error) error {
	var err error
	for attempt := 0; attempt < createRetries; attempt++ {
		if err = create(); err == nil {
			return nil
		}
		if errors.Is(err, ErrAlertExists) || errors.Is(err, ErrActionExists) || ctx.Err() != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(createRetryDelay << attempt):
		}
	}
	return err
}

func renderAlert(inc *Incident) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] actor %s in tenant %s\n", inc.Kind, inc.SourceActorID, inc.TenantID)
	if inc.Evidence.Term != "" {
		fmt.Fprintf(&b, "matched: %q\n", inc.Evidence.Term)
	}
	if inc.Evidence.Snippet != "" {
		fmt.Fprintf(&b, "> %s\n", truncate(inc.Evidence.Snippet, maxSnippetLen))
	}
	if inc.Evidence.ExtractedText != "" {
		fmt.Fprintf(&b, "extracted: %s\n", truncate(inc.Evidence.ExtractedText, maxSnippetLen))
	}
	for _, occ := range inc.Evidence.Occurrences {
		if occ.MessageID != "" {
			fmt.Fprintf(&b, "also posted by %s in %s/%s (message %s)\n", occ.ActorID, occ.TenantID, occ.ChannelID, occ.MessageID)
		} else {
			fmt.Fprintf(&b, "action by %s at %s\n", occ.ActorID, occ.CreatedAt.UTC().Format(time.RFC3339))
		}
	}
	if inc.Evidence.ChannelID != "" {
		fmt.Fprintf(&b, "origin: channel %s, message %s\n", inc.Evidence.ChannelID, inc.Evidence.MessageID)
	}
	fmt.Fprintf(&b, "react %s to choose an action, %s to dismiss", SymbolApprove, SymbolIgnore)
	return b.String()
}

func renderActionMenu(rec *AlertRecord) string {
	return fmt.Sprintf("Action for actor %s (%s)\n> %s\nreact %s / %s / %s / %s",
		rec.SourceActorID, rec.Kind, rec.Snippet,
		SymbolWarn, SymbolKick, SymbolBan, SymbolQuarantine)
}

func actionReason(rec *AlertRecord) string {
	reason := fmt.Sprintf("%s: %s", rec.Kind, rec.Snippet)
	return truncate(reason, maxSnippetLen)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// cut on a rune boundary
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n] + "…"
}
