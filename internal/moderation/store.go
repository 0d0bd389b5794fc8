package moderation

import (
	"context"
	"time"
)

// Store is the persistence interface for the moderation pipeline. The alert
// and action namespaces are independent; each Claim* is the concurrency
// anchor for its namespace: of any number of concurrent claimants for one id,
// exactly one observes ok=true.
type Store interface {
	// CreateAlert inserts a pending alert record. Returns ErrAlertExists if
	// the alert id is already present.
	CreateAlert(ctx context.Context, rec *AlertRecord) error

	// GetAlert returns the pending alert record for id, if any.
	GetAlert(ctx context.Context, alertID string) (*AlertRecord, bool, error)

	// ClaimAlert atomically flips a pending alert to resolved and returns it.
	// A missing, already-resolved or expired record yields ok=false.
	ClaimAlert(ctx context.Context, alertID string) (*AlertRecord, bool, error)

	// ExpireAlertsBefore flips pending alerts created before cutoff to
	// expired and reports how many were affected.
	ExpireAlertsBefore(ctx context.Context, cutoff time.Time) (int, error)

	// CreateAction inserts a pending action record. Returns ErrActionExists
	// if the action id is already present.
	CreateAction(ctx context.Context, rec *ActionRecord) error

	// GetAction returns the pending action record for id, if any.
	GetAction(ctx context.Context, actionID string) (*ActionRecord, bool, error)

	// ClaimAction atomically flips a pending action to resolved and returns it.
	ClaimAction(ctx context.Context, actionID string) (*ActionRecord, bool, error)

	// GetTenantConfig returns the stored security config for a tenant, if any.
	GetTenantConfig(ctx context.Context, tenantID string) (*TenantConfig, bool, error)

	// PutTenantConfig inserts or updates a tenant's security config.
	PutTenantConfig(ctx context.Context, cfg *TenantConfig) error

	// RecordMessage appends one content occurrence to the durable history
	// used by the duplicate detector. Content is stored pre-normalized.
	RecordMessage(ctx context.Context, normalized string, occ *Occurrence) error

	// FindDuplicates returns at most one occurrence per distinct actor that
	// posted the given normalized content, across all tenants.
	FindDuplicates(ctx context.Context, normalized string) ([]Occurrence, error)
}
