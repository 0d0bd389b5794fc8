// Package pgstore provides a PostgreSQL implementation of moderation.Store.
package pgstore

import (
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Deaeath/colossus-guard/internal/moderation"
)

var tracer = otel.Tracer("github.com/Deaeath/colossus-guard/internal/moderation/pgstore")

//go:embed schema.sql
var schema string

// pg unique_violation
const uniqueViolation = "23505"

// Store persists moderation records in PostgreSQL. The claim operations rely
// on a conditional UPDATE ... RETURNING, so exactly one concurrent claimant
// for an id observes the row regardless of process count.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func spanErr(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// CreateAlert inserts a pending alert record.
func (s *Store) CreateAlert(ctx context.Context, rec *moderation.AlertRecord) error {
	ctx, span := startSpan(ctx, "pgstore.CreateAlert", "INSERT")
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO alert_mapping (alert_id, actor_id, channel_id, tenant_id, kind, snippet, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7)`,
		rec.AlertID, rec.SourceActorID, rec.ChannelID, rec.TenantID, string(rec.Kind), rec.Snippet, rec.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return moderation.ErrAlertExists
		}
		spanErr(span, err)
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

const alertColumns = `alert_id, actor_id, channel_id, tenant_id, kind, snippet, status, created_at`

// GetAlert retrieves a pending alert record by id.
func (s *Store) GetAlert(ctx context.Context, alertID string) (*moderation.AlertRecord, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetAlert", "SELECT")
	defer span.End()

	query := `SELECT ` + alertColumns + ` FROM alert_mapping WHERE alert_id = $1 AND status = 'pending'`
	rec, err := scanAlertRow(s.pool.QueryRow(ctx, query, alertID))
	if err != nil {
		spanErr(span, err)
		return nil, false, err
	}
	if rec == nil {
		return nil, false, nil
	}
	return rec, true, nil
}

// ClaimAlert atomically flips a pending alert to resolved and returns it.
// The conditional UPDATE is the concurrency anchor: a second concurrent
// claimant matches zero rows and gets ok=false.
func (s *Store) ClaimAlert(ctx context.Context, alertID string) (*moderation.AlertRecord, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.ClaimAlert", "UPDATE")
	defer span.End()

	query := `UPDATE alert_mapping SET status = 'resolved'
		 WHERE alert_id = $1 AND status = 'pending'
		 RETURNING ` + alertColumns
	rec, err := scanAlertRow(s.pool.QueryRow(ctx, query, alertID))
	if err != nil {
		spanErr(span, err)
		return nil, false, err
	}
	if rec == nil {
		return nil, false, nil
	}
	return rec, true, nil
}

// ExpireAlertsBefore flips stale pending alerts to expired.
func (s *Store) ExpireAlertsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, span := startSpan(ctx, "pgstore.ExpireAlertsBefore", "UPDATE")
	defer span.End()

	tag, err := s.pool.Exec(ctx,
		`UPDATE alert_mapping SET status = 'expired' WHERE status = 'pending' AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		spanErr(span, err)
		return 0, fmt.Errorf("expire alerts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CreateAction inserts a pending action record.
func (s *Store) CreateAction(ctx context.Context, rec *moderation.ActionRecord) error {
	ctx, span := startSpan(ctx, "pgstore.CreateAction", "INSERT")
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO action_mapping (action_id, actor_id, channel_id, tenant_id, reason, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, 'pending', $6)`,
		rec.ActionID, rec.TargetActorID, rec.ChannelID, rec.TenantID, rec.Reason, rec.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return moderation.ErrActionExists
		}
		spanErr(span, err)
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

const actionColumns = `action_id, actor_id, channel_id, tenant_id, reason, status, created_at`

// GetAction retrieves a pending action record by id.
func (s *Store) GetAction(ctx context.Context, actionID string) (*moderation.ActionRecord, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetAction", "SELECT")
	defer span.End()

	query := `SELECT ` + actionColumns + ` FROM action_mapping WHERE action_id = $1 AND status = 'pending'`
	rec, err := scanActionRow(s.pool.QueryRow(ctx, query, actionID))
	if err != nil {
		spanErr(span, err)
		return nil, false, err
	}
	if rec == nil {
		return nil, false, nil
	}
	return rec, true, nil
}

// ClaimAction atomically flips a pending action to resolved and returns it.
func (s *Store) ClaimAction(ctx context.Context, actionID string) (*moderation.ActionRecord, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.ClaimAction", "UPDATE")
	defer span.End()

	query := `UPDATE action_mapping SET status = 'resolved'
		 WHERE action_id = $1 AND status = 'pending'
		 RETURNING ` + actionColumns
	rec, err := scanActionRow(s.pool.QueryRow(ctx, query, actionID))
	if err != nil {
		spanErr(span, err)
		return nil, false, err
	}
	if rec == nil {
		return nil, false, nil
	}
	return rec, true, nil
}

// GetTenantConfig retrieves a tenant's security config.
func (s *Store) GetTenantConfig(ctx context.Context, tenantID string) (*moderation.TenantConfig, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetTenantConfig", "SELECT")
	defer span.End()

	var cfg moderation.TenantConfig
	err := s.pool.QueryRow(ctx,
		`SELECT tenant_id, action_threshold, time_window_seconds, staff_channel_ref
		 FROM tenant_security_config WHERE tenant_id = $1`,
		tenantID,
	).Scan(&cfg.TenantID, &cfg.ActionThreshold, &cfg.TimeWindowSeconds, &cfg.StaffChannelID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		spanErr(span, err)
		return nil, false, fmt.Errorf("select tenant config: %w", err)
	}
	return &cfg, true, nil
}

// PutTenantConfig inserts or updates a tenant's security config.
func (s *Store) PutTenantConfig(ctx context.Context, cfg *moderation.TenantConfig) error {
	ctx, span := startSpan(ctx, "pgstore.PutTenantConfig", "UPSERT")
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO tenant_security_config (tenant_id, action_threshold, time_window_seconds, staff_channel_ref)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (tenant_id) DO UPDATE SET
			action_threshold    = EXCLUDED.action_threshold,
			time_window_seconds = EXCLUDED.time_window_seconds,
			staff_channel_ref   = EXCLUDED.staff_channel_ref`,
		cfg.TenantID, cfg.ActionThreshold, cfg.TimeWindowSeconds, cfg.StaffChannelID,
	)
	if err != nil {
		spanErr(span, err)
		return fmt.Errorf("upsert tenant config: %w", err)
	}
	return nil
}

// RecordMessage appends one occurrence to the durable content history.
func (s *Store) RecordMessage(ctx context.Context, normalized string, occ *moderation.Occurrence) error {
	ctx, span := startSpan(ctx, "pgstore.RecordMessage", "INSERT")
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO message_history (content_hash, tenant_id, actor_id, channel_id, message_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		contentHash(normalized), occ.TenantID, occ.ActorID, occ.ChannelID, occ.MessageID, occ.CreatedAt,
	)
	if err != nil {
		spanErr(span, err)
		return fmt.Errorf("insert message history: %w", err)
	}
	return nil
}

// FindDuplicates returns the earliest occurrence per distinct actor that
// posted the given normalized content, across all tenants.
func (s *Store) FindDuplicates(ctx context.Context, normalized string) ([]moderation.Occurrence, error) {
	ctx, span := startSpan(ctx, "pgstore.FindDuplicates", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (actor_id) tenant_id, actor_id, channel_id, message_id, created_at
		 FROM message_history WHERE content_hash = $1
		 ORDER BY actor_id, created_at`,
		contentHash(normalized),
	)
	if err != nil {
		spanErr(span, err)
		return nil, fmt.Errorf("query message history: %w", err)
	}
	defer rows.Close()

	var out []moderation.Occurrence
	for rows.Next() {
		var occ moderation.Occurrence
		if err := rows.Scan(&occ.TenantID, &occ.ActorID, &occ.ChannelID, &occ.MessageID, &occ.CreatedAt); err != nil {
			spanErr(span, err)
			return nil, fmt.Errorf("scan occurrence: %w", err)
		}
		out = append(out, occ)
	}
	if err := rows.Err(); err != nil {
		spanErr(span, err)
		return nil, fmt.Errorf("iterate occurrences: %w", err)
	}
	return out, nil
}

func contentHash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// scanAlertRow scans a single row into an AlertRecord.
// Returns (nil, nil) when no row is found.
func scanAlertRow(row pgx.Row) (*moderation.AlertRecord, error) {
	var (
		rec    moderation.AlertRecord
		kind   string
		status string
	)
	err := row.Scan(&rec.AlertID, &rec.SourceActorID, &rec.ChannelID, &rec.TenantID, &kind, &rec.Snippet, &status, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}
	rec.Kind = moderation.Kind(kind)
	rec.Status = moderation.Status(status)
	return &rec, nil
}

// scanActionRow scans a single row into an ActionRecord.
// Returns (nil, nil) when no row is found.
func scanActionRow(row pgx.Row) (*moderation.ActionRecord, error) {
	var (
		rec    moderation.ActionRecord
		status string
	)
	err := row.Scan(&rec.ActionID, &rec.TargetActorID, &rec.ChannelID, &rec.TenantID, &rec.Reason, &status, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}
	rec.Status = moderation.Status(status)
	return &rec, nil
}
