// Package eventapi exposes the moderation pipeline over HTTP: inbound
// platform events, decision-signal callbacks, and tenant config.
package eventapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/Deaeath/colossus-guard/internal/moderation"
)

// PipelineService defines the business operations eventapi needs.
type PipelineService interface {
	HandleContent(ctx context.Context, c *moderation.Content) []string
	HandleAttribution(ctx context.Context, at *moderation.Attribution) (string, error)
	ResolveAlertDecision(ctx context.Context, alertID string, decision moderation.Decision, reviewerID string) (moderation.Effect, error)
	ResolveActionDecision(ctx context.Context, actionID string, kind moderation.ActionKind) (moderation.Effect, error)
	GetAlert(ctx context.Context, alertID string) (*moderation.AlertRecord, bool, error)
	TenantConfig(ctx context.Context, tenantID string) moderation.TenantConfig
	UpdateTenantConfig(ctx context.Context, cfg *moderation.TenantConfig) error
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    PipelineService
}

// New creates a new API handler.
func New(logger log.Logger, svc PipelineService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("pipeline service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/events/content", a.handleContentEvent)
		r.Post("/events/attribution", a.handleAttributionEvent)
		r.Post("/decisions", a.handleDecision)
		r.Get("/alerts/{id}", a.handleGetAlert)
		r.Get("/tenants/{tenant}/config", a.handleGetTenantConfig)
		r.Put("/tenants/{tenant}/config", a.handlePutTenantConfig)
	})
}

func (a *API) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("guard.alert.id", id))

	rec, ok, err := a.svc.GetAlert(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get alert", "id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleGetTenantConfig(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	cfg := a.svc.TenantConfig(r.Context(), tenant)
	writeJSON(w, http.StatusOK, cfg)
}

func (a *API) handlePutTenantConfig(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")

	var cfg moderation.TenantConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	cfg.TenantID = tenant
	if cfg.ActionThreshold < 0 || cfg.TimeWindowSeconds < 0 {
		http.Error(w, `{"error":"threshold and window must be non-negative"}`, http.StatusBadRequest)
		return
	}

	if err := a.svc.UpdateTenantConfig(r.Context(), &cfg); err != nil {
		a.logger.Error(r.Context(), err, "failed to update tenant config", "tenant", tenant)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
