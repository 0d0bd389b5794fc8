package eventapi

import (
	"encoding/json"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Deaeath/colossus-guard/internal/moderation"
)

// ContentEvent is a content-posted event from the integration layer.
type ContentEvent struct {
	TenantID    string   `json:"tenant_id"`
	ActorID     string   `json:"actor_id"`
	ChannelID   string   `json:"channel_id"`
	MessageID   string   `json:"message_id"`
	Text        string   `json:"text"`
	Attachments []string `json:"attachments,omitempty"`
	IsBot       bool     `json:"is_bot"`
}

// AttributionEvent attributes one privileged non-message action to an actor.
type AttributionEvent struct {
	TenantID string    `json:"tenant_id"`
	ActorID  string    `json:"actor_id"`
	Kind     string    `json:"kind"`
	At       time.Time `json:"at,omitzero"`
}

func (a *API) handleContentEvent(w http.ResponseWriter, r *http.Request) {
	var ev ContentEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if ev.TenantID == "" || ev.ActorID == "" {
		http.Error(w, `{"error":"tenant_id and actor_id are required"}`, http.StatusBadRequest)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("guard.tenant", ev.TenantID),
		attribute.String("guard.actor", ev.ActorID),
	)

	alerts := a.svc.HandleContent(r.Context(), &moderation.Content{
		TenantID:    ev.TenantID,
		ActorID:     ev.ActorID,
		ChannelID:   ev.ChannelID,
		MessageID:   ev.MessageID,
		Text:        ev.Text,
		Attachments: ev.Attachments,
		IsBot:       ev.IsBot,
	})

	writeJSON(w, http.StatusAccepted, map[string]any{
		"alerts": alerts,
	})
}

func (a *API) handleAttributionEvent(w http.ResponseWriter, r *http.Request) {
	var ev AttributionEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if ev.TenantID == "" || ev.ActorID == "" || ev.Kind == "" {
		http.Error(w, `{"error":"tenant_id, actor_id and kind are required"}`, http.StatusBadRequest)
		return
	}

	alertID, err := a.svc.HandleAttribution(r.Context(), &moderation.Attribution{
		TenantID: ev.TenantID,
		ActorID:  ev.ActorID,
		Kind:     ev.Kind,
		At:       ev.At,
	})
	if err != nil {
		// failure handling one event is logged and contained; the feed goes on
		a.logger.Error(r.Context(), err, "attribution handling failed",
			"tenant", ev.TenantID, "actor", ev.ActorID)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	resp := map[string]any{}
	if alertID != "" {
		resp["alert"] = alertID
	}
	writeJSON(w, http.StatusAccepted, resp)
}
