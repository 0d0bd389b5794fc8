package eventapi

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Deaeath/colossus-guard/internal/moderation"
)

// DecisionSignal is a staff decision callback from the integration layer.
// Exactly one of AlertID and ActionID must be set; Symbol carries the chosen
// affordance.
type DecisionSignal struct {
	AlertID  string `json:"alert_id,omitempty"`
	ActionID string `json:"action_id,omitempty"`
	ActorID  string `json:"actor_id"`
	Symbol   string `json:"symbol"`
}

func (a *API) handleDecision(w http.ResponseWriter, r *http.Request) {
	var sig DecisionSignal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if (sig.AlertID == "") == (sig.ActionID == "") {
		http.Error(w, `{"error":"exactly one of alert_id and action_id is required"}`, http.StatusBadRequest)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("guard.decision.symbol", sig.Symbol))

	var (
		effect moderation.Effect
		err    error
	)
	switch {
	case sig.AlertID != "":
		var decision moderation.Decision
		switch sig.Symbol {
		case moderation.SymbolApprove:
			decision = moderation.DecisionApprove
		case moderation.SymbolIgnore:
			decision = moderation.DecisionIgnore
		default:
			http.Error(w, `{"error":"unknown decision symbol"}`, http.StatusBadRequest)
			return
		}
		effect, err = a.svc.ResolveAlertDecision(r.Context(), sig.AlertID, decision, sig.ActorID)

	default:
		var kind moderation.ActionKind
		switch sig.Symbol {
		case moderation.SymbolWarn:
			kind = moderation.ActionWarn
		case moderation.SymbolKick:
			kind = moderation.ActionKick
		case moderation.SymbolBan:
			kind = moderation.ActionBan
		case moderation.SymbolQuarantine:
			kind = moderation.ActionQuarantine
		default:
			http.Error(w, `{"error":"unknown action symbol"}`, http.StatusBadRequest)
			return
		}
		effect, err = a.svc.ResolveActionDecision(r.Context(), sig.ActionID, kind)
	}

	if err != nil {
		a.logger.Error(r.Context(), err, "decision resolution failed",
			"alert_id", sig.AlertID, "action_id", sig.ActionID, "symbol", sig.Symbol)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"effect": effect,
	})
}
