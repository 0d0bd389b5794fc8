package moderation

import "time"

// Kind classifies what a detector found.
type Kind string

const (
	// KindRateAnomaly means an actor exceeded the privileged-action rate threshold
	KindRateAnomaly Kind = "rate_anomaly"

	// KindFlaggedWord means message text matched the configured phrase set
	KindFlaggedWord Kind = "flagged_word"

	// KindNSFWContent means OCR-extracted attachment text matched the phrase set
	KindNSFWContent Kind = "nsfw_content"

	// KindRepeatedMessage means identical content was posted by distinct actors
	KindRepeatedMessage Kind = "repeated_message"
)

// Status tracks where an alert or action record is in its lifecycle.
type Status string

const (
	// StatusPending means posted for review, no decision yet
	StatusPending Status = "pending"

	// StatusResolved means a decision signal claimed the record
	StatusResolved Status = "resolved"

	// StatusExpired means the record aged out before a decision arrived
	StatusExpired Status = "expired"
)

// Decision is a staff reviewer's verdict on a pending alert.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionIgnore  Decision = "ignore"
)

// ActionKind is the concrete moderation action chosen from the action menu.
type ActionKind string

const (
	ActionWarn       ActionKind = "warn"
	ActionKick       ActionKind = "kick"
	ActionBan        ActionKind = "ban"
	ActionQuarantine ActionKind = "quarantine"
)

// Occurrence is one observed posting of a piece of content.
type Occurrence struct {
	TenantID  string    `json:"tenant_id"`
	ActorID   string    `json:"actor_id"`
	ChannelID string    `json:"channel_id"`
	MessageID string    `json:"message_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Evidence carries what the detector saw, for rendering in the review alert.
type Evidence struct {
	Snippet       string       `json:"snippet"`
	ChannelID     string       `json:"channel_id"`
	MessageID     string       `json:"message_id"`
	ExtractedText string       `json:"extracted_text,omitempty"`
	Term          string       `json:"term,omitempty"`
	Occurrences   []Occurrence `json:"occurrences,omitempty"`
}

// Incident is a detected condition warranting human review. It is ephemeral:
// its durable projection is the AlertRecord created when the alert is posted.
type Incident struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	SourceActorID string    `json:"source_actor_id"`
	Kind          Kind      `json:"kind"`
	Evidence      Evidence  `json:"evidence"`
	CreatedAt     time.Time `json:"created_at"`
}

// AlertRecord is the durable pointer from a posted review message back to the
// incident's actor, channel and tenant. A pending record is the sole thing a
// decision signal can claim; a resolved or expired record behaves as absent.
type AlertRecord struct {
	AlertID       string    `json:"alert_id"`
	SourceActorID string    `json:"source_actor_id"`
	ChannelID     string    `json:"channel_id"`
	TenantID      string    `json:"tenant_id"`
	Kind          Kind      `json:"kind"`
	Snippet       string    `json:"snippet"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// ActionRecord is the durable pointer for the secondary "choose an action"
// step, with the same claim semantics as AlertRecord.
type ActionRecord struct {
	ActionID      string    `json:"action_id"`
	TargetActorID string    `json:"target_actor_id"`
	ChannelID     string    `json:"channel_id"`
	TenantID      string    `json:"tenant_id"`
	Reason        string    `json:"reason"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// Attribution ties a privileged non-message action (role/channel changes,
// member updates) to the actor who performed it. Feeds the rate detector.
type Attribution struct {
	TenantID string    `json:"tenant_id"`
	ActorID  string    `json:"actor_id"`
	Kind     string    `json:"kind"`
	At       time.Time `json:"at"`
}

// TenantConfig holds the per-tenant security settings, mutable at runtime.
type TenantConfig struct {
	TenantID          string `json:"tenant_id"`
	ActionThreshold   int    `json:"action_threshold"`
	TimeWindowSeconds int    `json:"time_window_seconds"`
	StaffChannelID    string `json:"staff_channel_id"`
}

// Defaults are the process-wide fallbacks used when a tenant has no stored
// config.
type Defaults struct {
	ActionThreshold   int
	TimeWindowSeconds int
}

// Window returns the configured sliding window as a duration.
func (c TenantConfig) Window() time.Duration {
	return time.Duration(c.TimeWindowSeconds) * time.Second
}
