package moderation

import "errors"

// Sentinel errors for the pipeline's failure taxonomy. Callers classify with
// errors.Is; wrapping preserves the original cause for logging.
var (
	// ErrNoDestination means the tenant has no staff review channel configured.
	// The incident is dropped, not queued.
	ErrNoDestination = errors.New("no staff review destination configured")

	// ErrTransientExternal is a network or API failure talking to the
	// platform, OCR, or store. Policy is log and skip, no automatic retry.
	ErrTransientExternal = errors.New("transient external failure")

	// ErrNotFound means the target actor, channel or message vanished between
	// detection and action execution.
	ErrNotFound = errors.New("target not found")

	// ErrPermissionDenied means the actuator lacks rights for the chosen action.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrAlertExists is returned by Store.CreateAlert on a duplicate primary key.
	ErrAlertExists = errors.New("alert record already exists")

	// ErrActionExists is returned by Store.CreateAction on a duplicate primary key.
	ErrActionExists = errors.New("action record already exists")
)

// Effect is the outcome of resolving a decision signal.
type Effect string

const (
	// EffectAlreadyResolved means another signal claimed the record first.
	// Expected under duplicate or late signals; not an error.
	EffectAlreadyResolved Effect = "already_resolved"

	// EffectIgnored means the alert was claimed and dismissed.
	EffectIgnored Effect = "ignored"

	// EffectMenuPosted means the alert was approved and an action menu was posted.
	EffectMenuPosted Effect = "menu_posted"

	// EffectActionExecuted means the action record was claimed and the
	// moderation actuator was invoked exactly once.
	EffectActionExecuted Effect = "action_executed"

	// EffectAborted means the action record was claimed but the actuator
	// could not act (target gone, permission denied). The record stays
	// resolved; nothing is retried.
	EffectAborted Effect = "aborted"
)
