package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

// Config holds the application-level settings for the guard service,
// implementing the common cfg.Registerable and cfg.Validatable interfaces.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int

	APIToken string
	OpsToken string

	DatabaseURL string

	PlatformAPIURL   string
	PlatformAPIToken string
	GatewayURL       string
	GatewayToken     string
	OCREndpoint      string

	BotActorID string

	DefaultActionThreshold   int
	DefaultTimeWindowSeconds int
	MinDuplicateWords        int
	AlertTTLSeconds          int
	ExpirySweepSeconds       int

	FlaggedPhrases  string
	FlaggedPatterns string

	SlackWebhookURL string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on inbound event and decision endpoints")
	fs.StringVar(&c.OpsToken, "ops-token", "", "additional accepted bearer token for operator tooling")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.PlatformAPIURL, "platform-api-url", "", "base URL of the chat platform REST API")
	fs.StringVar(&c.PlatformAPIToken, "platform-api-token", "", "bearer token for the chat platform REST API")
	fs.StringVar(&c.GatewayURL, "gateway-url", "", "websocket URL of the platform gateway event feed (empty = HTTP events only)")
	fs.StringVar(&c.GatewayToken, "gateway-token", "", "bearer token for the gateway event feed")
	fs.StringVar(&c.OCREndpoint, "ocr-endpoint", "", "base URL of the image text extraction service (empty = attachment scanning off)")
	fs.StringVar(&c.BotActorID, "bot-actor-id", "", "actor ID of this bot, used to skip self-authored content")
	fs.IntVar(&c.DefaultActionThreshold, "default-action-threshold", 5, "privileged actions within the window that trigger a rate alert (>= 1)")
	fs.IntVar(&c.DefaultTimeWindowSeconds, "default-time-window-seconds", 30, "sliding window length for the rate detector in seconds (>= 1)")
	fs.IntVar(&c.MinDuplicateWords, "min-duplicate-words", 5, "minimum word count before a message enters duplicate tracking (>= 1)")
	fs.IntVar(&c.AlertTTLSeconds, "alert-ttl-seconds", 86400, "seconds a pending alert stays claimable before expiry (>= 60)")
	fs.IntVar(&c.ExpirySweepSeconds, "expiry-sweep-seconds", 300, "interval between expiry sweeps in seconds (>= 10)")
	fs.StringVar(&c.FlaggedPhrases, "flagged-phrases", "", "comma-separated phrases to flag in message text")
	fs.StringVar(&c.FlaggedPatterns, "flagged-patterns", "", "comma-separated regular expressions to flag in message text")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for moderation action audit notifications")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.APIToken == "" {
		errs = append(errs, errors.New("API_TOKEN is required"))
	}

	// Platform API is required for posting alerts and executing actions
	if c.PlatformAPIURL == "" {
		errs = append(errs, errors.New("PLATFORM_API_URL is required"))
	}
	if c.PlatformAPIToken == "" {
		errs = append(errs, errors.New("PLATFORM_API_TOKEN is required"))
	}
	if c.GatewayURL != "" && !strings.HasPrefix(c.GatewayURL, "ws://") && !strings.HasPrefix(c.GatewayURL, "wss://") {
		errs = append(errs, fmt.Errorf("invalid GATEWAY_URL %q (must be a ws:// or wss:// URL)", c.GatewayURL))
	}

	if c.BotActorID == "" {
		errs = append(errs, errors.New("BOT_ACTOR_ID is required"))
	}

	if c.DefaultActionThreshold < 1 {
		errs = append(errs, fmt.Errorf("invalid DEFAULT_ACTION_THRESHOLD %d (must be >= 1)", c.DefaultActionThreshold))
	}
	if c.DefaultTimeWindowSeconds < 1 {
		errs = append(errs, fmt.Errorf("invalid DEFAULT_TIME_WINDOW_SECONDS %d (must be >= 1)", c.DefaultTimeWindowSeconds))
	}
	if c.MinDuplicateWords < 1 {
		errs = append(errs, fmt.Errorf("invalid MIN_DUPLICATE_WORDS %d (must be >= 1)", c.MinDuplicateWords))
	}
	if c.AlertTTLSeconds < 60 {
		errs = append(errs, fmt.Errorf("invalid ALERT_TTL_SECONDS %d (must be >= 60)", c.AlertTTLSeconds))
	}
	if c.ExpirySweepSeconds < 10 {
		errs = append(errs, fmt.Errorf("invalid EXPIRY_SWEEP_SECONDS %d (must be >= 10)", c.ExpirySweepSeconds))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Phrases returns the configured flagged phrases, trimmed, empties dropped.
func (c *Config) Phrases() []string {
	return splitList(c.FlaggedPhrases)
}

// Patterns returns the configured flagged regular expressions.
func (c *Config) Patterns() []string {
	return splitList(c.FlaggedPatterns)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
