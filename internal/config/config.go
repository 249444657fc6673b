package config

import "time"

// CallSyncConfig holds the call-sync service configuration
type CallSyncConfig struct {
	Port   string
	LogEnv string

	// OpenPhone configuration
	OpenPhoneAPIKey        string
	OpenPhonePhoneNumberID string
	OpenPhoneWebhookSecret string // base64 signing key; empty skips verification
	OpenPhoneBaseURL       string
	OpenPhoneFromNumber    string // business number in E.164, stamped on dial records

	// Correlation configuration
	MatchWindow time.Duration // pending-attempt match window for heuristic correlation

	// Poll reconciler configuration
	PollInterval time.Duration
	PollTimeout  time.Duration

	// Webhook ingest smoothing
	WebhookRateLimit float64 // events per second, 0 disables
	WebhookRateBurst int

	// Management surface
	SecretKey string // JWT secret for the backfill trigger; empty disables auth

	// Instance identifier for multi-pod monitoring
	InstanceID string

	EnableCORS bool
}

// Defaults used when the corresponding environment variables are absent.
const (
	DefaultMatchWindow  = 30 * time.Minute
	DefaultPollInterval = 5 * time.Second
	DefaultPollTimeout  = 3 * time.Minute
)
