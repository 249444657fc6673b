package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// LoadFromEnv builds the service configuration from environment variables,
// applying defaults for everything optional.
func LoadFromEnv() *CallSyncConfig {
	return &CallSyncConfig{
		Port:   getEnvOrDefault("PORT", "8080"),
		LogEnv: getEnvOrDefault("LOG_ENV", "development"),

		OpenPhoneAPIKey:        os.Getenv("OPENPHONE_API_KEY"),
		OpenPhonePhoneNumberID: os.Getenv("OPENPHONE_PHONE_NUMBER_ID"),
		OpenPhoneWebhookSecret: os.Getenv("OPENPHONE_WEBHOOK_SECRET"),
		OpenPhoneBaseURL:       getEnvOrDefault("OPENPHONE_BASE_URL", "https://api.openphone.com"),
		OpenPhoneFromNumber:    os.Getenv("OPENPHONE_FROM_NUMBER"),

		MatchWindow:  getEnvDurationOrDefault("MATCH_WINDOW", DefaultMatchWindow),
		PollInterval: getEnvDurationOrDefault("POLL_INTERVAL", DefaultPollInterval),
		PollTimeout:  getEnvDurationOrDefault("POLL_TIMEOUT", DefaultPollTimeout),

		WebhookRateLimit: getEnvFloatOrDefault("WEBHOOK_RATE_LIMIT", 0),
		WebhookRateBurst: getEnvIntOrDefault("WEBHOOK_RATE_BURST", 10),

		SecretKey:  os.Getenv("SECRET_KEY"),
		InstanceID: getDynamicInstanceID(),
		EnableCORS: getEnvOrDefault("ENABLE_CORS", "true") == "true",
	}
}

// getDynamicInstanceID derives an instance identifier, preferring the pod
// hostname so multi-pod deployments can be told apart in logs.
func getDynamicInstanceID() string {
	if id := os.Getenv("INSTANCE_ID"); id != "" {
		return id
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return fmt.Sprintf("call-sync-%d", os.Getpid())
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
