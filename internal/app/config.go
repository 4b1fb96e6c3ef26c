package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr      string
	PublicBaseURL string
	DatabaseURL   string
	LogLevel      string
	SentryDSN     string

	// Conversation model
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// Rule and catalog files; empty means built-in defaults
	RulesPath   string
	CatalogPath string
	LocalesPath string

	// JWT Authentication (staff dashboard)
	JWTSecret string
	JWTExpiry time.Duration

	// Initial staff account, created at startup when absent
	StaffEmail    string
	StaffPassword string

	// Email notifications
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	EmailFrom    string
	StudioEmail  string
	CompanyName  string

	// Session ingest webhook
	WebhookURL    string
	WebhookAPIKey string

	// APNs Push Notifications
	APNsKeyPath    string
	APNsKeyID      string
	APNsTeamID     string
	APNsBundleID   string
	APNsProduction bool

	// Background jobs
	SessionIdleTimeout time.Duration
	LifecycleInterval  time.Duration
	DigestSchedule     string
	ArchiveDir         string
}

func LoadConfigFromEnv() Config {
	return Config{
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		PublicBaseURL: getenv("PUBLIC_BASE_URL", "http://localhost:8080"),
		DatabaseURL:   getenv("DATABASE_URL", ""),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		SentryDSN:     getenv("SENTRY_DSN", ""),

		OpenAIAPIKey:  getenv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getenv("OPENAI_BASE_URL", ""),
		OpenAIModel:   getenv("OPENAI_MODEL", "gpt-4o-mini"),

		RulesPath:   getenv("RULES_PATH", ""),
		CatalogPath: getenv("CATALOG_PATH", ""),
		LocalesPath: getenv("LOCALES_PATH", ""),

		JWTSecret: os.Getenv("JWT_SECRET"), // Required - no fallback for security
		JWTExpiry: getduration("JWT_EXPIRY", 24*time.Hour),

		StaffEmail:    getenv("STAFF_EMAIL", ""),
		StaffPassword: os.Getenv("STAFF_PASSWORD"),

		SMTPHost:     getenv("SMTP_HOST", ""),
		SMTPPort:     getint("SMTP_PORT", 587),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		EmailFrom:    getenv("EMAIL_FROM", ""),
		StudioEmail:  getenv("STUDIO_EMAIL", ""),
		CompanyName:  getenv("COMPANY_NAME", "Beauty Lounge - Patrizia Miceli"),

		WebhookURL:    getenv("WEBHOOK_URL", ""),
		WebhookAPIKey: getenv("WEBHOOK_API_KEY", ""),

		APNsKeyPath:    getenv("APNS_KEY_PATH", ""),
		APNsKeyID:      getenv("APNS_KEY_ID", ""),
		APNsTeamID:     getenv("APNS_TEAM_ID", ""),
		APNsBundleID:   getenv("APNS_BUNDLE_ID", ""),
		APNsProduction: os.Getenv("APNS_PRODUCTION") == "true",

		SessionIdleTimeout: getduration("SESSION_IDLE_TIMEOUT", 15*time.Minute),
		LifecycleInterval:  getduration("LIFECYCLE_INTERVAL", time.Minute),
		DigestSchedule:     getenv("DIGEST_SCHEDULE", "0 7 * * *"),
		ArchiveDir:         getenv("ARCHIVE_DIR", ""),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
