// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server settings,
// logging, database paths, the per-practice outreach keys (practice id, recall
// window, active campaign, kill switch, mode), provider credentials, and
// observability options.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Run modes. DRY_RUN exercises the full pipeline without any outbound network
// send; LIVE performs real provider calls.
const (
	ModeDryRun = "DRY_RUN"
	ModeLive   = "LIVE"
)

// Kill switch positions.
const (
	KillSwitchOn  = "ON"
	KillSwitchOff = "OFF"
)

// PracticeConfig holds the per-practice outreach settings.
type PracticeConfig struct {
	PracticeID          string // PRACTICE_ID (required)
	PracticeName        string // PRACTICE_NAME, rendered into message copy
	RecallDueWindowDays int    // RECALL_DUE_WINDOW_DAYS
	ActiveCampaignID    string // ACTIVE_CAMPAIGN_ID
	KillSwitch          string // KILL_SWITCH: ON|OFF
	Mode                string // MODE: DRY_RUN|LIVE
	OfficePhone         string // OFFICE_PHONE, rendered into message copy
}

// ProviderConfig holds messaging-provider (Twilio-shaped API) settings.
type ProviderConfig struct {
	AccountSID          string // PROVIDER_ACCOUNT_SID
	AuthToken           string // PROVIDER_AUTH_TOKEN
	MessagingServiceSID string // PROVIDER_MESSAGING_SERVICE_SID
	BaseURL             string // PROVIDER_BASE_URL
	StatusCallbackURL   string // PROVIDER_STATUS_CALLBACK_URL
}

// RedisConfig holds the optional Redis dedupe-cache settings. When Addr is
// empty the webhook dedupe cache falls back to the in-memory implementation.
type RedisConfig struct {
	Addr     string // REDIS_ADDR (empty disables Redis)
	Password string // REDIS_PASSWORD
	DB       int    // REDIS_DB
}

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// InvariantConfig holds the post-run data-quality thresholds.
type InvariantConfig struct {
	MinSMSContactRate    float64 // INVARIANT_MIN_SMS_CONTACT_RATE
	MaxInvalidRecallRate float64 // INVARIANT_MAX_INVALID_RECALL_RATE
	AllowZeroEligible    bool    // INVARIANT_ALLOW_ZERO_ELIGIBLE
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool

	// App
	DBPath       string        // SQLite path
	WebhookToken string        // shared token gate on /webhook
	DedupeTTL    time.Duration // webhook dedupe cache TTL
	LockWait     time.Duration // practice-lock bounded wait
	StuckAfter   time.Duration // SENDING-with-no-sid reclamation threshold

	Practice   PracticeConfig
	Provider   ProviderConfig
	Redis      RedisConfig
	Invariants InvariantConfig

	// Rate limiting
	RateRPS   float64
	RateBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// DryRun reports whether the configured mode is DRY_RUN.
func (p PracticeConfig) DryRun() bool { return p.Mode == ModeDryRun }

// KillSwitchEngaged reports whether the kill switch blocks mutating send-path
// operations: engaged whenever KILL_SWITCH=ON and the mode is not DRY_RUN.
func (p PracticeConfig) KillSwitchEngaged() bool {
	return p.KillSwitch == KillSwitchOn && p.Mode != ModeDryRun
}

// DryRun reports whether the configured mode is DRY_RUN.
func (c Config) DryRun() bool { return c.Practice.DryRun() }

// KillSwitchEngaged reports whether the kill switch blocks mutating send-path
// operations.
func (c Config) KillSwitchEngaged() bool { return c.Practice.KillSwitchEngaged() }

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// App
		DBPath:       getenv("DB_PATH", "recallbridge.db"),
		WebhookToken: getenv("WEBHOOK_TOKEN", ""),
		DedupeTTL:    getdur("DEDUPE_TTL", 2*time.Hour),
		LockWait:     getdur("LOCK_WAIT", 30*time.Second),
		StuckAfter:   getdur("STUCK_SENDING_AFTER", 30*time.Minute),

		Practice: PracticeConfig{
			PracticeID:          getenv("PRACTICE_ID", ""),
			PracticeName:        getenv("PRACTICE_NAME", "our dental office"),
			RecallDueWindowDays: getint("RECALL_DUE_WINDOW_DAYS", 30),
			ActiveCampaignID:    getenv("ACTIVE_CAMPAIGN_ID", ""),
			KillSwitch:          strings.ToUpper(getenv("KILL_SWITCH", KillSwitchOff)),
			Mode:                strings.ToUpper(getenv("MODE", ModeDryRun)),
			OfficePhone:         getenv("OFFICE_PHONE", ""),
		},

		Provider: ProviderConfig{
			AccountSID:          getenv("PROVIDER_ACCOUNT_SID", ""),
			AuthToken:           getenv("PROVIDER_AUTH_TOKEN", ""),
			MessagingServiceSID: getenv("PROVIDER_MESSAGING_SERVICE_SID", ""),
			BaseURL:             getenv("PROVIDER_BASE_URL", "https://api.twilio.com"),
			StatusCallbackURL:   getenv("PROVIDER_STATUS_CALLBACK_URL", ""),
		},

		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", ""),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},

		Invariants: InvariantConfig{
			MinSMSContactRate:    getfloat("INVARIANT_MIN_SMS_CONTACT_RATE", 0.30),
			MaxInvalidRecallRate: getfloat("INVARIANT_MAX_INVALID_RECALL_RATE", 0.10),
			AllowZeroEligible:    getbool("INVARIANT_ALLOW_ZERO_ELIGIBLE", false),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 20.0),
		RateBurst: getint("RATE_BURST", 40),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "recallbridge"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	// --- validation ---
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return cfg, errors.New("PORT must be numeric")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.Practice.PracticeID) == "" {
		return cfg, errors.New("PRACTICE_ID is required")
	}
	if cfg.Practice.RecallDueWindowDays < 0 {
		return cfg, errors.New("RECALL_DUE_WINDOW_DAYS must be >= 0")
	}
	switch cfg.Practice.KillSwitch {
	case KillSwitchOn, KillSwitchOff:
	default:
		return cfg, fmt.Errorf("KILL_SWITCH must be %s or %s", KillSwitchOn, KillSwitchOff)
	}
	switch cfg.Practice.Mode {
	case ModeDryRun, ModeLive:
	default:
		return cfg, fmt.Errorf("MODE must be %s or %s", ModeDryRun, ModeLive)
	}
	if cfg.Practice.Mode == ModeLive {
		if cfg.Provider.AccountSID == "" || cfg.Provider.AuthToken == "" || cfg.Provider.MessagingServiceSID == "" {
			return cfg, errors.New("LIVE mode requires PROVIDER_ACCOUNT_SID, PROVIDER_AUTH_TOKEN, and PROVIDER_MESSAGING_SERVICE_SID")
		}
	}
	if cfg.DedupeTTL <= 0 {
		return cfg, errors.New("DEDUPE_TTL must be > 0")
	}
	if cfg.LockWait <= 0 {
		return cfg, errors.New("LOCK_WAIT must be > 0")
	}
	if cfg.StuckAfter <= 0 {
		return cfg, errors.New("STUCK_SENDING_AFTER must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.Invariants.MinSMSContactRate < 0 || cfg.Invariants.MinSMSContactRate > 1 {
		return cfg, errors.New("INVARIANT_MIN_SMS_CONTACT_RATE must be in [0,1]")
	}
	if cfg.Invariants.MaxInvalidRecallRate < 0 || cfg.Invariants.MaxInvalidRecallRate > 1 {
		return cfg, errors.New("INVARIANT_MAX_INVALID_RECALL_RATE must be in [0,1]")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
