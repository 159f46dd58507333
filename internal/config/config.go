package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full environment surface, parsed once at startup.
type Config struct {
	Port           string
	DatabaseURL    string
	RedisURL       string
	AllowedOrigins []string

	UseMock     bool
	OpenAIKey   string
	OpenAIModel string

	RateLimit      int
	RateWindow     time.Duration
	PriceInPer1K   float64
	PriceOutPer1K  float64
	HistoryPairs   int
	SessionMaxAge  time.Duration
	SweepInterval  time.Duration

	AdminKey  string
	JWTSecret string

	MetaVerifyToken string
	MetaPageToken   string
	MetaSeenTTL     time.Duration
	MetaSeenMax     int

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeSuccessURL    string
	StripeCancelURL     string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
}

// Load reads the environment into a Config, applying defaults.
// godotenv.Load is the caller's job; this only reads os.Getenv.
func Load() Config {
	return Config{
		Port:           getStr("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		AllowedOrigins: splitCSV(getStr("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")),

		UseMock:     getBool("USE_MOCK", true),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel: getStr("OPENAI_MODEL", "gpt-4o-mini"),

		RateLimit:     getInt("RATE_LIMIT", 5),
		RateWindow:    time.Duration(getInt("RATE_WINDOW_SECONDS", 10)) * time.Second,
		PriceInPer1K:  getFloat("PRICE_IN_PER_1K", 0),
		PriceOutPer1K: getFloat("PRICE_OUT_PER_1K", 0),
		HistoryPairs:  getInt("HISTORY_MAX_PAIRS", 8),
		SessionMaxAge: time.Duration(getInt("SESSION_MAX_AGE_HOURS", 24)) * time.Hour,
		SweepInterval: time.Duration(getInt("SESSION_SWEEP_MINUTES", 10)) * time.Minute,

		AdminKey:  os.Getenv("ADMIN_KEY"),
		JWTSecret: os.Getenv("JWT_SECRET"),

		MetaVerifyToken: os.Getenv("META_VERIFY_TOKEN"),
		MetaPageToken:   os.Getenv("META_PAGE_TOKEN"),
		MetaSeenTTL:     time.Duration(getInt("META_SEEN_TTL", 600)) * time.Second,
		MetaSeenMax:     getInt("META_SEEN_MAX", 1000),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeSuccessURL:    os.Getenv("STRIPE_SUCCESS_URL"),
		StripeCancelURL:     os.Getenv("STRIPE_CANCEL_URL"),

		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:       os.Getenv("TWILIO_FROM"),
	}
}

func getStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return def
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
