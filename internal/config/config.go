package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Site
	BaseURL           string
	LanguageCode      string
	DefaultOwnerEmail string

	// Token
	TokenSecret  string
	TokenTimeout time.Duration

	// Media
	ProtectedMediaPrefix string

	// Feed
	FeedCacheMaxAge time.Duration

	// Billing
	BillingWebhookSecret string
	WebhookTolerance     time.Duration

	// Rate Limit（req/min）
	RateLimitFeed  int
	RateLimitMedia int

	// Probe
	ProbeInterval      time.Duration
	ProbeTimeout       time.Duration
	ProbeMaxConcurrent int
	ProbeBatchSize     int

	// Logging
	LogLevel string

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は、未設定のものをまとめてエラーで返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = strings.TrimRight(os.Getenv("BASE_URL"), "/")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.TokenSecret = os.Getenv("TOKEN_SECRET")
	if cfg.TokenSecret == "" {
		missing = append(missing, "TOKEN_SECRET")
	}

	cfg.BillingWebhookSecret = os.Getenv("BILLING_WEBHOOK_SECRET")
	if cfg.BillingWebhookSecret == "" {
		missing = append(missing, "BILLING_WEBHOOK_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("BASE_URL must be an absolute URL: %q", cfg.BaseURL)
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LanguageCode = getEnvString("LANGUAGE_CODE", "en-us")
	cfg.DefaultOwnerEmail = getEnvString("DEFAULT_OWNER_EMAIL", "")
	cfg.TokenTimeout = getEnvDuration("TOKEN_TIMEOUT", 876000*time.Hour)
	cfg.ProtectedMediaPrefix = getEnvString("PROTECTED_MEDIA_PREFIX", "/media_download/")
	cfg.FeedCacheMaxAge = getEnvDuration("FEED_CACHE_MAX_AGE", 15*time.Minute)
	cfg.WebhookTolerance = getEnvDuration("WEBHOOK_TOLERANCE", 5*time.Minute)
	cfg.RateLimitFeed = getEnvInt("RATE_LIMIT_FEED", 60)
	cfg.RateLimitMedia = getEnvInt("RATE_LIMIT_MEDIA", 30)
	cfg.ProbeInterval = getEnvDuration("PROBE_INTERVAL", 10*time.Minute)
	cfg.ProbeTimeout = getEnvDuration("PROBE_TIMEOUT", 10*time.Second)
	cfg.ProbeMaxConcurrent = getEnvInt("PROBE_MAX_CONCURRENT", 4)
	cfg.ProbeBatchSize = getEnvInt("PROBE_BATCH_SIZE", 50)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
