// Package config は環境変数からのアプリケーション設定読み込みを提供する。
package config

import (
	"fmt"
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

	// KV store
	RedisURL string

	// Session
	SessionSecret string
	SessionTTL    time.Duration

	// Auth code
	CodeTTL         time.Duration
	CodeMaxAttempts int
	DevMode         bool

	// Mail
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string

	// Billing
	StripeWebhookSecret string

	// Policy
	// MaxAccountMembers はアカウントあたりのメンバー数上限。0は無制限。
	MaxAccountMembers int

	// Rate Limit
	RateLimitGeneral     int
	RateLimitCodeRequest int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// SMTP設定は開発モード（AUTH_DEV_MODE=true）では省略可能。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.DevMode = getEnvBool("AUTH_DEV_MODE", false)

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.MailFrom = os.Getenv("MAIL_FROM")
	if !cfg.DevMode {
		// 本番モードではコード送信手段が必須
		if cfg.SMTPHost == "" {
			missing = append(missing, "SMTP_HOST")
		}
		if cfg.MailFrom == "" {
			missing = append(missing, "MAIL_FROM")
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", 5*time.Minute)
	cfg.CodeTTL = getEnvDuration("CODE_TTL", 10*time.Minute)
	cfg.CodeMaxAttempts = getEnvInt("CODE_MAX_ATTEMPTS", 5)
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUsername = getEnvString("SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnvString("SMTP_PASSWORD", "")
	cfg.StripeWebhookSecret = getEnvString("STRIPE_WEBHOOK_SECRET", "")
	cfg.MaxAccountMembers = getEnvInt("MAX_ACCOUNT_MEMBERS", 0)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitCodeRequest = getEnvInt("RATE_LIMIT_CODE_REQUEST", 5)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

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
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
