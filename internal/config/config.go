// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultIdPSessionDataURL はワンタイムセッションIDからユーザー情報を取得するエンドポイントの既定値。
const DefaultIdPSessionDataURL = "https://demobackend.emergentagent.com/auth/v1/env/oauth/session-data"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseDriver string
	DatabaseURL    string
	SQLitePath     string

	// Session
	SessionStore             string
	RedisURL                 string
	SessionMaxAge            int
	SessionSlidingExpiration bool
	ExchangeClaimTTL         time.Duration

	// Identity provider
	IdPSessionDataURL  string
	IdPTimeout         time.Duration
	IdPMaxResponseSize int64
	IdPSSRFGuard       bool
	IdPBreakerFailures int
	IdPBreakerTimeout  time.Duration

	// Rate Limit
	RateLimitGeneral  int
	RateLimitExchange int

	// Worker
	CleanupInterval time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string
	// TrustProxyHeaders がtrueの場合のみX-Forwarded-For / X-Real-IPをクライアントIPとして使う。
	// リバースプロキシの背後で動かす場合だけ有効にする。
	TrustProxyHeaders bool

	// Cookie
	CookieSecure   bool
	CookieDomain   string
	CookieSameSite http.SameSite

	// CORS / CSRF
	CORSAllowedOrigin string
	CSRFEnabled       bool
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込むが、既に設定済みの環境変数は上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseDriver = strings.ToLower(getEnvString("DATABASE_DRIVER", "postgres"))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" && cfg.DatabaseDriver != "sqlite" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SessionStore = strings.ToLower(getEnvString("SESSION_STORE", "sql"))
	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" && cfg.SessionStore == "redis" {
		missing = append(missing, "REDIS_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	switch cfg.DatabaseDriver {
	case "postgres", "pgx", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER: %q", cfg.DatabaseDriver)
	}
	switch cfg.SessionStore {
	case "sql", "redis":
	default:
		return nil, fmt.Errorf("unsupported SESSION_STORE: %q", cfg.SessionStore)
	}

	sameSite, err := parseSameSite(getEnvString("COOKIE_SAMESITE", "lax"))
	if err != nil {
		return nil, err
	}

	// Optional fields with defaults
	cfg.SQLitePath = getEnvString("SQLITE_PATH", "taskman.db")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 604800)
	cfg.SessionSlidingExpiration = getEnvBool("SESSION_SLIDING_EXPIRATION", false)
	cfg.ExchangeClaimTTL = getEnvDuration("EXCHANGE_CLAIM_TTL", 24*time.Hour)
	cfg.IdPSessionDataURL = getEnvString("IDP_SESSION_DATA_URL", DefaultIdPSessionDataURL)
	cfg.IdPTimeout = getEnvDuration("IDP_TIMEOUT", 10*time.Second)
	cfg.IdPMaxResponseSize = getEnvInt64("IDP_MAX_RESPONSE_SIZE", 1048576)
	cfg.IdPSSRFGuard = getEnvBool("IDP_SSRF_GUARD", true)
	cfg.IdPBreakerFailures = getEnvInt("IDP_BREAKER_FAILURES", 5)
	cfg.IdPBreakerTimeout = getEnvDuration("IDP_BREAKER_TIMEOUT", 30*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitExchange = getEnvInt("RATE_LIMIT_EXCHANGE", 10)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", time.Hour)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.TrustProxyHeaders = getEnvBool("TRUST_PROXY_HEADERS", false)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CookieSameSite = sameSite
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.CSRFEnabled = getEnvBool("CSRF_ENABLED", false)

	// SameSite=NoneはSecure属性が無いとブラウザに拒否される
	if cfg.CookieSameSite == http.SameSiteNoneMode && !cfg.CookieSecure {
		return nil, fmt.Errorf("COOKIE_SAMESITE=none requires an https BASE_URL")
	}

	if err := cfg.validateLimits(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateLimits は0以下だと動作が壊れる数値設定を検証する。
// 0のレート制限は全リクエストを拒否し、0のCLEANUP_INTERVALはワーカーを空回りさせる。
func (c *Config) validateLimits() error {
	ints := []struct {
		key string
		val int64
	}{
		{"SESSION_MAX_AGE", int64(c.SessionMaxAge)},
		{"RATE_LIMIT_GENERAL", int64(c.RateLimitGeneral)},
		{"RATE_LIMIT_EXCHANGE", int64(c.RateLimitExchange)},
		{"IDP_MAX_RESPONSE_SIZE", c.IdPMaxResponseSize},
		{"IDP_BREAKER_FAILURES", int64(c.IdPBreakerFailures)},
	}
	for _, v := range ints {
		if v.val <= 0 {
			return fmt.Errorf("%s must be a positive integer: %d", v.key, v.val)
		}
	}

	durations := []struct {
		key string
		val time.Duration
	}{
		{"CLEANUP_INTERVAL", c.CleanupInterval},
		{"EXCHANGE_CLAIM_TTL", c.ExchangeClaimTTL},
		{"IDP_TIMEOUT", c.IdPTimeout},
		{"IDP_BREAKER_TIMEOUT", c.IdPBreakerTimeout},
	}
	for _, v := range durations {
		if v.val <= 0 {
			return fmt.Errorf("%s must be a positive duration: %v", v.key, v.val)
		}
	}
	return nil
}

// DatabaseDSN はドライバに応じた接続文字列を返す。
func (c *Config) DatabaseDSN() string {
	if c.DatabaseDriver == "sqlite" {
		return c.SQLitePath
	}
	return c.DatabaseURL
}

func parseSameSite(v string) (http.SameSite, error) {
	switch strings.ToLower(v) {
	case "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	}
	return 0, fmt.Errorf("unsupported COOKIE_SAMESITE: %q", v)
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
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
