// Package config は環境変数（と任意の設定ファイル）からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// セッションストアの種類
const (
	SessionStorePostgres = "postgres"
	SessionStoreRedis    = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort  string
	APIPrefix   string
	CORSOrigins []string

	// Session
	SessionTTL           time.Duration
	SessionStore         string
	RedisURL             string
	SessionSweepSchedule string
	SessionSweepEmbedded bool

	// Cookie
	CookieSecure bool
	CookieDomain string
	CSRFEnabled  bool

	// External identity provider
	AuthProviderURL     string
	AuthProviderTimeout time.Duration

	// Text generation
	LLMAPIURL  string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration

	// Outbound
	OutboundSSRFGuard bool

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int
	RateLimitAuth    int

	// Logging
	LogLevel string

	// Seed
	SeedPassword string
}

var defaults = map[string]any{
	"SERVER_PORT":            "8080",
	"API_PREFIX":             "/api",
	"CORS_ORIGINS":           "*",
	"SESSION_TTL":            "168h",
	"SESSION_STORE":          SessionStorePostgres,
	"SESSION_SWEEP_SCHEDULE": "@every 1h",
	"SESSION_SWEEP_EMBEDDED": "true",
	"COOKIE_SECURE":          "true",
	"CSRF_ENABLED":           "false",
	"AUTH_PROVIDER_URL":      "https://demobackend.emergentagent.com/auth/v1/env/oauth/session-data",
	"AUTH_PROVIDER_TIMEOUT":  "10s",
	"LLM_API_URL":            "https://api.openai.com/v1/",
	"LLM_MODEL":              "gpt-4o-mini",
	"LLM_TIMEOUT":            "30s",
	"OUTBOUND_SSRF_GUARD":    "true",
	"RATE_LIMIT_GENERAL":     "120",
	"RATE_LIMIT_AUTH":        "10",
	"LOG_LEVEL":              "info",
	"SEED_PASSWORD":          "demo123",
}

// Load は環境変数からConfigを読み込む。
// CONFIG_FILE が指定されている場合はそのファイルも読み込み、環境変数を優先する。
// 必須項目が未設定の場合は未設定の項目をすべて列挙したエラーを返す。
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		DatabaseURL:          strings.TrimSpace(v.GetString("DATABASE_URL")),
		ServerPort:           getString(v, "SERVER_PORT"),
		APIPrefix:            getString(v, "API_PREFIX"),
		CORSOrigins:          splitList(getString(v, "CORS_ORIGINS")),
		SessionTTL:           getDuration(v, "SESSION_TTL"),
		SessionStore:         strings.ToLower(getString(v, "SESSION_STORE")),
		RedisURL:             strings.TrimSpace(v.GetString("REDIS_URL")),
		SessionSweepSchedule: getString(v, "SESSION_SWEEP_SCHEDULE"),
		SessionSweepEmbedded: getBool(v, "SESSION_SWEEP_EMBEDDED"),
		CookieSecure:         getBool(v, "COOKIE_SECURE"),
		CookieDomain:         strings.TrimSpace(v.GetString("COOKIE_DOMAIN")),
		CSRFEnabled:          getBool(v, "CSRF_ENABLED"),
		AuthProviderURL:      getString(v, "AUTH_PROVIDER_URL"),
		AuthProviderTimeout:  getDuration(v, "AUTH_PROVIDER_TIMEOUT"),
		LLMAPIURL:            getString(v, "LLM_API_URL"),
		LLMAPIKey:            strings.TrimSpace(v.GetString("LLM_API_KEY")),
		LLMModel:             getString(v, "LLM_MODEL"),
		LLMTimeout:           getDuration(v, "LLM_TIMEOUT"),
		OutboundSSRFGuard:    getBool(v, "OUTBOUND_SSRF_GUARD"),
		RateLimitGeneral:     getPositiveInt(v, "RATE_LIMIT_GENERAL"),
		RateLimitAuth:        getPositiveInt(v, "RATE_LIMIT_AUTH"),
		LogLevel:             strings.ToLower(getString(v, "LOG_LEVEL")),
		SeedPassword:         getString(v, "SEED_PASSWORD"),
	}

	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.SessionStore == SessionStoreRedis && cfg.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if cfg.SessionStore != SessionStorePostgres && cfg.SessionStore != SessionStoreRedis {
		return nil, fmt.Errorf("SESSION_STORE must be %q or %q, got %q", SessionStorePostgres, SessionStoreRedis, cfg.SessionStore)
	}

	return cfg, nil
}

// getString は値を返す。空白のみの場合はデフォルト値を使う。
func getString(v *viper.Viper, key string) string {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		return s
	}
	return fmt.Sprint(defaults[key])
}

// getPositiveInt は正の整数として解釈できない値をデフォルト値に置き換える。
func getPositiveInt(v *viper.Viper, key string) int {
	if i, err := strconv.Atoi(getString(v, key)); err == nil && i > 0 {
		return i
	}
	i, _ := strconv.Atoi(fmt.Sprint(defaults[key]))
	return i
}

func getDuration(v *viper.Viper, key string) time.Duration {
	if d, err := time.ParseDuration(getString(v, key)); err == nil && d > 0 {
		return d
	}
	d, _ := time.ParseDuration(fmt.Sprint(defaults[key]))
	return d
}

func getBool(v *viper.Viper, key string) bool {
	if b, err := strconv.ParseBool(getString(v, key)); err == nil {
		return b
	}
	b, _ := strconv.ParseBool(fmt.Sprint(defaults[key]))
	return b
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
