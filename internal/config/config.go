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

	// Google OAuth（ログインとカレンダー連携トークンの取得・リフレッシュに使用）
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Zoom Server-to-Server OAuth
	ZoomAccountID    string
	ZoomClientID     string
	ZoomClientSecret string

	// Microsoft Graph
	GraphTenantID     string
	GraphClientID     string
	GraphClientSecret string

	// Provider call
	ProviderTimeout time.Duration

	// Session
	SessionMaxAge int

	// Rate Limit
	RateLimitGeneral    int
	RateLimitEventWrite int

	// Worker
	AssistSweepInterval  time.Duration
	AssistMaxConcurrent  int
	EventRetentionDays   int
	SessionSweepInterval time.Duration

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
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	if cfg.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	// Zoom/Graph連携は未設定でも起動できる（該当機能はプレースホルダ動作になる）
	cfg.ZoomAccountID = getEnvString("ZOOM_ACCOUNT_ID", "")
	cfg.ZoomClientID = getEnvString("ZOOM_CLIENT_ID", "")
	cfg.ZoomClientSecret = getEnvString("ZOOM_CLIENT_SECRET", "")
	cfg.GraphTenantID = getEnvString("GRAPH_TENANT_ID", "")
	cfg.GraphClientID = getEnvString("GRAPH_CLIENT_ID", "")
	cfg.GraphClientSecret = getEnvString("GRAPH_CLIENT_SECRET", "")

	cfg.GoogleRedirectURL = getEnvString("GOOGLE_REDIRECT_URL", cfg.BaseURL+"/auth/google/callback")
	cfg.ProviderTimeout = getEnvDuration("PROVIDER_TIMEOUT", 15*time.Second)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitEventWrite = getEnvInt("RATE_LIMIT_EVENT_WRITE", 30)
	cfg.AssistSweepInterval = getEnvDuration("ASSIST_SWEEP_INTERVAL", 5*time.Minute)
	cfg.AssistMaxConcurrent = getEnvInt("ASSIST_MAX_CONCURRENT", 10)
	cfg.EventRetentionDays = getEnvInt("EVENT_RETENTION_DAYS", 90)
	cfg.SessionSweepInterval = getEnvDuration("SESSION_SWEEP_INTERVAL", 24*time.Hour)
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
