package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/subosito/gotenv"
)

// 分類エンジンのバックエンド
const (
	BackendOpenAI = "openai"
	BackendVader  = "vader"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Facebook OAuth
	FacebookAppID       string
	FacebookAppSecret   string
	FacebookRedirectURI string
	FacebookDialogURL   string
	GraphAPIURL         string
	GraphTimeout        time.Duration
	FrontendURL         string

	// Session
	AppSecretKey string
	SessionTTL   time.Duration

	// Model
	ModelBackend       string
	ModelBaseURL       string
	ModelName          string
	ModelAPIKey        string
	ModelMaxTokens     int
	ModelTimeout       time.Duration
	ModelProbeInterval time.Duration
	ModelInlineMedia   bool
	MediaMaxSize       int64

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral   int
	RateLimitSentiment int

	// Database（任意）
	DatabaseURL      string
	LogRetentionDays int

	// Logging
	LogFormat string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は.envファイルと環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := loadEnvFile(getEnvString("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.FacebookAppID = os.Getenv("FACEBOOK_APP_ID")
	if cfg.FacebookAppID == "" {
		missing = append(missing, "FACEBOOK_APP_ID")
	}

	cfg.FacebookAppSecret = os.Getenv("FACEBOOK_APP_SECRET")
	if cfg.FacebookAppSecret == "" {
		missing = append(missing, "FACEBOOK_APP_SECRET")
	}

	cfg.AppSecretKey = os.Getenv("APP_SECRET_KEY")
	if cfg.AppSecretKey == "" {
		missing = append(missing, "APP_SECRET_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.FacebookRedirectURI = getEnvString("FACEBOOK_REDIRECT_URI", "http://localhost:8000/api/v1/auth/callback")
	cfg.FacebookDialogURL = getEnvString("FB_DIALOG_URL", "https://www.facebook.com/v19.0/dialog/oauth")
	cfg.GraphAPIURL = strings.TrimRight(getEnvString("FB_GRAPH_API_URL", "https://graph.facebook.com/v20.0"), "/")
	cfg.GraphTimeout = getEnvDuration("GRAPH_TIMEOUT", 30*time.Second)
	cfg.FrontendURL = strings.TrimRight(getEnvString("FRONTEND_URL", "http://localhost:3000"), "/")
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", 168*time.Hour)
	cfg.ModelBackend = strings.ToLower(getEnvString("MODEL_BACKEND", BackendOpenAI))
	cfg.ModelBaseURL = getEnvString("MODEL_BASE_URL", "http://localhost:8001/v1")
	cfg.ModelName = getEnvString("MODEL_NAME", "google/gemma-3-4b-it")
	cfg.ModelAPIKey = getEnvString("MODEL_API_KEY", "")
	cfg.ModelMaxTokens = getEnvInt("MODEL_MAX_TOKENS", 5)
	cfg.ModelTimeout = getEnvDuration("MODEL_TIMEOUT", 60*time.Second)
	cfg.ModelProbeInterval = getEnvDuration("MODEL_PROBE_INTERVAL", 5*time.Second)
	cfg.ModelInlineMedia = getEnvBool("MODEL_INLINE_MEDIA", false)
	cfg.MediaMaxSize = getEnvInt64("MEDIA_MAX_SIZE", 5242880)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSentiment = getEnvInt("RATE_LIMIT_SENTIMENT", 10)
	cfg.DatabaseURL = getEnvString("DATABASE_URL", "")
	cfg.LogRetentionDays = getEnvInt("LOG_RETENTION_DAYS", 90)
	cfg.LogFormat = strings.ToLower(getEnvString("LOG_FORMAT", "json"))
	cfg.ServerPort = getEnvString("SERVER_PORT", "8000")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.FrontendURL)

	switch cfg.ModelBackend {
	case BackendOpenAI, BackendVader:
	default:
		return nil, fmt.Errorf("unsupported MODEL_BACKEND %q (want %q or %q)", cfg.ModelBackend, BackendOpenAI, BackendVader)
	}

	return cfg, nil
}

// loadEnvFile は.envファイルを読み込む。既に設定済みの環境変数は上書きしない。
// ファイルが存在しない場合は何もしない。
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
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
