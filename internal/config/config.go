// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all proxy server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Database
	DatabaseURL string

	// S3-compatible object store
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool

	// All object keys live under this prefix. Always ends with "/".
	RootPrefix string

	// Auth
	JWTSecret string

	// Uploads (base64 envelope is buffered in memory, so this is a hard cap)
	MaxUploadSize int64

	// Whether deleting a non-existent key counts as success.
	DeleteMissingOK bool
}

// ErrMissingCredentials signals absent object store credentials; callers
// surface it as a server misconfiguration, never as a caller error.
var ErrMissingCredentials = fmt.Errorf("object store credentials not configured")

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:      envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:     envOr("METRICS_ADDR", ":9090"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		LogFormat:       envOr("LOG_FORMAT", "json"),
		DatabaseURL:     envOr("DATABASE_URL", ""),
		S3Endpoint:      envOr("S3_ENDPOINT", "http://localhost:9000"),
		S3Bucket:        envOr("S3_BUCKET", "cloudvault"),
		S3AccessKey:     envOr("S3_ACCESS_KEY", ""),
		S3SecretKey:     envOr("S3_SECRET_KEY", ""),
		S3Region:        envOr("S3_REGION", "us-east-1"),
		S3UseSSL:        envBool("S3_USE_SSL", false),
		RootPrefix:      envOr("ROOT_PREFIX", "cloud-vault/"),
		JWTSecret:       envOr("JWT_SECRET", ""),
		MaxUploadSize:   envInt64("MAX_UPLOAD_SIZE", 50*1024*1024), // 50MB default
		DeleteMissingOK: envBool("DELETE_MISSING_OK", true),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.RootPrefix != "" && cfg.RootPrefix[len(cfg.RootPrefix)-1] != '/' {
		cfg.RootPrefix += "/"
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
