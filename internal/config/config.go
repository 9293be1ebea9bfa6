/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	BaseURL     string
	DBBackend   DatabaseBackend
	DBDSN       string
	MediaRoot   string
	MetricsBind string

	JWTSigningKey string
	AdminEmail    string
	AdminPassword string

	// Radio engine
	PollInterval     time.Duration // progress sampling interval
	FadeTickInterval time.Duration // volume ramp sampling interval
	ResumeDeferral   time.Duration // settle delay before auto-resume on rebuild

	// Host break generation service
	HostBreakURL            string
	HostBreakTimeout        time.Duration
	HostBreakTargetDuration time.Duration
	HostBreakMirror         bool // copy generated audio into media storage

	// S3 object storage (optional; filesystem storage used when unset)
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string
	S3PublicBaseURL   string
	S3UsePathStyle    bool

	// Tracing
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Event fan-out / cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string
	InstanceID    string

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("STORYBEAM_ENV", "development"),
		HTTPBind:    getEnv("STORYBEAM_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("STORYBEAM_HTTP_PORT", 8080),
		BaseURL:     getEnv("STORYBEAM_BASE_URL", ""),
		DBBackend:   DatabaseBackend(getEnv("STORYBEAM_DB_BACKEND", string(DatabaseSQLite))),
		DBDSN:       getEnv("STORYBEAM_DB_DSN", ""),
		MediaRoot:   getEnv("STORYBEAM_MEDIA_ROOT", "./media"),
		MetricsBind: getEnv("STORYBEAM_METRICS_BIND", "127.0.0.1:9000"),

		JWTSigningKey: getEnv("STORYBEAM_JWT_SIGNING_KEY", ""),
		AdminEmail:    getEnv("STORYBEAM_ADMIN_EMAIL", "admin@localhost"),
		AdminPassword: getEnv("STORYBEAM_ADMIN_PASSWORD", ""),

		PollInterval:     time.Duration(getEnvInt("STORYBEAM_POLL_INTERVAL_MS", 100)) * time.Millisecond,
		FadeTickInterval: time.Duration(getEnvInt("STORYBEAM_FADE_TICK_MS", 25)) * time.Millisecond,
		ResumeDeferral:   time.Duration(getEnvInt("STORYBEAM_RESUME_DEFERRAL_MS", 250)) * time.Millisecond,

		HostBreakURL:            getEnv("STORYBEAM_HOSTBREAK_URL", ""),
		HostBreakTimeout:        time.Duration(getEnvInt("STORYBEAM_HOSTBREAK_TIMEOUT_SECONDS", 30)) * time.Second,
		HostBreakTargetDuration: time.Duration(getEnvInt("STORYBEAM_HOSTBREAK_TARGET_SECONDS", 15)) * time.Second,
		HostBreakMirror:         getEnvBool("STORYBEAM_HOSTBREAK_MIRROR", false),

		S3AccessKeyID:     getEnvAny([]string{"STORYBEAM_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"STORYBEAM_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"STORYBEAM_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"STORYBEAM_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"STORYBEAM_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3PublicBaseURL:   getEnvAny([]string{"STORYBEAM_S3_PUBLIC_BASE_URL", "S3_PUBLIC_BASE_URL"}, ""),
		S3UsePathStyle:    getEnvBool("STORYBEAM_S3_USE_PATH_STYLE", false),

		TracingEnabled:    getEnvBool("STORYBEAM_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("STORYBEAM_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("STORYBEAM_TRACING_SAMPLE_RATE", 1.0),

		RedisAddr:     getEnv("STORYBEAM_REDIS_ADDR", ""),
		RedisPassword: getEnv("STORYBEAM_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("STORYBEAM_REDIS_DB", 0),
		NATSURL:       getEnv("STORYBEAM_NATS_URL", ""),
		InstanceID:    getEnv("STORYBEAM_INSTANCE_ID", ""),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("STORYBEAM_DB_DSN must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("STORYBEAM_JWT_SIGNING_KEY must be provided")
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if cfg.AdminPassword == "" || strings.EqualFold(cfg.AdminPassword, "hackme") {
			return nil, fmt.Errorf("STORYBEAM_ADMIN_PASSWORD must be set to a non-default value in production")
		}
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.FadeTickInterval <= 0 {
		cfg.FadeTickInterval = 25 * time.Millisecond
	}

	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":     "use STORYBEAM_ENV",
		"JWT_SIGNING_KEY": "use STORYBEAM_JWT_SIGNING_KEY",
		"TRACING_ENABLED": "use STORYBEAM_TRACING_ENABLED",
		"OTLP_ENDPOINT":   "use STORYBEAM_OTLP_ENDPOINT",
		"REDIS_ADDR":      "use STORYBEAM_REDIS_ADDR",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// S3Enabled reports whether object storage should use the S3 backend.
func (c *Config) S3Enabled() bool {
	return c != nil && c.S3Bucket != ""
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "true" || v == "1" || v == "yes" {
			return true
		}
		if v == "false" || v == "0" || v == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}
