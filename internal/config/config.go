// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	APIURL       string
	WSPath       string
	DBPath       string
	LogFile      string
	LogLevel     string
	HTTPTimeout  time.Duration
	Reconnect    ReconnectConfig
	EventBuffer  int
	GlamourStyle string
	AltScreen    bool
	MetricsAddr  string // empty disables the metrics endpoint
}

// ReconnectConfig bounds the event channel's reconnect backoff.
type ReconnectConfig struct {
	Min time.Duration
	Max time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dataDir := defaultDataDir()

	cfg := &Config{
		APIURL:       strings.TrimRight(getEnv("RAGCHAT_API_URL", "http://localhost:8000"), "/"),
		WSPath:       getEnv("RAGCHAT_WS_PATH", "/ws"),
		DBPath:       getEnv("RAGCHAT_DB_PATH", filepath.Join(dataDir, "ragchat.db")),
		LogFile:      getEnv("RAGCHAT_LOG_FILE", filepath.Join(dataDir, "ragchat.log")),
		LogLevel:     getEnv("RAGCHAT_LOG_LEVEL", "info"),
		HTTPTimeout:  getEnvDuration("RAGCHAT_HTTP_TIMEOUT", 15*time.Second),
		EventBuffer:  getEnvInt("RAGCHAT_EVENT_BUFFER", 256),
		GlamourStyle: getEnv("RAGCHAT_GLAMOUR_STYLE", "dark"),
		AltScreen:    getEnvBool("RAGCHAT_ALT_SCREEN", true),
		MetricsAddr:  getEnv("RAGCHAT_METRICS_ADDR", ""),
		Reconnect: ReconnectConfig{
			Min: getEnvDuration("RAGCHAT_RECONNECT_MIN", time.Second),
			Max: getEnvDuration("RAGCHAT_RECONNECT_MAX", 10*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("RAGCHAT_API_URL cannot be empty")
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("RAGCHAT_API_URL must be an http(s) URL, got %q", c.APIURL)
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		return fmt.Errorf("RAGCHAT_WS_PATH must start with /")
	}
	if c.DBPath == "" {
		return fmt.Errorf("RAGCHAT_DB_PATH cannot be empty")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("RAGCHAT_HTTP_TIMEOUT must be > 0")
	}
	if c.Reconnect.Min <= 0 {
		return fmt.Errorf("RAGCHAT_RECONNECT_MIN must be > 0")
	}
	if c.Reconnect.Max < c.Reconnect.Min {
		return fmt.Errorf("RAGCHAT_RECONNECT_MAX must be >= RAGCHAT_RECONNECT_MIN")
	}
	if c.EventBuffer <= 0 {
		return fmt.Errorf("RAGCHAT_EVENT_BUFFER must be > 0")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// WebSocketURL returns the event channel endpoint.
func (c *Config) WebSocketURL() string {
	return c.APIURL + c.WSPath
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	level, _ := ParseLevel(c.LogLevel)
	return level
}

// ParseLevel parses a log level name.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("RAGCHAT_LOG_LEVEL: %w", err)
	}
	return level, nil
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "ragchat")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "data")
	}
	return filepath.Join(home, ".local", "share", "ragchat")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
