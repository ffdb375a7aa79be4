package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the task assistant.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	Timezone         string
	AllowAnyOrigin   bool

	DatabaseURL string
	RedisURL    string
	NATSURL     string

	TelegramBotToken    string
	TelegramAPIURL      string
	TelegramPollTimeout time.Duration

	LLMMode       string
	LLMHTTPURL    string
	LLMHTTPAPIKey string
	LLMHTTPModel  string
	GeminiAPIKey  string
	GeminiModel   string
	LLMTimeout    time.Duration

	MemoryContextTurns int
	MemoryMaxTurns     int

	AlertPeriod        time.Duration
	AlertWindow        time.Duration
	DigestAt           string
	DigestRetryBackoff time.Duration

	LogLevel  string
	LogFormat string
	LogFile   string
}

// Load reads an optional .env file, then environment variables, and applies safe defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "taskpal"),
		Timezone:         envOrDefault("APP_TIMEZONE", "Local"),
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		RedisURL:         stringsTrimSpace("REDIS_URL"),
		NATSURL:          stringsTrimSpace("NATS_URL"),
		TelegramBotToken: stringsTrimSpace("TELEGRAM_BOT_TOKEN"),
		TelegramAPIURL:   envOrDefault("TELEGRAM_API_URL", "https://api.telegram.org"),
		LLMMode:          envOrDefault("LLM_MODE", "auto"),
		LLMHTTPURL:       envOrDefault("LLM_HTTP_URL", "https://api.openai.com/v1/chat/completions"),
		LLMHTTPAPIKey:    stringsTrimSpace("LLM_HTTP_API_KEY"),
		LLMHTTPModel:     envOrDefault("LLM_HTTP_MODEL", "gpt-4o-mini"),
		GeminiAPIKey:     stringsTrimSpace("GEMINI_API_KEY"),
		GeminiModel:      envOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		// 21:00 local is when people plan the next day.
		DigestAt:  envOrDefault("DIGEST_AT", "21:00"),
		LogLevel:  envOrDefault("LOG_LEVEL", "info"),
		LogFormat: envOrDefault("LOG_FORMAT", "text"),
		LogFile:   stringsTrimSpace("LOG_FILE"),

		ShutdownTimeout:     15 * time.Second,
		TelegramPollTimeout: 30 * time.Second,
		LLMTimeout:          60 * time.Second,
		MemoryContextTurns:  6,
		MemoryMaxTurns:      200,
		AlertPeriod:         2 * time.Hour,
		AlertWindow:         2 * time.Hour,
		DigestRetryBackoff:  time.Hour,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TelegramPollTimeout, err = durationFromEnv("TELEGRAM_POLL_TIMEOUT", cfg.TelegramPollTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTimeout, err = durationFromEnv("LLM_TIMEOUT", cfg.LLMTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AlertPeriod, err = durationFromEnv("ALERT_PERIOD", cfg.AlertPeriod)
	if err != nil {
		return Config{}, err
	}
	cfg.AlertWindow, err = durationFromEnv("ALERT_WINDOW", cfg.AlertWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.DigestRetryBackoff, err = durationFromEnv("DIGEST_RETRY_BACKOFF", cfg.DigestRetryBackoff)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryContextTurns, err = intFromEnv("MEMORY_CONTEXT_TURNS", cfg.MemoryContextTurns)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryMaxTurns, err = intFromEnv("MEMORY_MAX_TURNS", cfg.MemoryMaxTurns)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.AlertPeriod < time.Second {
		return fmt.Errorf("ALERT_PERIOD must be at least 1s")
	}
	if c.AlertWindow <= 0 {
		return fmt.Errorf("ALERT_WINDOW must be positive")
	}
	if c.DigestRetryBackoff <= 0 {
		return fmt.Errorf("DIGEST_RETRY_BACKOFF must be positive")
	}
	if c.MemoryContextTurns < 0 {
		return fmt.Errorf("MEMORY_CONTEXT_TURNS must be >= 0")
	}
	if c.MemoryMaxTurns < c.MemoryContextTurns || c.MemoryMaxTurns < 2 {
		return fmt.Errorf("MEMORY_MAX_TURNS must be >= 2 and >= MEMORY_CONTEXT_TURNS")
	}
	if _, _, err := c.DigestClock(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(c.LLMMode)) {
	case "auto", "mock":
	case "http":
		if c.LLMHTTPAPIKey == "" {
			return fmt.Errorf("LLM_MODE=http requires LLM_HTTP_API_KEY")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("LLM_MODE=gemini requires GEMINI_API_KEY")
		}
	default:
		return fmt.Errorf("invalid LLM_MODE: %q (expected auto|http|gemini|mock)", c.LLMMode)
	}
	return nil
}

// Location resolves APP_TIMEZONE. Due dates and times are interpreted in it.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("APP_TIMEZONE parse error: %w", err)
	}
	return loc, nil
}

// DigestClock returns the hour and minute of DIGEST_AT.
func (c Config) DigestClock() (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(c.DigestAt))
	if err != nil {
		return 0, 0, fmt.Errorf("DIGEST_AT parse error: %w", err)
	}
	return t.Hour(), t.Minute(), nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
