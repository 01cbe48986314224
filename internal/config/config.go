package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"focuspal/backend/internal/timer"
)

type Config struct {
	Port          string        `yaml:"port"`
	DBPath        string        `yaml:"db_path"`
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	CORSOrigins   []string      `yaml:"cors_origins"`
	MigrationsDir string        `yaml:"migrations_dir"`
	LogLevel      string        `yaml:"log_level"`

	DefaultFocusMinutes int           `yaml:"default_focus_minutes"`
	DefaultBreakMinutes int           `yaml:"default_break_minutes"`
	TickInterval        time.Duration `yaml:"tick_interval"`
	NotifyPollInterval  time.Duration `yaml:"notify_poll_interval"`
	SessionIdleTTL      time.Duration `yaml:"session_idle_ttl"`
}

func defaults() Config {
	return Config{
		Port:                "8080",
		DBPath:              "./data/focuspal.db",
		JWTSecret:           "change-this-secret",
		TokenTTL:            72 * time.Hour,
		CORSOrigins:         []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		MigrationsDir:       "./migrations",
		LogLevel:            "info",
		DefaultFocusMinutes: 25,
		DefaultBreakMinutes: 5,
		TickInterval:        time.Second,
		NotifyPollInterval:  5 * time.Second,
		SessionIdleTTL:      30 * time.Minute,
	}
}

// Load builds the config from defaults, then the YAML file named by
// CONFIG_FILE if set, then environment variables.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL_HOURS", time.Hour, cfg.TokenTTL)
	cfg.CORSOrigins = getEnvList("CORS_ORIGINS", cfg.CORSOrigins)
	cfg.MigrationsDir = getEnv("MIGRATIONS_DIR", cfg.MigrationsDir)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.DefaultFocusMinutes = getEnvInt("DEFAULT_FOCUS_MINUTES", cfg.DefaultFocusMinutes)
	cfg.DefaultBreakMinutes = getEnvInt("DEFAULT_BREAK_MINUTES", cfg.DefaultBreakMinutes)
	cfg.NotifyPollInterval = getEnvDuration("NOTIFY_POLL_SECONDS", time.Second, cfg.NotifyPollInterval)
	cfg.SessionIdleTTL = getEnvDuration("SESSION_IDLE_MINUTES", time.Minute, cfg.SessionIdleTTL)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DefaultFocusMinutes < 1 || c.DefaultBreakMinutes < 1 {
		return fmt.Errorf("default durations must be at least one minute")
	}
	if c.DefaultFocusMinutes > timer.MaxMinutes || c.DefaultBreakMinutes > timer.MaxMinutes {
		return fmt.Errorf("default durations must not exceed %d minutes", timer.MaxMinutes)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive")
	}
	if c.TickInterval <= 0 || c.NotifyPollInterval <= 0 || c.SessionIdleTTL <= 0 {
		return fmt.Errorf("intervals must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvDuration reads key as a whole number of unit, keeping fallback when
// the variable is unset or malformed.
func getEnvDuration(key string, unit, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return time.Duration(parsed) * unit
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
