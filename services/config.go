package services

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "your-default-secret-key-change-in-production"

// Config is the server configuration, read from the environment.
type Config struct {
	Port           string
	DBPath         string
	JWTSecret      string
	TokenTTL       time.Duration
	MagicLinkTTL   time.Duration
	AllowedOrigins []string
	SMTP           SMTPConfig
	LogLevel       slog.Level
	LogFormat      string
}

// LoadEnv loads variables from a .env file into the environment. A missing
// file is not an error; variables already set win.
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadConfig reads the configuration from the environment, filling in
// defaults for anything unset.
func LoadConfig() Config {
	cfg := Config{
		Port:           getenv("PORT", "3001"),
		DBPath:         getenv("DB_PATH", "taskboard.db"),
		JWTSecret:      getenv("JWT_SECRET", defaultJWTSecret),
		TokenTTL:       duration("TOKEN_TTL", 7*24*time.Hour),
		MagicLinkTTL:   duration("MAGIC_LINK_TTL", 15*time.Minute),
		AllowedOrigins: splitList(getenv("ALLOWED_ORIGINS", "*")),
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     os.Getenv("SMTP_PORT"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		},
		LogFormat: strings.ToLower(getenv("LOG_FORMAT", "text")),
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(getenv("LOG_LEVEL", "info"))); err != nil {
		cfg.LogLevel = slog.LevelInfo
	}
	return cfg
}

// NewLogger builds the process logger described by the config.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func duration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(getenv(key, ""))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
