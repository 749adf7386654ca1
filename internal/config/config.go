// Package config holds the environment-driven application configuration and
// the tunable constants for matchmaking, moderation and anti-spam behavior.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config is loaded once at startup from environment variables.
// godotenv is loaded by main before this runs.
type Config struct {
	BotToken    string
	BotUsername string

	DatabaseDSN   string
	RedisAddr     string
	RedisPassword string

	ListenAddr string
	JWTSecret  string

	// AdminID and LogChannelID are optional; zero means unset.
	AdminID      int64
	LogChannelID int64
}

// Load reads the configuration from the environment. It fails fast when the
// bot token or JWT secret is missing.
func Load() (*Config, error) {
	cfg := &Config{
		BotToken:      os.Getenv("BOT_TOKEN"),
		BotUsername:   getEnv("BOT_USERNAME", "NashenasBot"),
		DatabaseDSN:   getEnv("DATABASE_DSN", "host=localhost user=user password=password dbname=nashenas port=5432 sslmode=disable"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		ListenAddr:    getEnv("LISTEN_ADDR", ":8080"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN environment variable is not set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is not set")
	}

	cfg.AdminID = getEnvInt64("ADMIN_ID")
	cfg.LogChannelID = getEnvInt64("LOG_CHANNEL_ID")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string) int64 {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
