package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabasePath        string
	Port                string
	LogLevel            string
	Timezone            string
	Location            *time.Location
	MaterializeInterval time.Duration
	MaterializeOnStart  bool
	AdminAPIToken       string
}

func Load() (Config, error) {
	config := Config{
		DatabasePath:       envOrDefault("DATABASE_PATH", "./data/habit-scheduler.db"),
		Port:               envOrDefault("PORT", "8080"),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		Timezone:           envOrDefault("TIMEZONE", "UTC"),
		MaterializeOnStart: envBool("MATERIALIZE_ON_START", true),
		AdminAPIToken:      os.Getenv("ADMIN_API_TOKEN"),
	}

	location, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return Config{}, fmt.Errorf("loading TIMEZONE %q: %w", config.Timezone, err)
	}
	config.Location = location

	interval, err := time.ParseDuration(envOrDefault("MATERIALIZE_INTERVAL", "1h"))
	if err != nil {
		return Config{}, fmt.Errorf("parsing MATERIALIZE_INTERVAL: %w", err)
	}
	if interval <= 0 {
		return Config{}, fmt.Errorf("MATERIALIZE_INTERVAL must be positive")
	}
	config.MaterializeInterval = interval

	if config.AdminAPIToken == "" {
		return Config{}, fmt.Errorf("ADMIN_API_TOKEN is required")
	}

	return config, nil
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
