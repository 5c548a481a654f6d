// Package config loads and validates application configuration from
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values for the bot.
// Values are populated by Load from environment variables.
type Config struct {
	// BotToken is the Telegram bot API token. Required.
	BotToken string

	// DatabaseURL is the Postgres connection string. Required.
	DatabaseURL string

	// Port is the TCP port the webhook HTTP server listens on.
	// Defaults to "8080".
	Port string

	// WebhookURL is the public URL Telegram delivers updates to.
	// When empty the bot falls back to long polling and no HTTP server
	// is started.
	WebhookURL string

	// LogLevel controls the minimum log level. Defaults to "info".
	// Valid values: debug, info, warn, error.
	LogLevel string

	// Timezone is the IANA zone all trip times are entered and stored in.
	// Defaults to Europe/Moscow.
	Timezone string

	// EditWindow is how long after creation a trip row may be corrected.
	EditWindow time.Duration

	// DuplicateWindow is the interval within which two commits from the
	// same user collapse into one.
	DuplicateWindow time.Duration

	// DuplicateScanRows bounds the duplicate check to the last N rows.
	DuplicateScanRows int

	// FuelBars and LitersPerBar describe the fuel gauge for the photo flow.
	FuelBars     int
	LitersPerBar float64

	// MinConfidence is the extraction confidence below which the
	// confirmation message carries a caveat.
	MinConfidence float64

	// VisionURL is the panel extraction service endpoint; empty disables
	// photo recognition (manual entry still works).
	VisionURL string

	// AdminIDs is the set of privileged user ids.
	AdminIDs []int64
}

// Load reads configuration from environment variables and returns a Config.
// Returns an error listing any required variables that are not set.
func Load() (Config, error) {
	cfg := Config{
		Port:              getEnv("PORT", "8080"),
		WebhookURL:        os.Getenv("WEBHOOK_URL"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		Timezone:          getEnv("TIMEZONE", "Europe/Moscow"),
		EditWindow:        time.Duration(getEnvAsInt("EDIT_WINDOW_MINUTES", 15)) * time.Minute,
		DuplicateWindow:   time.Duration(getEnvAsInt("DUPLICATE_WINDOW_SECONDS", 30)) * time.Second,
		DuplicateScanRows: getEnvAsInt("DUPLICATE_SCAN_ROWS", 10),
		FuelBars:          getEnvAsInt("FUEL_BARS", 8),
		LitersPerBar:      getEnvAsFloat("LITERS_PER_BAR", 6.25),
		MinConfidence:     getEnvAsFloat("MIN_CONFIDENCE", 0.6),
		VisionURL:         os.Getenv("VISION_URL"),
		AdminIDs:          splitIDs(os.Getenv("ADMIN_IDS")),
	}

	var missing []string

	cfg.BotToken = os.Getenv("BOT_TOKEN")
	if cfg.BotToken == "" {
		missing = append(missing, "BOT_TOKEN")
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvAsInt parses the variable as an int, falling back on absence or a
// parse failure.
func getEnvAsInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvAsFloat parses the variable as a float64, falling back on absence
// or a parse failure.
func getEnvAsFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// splitIDs splits a comma-separated id list, ignoring empty and malformed
// entries.
func splitIDs(s string) []int64 {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		t := strings.TrimSpace(part)
		if t == "" {
			continue
		}
		id, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}
