package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration. The upstream platform's
// anti-scraping behavior is tuned empirically, so everything that touches it
// (headers, retry caps, backoff step, search hints) is configuration rather
// than a constant.
type Config struct {
	ServerAddr     string
	AllowedOrigins []string

	// Upstream endpoints
	APIBaseURL      string
	MetadataBaseURL string
	WebSearchURL    string

	// Request provenance forwarded on every upstream call
	UserAgent      string
	AcceptLanguage string

	// Search policy
	SearchHint      string
	SearchLimit     int
	MinDurationMins int
	SearchTimeout   time.Duration

	// Extraction / streaming policy
	MetadataTimeout  time.Duration
	ManifestTimeout  time.Duration
	SegmentTimeout   time.Duration
	MetadataAttempts int
	ManifestAttempts int
	PlaylistAttempts int
	SegmentAttempts  int
	BackoffStep      time.Duration
}

func Load() *Config {
	return &Config{
		ServerAddr:     getEnvOrDefault("SERVER_ADDR", ":8080"),
		AllowedOrigins: splitList(getEnvOrDefault("ALLOWED_ORIGINS", "*")),

		APIBaseURL:      getEnvOrDefault("DM_API_BASE_URL", "https://api.dailymotion.com"),
		MetadataBaseURL: getEnvOrDefault("DM_METADATA_BASE_URL", "https://www.dailymotion.com"),
		WebSearchURL:    getEnvOrDefault("WEB_SEARCH_URL", "https://html.duckduckgo.com/html/"),

		UserAgent: getEnvOrDefault("UPSTREAM_USER_AGENT",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"),
		AcceptLanguage: getEnvOrDefault("UPSTREAM_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),

		SearchHint:      getEnvOrDefault("SEARCH_HINT", "drama full episode"),
		SearchLimit:     getEnvInt("SEARCH_LIMIT", 12),
		MinDurationMins: getEnvInt("SEARCH_MIN_DURATION_MINS", 15),
		SearchTimeout:   getEnvDuration("SEARCH_TIMEOUT", 15*time.Second),

		MetadataTimeout:  getEnvDuration("METADATA_TIMEOUT", 20*time.Second),
		ManifestTimeout:  getEnvDuration("MANIFEST_TIMEOUT", 20*time.Second),
		SegmentTimeout:   getEnvDuration("SEGMENT_TIMEOUT", 60*time.Second),
		MetadataAttempts: getEnvInt("METADATA_ATTEMPTS", 3),
		ManifestAttempts: getEnvInt("MANIFEST_ATTEMPTS", 5),
		PlaylistAttempts: getEnvInt("PLAYLIST_ATTEMPTS", 3),
		SegmentAttempts:  getEnvInt("SEGMENT_ATTEMPTS", 2),
		BackoffStep:      getEnvDuration("RETRY_BACKOFF_STEP", time.Second),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
