package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Settings holds the runtime knobs read from the environment
type Settings struct {
	QueryTimeout    time.Duration // per-relay cut-off for stored events
	ProbeTimeout    time.Duration // reachability check per relay
	PublishWindow   time.Duration // how long a broadcast waits for OKs
	NWCTimeout      time.Duration // wallet response deadline
	HTTPTimeout     time.Duration // LNURL requests
	LeaderboardSize int

	CacheBackend string // "memory" or "redis"
	RedisURL     string
	ProfileTTL   time.Duration

	SecretKey string // hex or nsec, never logged
	NWCURI    string // never logged
}

// DefaultSettings returns the built-in defaults
func DefaultSettings() Settings {
	return Settings{
		QueryTimeout:    10 * time.Second,
		ProbeTimeout:    4 * time.Second,
		PublishWindow:   5 * time.Second,
		NWCTimeout:      15 * time.Second,
		HTTPTimeout:     10 * time.Second,
		LeaderboardSize: 20,
		CacheBackend:    "memory",
		ProfileTTL:      1 * time.Hour,
	}
}

// LoadSettings applies environment overrides on top of the defaults
func LoadSettings() Settings {
	s := DefaultSettings()
	s.QueryTimeout = getEnvDuration("QUERY_TIMEOUT", s.QueryTimeout)
	s.ProbeTimeout = getEnvDuration("PROBE_TIMEOUT", s.ProbeTimeout)
	s.PublishWindow = getEnvDuration("PUBLISH_WINDOW", s.PublishWindow)
	s.NWCTimeout = getEnvDuration("NWC_TIMEOUT", s.NWCTimeout)
	s.HTTPTimeout = getEnvDuration("LNURL_TIMEOUT", s.HTTPTimeout)
	s.LeaderboardSize = getEnvInt("LEADERBOARD_SIZE", s.LeaderboardSize)
	s.CacheBackend = getEnvOrDefault("CACHE_BACKEND", s.CacheBackend)
	s.RedisURL = os.Getenv("REDIS_URL")
	s.ProfileTTL = getEnvDuration("PROFILE_TTL", s.ProfileTTL)
	s.SecretKey = os.Getenv("NOSTR_SECRET_KEY")
	s.NWCURI = os.Getenv("NWC_URI")
	return s
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}
