package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"

	"zapboard/internal/nostr"
)

// RelaysConfig represents the JSON configuration for relay lists
type RelaysConfig struct {
	DefaultRelays []string `json:"defaultRelays"` // zap receipt and profile queries
	PublishRelays []string `json:"publishRelays"` // fallback when the signer declares no write relays
	ProfileRelays []string `json:"profileRelays"` // quick lookup of the user's own profile
	ZapRelays     []string `json:"zapRelays"`     // advertised in zap requests for receipt delivery
}

var (
	relaysConfig     *RelaysConfig
	relaysConfigMu   sync.RWMutex
	relaysConfigOnce sync.Once
)

// GetRelaysConfig returns the current relays configuration (thread-safe)
func GetRelaysConfig() *RelaysConfig {
	relaysConfigOnce.Do(func() {
		relaysConfigMu.Lock()
		defer relaysConfigMu.Unlock()
		if relaysConfig == nil {
			relaysConfig = LoadRelaysConfig(relaysConfigPath())
		}
	})

	relaysConfigMu.RLock()
	defer relaysConfigMu.RUnlock()
	return relaysConfig
}

// SetRelaysConfig replaces the active configuration (used by CLI overrides)
func SetRelaysConfig(cfg *RelaysConfig) {
	relaysConfigOnce.Do(func() {})
	relaysConfigMu.Lock()
	defer relaysConfigMu.Unlock()
	relaysConfig = cfg
}

func relaysConfigPath() string {
	configPath := os.Getenv("RELAYS_CONFIG")
	if configPath == "" {
		configPath = "config/relays.json"
	}
	return configPath
}

// LoadRelaysConfig reads a relay configuration file, falling back to defaults
// for a missing file, invalid JSON, or empty lists
func LoadRelaysConfig(configPath string) *RelaysConfig {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("config file not found, using defaults", "path", configPath)
		} else {
			slog.Warn("could not read config, using defaults", "path", configPath, "error", err)
		}
		return DefaultRelaysConfig()
	}

	var config RelaysConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Error("invalid JSON in config, using defaults", "path", configPath, "error", err)
		return DefaultRelaysConfig()
	}

	defaults := DefaultRelaysConfig()
	config.DefaultRelays = orDefault(config.DefaultRelays, defaults.DefaultRelays)
	config.PublishRelays = orDefault(config.PublishRelays, config.DefaultRelays)
	config.ProfileRelays = orDefault(config.ProfileRelays, firstN(config.DefaultRelays, 4))
	config.ZapRelays = orDefault(config.ZapRelays, config.DefaultRelays)

	slog.Info("loaded relays configuration",
		"path", configPath,
		"default", len(config.DefaultRelays),
		"publish", len(config.PublishRelays),
		"profile", len(config.ProfileRelays),
		"zap", len(config.ZapRelays))
	return &config
}

// DefaultRelaysConfig returns the embedded default configuration: a short list
// of long-running relays for historical receipts plus newer high-uptime ones
func DefaultRelaysConfig() *RelaysConfig {
	relays := []string{
		"wss://relay.damus.io",
		"wss://relay.primal.net",
		"wss://relay.snort.social",
		"wss://purplepag.es",
		"wss://relay.nostr.band",
		"wss://nos.lol",
		"wss://relay.wellorder.net",
		"wss://nostr.wine",
		"wss://relay.nostriches.org",
		"wss://nostr.bitcoiner.social",
	}
	return &RelaysConfig{
		DefaultRelays: relays,
		PublishRelays: relays,
		ProfileRelays: firstN(relays, 4),
		ZapRelays:     relays,
	}
}

// orDefault normalizes list and returns fallback when nothing valid remains
func orDefault(list, fallback []string) []string {
	normalized := nostr.NormalizeRelayList(list)
	if len(normalized) == 0 {
		return fallback
	}
	return normalized
}

func firstN(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return list[:n]
}
