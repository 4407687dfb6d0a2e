package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// ClientConfig represents the client.json configuration for NIP-89 client identification
type ClientConfig struct {
	Enabled   bool   `json:"enabled"`
	Name      string `json:"name"`
	Pubkey    string `json:"pubkey"`    // Hex pubkey of a 31990 handler event, optional
	Dtag      string `json:"dtag"`      // d-tag value for 31990 event
	RelayHint string `json:"relayHint"` // Optional relay hint
	TagKinds  []int  `json:"tagKinds"`  // Which kinds get the client tag
}

var (
	clientConfig     *ClientConfig
	clientConfigMu   sync.RWMutex
	clientConfigOnce sync.Once
)

// GetClientConfig returns the current client configuration (thread-safe)
func GetClientConfig() *ClientConfig {
	clientConfigOnce.Do(func() {
		clientConfigMu.Lock()
		defer clientConfigMu.Unlock()
		if clientConfig == nil {
			configPath := os.Getenv("CLIENT_CONFIG")
			if configPath == "" {
				configPath = "config/client.json"
			}
			clientConfig = LoadClientConfig(configPath)
		}
	})

	clientConfigMu.RLock()
	defer clientConfigMu.RUnlock()
	return clientConfig
}

// LoadClientConfig reads the client identification file, falling back to defaults
func LoadClientConfig(configPath string) *ClientConfig {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("client config file not found, using defaults", "path", configPath)
		} else {
			slog.Warn("could not read client config, using defaults", "path", configPath, "error", err)
		}
		return DefaultClientConfig()
	}

	var config ClientConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Error("invalid JSON in client config, using defaults", "path", configPath, "error", err)
		return DefaultClientConfig()
	}
	if config.Name == "" {
		config.Name = DefaultClientConfig().Name
	}

	slog.Debug("loaded client configuration", "enabled", config.Enabled, "name", config.Name, "tagKinds", config.TagKinds)
	return &config
}

// DefaultClientConfig returns the embedded default configuration
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Enabled:  true,
		Name:     "zapboard",
		TagKinds: []int{1},
	}
}

// ShouldTagKind returns true if the given kind should have a client tag added
func (c *ClientConfig) ShouldTagKind(kind int) bool {
	if !c.Enabled || c.Name == "" {
		return false
	}
	for _, k := range c.TagKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// GetClientTag returns the client tag to add to events, or nil if disabled
// Format: ["client", "<name>", "31990:<pubkey>:<dtag>", "<relay-hint>"]
func (c *ClientConfig) GetClientTag() []string {
	if !c.Enabled || c.Name == "" {
		return nil
	}
	if c.Pubkey == "" {
		return []string{"client", c.Name}
	}

	reference := fmt.Sprintf("31990:%s:%s", c.Pubkey, c.Dtag)
	if c.RelayHint != "" {
		return []string{"client", c.Name, reference, c.RelayHint}
	}
	return []string{"client", c.Name, reference}
}

// ApplyClientTag appends the client tag to tags when the kind is configured for it
func (c *ClientConfig) ApplyClientTag(kind int, tags [][]string) [][]string {
	if !c.ShouldTagKind(kind) {
		return tags
	}
	return append(tags, c.GetClientTag())
}
