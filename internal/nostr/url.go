package nostr

import (
	"net/url"
	"strings"

	"zapboard/internal/util"
)

// NormalizeRelayURL validates and normalizes a relay URL from config or a signer's relay list
// Returns empty string if URL is invalid/malformed
func NormalizeRelayURL(relayURL string) string {
	relayURL = strings.TrimSpace(relayURL)
	if relayURL == "" {
		return ""
	}

	// Quick reject for obviously bad URLs (no colon = no protocol)
	if !strings.Contains(relayURL, "://") {
		return ""
	}

	// Reject URL-encoded spaces (indicates garbage text as URL)
	if strings.Contains(relayURL, "%20") || strings.Contains(relayURL, "+") {
		return ""
	}

	// Reject double protocols (wss://https://...)
	if strings.Count(relayURL, "://") > 1 {
		return ""
	}

	parsed, err := url.Parse(relayURL)
	if err != nil {
		return ""
	}

	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return ""
	}

	host := parsed.Hostname()
	if host == "" || strings.Contains(host, " ") {
		return ""
	}
	if !util.IsLoopbackHost(host) {
		if len(host) < 3 || !strings.Contains(host, ".") {
			return ""
		}
		// Block internal/unreachable hosts (.onion, .local, .internal)
		if util.IsInternalHost(host) {
			return ""
		}
	}

	// Normalize: strip trailing slash, lowercase
	result := strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(host)
	if parsed.Port() != "" {
		result += ":" + parsed.Port()
	}
	if parsed.Path != "" && parsed.Path != "/" {
		result += parsed.Path
	}
	return result
}

// NormalizeRelayList normalizes every URL and drops invalid entries and duplicates
func NormalizeRelayList(relays []string) []string {
	out := make([]string, 0, len(relays))
	for _, r := range relays {
		out = append(out, NormalizeRelayURL(r))
	}
	return util.Dedupe(out)
}
