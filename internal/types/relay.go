package types

// RelayPermissions is the read/write marker a signer reports per relay
type RelayPermissions struct {
	Read  bool `json:"read"`
	Write bool `json:"write"`
}

// RelayStatus is the outcome of a reachability probe
type RelayStatus struct {
	URL    string `json:"url"`
	Status string `json:"status"` // "connected" or "error"
	Error  string `json:"error,omitempty"`
}

const (
	RelayStatusConnected = "connected"
	RelayStatusError     = "error"
)

// PublishResult reports how many relays acknowledged a broadcast
type PublishResult struct {
	Success      bool   `json:"success"`
	Acknowledged int    `json:"acknowledged"`
	Targets      int    `json:"targets"`
	EventID      string `json:"event_id,omitempty"`
}
