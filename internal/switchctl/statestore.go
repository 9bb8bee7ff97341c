package switchctl

import (
	"encoding/json"
	"fmt"
)

// Global-variable namespaces. State lives in the switch so that the daemon
// can restart without losing track of in-flight calls.
const (
	channelStatePrefix = "WAZO_CHANNELS_"
	bridgeVarPrefix    = "WAZO_BRIDGE_"
)

// CacheEntry is the only daemon-defined per-channel state. It is stored as
// JSON in a switch-global variable namespaced by channel id.
type CacheEntry struct {
	Application         string `json:"app"`
	ApplicationInstance string `json:"app_instance"`
	State               string `json:"state"`
}

// StateStore persists channel cache entries and bridge-scoped variables in
// switch-global variables. It is the restart-survival mechanism: nothing
// here touches daemon memory.
type StateStore struct {
	cli Client
}

// NewStateStore builds a StateStore over cli.
func NewStateStore(cli Client) *StateStore {
	return &StateStore{cli: cli}
}

// Get returns the cache entry for the channel, or ok=false when none is
// recorded.
func (s *StateStore) Get(channelID string) (CacheEntry, bool, error) {
	raw, err := s.cli.GlobalVariable(channelStatePrefix + channelID)
	if err != nil {
		return CacheEntry{}, false, err
	}
	if raw == "" {
		return CacheEntry{}, false, nil
	}
	var entry CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return CacheEntry{}, false, fmt.Errorf("corrupt state for channel %s: %w", channelID, err)
	}
	return entry, true, nil
}

// Set records the cache entry for the channel.
func (s *StateStore) Set(channelID string, entry CacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode state for channel %s: %w", channelID, err)
	}
	return s.cli.SetGlobalVariable(channelStatePrefix+channelID, string(raw))
}

// Unset removes the cache entry for the channel. The control protocol has
// no variable delete, so an empty value stands for absence.
func (s *StateStore) Unset(channelID string) error {
	return s.cli.SetGlobalVariable(channelStatePrefix+channelID, "")
}

// BridgeVariable reads a bridge-scoped variable, or "" when unset.
func (s *StateStore) BridgeVariable(bridgeID, name string) (string, error) {
	return s.cli.GlobalVariable(bridgeVarKey(bridgeID, name))
}

// SetBridgeVariable records a bridge-scoped variable.
func (s *StateStore) SetBridgeVariable(bridgeID, name, value string) error {
	return s.cli.SetGlobalVariable(bridgeVarKey(bridgeID, name), value)
}

// UnsetBridgeVariable clears a bridge-scoped variable.
func (s *StateStore) UnsetBridgeVariable(bridgeID, name string) error {
	return s.cli.SetGlobalVariable(bridgeVarKey(bridgeID, name), "")
}

func bridgeVarKey(bridgeID, name string) string {
	return fmt.Sprintf("%s%s_%s", bridgeVarPrefix, bridgeID, name)
}
