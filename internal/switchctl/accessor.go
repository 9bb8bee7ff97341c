package switchctl

import (
	"fmt"
	"strings"
	"time"
)

// Variable-set confirmation is asynchronous on the control protocol, so
// writes are polled back until they converge.
const (
	setVariableAttempts = 5
	setVariableInterval = 100 * time.Millisecond
)

// Accessor is a stateless facade over the switch control client exposing
// per-channel and per-bridge queries and mutations at the domain level.
// It holds no state of its own; the switch is always authoritative.
type Accessor struct {
	cli Client

	// sleep is replaced in tests to avoid real delays.
	sleep func(time.Duration)
}

// NewAccessor builds an Accessor over cli.
func NewAccessor(cli Client) *Accessor {
	return &Accessor{cli: cli, sleep: time.Sleep}
}

// Client exposes the underlying control client for callers that need raw
// channel or bridge primitives.
func (a *Accessor) Client() Client { return a.cli }

// Exists reports whether the channel is known to the switch.
func (a *Accessor) Exists(channelID string) (bool, error) {
	_, err := a.cli.ChannelData(channelID)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Info returns the channel snapshot.
func (a *Accessor) Info(channelID string) (ChannelInfo, error) {
	return a.cli.ChannelData(channelID)
}

// IsLocal reports whether the channel is an internal pairing leg. Local
// legs are never exposed to API consumers.
func IsLocal(info ChannelInfo) bool {
	return strings.HasPrefix(info.Name, "Local/")
}

// UserUUID returns the owning user of the channel, or "" when unowned.
func (a *Accessor) UserUUID(channelID string) (string, error) {
	return a.cli.ChannelVariable(channelID, VarUserUUID)
}

// TenantUUID returns the owning tenant of the channel, or "" when unset.
func (a *Accessor) TenantUUID(channelID string) (string, error) {
	return a.cli.ChannelVariable(channelID, VarTenantUUID)
}

// OnHold reports the hold flag maintained on the channel.
func (a *Accessor) OnHold(channelID string) (bool, error) {
	return a.boolVariable(channelID, VarOnHold)
}

// Muted reports the mute flag maintained on the channel.
func (a *Accessor) Muted(channelID string) (bool, error) {
	return a.boolVariable(channelID, VarMuted)
}

// Recorded reports the record flag maintained on the channel.
func (a *Accessor) Recorded(channelID string) (bool, error) {
	return a.boolVariable(channelID, VarRecordActive)
}

func (a *Accessor) boolVariable(channelID, name string) (bool, error) {
	value, err := a.cli.ChannelVariable(channelID, name)
	if err != nil {
		return false, err
	}
	return value == "true" || value == "1", nil
}

// ConnectedChannelIDs returns the ids of every channel sharing a bridge
// with channelID, excluding channelID itself. A channel in no bridge has
// no connected peers.
func (a *Accessor) ConnectedChannelIDs(channelID string) ([]string, error) {
	bridges, err := a.cli.ListBridges()
	if err != nil {
		return nil, err
	}
	var peers []string
	for _, bridge := range bridges {
		if !contains(bridge.ChannelIDs, channelID) {
			continue
		}
		for _, member := range bridge.ChannelIDs {
			if member != channelID && !contains(peers, member) {
				peers = append(peers, member)
			}
		}
	}
	return peers, nil
}

// BridgesContaining returns every bridge the channel is currently in.
func (a *Accessor) BridgesContaining(channelID string) ([]BridgeInfo, error) {
	bridges, err := a.cli.ListBridges()
	if err != nil {
		return nil, err
	}
	var containing []BridgeInfo
	for _, bridge := range bridges {
		if contains(bridge.ChannelIDs, channelID) {
			containing = append(containing, bridge)
		}
	}
	return containing, nil
}

// InBridge reports whether the channel is currently a member of the bridge.
// A missing bridge counts as not-in-bridge, not as an error: bridges are
// created lazily and destroyed when empty.
func (a *Accessor) InBridge(bridgeID, channelID string) (bool, error) {
	bridge, err := a.cli.BridgeData(bridgeID)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return contains(bridge.ChannelIDs, channelID), nil
}

// EnsureBridge returns the bridge, creating it on first use.
func (a *Accessor) EnsureBridge(bridgeID, kind string) (BridgeInfo, error) {
	bridge, err := a.cli.BridgeData(bridgeID)
	if err == nil {
		return bridge, nil
	}
	if !IsNotFound(err) {
		return BridgeInfo{}, err
	}
	return a.cli.CreateBridge(bridgeID, kind)
}

// SetVariable sets a channel variable and polls it back until the value
// converges. The control protocol acknowledges variable sets
// asynchronously; a value that never converges is a hard failure.
func (a *Accessor) SetVariable(channelID, name, value string) error {
	if err := a.cli.SetChannelVariable(channelID, name, value); err != nil {
		return err
	}
	for attempt := 0; attempt < setVariableAttempts; attempt++ {
		current, err := a.cli.ChannelVariable(channelID, name)
		if err != nil {
			return err
		}
		if current == value {
			return nil
		}
		a.sleep(setVariableInterval)
	}
	return fmt.Errorf("variable %s on channel %s did not converge to %q", name, channelID, value)
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
