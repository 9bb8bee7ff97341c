package calls

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wazo-platform/wazo-calld-sub001/internal/switchctl"
)

// Lifecycle states persisted in the channel cache entry. Hangup is handled
// orthogonally: it removes the entry instead of transitioning to a fourth
// state.
const (
	StateOnHook  = "on_hook"
	StateRinging = "ringing"
	StateTalking = "talking"
)

// StateMachine drives the per-channel call lifecycle from switch events.
// Current state is always read from the switch-resident cache entry, never
// from daemon memory.
type StateMachine struct {
	acc   *switchctl.Accessor
	store *switchctl.StateStore
	stats *Stats

	// newBridgeID is replaced in tests to get deterministic bridge ids.
	newBridgeID func() string
}

// NewStateMachine builds a state machine over the accessor and state store.
func NewStateMachine(acc *switchctl.Accessor, store *switchctl.StateStore, stats *Stats) *StateMachine {
	return &StateMachine{
		acc:         acc,
		store:       store,
		stats:       stats,
		newBridgeID: uuid.NewString,
	}
}

// Ring handles a new-call entry. Only valid while the channel is untracked
// or on-hook; any other state is an invalid transition and is rejected.
func (m *StateMachine) Ring(app, instance, channelID string) error {
	entry, ok, err := m.store.Get(channelID)
	if err != nil {
		return err
	}
	if ok && entry.State != StateOnHook {
		return fmt.Errorf("invalid transition: ring on channel %s in state %s", channelID, entry.State)
	}

	err = m.store.Set(channelID, switchctl.CacheEntry{
		Application:         app,
		ApplicationInstance: instance,
		State:               StateRinging,
	})
	if err != nil {
		return err
	}
	m.stats.NewCall(app, instance)
	return nil
}

// Connect handles a connect entry: newChannelID was dialed by
// originatorID, which must be ringing. Both legs are answered and bridged
// in a fresh mixing bridge holding exactly the two of them.
func (m *StateMachine) Connect(originatorID, newChannelID string) error {
	entry, ok, err := m.store.Get(originatorID)
	if err != nil {
		return err
	}
	if !ok || entry.State != StateRinging {
		state := StateOnHook
		if ok {
			state = entry.State
		}
		return fmt.Errorf("invalid transition: connect on channel %s in state %s", originatorID, state)
	}

	if err := m.acc.Client().Answer(newChannelID); err != nil {
		return err
	}
	if err := m.acc.Client().Answer(originatorID); err != nil {
		return err
	}

	bridgeID := m.newBridgeID()
	if _, err := m.acc.Client().CreateBridge(bridgeID, switchctl.BridgeKindMixing); err != nil {
		return err
	}
	if err := m.acc.Client().AddChannel(bridgeID, originatorID); err != nil {
		return err
	}
	if err := m.acc.Client().AddChannel(bridgeID, newChannelID); err != nil {
		return err
	}

	entry.State = StateTalking
	if err := m.store.Set(originatorID, entry); err != nil {
		return err
	}
	if err := m.store.Set(newChannelID, entry); err != nil {
		return err
	}
	m.stats.Connect(entry.Application, entry.ApplicationInstance)
	return nil
}

// Hangup releases a tracked channel: emits the end statistics (plus
// abandoned when the channel never connected) and removes the cache entry
// exactly once. Untracked channels are ignored.
func (m *StateMachine) Hangup(channelID string, createdAt time.Time) (tracked bool, err error) {
	entry, ok, err := m.store.Get(channelID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	m.stats.End(entry.Application, entry.ApplicationInstance)
	if !createdAt.IsZero() {
		m.stats.Duration(entry.Application, entry.ApplicationInstance, time.Since(createdAt).Seconds())
	}
	if entry.State == StateRinging {
		m.stats.Abandoned(entry.Application, entry.ApplicationInstance)
	}

	if err := m.store.Unset(channelID); err != nil {
		return true, err
	}
	return true, nil
}
