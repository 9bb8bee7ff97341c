// Package switchtest provides an in-memory switch implementing
// switchctl.Client for tests. It models the channel/bridge graph and the
// global-variable store so orchestration logic can be exercised without a
// live switch, including the races the daemon must defend against.
package switchtest

import (
	"fmt"
	"sync"

	"github.com/wazo-platform/wazo-calld-sub001/internal/switchctl"
)

// Move records a MoveToApplication call.
type Move struct {
	ChannelID string
	App       string
	Args      []string
}

// Continue records a ContinueInDialplan call.
type Continue struct {
	ChannelID string
	Context   string
	Extension string
	Priority  int
}

type fakeChannel struct {
	info     switchctl.ChannelInfo
	vars     map[string]string
	answered bool
}

type fakeBridge struct {
	kind    string
	members []string
	moh     string
}

// Fake is an in-memory switch. All methods are safe for concurrent use.
type Fake struct {
	mu       sync.Mutex
	channels map[string]*fakeChannel
	bridges  map[string]*fakeBridge
	globals  map[string]string

	hangups    []string
	originates []switchctl.OriginateRequest
	moves      []Move
	continues  []Continue
	subscribed []string

	nextOriginate int

	// OriginateErr, when set, makes Originate fail.
	OriginateErr error
}

// New returns an empty fake switch.
func New() *Fake {
	return &Fake{
		channels: make(map[string]*fakeChannel),
		bridges:  make(map[string]*fakeBridge),
		globals:  make(map[string]string),
	}
}

// CreateChannel registers a channel on the fake switch.
func (f *Fake) CreateChannel(info switchctl.ChannelInfo, vars map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if vars == nil {
		vars = make(map[string]string)
	} else {
		copied := make(map[string]string, len(vars))
		for k, v := range vars {
			copied[k] = v
		}
		vars = copied
	}
	f.channels[info.ID] = &fakeChannel{info: info, vars: vars}
}

// Destroy removes a channel as if the switch had destroyed it.
func (f *Fake) Destroy(channelID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(channelID)
}

func (f *Fake) removeLocked(channelID string) {
	delete(f.channels, channelID)
	for _, bridge := range f.bridges {
		bridge.members = remove(bridge.members, channelID)
	}
}

func (f *Fake) ChannelData(id string) (switchctl.ChannelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[id]
	if !ok {
		return switchctl.ChannelInfo{}, fmt.Errorf("channel %s: %w", id, switchctl.ErrNotFound)
	}
	return ch.info, nil
}

func (f *Fake) ListChannels() ([]switchctl.ChannelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	infos := make([]switchctl.ChannelInfo, 0, len(f.channels))
	for _, ch := range f.channels {
		infos = append(infos, ch.info)
	}
	return infos, nil
}

func (f *Fake) ChannelVariable(id, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[id]
	if !ok {
		return "", fmt.Errorf("channel %s: %w", id, switchctl.ErrNotFound)
	}
	return ch.vars[name], nil
}

func (f *Fake) SetChannelVariable(id, name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[id]
	if !ok {
		return fmt.Errorf("channel %s: %w", id, switchctl.ErrNotFound)
	}
	ch.vars[name] = value
	return nil
}

func (f *Fake) Answer(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[id]
	if !ok {
		return fmt.Errorf("channel %s: %w", id, switchctl.ErrNotFound)
	}
	ch.answered = true
	ch.info.State = "Up"
	return nil
}

func (f *Fake) Hangup(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[id]; !ok {
		return fmt.Errorf("channel %s: %w", id, switchctl.ErrNotFound)
	}
	f.hangups = append(f.hangups, id)
	f.removeLocked(id)
	return nil
}

func (f *Fake) ContinueInDialplan(id, context, extension string, priority int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[id]; !ok {
		return fmt.Errorf("channel %s: %w", id, switchctl.ErrNotFound)
	}
	f.continues = append(f.continues, Continue{ChannelID: id, Context: context, Extension: extension, Priority: priority})
	// Leaving the application removes the channel from any bridge.
	for _, bridge := range f.bridges {
		bridge.members = remove(bridge.members, id)
	}
	return nil
}

func (f *Fake) MoveToApplication(id, app string, args []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[id]; !ok {
		return fmt.Errorf("channel %s: %w", id, switchctl.ErrNotFound)
	}
	f.moves = append(f.moves, Move{ChannelID: id, App: app, Args: args})
	return nil
}

func (f *Fake) Originate(req switchctl.OriginateRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OriginateErr != nil {
		return "", f.OriginateErr
	}
	f.originates = append(f.originates, req)
	f.nextOriginate++
	id := fmt.Sprintf("originated-%d", f.nextOriginate)
	vars := make(map[string]string, len(req.Variables))
	for k, v := range req.Variables {
		vars[k] = v
	}
	f.channels[id] = &fakeChannel{
		info: switchctl.ChannelInfo{ID: id, Name: req.Endpoint, State: "Ring", Extension: req.Extension, Context: req.Context},
		vars: vars,
	}
	return id, nil
}

func (f *Fake) BridgeData(id string) (switchctl.BridgeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bridge, ok := f.bridges[id]
	if !ok {
		return switchctl.BridgeInfo{}, fmt.Errorf("bridge %s: %w", id, switchctl.ErrNotFound)
	}
	return switchctl.BridgeInfo{ID: id, Kind: bridge.kind, ChannelIDs: append([]string(nil), bridge.members...)}, nil
}

func (f *Fake) ListBridges() ([]switchctl.BridgeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	infos := make([]switchctl.BridgeInfo, 0, len(f.bridges))
	for id, bridge := range f.bridges {
		infos = append(infos, switchctl.BridgeInfo{ID: id, Kind: bridge.kind, ChannelIDs: append([]string(nil), bridge.members...)})
	}
	return infos, nil
}

func (f *Fake) CreateBridge(id, kind string) (switchctl.BridgeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.bridges[id]; ok {
		return switchctl.BridgeInfo{}, fmt.Errorf("bridge %s already exists", id)
	}
	f.bridges[id] = &fakeBridge{kind: kind}
	return switchctl.BridgeInfo{ID: id, Kind: kind}, nil
}

// AddChannel is the switchctl.Client bridge-add operation. A channel can
// only be in one bridge at a time, so adding moves it.
func (f *Fake) AddChannel(bridgeID, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bridge, ok := f.bridges[bridgeID]
	if !ok {
		return fmt.Errorf("bridge %s: %w", bridgeID, switchctl.ErrNotFound)
	}
	if _, ok := f.channels[channelID]; !ok {
		return fmt.Errorf("channel %s: %w", channelID, switchctl.ErrNotFound)
	}
	for id, other := range f.bridges {
		if id != bridgeID {
			other.members = remove(other.members, channelID)
		}
	}
	if !containsStr(bridge.members, channelID) {
		bridge.members = append(bridge.members, channelID)
	}
	return nil
}

func (f *Fake) RemoveChannel(bridgeID, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bridge, ok := f.bridges[bridgeID]
	if !ok {
		return fmt.Errorf("bridge %s: %w", bridgeID, switchctl.ErrNotFound)
	}
	if !containsStr(bridge.members, channelID) {
		return fmt.Errorf("channel %s: %w", channelID, switchctl.ErrNotFound)
	}
	bridge.members = remove(bridge.members, channelID)
	return nil
}

func (f *Fake) DeleteBridge(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.bridges[id]; !ok {
		return fmt.Errorf("bridge %s: %w", id, switchctl.ErrNotFound)
	}
	delete(f.bridges, id)
	return nil
}

func (f *Fake) StartMusicOnHold(bridgeID, class string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bridge, ok := f.bridges[bridgeID]
	if !ok {
		return fmt.Errorf("bridge %s: %w", bridgeID, switchctl.ErrNotFound)
	}
	bridge.moh = class
	return nil
}

func (f *Fake) GlobalVariable(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.globals[name], nil
}

func (f *Fake) SetGlobalVariable(name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.globals[name] = value
	return nil
}

func (f *Fake) SubscribeApplication(eventSource string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, eventSource)
	return nil
}

// Test inspection helpers.

// Hangups returns the channel ids hung up so far, in order.
func (f *Fake) Hangups() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.hangups...)
}

// Originates returns every originate request received so far.
func (f *Fake) Originates() []switchctl.OriginateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]switchctl.OriginateRequest(nil), f.originates...)
}

// Moves returns every application move received so far.
func (f *Fake) Moves() []Move {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Move(nil), f.moves...)
}

// Continues returns every dialplan redirect received so far.
func (f *Fake) Continues() []Continue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Continue(nil), f.continues...)
}

// Subscribed returns the event sources the application subscribed to.
func (f *Fake) Subscribed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribed...)
}

// Var returns a channel variable value, or "" for missing channels.
func (f *Fake) Var(channelID, name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return ""
	}
	return ch.vars[name]
}

// Global returns a global variable value.
func (f *Fake) Global(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.globals[name]
}

// Answered reports whether the channel has been answered.
func (f *Fake) Answered(channelID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	return ok && ch.answered
}

// MusicOnHold returns the music-on-hold class started on the bridge.
func (f *Fake) MusicOnHold(bridgeID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	bridge, ok := f.bridges[bridgeID]
	if !ok {
		return ""
	}
	return bridge.moh
}

func remove(list []string, item string) []string {
	out := list[:0]
	for _, v := range list {
		if v != item {
			out = append(out, v)
		}
	}
	return out
}

func containsStr(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
