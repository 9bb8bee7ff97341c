// Package switchctl wraps the telephony switch's control interface behind a
// narrow client abstraction, and layers the channel/bridge accessor and the
// switch-resident state store on top of it. The daemon keeps no durable
// store of its own: everything needed to resume after a restart lives in
// switch-side variables reachable through this package.
package switchctl

import (
	"errors"
	"time"
)

// ErrNotFound is returned by Client implementations when the referenced
// channel or bridge does not exist on the switch. It is distinguishable
// from transport failures so callers can translate it into domain
// not-found errors at the first opportunity.
var ErrNotFound = errors.New("switchctl: not found")

// Bridge kinds understood by the switch.
const (
	BridgeKindMixing  = "mixing"
	BridgeKindHolding = "holding"
)

// Channel variables used as the switch-resident record of daemon state.
const (
	VarUserUUID      = "WAZO_USERUUID"
	VarTenantUUID    = "WAZO_TENANT_UUID"
	VarCallDirection = "WAZO_CALL_DIRECTION"
	VarOnHold        = "WAZO_CALL_ON_HOLD"
	VarMuted         = "WAZO_CALL_MUTED"
	VarRecordActive  = "WAZO_CALL_RECORD_ACTIVE"

	VarSwitchboardQueue    = "WAZO_SWITCHBOARD_QUEUE"
	VarSwitchboardHold     = "WAZO_SWITCHBOARD_HOLD"
	VarSwitchboardTimeout  = "WAZO_SWITCHBOARD_TIMEOUT"
	VarSwitchboardFallback = "WAZO_SWITCHBOARD_FALLBACK_NOANSWER_ACTION"

	VarAdhocConferenceID = "WAZO_ADHOC_CONFERENCE_ID"
	VarAdhocConfIsHost   = "WAZO_ADHOC_CONFERENCE_HOST"
)

// Application argument markers identifying special channel entries. A
// channel entering the control application with one of these as its first
// argument belongs to the named subsystem, not the call state machine.
const (
	AppArgSwitchboardAnswer = "switchboard_answer"
	AppArgAdhocConference   = "adhoc_conference"
)

// Bridge-scoped variable names recording an ad-hoc conference host.
const (
	BridgeVarHostChannelID = "WAZO_HOST_CHANNEL_ID"
	BridgeVarHostUserUUID  = "WAZO_HOST_USER_UUID"
	BridgeVarHostTenant    = "WAZO_HOST_TENANT_UUID"
)

// ChannelInfo is the daemon-side view of a switch channel. The switch owns
// the entity; this is a snapshot.
type ChannelInfo struct {
	ID              string
	Name            string
	State           string
	CallerName      string
	CallerNumber    string
	ConnectedName   string
	ConnectedNumber string
	Extension       string
	Context         string
	CreatedAt       time.Time
}

// BridgeInfo is a snapshot of a switch bridge and its members.
type BridgeInfo struct {
	ID         string
	Kind       string
	ChannelIDs []string
}

// OriginateRequest asks the switch to create a new outgoing channel.
type OriginateRequest struct {
	Endpoint   string
	Extension  string
	Context    string
	Priority   int
	CallerID   string
	App        string
	AppArgs    []string
	Variables  map[string]string
	Originator string
	// Timeout is in seconds; the switch gives up ringing after it elapses.
	Timeout int
}

// Client is the subset of the switch control interface the daemon uses.
// The production implementation talks ARI; tests substitute an in-memory
// switch. Every method is a blocking round trip.
type Client interface {
	// Channels.
	ChannelData(id string) (ChannelInfo, error)
	ListChannels() ([]ChannelInfo, error)
	// ChannelVariable returns "" (and no error) for a variable that is not
	// set on an existing channel; ErrNotFound when the channel is gone.
	ChannelVariable(id, name string) (string, error)
	SetChannelVariable(id, name, value string) error
	Answer(id string) error
	Hangup(id string) error
	ContinueInDialplan(id, context, extension string, priority int) error
	MoveToApplication(id, app string, args []string) error
	Originate(req OriginateRequest) (string, error)

	// Bridges.
	BridgeData(id string) (BridgeInfo, error)
	ListBridges() ([]BridgeInfo, error)
	CreateBridge(id, kind string) (BridgeInfo, error)
	AddChannel(bridgeID, channelID string) error
	RemoveChannel(bridgeID, channelID string) error
	DeleteBridge(id string) error
	StartMusicOnHold(bridgeID, class string) error

	// Switch-global variables, the daemon's only persistence mechanism.
	GlobalVariable(name string) (string, error)
	SetGlobalVariable(name, value string) error

	// SubscribeApplication subscribes the control application to an
	// additional event source such as "bridge:<id>".
	SubscribeApplication(eventSource string) error
}

// IsNotFound reports whether err denotes a missing channel or bridge.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
