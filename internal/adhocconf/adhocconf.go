// Package adhocconf assembles ad-hoc conferences: dynamically created
// mixing bridges with one distinguished host. The conference id doubles as
// the bridge id, and the host's identity is recorded in bridge-scoped
// switch variables, so a daemon restart loses nothing.
package adhocconf

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/wazo-platform/wazo-calld-sub001/internal/amid"
	"github.com/wazo-platform/wazo-calld-sub001/internal/bus"
	"github.com/wazo-platform/wazo-calld-sub001/internal/errs"
	"github.com/wazo-platform/wazo-calld-sub001/internal/switchctl"
)

// Domain event names published by the ad-hoc conference subsystem.
const (
	EventCreated           = "adhoc_conference_created"
	EventDeleted           = "adhoc_conference_deleted"
	EventParticipantJoined = "adhoc_conference_participant_joined"
	EventParticipantLeft   = "adhoc_conference_participant_left"
)

// Channels outside the control application are pulled back in through this
// dialplan entry, which re-enters the application; the pending conference
// variable tells the entry handler where the channel belongs.
const (
	redirectContext   = "convert-to-stasis"
	redirectExtension = "s"
)

// connectedLineLabel is presented to the host once the conference forms.
const connectedLineLabel = "Conference"

// Orchestrator implements ad-hoc conference assembly and teardown.
type Orchestrator struct {
	acc   *switchctl.Accessor
	store *switchctl.StateStore
	pub   bus.Publisher
	ami   amid.Actioner
	app   string

	// newID generates conference ids; replaced in tests.
	newID func() string
}

// NewOrchestrator builds the conference orchestrator. app is the control
// application participants are moved into.
func NewOrchestrator(acc *switchctl.Accessor, store *switchctl.StateStore, pub bus.Publisher, ami amid.Actioner, app string) *Orchestrator {
	return &Orchestrator{
		acc:   acc,
		store: store,
		pub:   pub,
		ami:   ami,
		app:   app,
		newID: uuid.NewString,
	}
}

// Create assembles a conference from the host's current call and the given
// participant calls. All validation happens before any channel is moved: a
// rejected participant must leave every call exactly where it was. The
// created notification is emitted as soon as the conference id exists,
// before redirection starts.
func (o *Orchestrator) Create(ctx context.Context, userUUID, tenantUUID, hostCallID string, participantCallIDs []string) (string, error) {
	hostPeer, err := o.validateHost(userUUID, hostCallID)
	if err != nil {
		return "", err
	}
	ownPeers := make(map[string]string, len(participantCallIDs))
	for _, participant := range participantCallIDs {
		peer, err := o.validateParticipant(userUUID, participant)
		if err != nil {
			return "", err
		}
		ownPeers[participant] = peer
	}

	conferenceID := o.newID()
	slog.Info("ad-hoc conference created",
		"adhoc_conference_id", conferenceID,
		"host_call_id", hostCallID,
		"user_uuid", userUUID,
	)
	o.publish(ctx, bus.Message{
		Name:       EventCreated,
		TenantUUID: tenantUUID,
		UserUUIDs:  []string{userUUID},
		Payload:    conferenceEvent{ConferenceID: conferenceID, CallID: hostCallID},
	})

	if err := o.redirectPair(conferenceID, hostCallID, hostPeer); err != nil {
		return "", creationError(err)
	}
	for _, participant := range participantCallIDs {
		if err := o.redirectParticipant(conferenceID, participant, false); err != nil {
			return "", creationError(err)
		}
		// The requester's own leg toward this participant is now redundant.
		if err := o.acc.Client().Hangup(ownPeers[participant]); err != nil && !switchctl.IsNotFound(err) {
			return "", creationError(err)
		}
	}
	return conferenceID, nil
}

// validateHost checks the host call and returns its unique connected peer.
func (o *Orchestrator) validateHost(userUUID, hostCallID string) (string, error) {
	owner, err := o.channelOwner(hostCallID)
	if err != nil {
		return "", err
	}
	if owner != userUUID {
		return "", errs.CallNotFound(hostCallID)
	}
	peers, err := o.acc.ConnectedChannelIDs(hostCallID)
	if err != nil {
		return "", err
	}
	switch len(peers) {
	case 0:
		return "", errs.Invalid("adhoc-conference-creation-error", "host call has no peers",
			map[string]any{"call_id": hostCallID})
	case 1:
		return peers[0], nil
	default:
		return "", errs.Invalid("host-already-in-conference", "host call is already in a multi-party bridge",
			map[string]any{"call_id": hostCallID})
	}
}

// validateParticipant checks one participant call and returns the
// requester's own leg toward it. A participant whose peer belongs to
// someone else is reported as not found, never as forbidden: the requester
// must not learn that the channel exists.
func (o *Orchestrator) validateParticipant(userUUID, participantCallID string) (string, error) {
	if _, err := o.channelOwner(participantCallID); err != nil {
		return "", err
	}
	peers, err := o.acc.ConnectedChannelIDs(participantCallID)
	if err != nil {
		return "", err
	}
	if len(peers) != 1 {
		return "", errs.Invalid("adhoc-conference-creation-error", "participant is not in a simple two-party call",
			map[string]any{"call_id": participantCallID})
	}
	peerOwner, err := o.acc.UserUUID(peers[0])
	if err != nil {
		if switchctl.IsNotFound(err) {
			return "", errs.CallNotFound(participantCallID)
		}
		return "", err
	}
	if peerOwner != userUUID {
		return "", errs.CallNotFound(participantCallID)
	}
	return peers[0], nil
}

func (o *Orchestrator) channelOwner(channelID string) (string, error) {
	owner, err := o.acc.UserUUID(channelID)
	if err != nil {
		if switchctl.IsNotFound(err) {
			return "", errs.CallNotFound(channelID)
		}
		return "", err
	}
	return owner, nil
}

// creationError reports a channel vanishing mid-redirection as a creation
// failure. No compensating moves are attempted: switch-side cleanup
// handles half-moved channels (a one-party bridge hangs itself up).
func creationError(err error) error {
	if e, ok := errs.As(err); ok {
		return e
	}
	if switchctl.IsNotFound(err) {
		return errs.Invalid("adhoc-conference-creation-error", "a call hung up during conference creation", nil)
	}
	return err
}

// redirectPair moves the host and its peer into the conference. When both
// legs are already inside the control application they are moved directly;
// otherwise both are marked with the pending conference id and the
// out-of-app peer is pulled in through a manager-protocol dialplan
// redirect. The host side is only ever moved when already in-app.
func (o *Orchestrator) redirectPair(conferenceID, hostCallID, peerCallID string) error {
	hostInApp, err := o.tracked(hostCallID)
	if err != nil {
		return err
	}
	peerInApp, err := o.tracked(peerCallID)
	if err != nil {
		return err
	}

	if err := o.mark(hostCallID, conferenceID, true); err != nil {
		return err
	}
	if err := o.mark(peerCallID, conferenceID, false); err != nil {
		return err
	}

	if hostInApp && peerInApp {
		if err := o.move(hostCallID, conferenceID); err != nil {
			return err
		}
		return o.move(peerCallID, conferenceID)
	}

	if err := o.dialplanRedirect(peerCallID); err != nil {
		return err
	}
	if hostInApp {
		return o.move(hostCallID, conferenceID)
	}
	return nil
}

func (o *Orchestrator) redirectParticipant(conferenceID, callID string, isHost bool) error {
	inApp, err := o.tracked(callID)
	if err != nil {
		return err
	}
	if err := o.mark(callID, conferenceID, isHost); err != nil {
		return err
	}
	if inApp {
		return o.move(callID, conferenceID)
	}
	return o.dialplanRedirect(callID)
}

// tracked reports whether the channel is inside the control application,
// which is exactly when a cache entry is recorded for it.
func (o *Orchestrator) tracked(channelID string) (bool, error) {
	_, ok, err := o.store.Get(channelID)
	return ok, err
}

func (o *Orchestrator) mark(channelID, conferenceID string, isHost bool) error {
	if err := o.acc.SetVariable(channelID, switchctl.VarAdhocConferenceID, conferenceID); err != nil {
		return err
	}
	if !isHost {
		return nil
	}
	return o.acc.SetVariable(channelID, switchctl.VarAdhocConfIsHost, "true")
}

func (o *Orchestrator) move(channelID, conferenceID string) error {
	return o.acc.Client().MoveToApplication(channelID, o.app, []string{switchctl.AppArgAdhocConference, conferenceID})
}

func (o *Orchestrator) dialplanRedirect(channelID string) error {
	info, err := o.acc.Info(channelID)
	if err != nil {
		return err
	}
	if err := amid.Redirect(o.ami, info.Name, redirectContext, redirectExtension, 1); err != nil {
		return fmt.Errorf("redirect %s into the control application: %w", channelID, err)
	}
	return nil
}

// Delete tears down the conference: every member is hung up and the bridge
// removed. Only the recorded host may delete.
func (o *Orchestrator) Delete(ctx context.Context, userUUID, conferenceID string) error {
	bridge, err := o.requireHost(userUUID, conferenceID)
	if err != nil {
		return err
	}
	for _, member := range bridge.ChannelIDs {
		if err := o.acc.Client().Hangup(member); err != nil && !switchctl.IsNotFound(err) {
			slog.Error("failed to hang up conference member",
				"adhoc_conference_id", conferenceID,
				"call_id", member,
				"error", err,
			)
		}
	}
	if err := o.acc.Client().DeleteBridge(conferenceID); err != nil && !switchctl.IsNotFound(err) {
		return err
	}
	return nil
}

// AddParticipant pulls another of the host's calls into the conference.
func (o *Orchestrator) AddParticipant(ctx context.Context, userUUID, conferenceID, callID string) error {
	if _, err := o.requireHost(userUUID, conferenceID); err != nil {
		return err
	}
	exists, err := o.acc.Exists(callID)
	if err != nil {
		return err
	}
	if !exists {
		return errs.CallNotFound(callID)
	}
	return o.redirectParticipant(conferenceID, callID, false)
}

// RemoveParticipant hangs up one member of the conference.
func (o *Orchestrator) RemoveParticipant(ctx context.Context, userUUID, conferenceID, callID string) error {
	bridge, err := o.requireHost(userUUID, conferenceID)
	if err != nil {
		return err
	}
	if !contains(bridge.ChannelIDs, callID) {
		return errs.CallNotFound(callID)
	}
	if err := o.acc.Client().Hangup(callID); err != nil && !switchctl.IsNotFound(err) {
		return err
	}
	return nil
}

// requireHost resolves the conference bridge and checks the requester is
// the recorded host. A conference and its bridge share identity and
// lifecycle, so a missing bridge is a missing conference.
func (o *Orchestrator) requireHost(userUUID, conferenceID string) (switchctl.BridgeInfo, error) {
	bridge, err := o.acc.Client().BridgeData(conferenceID)
	if err != nil {
		if switchctl.IsNotFound(err) {
			return switchctl.BridgeInfo{}, errs.ConferenceNotFound(conferenceID)
		}
		return switchctl.BridgeInfo{}, err
	}
	hostUser, err := o.store.BridgeVariable(conferenceID, switchctl.BridgeVarHostUserUUID)
	if err != nil {
		return switchctl.BridgeInfo{}, err
	}
	if hostUser == "" {
		return switchctl.BridgeInfo{}, errs.ConferenceNotFound(conferenceID)
	}
	if hostUser != userUUID {
		return switchctl.BridgeInfo{}, errs.Forbidden("not-adhoc-conference-host", "only the conference host may do this",
			map[string]any{"adhoc_conference_id": conferenceID})
	}
	return bridge, nil
}

// conferenceEvent is the payload shared by the conference notifications.
type conferenceEvent struct {
	ConferenceID string `json:"adhoc_conference_id"`
	CallID       string `json:"call_id,omitempty"`
}

func (o *Orchestrator) publish(ctx context.Context, msg bus.Message) {
	msg.RoutingKey = "adhoc_conferences." + msg.Name
	if err := o.pub.Publish(ctx, msg); err != nil {
		slog.Error("failed to publish conference event", "event", msg.Name, "error", err)
	}
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
