package adhocconf

import (
	"context"
	"log/slog"

	"github.com/wazo-platform/wazo-calld-sub001/internal/bus"
	"github.com/wazo-platform/wazo-calld-sub001/internal/switchctl"
)

// OnAppEntry handles a channel entering the control application with a
// pending conference id: the conference bridge is created and subscribed on
// first use, then the channel joins it. Channels without a pending id are
// someone else's business.
func (o *Orchestrator) OnAppEntry(ctx context.Context, channelID string) {
	conferenceID, err := o.acc.Client().ChannelVariable(channelID, switchctl.VarAdhocConferenceID)
	if err != nil || conferenceID == "" {
		return
	}

	if _, err := o.acc.Client().BridgeData(conferenceID); err != nil {
		if !switchctl.IsNotFound(err) {
			slog.Error("failed to inspect conference bridge", "adhoc_conference_id", conferenceID, "error", err)
			return
		}
		if _, err := o.acc.Client().CreateBridge(conferenceID, switchctl.BridgeKindMixing); err != nil {
			slog.Error("failed to create conference bridge", "adhoc_conference_id", conferenceID, "error", err)
			return
		}
		if err := o.acc.Client().SubscribeApplication("bridge:" + conferenceID); err != nil {
			slog.Error("failed to subscribe to conference bridge", "adhoc_conference_id", conferenceID, "error", err)
		}
	}

	if err := o.acc.Client().AddChannel(conferenceID, channelID); err != nil {
		slog.Error("failed to join conference bridge",
			"adhoc_conference_id", conferenceID,
			"call_id", channelID,
			"error", err,
		)
	}
}

// OnBridgeEnter handles a channel landing in its conference bridge. A
// host-marked channel records the host identity into bridge variables and
// gets its connected-line identity rewritten; every entry is announced to
// the participants already present.
func (o *Orchestrator) OnBridgeEnter(ctx context.Context, bridgeID, channelID string) {
	pending, err := o.acc.Client().ChannelVariable(channelID, switchctl.VarAdhocConferenceID)
	if err != nil || pending != bridgeID {
		return
	}

	bridge, err := o.acc.Client().BridgeData(bridgeID)
	if err != nil {
		if !switchctl.IsNotFound(err) {
			slog.Error("failed to inspect conference bridge", "adhoc_conference_id", bridgeID, "error", err)
		}
		return
	}

	isHost, _ := o.acc.Client().ChannelVariable(channelID, switchctl.VarAdhocConfIsHost)
	if isHost == "true" {
		o.recordHost(ctx, bridgeID, channelID, bridge)
	}

	tenant, _ := o.store.BridgeVariable(bridgeID, switchctl.BridgeVarHostTenant)
	if tenant == "" {
		tenant, _ = o.acc.TenantUUID(channelID)
	}
	o.publish(ctx, bus.Message{
		Name:       EventParticipantJoined,
		TenantUUID: tenant,
		UserUUIDs:  o.memberUsers(bridge, channelID),
		Payload:    conferenceEvent{ConferenceID: bridgeID, CallID: channelID},
	})
}

func (o *Orchestrator) recordHost(ctx context.Context, bridgeID, channelID string, bridge switchctl.BridgeInfo) {
	userUUID, _ := o.acc.UserUUID(channelID)
	tenantUUID, _ := o.acc.TenantUUID(channelID)
	for name, value := range map[string]string{
		switchctl.BridgeVarHostChannelID: channelID,
		switchctl.BridgeVarHostUserUUID:  userUUID,
		switchctl.BridgeVarHostTenant:    tenantUUID,
	} {
		if err := o.store.SetBridgeVariable(bridgeID, name, value); err != nil {
			slog.Error("failed to record conference host", "adhoc_conference_id", bridgeID, "variable", name, "error", err)
			return
		}
	}

	// The host's phone shows a fixed conference label instead of the last
	// connected party. Function-style variables do not read back, so this
	// skips the convergence poll.
	if err := o.acc.Client().SetChannelVariable(channelID, "CONNECTEDLINE(name)", connectedLineLabel); err != nil {
		slog.Error("failed to rewrite host connected line", "call_id", channelID, "error", err)
	}

	// The host joined an assembly already in progress: announce everyone
	// already there to it.
	for _, member := range bridge.ChannelIDs {
		if member == channelID {
			continue
		}
		o.publish(ctx, bus.Message{
			Name:       EventParticipantJoined,
			TenantUUID: tenantUUID,
			UserUUIDs:  []string{userUUID},
			Payload:    conferenceEvent{ConferenceID: bridgeID, CallID: member},
		})
	}
}

// memberUsers collects the owning users of every bridge member except the
// excluded channel, deduplicated.
func (o *Orchestrator) memberUsers(bridge switchctl.BridgeInfo, exclude string) []string {
	var users []string
	for _, member := range bridge.ChannelIDs {
		if member == exclude {
			continue
		}
		user, err := o.acc.UserUUID(member)
		if err != nil || user == "" {
			continue
		}
		if !contains(users, user) {
			users = append(users, user)
		}
	}
	return users
}

// OnBridgeLeave handles a channel leaving its conference bridge. Missing
// host variables mean the conference was destroyed concurrently. Otherwise
// the departure is announced, then: one channel remaining is hung up (a
// one-party conference is pointless), an empty bridge is destroyed, and a
// departing host takes the whole conference down with it.
func (o *Orchestrator) OnBridgeLeave(ctx context.Context, bridgeID, channelID string) {
	hostChannel, err := o.store.BridgeVariable(bridgeID, switchctl.BridgeVarHostChannelID)
	if err != nil {
		slog.Error("failed to read conference host", "adhoc_conference_id", bridgeID, "error", err)
		return
	}
	if hostChannel == "" {
		slog.Debug("bridge leave without conference host record", "bridge_id", bridgeID)
		return
	}
	hostUser, _ := o.store.BridgeVariable(bridgeID, switchctl.BridgeVarHostUserUUID)
	tenant, _ := o.store.BridgeVariable(bridgeID, switchctl.BridgeVarHostTenant)

	users := []string{}
	if leaverUser, err := o.acc.UserUUID(channelID); err == nil && leaverUser != "" {
		users = append(users, leaverUser)
	}
	if hostUser != "" && !contains(users, hostUser) {
		users = append(users, hostUser)
	}
	o.publish(ctx, bus.Message{
		Name:       EventParticipantLeft,
		TenantUUID: tenant,
		UserUUIDs:  users,
		Payload:    conferenceEvent{ConferenceID: bridgeID, CallID: channelID},
	})

	bridge, err := o.acc.Client().BridgeData(bridgeID)
	if err != nil {
		if !switchctl.IsNotFound(err) {
			slog.Error("failed to inspect conference bridge", "adhoc_conference_id", bridgeID, "error", err)
		}
		return
	}

	switch {
	case len(bridge.ChannelIDs) == 1:
		if err := o.acc.Client().Hangup(bridge.ChannelIDs[0]); err != nil && !switchctl.IsNotFound(err) {
			slog.Error("failed to hang up lone conference member",
				"adhoc_conference_id", bridgeID,
				"call_id", bridge.ChannelIDs[0],
				"error", err,
			)
		}
	case len(bridge.ChannelIDs) == 0:
		if err := o.acc.Client().DeleteBridge(bridgeID); err != nil && !switchctl.IsNotFound(err) {
			slog.Error("failed to destroy empty conference bridge", "adhoc_conference_id", bridgeID, "error", err)
		}
	case channelID == hostChannel:
		slog.Info("conference host left, ending conference",
			"adhoc_conference_id", bridgeID,
			"remaining", len(bridge.ChannelIDs),
		)
		for _, member := range bridge.ChannelIDs {
			if err := o.acc.Client().Hangup(member); err != nil && !switchctl.IsNotFound(err) {
				slog.Error("failed to hang up conference member",
					"adhoc_conference_id", bridgeID,
					"call_id", member,
					"error", err,
				)
			}
		}
	}
}

// OnBridgeDestroyed announces the end of the conference and clears its
// bridge variables. The clearing is best effort; the bridge is gone either
// way.
func (o *Orchestrator) OnBridgeDestroyed(ctx context.Context, bridgeID string) {
	hostChannel, err := o.store.BridgeVariable(bridgeID, switchctl.BridgeVarHostChannelID)
	if err != nil || hostChannel == "" {
		return
	}
	hostUser, _ := o.store.BridgeVariable(bridgeID, switchctl.BridgeVarHostUserUUID)
	tenant, _ := o.store.BridgeVariable(bridgeID, switchctl.BridgeVarHostTenant)

	var users []string
	if hostUser != "" {
		users = []string{hostUser}
	}
	o.publish(ctx, bus.Message{
		Name:       EventDeleted,
		TenantUUID: tenant,
		UserUUIDs:  users,
		Payload:    conferenceEvent{ConferenceID: bridgeID},
	})

	for _, name := range []string{
		switchctl.BridgeVarHostChannelID,
		switchctl.BridgeVarHostUserUUID,
		switchctl.BridgeVarHostTenant,
	} {
		if err := o.store.UnsetBridgeVariable(bridgeID, name); err != nil {
			slog.Debug("failed to clear conference bridge variable", "adhoc_conference_id", bridgeID, "variable", name)
		}
	}
}
