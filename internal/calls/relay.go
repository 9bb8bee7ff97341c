package calls

import (
	"context"
	"log/slog"

	"github.com/wazo-platform/wazo-calld-sub001/internal/bus"
	"github.com/wazo-platform/wazo-calld-sub001/internal/switchctl"
)

// Relay subscribes to switch lifecycle events and republishes normalized
// domain events with tenant/user routing headers. Every handler is
// idempotent under re-delivery and tolerates the referenced channel being
// gone already: a not-found lookup is logged and the event dropped, never
// raised as a hard error up the stack.
type Relay struct {
	acc *switchctl.Accessor
	pub bus.Publisher
}

// NewRelay builds the event relay.
func NewRelay(acc *switchctl.Accessor, pub bus.Publisher) *Relay {
	return &Relay{acc: acc, pub: pub}
}

// publishSnapshot republishes the current call snapshot under name,
// dropping the event when the channel no longer exists.
func (r *Relay) publishSnapshot(ctx context.Context, name, channelID string) {
	call, err := Snapshot(r.acc, channelID)
	if err != nil {
		if switchctl.IsNotFound(err) {
			slog.Debug("channel gone before relay, dropping event", "event", name, "channel_id", channelID)
			return
		}
		slog.Error("failed to snapshot channel", "event", name, "channel_id", channelID, "error", err)
		return
	}
	publishCall(ctx, r.pub, name, call)
}

// OnChannelCreated publishes call_created. Local pairing legs are internal
// plumbing and are never announced.
func (r *Relay) OnChannelCreated(ctx context.Context, channelID string) {
	info, err := r.acc.Info(channelID)
	if err != nil {
		if !switchctl.IsNotFound(err) {
			slog.Error("failed to inspect created channel", "channel_id", channelID, "error", err)
		}
		return
	}
	if switchctl.IsLocal(info) {
		return
	}
	r.publishSnapshot(ctx, EventCallCreated, channelID)
}

// OnChannelStateChange publishes call_updated, and call_answered for the
// "Up" sub-case.
func (r *Relay) OnChannelStateChange(ctx context.Context, channelID, state string) {
	r.publishSnapshot(ctx, EventCallUpdated, channelID)
	if state == "Up" {
		r.publishSnapshot(ctx, EventCallAnswered, channelID)
	}
}

// OnChannelHeld records the hold flag and publishes call_held.
func (r *Relay) OnChannelHeld(ctx context.Context, channelID string) {
	r.setFlagAndPublish(ctx, channelID, switchctl.VarOnHold, "true", EventCallHeld)
}

// OnChannelUnheld clears the hold flag and publishes call_resumed.
func (r *Relay) OnChannelUnheld(ctx context.Context, channelID string) {
	r.setFlagAndPublish(ctx, channelID, switchctl.VarOnHold, "false", EventCallResumed)
}

// OnRecordingStarted records the recording flag and publishes call_updated.
func (r *Relay) OnRecordingStarted(ctx context.Context, channelID string) {
	r.setFlagAndPublish(ctx, channelID, switchctl.VarRecordActive, "true", EventCallUpdated)
}

// OnRecordingStopped clears the recording flag and publishes call_updated.
func (r *Relay) OnRecordingStopped(ctx context.Context, channelID string) {
	r.setFlagAndPublish(ctx, channelID, switchctl.VarRecordActive, "false", EventCallUpdated)
}

func (r *Relay) setFlagAndPublish(ctx context.Context, channelID, variable, value, event string) {
	if err := r.acc.SetVariable(channelID, variable, value); err != nil {
		if switchctl.IsNotFound(err) {
			slog.Debug("channel gone before relay, dropping event", "event", event, "channel_id", channelID)
			return
		}
		slog.Error("failed to record channel flag", "channel_id", channelID, "variable", variable, "error", err)
		return
	}
	r.publishSnapshot(ctx, event, channelID)
}

// OnDTMF publishes call_dtmf_created for one received digit.
func (r *Relay) OnDTMF(ctx context.Context, channelID, digit string) {
	userUUID, err := r.acc.UserUUID(channelID)
	if err != nil {
		if switchctl.IsNotFound(err) {
			slog.Debug("channel gone before relay, dropping dtmf", "channel_id", channelID)
			return
		}
		slog.Error("failed to look up dtmf channel owner", "channel_id", channelID, "error", err)
		return
	}
	tenant, _ := r.acc.TenantUUID(channelID)

	msg := bus.Message{
		Name:       EventCallDTMFCreated,
		RoutingKey: "calls." + EventCallDTMFCreated,
		TenantUUID: tenant,
		Payload:    dtmfEvent{CallID: channelID, UserUUID: userUUID, Digit: digit},
	}
	if userUUID != "" {
		msg.UserUUIDs = []string{userUUID}
	}
	if err := r.pub.Publish(ctx, msg); err != nil {
		slog.Error("failed to publish call_dtmf_created", "call_id", channelID, "error", err)
	}
}

// OnBridgeEnter recomputes the conversation direction across the bridge,
// writes it back onto the entering channel, and publishes an updated
// snapshot for every member.
func (r *Relay) OnBridgeEnter(ctx context.Context, bridgeID, channelID string) {
	r.refreshBridge(ctx, bridgeID, channelID)
}

// OnBridgeLeave behaves like OnBridgeEnter for the remaining members.
func (r *Relay) OnBridgeLeave(ctx context.Context, bridgeID, channelID string) {
	r.refreshBridge(ctx, bridgeID, channelID)
}

func (r *Relay) refreshBridge(ctx context.Context, bridgeID, triggerChannelID string) {
	bridge, err := r.acc.Client().BridgeData(bridgeID)
	if err != nil {
		if switchctl.IsNotFound(err) {
			slog.Debug("bridge gone before relay, dropping event", "bridge_id", bridgeID)
			return
		}
		slog.Error("failed to inspect bridge", "bridge_id", bridgeID, "error", err)
		return
	}

	directions := make([]string, 0, len(bridge.ChannelIDs))
	for _, member := range bridge.ChannelIDs {
		direction, err := r.acc.Client().ChannelVariable(member, switchctl.VarCallDirection)
		if err != nil {
			if switchctl.IsNotFound(err) {
				continue
			}
			slog.Error("failed to read call direction", "channel_id", member, "error", err)
			return
		}
		directions = append(directions, direction)
	}

	reduced := ReduceDirections(directions)

	// Written back onto the triggering channel so subsequent single-channel
	// handling sees the conversation-level direction.
	if err := r.acc.SetVariable(triggerChannelID, switchctl.VarCallDirection, reduced); err != nil {
		if !switchctl.IsNotFound(err) {
			slog.Error("failed to write conversation direction", "channel_id", triggerChannelID, "error", err)
		}
	}

	for _, member := range bridge.ChannelIDs {
		r.publishSnapshot(ctx, EventCallUpdated, member)
	}
}

// OnDNDToggled republishes the internal service DND toggle as a normalized
// domain event.
func (r *Relay) OnDNDToggled(ctx context.Context, tenantUUID, userUUID string, enabled bool) {
	err := r.pub.Publish(ctx, bus.Message{
		Name:       EventUserDNDUpdated,
		RoutingKey: "calls." + EventUserDNDUpdated,
		TenantUUID: tenantUUID,
		UserUUIDs:  []string{userUUID},
		Payload: map[string]any{
			"user_uuid": userUUID,
			"enabled":   enabled,
		},
	})
	if err != nil {
		slog.Error("failed to publish user_dnd_updated", "user_uuid", userUUID, "error", err)
	}
}

// ReduceDirections reduces the per-channel direction variables of a
// conversation to a single value. Any inbound+outbound mix is unknown;
// otherwise outbound wins over inbound wins over internal; a conversation
// with no directed member is internal.
func ReduceDirections(directions []string) string {
	var hasInbound, hasOutbound bool
	for _, d := range directions {
		switch d {
		case "inbound":
			hasInbound = true
		case "outbound":
			hasOutbound = true
		}
	}
	switch {
	case hasInbound && hasOutbound:
		return "unknown"
	case hasOutbound:
		return "outbound"
	case hasInbound:
		return "inbound"
	default:
		return "internal"
	}
}
