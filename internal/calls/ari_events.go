package calls

import (
	"context"
	"log/slog"
	"strings"

	"github.com/CyCoreSystems/ari/v6"
	ptypes "github.com/gogo/protobuf/types"
	"github.com/wazo-platform/wazo-calld-sub001/internal/switchctl"
)

// Register wires the stasis handler into the event dispatch table.
func (h *StasisHandler) Register(d *switchctl.Dispatcher) {
	d.Register(ari.Events.StasisStart, func(ctx context.Context, e ari.Event) {
		v, ok := e.(*ari.StasisStart)
		if !ok {
			return
		}
		h.handleStart(ctx, StartEvent{
			ChannelID:        v.Channel.ID,
			Args:             v.Args,
			Application:      v.Application,
			ReplaceChannelID: v.ReplaceChannel.ID,
		})
	})
	d.Register(ari.Events.ChannelDestroyed, func(ctx context.Context, e ari.Event) {
		v, ok := e.(*ari.ChannelDestroyed)
		if !ok {
			return
		}
		ev := DestroyedEvent{
			ChannelID:   v.Channel.ID,
			ChannelName: v.Channel.Name,
			CauseTxt:    v.CauseTxt,
		}
		if t, err := ptypes.TimestampFromProto(v.Channel.Creationtime); err == nil {
			ev.CreatedAt = t
		}
		h.handleDestroyed(ctx, ev)
	})
}

// Dispatch has nobody upstream to report to, so rejected entries and failed
// releases are logged here instead of vanishing.
func (h *StasisHandler) handleStart(ctx context.Context, ev StartEvent) {
	if err := h.OnStart(ctx, ev); err != nil {
		slog.Error("channel entry rejected", "channel_id", ev.ChannelID, "error", err)
	}
}

func (h *StasisHandler) handleDestroyed(ctx context.Context, ev DestroyedEvent) {
	if err := h.OnDestroyed(ctx, ev); err != nil {
		slog.Error("channel release failed", "channel_id", ev.ChannelID, "error", err)
	}
}

// Register wires the relay into the event dispatch table.
func (r *Relay) Register(d *switchctl.Dispatcher) {
	d.Register(ari.Events.ChannelCreated, func(ctx context.Context, e ari.Event) {
		if v, ok := e.(*ari.ChannelCreated); ok {
			r.OnChannelCreated(ctx, v.Channel.ID)
		}
	})
	d.Register(ari.Events.ChannelStateChange, func(ctx context.Context, e ari.Event) {
		if v, ok := e.(*ari.ChannelStateChange); ok {
			r.OnChannelStateChange(ctx, v.Channel.ID, v.Channel.State)
		}
	})
	d.Register(ari.Events.ChannelHold, func(ctx context.Context, e ari.Event) {
		if v, ok := e.(*ari.ChannelHold); ok {
			r.OnChannelHeld(ctx, v.Channel.ID)
		}
	})
	d.Register(ari.Events.ChannelUnhold, func(ctx context.Context, e ari.Event) {
		if v, ok := e.(*ari.ChannelUnhold); ok {
			r.OnChannelUnheld(ctx, v.Channel.ID)
		}
	})
	d.Register(ari.Events.ChannelDtmfReceived, func(ctx context.Context, e ari.Event) {
		if v, ok := e.(*ari.ChannelDtmfReceived); ok {
			r.OnDTMF(ctx, v.Channel.ID, v.Digit)
		}
	})
	d.Register(ari.Events.ChannelEnteredBridge, func(ctx context.Context, e ari.Event) {
		if v, ok := e.(*ari.ChannelEnteredBridge); ok {
			r.OnBridgeEnter(ctx, v.Bridge.ID, v.Channel.ID)
		}
	})
	d.Register(ari.Events.ChannelLeftBridge, func(ctx context.Context, e ari.Event) {
		if v, ok := e.(*ari.ChannelLeftBridge); ok {
			r.OnBridgeLeave(ctx, v.Bridge.ID, v.Channel.ID)
		}
	})
	d.Register(ari.Events.RecordingStarted, func(ctx context.Context, e ari.Event) {
		if v, ok := e.(*ari.RecordingStarted); ok {
			if id, ok := recordingChannelID(v.Recording.TargetURI); ok {
				r.OnRecordingStarted(ctx, id)
			}
		}
	})
	d.Register(ari.Events.RecordingFinished, func(ctx context.Context, e ari.Event) {
		if v, ok := e.(*ari.RecordingFinished); ok {
			if id, ok := recordingChannelID(v.Recording.TargetURI); ok {
				r.OnRecordingStopped(ctx, id)
			}
		}
	})
}

// recordingChannelID extracts the channel id from a recording target URI
// of the form "channel:<id>"; bridge recordings are not relayed.
func recordingChannelID(targetURI string) (string, bool) {
	id, ok := strings.CutPrefix(targetURI, "channel:")
	return id, ok
}
