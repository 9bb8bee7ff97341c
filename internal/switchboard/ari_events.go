package switchboard

import (
	"context"
	"log/slog"

	"github.com/CyCoreSystems/ari/v6"

	"github.com/wazo-platform/wazo-calld-sub001/internal/switchctl"
)

// Register wires the operator-entry handler into the event dispatch table.
func (o *Orchestrator) Register(d *switchctl.Dispatcher) {
	d.Register(ari.Events.StasisStart, func(ctx context.Context, e ari.Event) {
		v, ok := e.(*ari.StasisStart)
		if !ok {
			return
		}
		if len(v.Args) < 3 || v.Args[0] != switchctl.AppArgSwitchboardAnswer {
			return
		}
		o.OnOperatorEntry(ctx, v.Channel.ID, v.Args[1], v.Args[2])
	})
}

// OnOperatorEntry completes an answer: the operator picked up the originated
// channel and it entered the control application carrying the switchboard
// and waiting-call ids. The two channels are joined in a fresh mixing
// bridge. A waiting call that hung up in the meantime leaves the operator
// with nothing to talk to, so the operator channel is hung up too.
func (o *Orchestrator) OnOperatorEntry(ctx context.Context, operatorID, switchboardUUID, waitingCallID string) {
	if err := o.acc.Client().Answer(operatorID); err != nil {
		slog.Error("failed to answer operator channel",
			"switchboard_uuid", switchboardUUID,
			"operator_call_id", operatorID,
			"error", err,
		)
		return
	}

	waiting, err := o.acc.Exists(waitingCallID)
	if err != nil {
		slog.Error("failed to check waiting call",
			"switchboard_uuid", switchboardUUID,
			"call_id", waitingCallID,
			"error", err,
		)
		return
	}
	if !waiting {
		slog.Info("waiting call hung up before the operator picked up",
			"switchboard_uuid", switchboardUUID,
			"call_id", waitingCallID,
		)
		if err := o.acc.Client().Hangup(operatorID); err != nil && !switchctl.IsNotFound(err) {
			slog.Error("failed to hang up orphaned operator channel", "call_id", operatorID, "error", err)
		}
		return
	}

	bridgeID := o.newID()
	if _, err := o.acc.Client().CreateBridge(bridgeID, switchctl.BridgeKindMixing); err != nil {
		slog.Error("failed to create answer bridge",
			"switchboard_uuid", switchboardUUID,
			"bridge_id", bridgeID,
			"error", err,
		)
		return
	}
	for _, channelID := range []string{waitingCallID, operatorID} {
		if err := o.acc.Client().AddChannel(bridgeID, channelID); err != nil {
			slog.Error("failed to bridge answered call",
				"switchboard_uuid", switchboardUUID,
				"bridge_id", bridgeID,
				"call_id", channelID,
				"error", err,
			)
			return
		}
	}

	slog.Info("switchboard answer bridged",
		"switchboard_uuid", switchboardUUID,
		"call_id", waitingCallID,
		"operator_call_id", operatorID,
		"bridge_id", bridgeID,
	)
}
