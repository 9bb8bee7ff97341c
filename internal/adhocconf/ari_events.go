package adhocconf

import (
	"context"

	"github.com/CyCoreSystems/ari/v6"
	"github.com/wazo-platform/wazo-calld-sub001/internal/switchctl"
)

// Register wires the conference orchestrator into the event dispatch table.
func (o *Orchestrator) Register(d *switchctl.Dispatcher) {
	d.Register(ari.Events.StasisStart, func(ctx context.Context, e ari.Event) {
		if v, ok := e.(*ari.StasisStart); ok {
			o.OnAppEntry(ctx, v.Channel.ID)
		}
	})
	d.Register(ari.Events.ChannelEnteredBridge, func(ctx context.Context, e ari.Event) {
		if v, ok := e.(*ari.ChannelEnteredBridge); ok {
			o.OnBridgeEnter(ctx, v.Bridge.ID, v.Channel.ID)
		}
	})
	d.Register(ari.Events.ChannelLeftBridge, func(ctx context.Context, e ari.Event) {
		if v, ok := e.(*ari.ChannelLeftBridge); ok {
			o.OnBridgeLeave(ctx, v.Bridge.ID, v.Channel.ID)
		}
	})
	d.Register(ari.Events.BridgeDestroyed, func(ctx context.Context, e ari.Event) {
		if v, ok := e.(*ari.BridgeDestroyed); ok {
			o.OnBridgeDestroyed(ctx, v.Bridge.ID)
		}
	})
}
