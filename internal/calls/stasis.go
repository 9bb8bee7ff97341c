package calls

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/wazo-platform/wazo-calld-sub001/internal/bus"
	"github.com/wazo-platform/wazo-calld-sub001/internal/switchctl"
)

// DestroyedEvent is the daemon-side view of a channel destruction.
type DestroyedEvent struct {
	ChannelID   string
	ChannelName string
	CauseTxt    string
	CreatedAt   time.Time
}

// StasisHandler reacts to channels entering and leaving the control
// application. It owns the classification of entry events and the cache
// entry lifecycle around the state machine.
type StasisHandler struct {
	acc     *switchctl.Accessor
	machine *StateMachine
	pub     bus.Publisher
}

// NewStasisHandler builds the channel entry/exit handler.
func NewStasisHandler(acc *switchctl.Accessor, machine *StateMachine, pub bus.Publisher) *StasisHandler {
	return &StasisHandler{acc: acc, machine: machine, pub: pub}
}

// OnStart handles a channel entering the control application.
func (h *StasisHandler) OnStart(ctx context.Context, ev StartEvent) error {
	// Blind-transfer detection runs before classification: the replaced
	// channel's tenant marker must follow the call onto the new leg.
	if ev.ReplaceChannelID != "" {
		if err := h.propagateTenant(ev.ReplaceChannelID, ev.ChannelID); err != nil {
			slog.Error("failed to propagate tenant across blind transfer",
				"channel_id", ev.ChannelID,
				"replaced_channel_id", ev.ReplaceChannelID,
				"error", err,
			)
		}
	}

	// Operator channels originated to answer a switchboard call are owned
	// by the switchboard subsystem, not the state machine.
	if len(ev.Args) > 0 && ev.Args[0] == switchctl.AppArgSwitchboardAnswer {
		return nil
	}

	// Channels re-entering the application to join an ad-hoc conference are
	// owned by the conference subsystem, not the state machine.
	if pending, err := h.acc.Client().ChannelVariable(ev.ChannelID, switchctl.VarAdhocConferenceID); err == nil && pending != "" {
		return nil
	}

	classified, err := Classify(ev)
	if err != nil {
		// Protocol violation between dialplan and daemon. Loud, not silent.
		return err
	}

	switch c := classified.(type) {
	case ConnectCall:
		return h.machine.Connect(c.OriginatorID, ev.ChannelID)
	case NewCall:
		return h.machine.Ring(c.Application, c.Instance, ev.ChannelID)
	}
	return nil
}

func (h *StasisHandler) propagateTenant(fromChannelID, toChannelID string) error {
	tenant, err := h.acc.Client().ChannelVariable(fromChannelID, switchctl.VarTenantUUID)
	if err != nil {
		return err
	}
	if tenant == "" {
		return nil
	}
	return h.acc.SetVariable(toChannelID, switchctl.VarTenantUUID, tenant)
}

// OnDestroyed handles a channel destruction: the state machine is advanced
// and the cache entry released for every tracked channel, but local pairing
// legs produce no outward call_ended event.
func (h *StasisHandler) OnDestroyed(ctx context.Context, ev DestroyedEvent) error {
	tracked, err := h.machine.Hangup(ev.ChannelID, ev.CreatedAt)
	if err != nil {
		return err
	}
	if !tracked {
		return nil
	}

	if strings.HasPrefix(ev.ChannelName, "Local/") {
		return nil
	}

	var duration float64
	if !ev.CreatedAt.IsZero() {
		duration = time.Since(ev.CreatedAt).Seconds()
	}
	err = h.pub.Publish(ctx, bus.Message{
		Name:       EventCallEnded,
		RoutingKey: "calls." + EventCallEnded,
		Payload:    endedEvent{CallID: ev.ChannelID, Reason: ev.CauseTxt, Duration: duration},
	})
	if err != nil {
		slog.Error("failed to publish call_ended", "call_id", ev.ChannelID, "error", err)
	}
	return nil
}
