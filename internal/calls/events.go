package calls

import (
	"context"
	"log/slog"

	"github.com/wazo-platform/wazo-calld-sub001/internal/bus"
)

// Domain event names published by the calls subsystem.
const (
	EventCallCreated     = "call_created"
	EventCallUpdated     = "call_updated"
	EventCallAnswered    = "call_answered"
	EventCallEnded       = "call_ended"
	EventCallHeld        = "call_held"
	EventCallResumed     = "call_resumed"
	EventCallDTMFCreated = "call_dtmf_created"
	EventUserDNDUpdated  = "user_dnd_updated"
)

// publishCall sends one call-scoped event with tenant and per-user routing
// headers. Publish failures are logged and swallowed: losing one bus event
// must never fail the call operation that produced it.
func publishCall(ctx context.Context, pub bus.Publisher, name string, call Call) {
	msg := bus.Message{
		Name:       name,
		RoutingKey: "calls." + name,
		TenantUUID: call.TenantUUID,
		Payload:    call,
	}
	if call.UserUUID != "" {
		msg.UserUUIDs = []string{call.UserUUID}
	}
	if err := pub.Publish(ctx, msg); err != nil {
		slog.Error("failed to publish call event", "event", name, "call_id", call.ID, "error", err)
	}
}

// dtmfEvent is the payload of call_dtmf_created.
type dtmfEvent struct {
	CallID   string `json:"call_id"`
	UserUUID string `json:"user_uuid"`
	Digit    string `json:"digit"`
}

// endedEvent is the payload of call_ended. It is built from the destroy
// event itself because the channel can no longer be queried.
type endedEvent struct {
	CallID   string  `json:"call_id"`
	Reason   string  `json:"reason"`
	Duration float64 `json:"duration"`
}
