package calls

import (
	"context"

	"github.com/wazo-platform/wazo-calld-sub001/internal/amid"
)

// ManagerEvents is the event-subscription half of the manager client.
type ManagerEvents interface {
	RegisterHandler(event string, h amid.Handler)
}

// RegisterManager wires the relay into the manager event stream. Recordings
// are started over the manager protocol and are invisible to the control
// interface, so the record flag is maintained from manager events. The
// manager's Uniqueid matches the control interface's channel id.
func (r *Relay) RegisterManager(m ManagerEvents) {
	m.RegisterHandler("MixMonitorStart", func(ev amid.Event) {
		if id := ev["Uniqueid"]; id != "" {
			r.OnRecordingStarted(context.Background(), id)
		}
	})
	m.RegisterHandler("MixMonitorStop", func(ev amid.Event) {
		if id := ev["Uniqueid"]; id != "" {
			r.OnRecordingStopped(context.Background(), id)
		}
	})
}
