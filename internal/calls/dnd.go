package calls

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/wazo-platform/wazo-calld-sub001/internal/bus"
)

// EventServiceDNDUpdated is the internal service event the directory emits
// when a user toggles do-not-disturb.
const EventServiceDNDUpdated = "users_services_dnd_updated"

type dndServiceEvent struct {
	UserUUID   string `json:"user_uuid"`
	TenantUUID string `json:"tenant_uuid"`
	Enabled    bool   `json:"enabled"`
}

// BusHandlers returns the inbound bus subscriptions the relay consumes.
func (r *Relay) BusHandlers() map[string]bus.Handler {
	return map[string]bus.Handler{
		EventServiceDNDUpdated: r.onServiceDND,
	}
}

func (r *Relay) onServiceDND(ctx context.Context, name string, data json.RawMessage) {
	var ev dndServiceEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		slog.Warn("dropping malformed dnd event", "error", err)
		return
	}
	if ev.UserUUID == "" {
		slog.Warn("dropping dnd event without user uuid")
		return
	}
	r.OnDNDToggled(ctx, ev.TenantUUID, ev.UserUUID, ev.Enabled)
}
