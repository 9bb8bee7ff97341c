package calls

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/wazo-platform/wazo-calld-sub001/internal/bus"
	"github.com/wazo-platform/wazo-calld-sub001/internal/switchctl/switchtest"
)

func TestServiceDNDEventIsRepublished(t *testing.T) {
	rec := bus.NewRecorder()
	relay := newTestRelay(switchtest.New(), rec)

	handlers := relay.BusHandlers()
	handler, ok := handlers[EventServiceDNDUpdated]
	if !ok {
		t.Fatalf("no handler registered for %s", EventServiceDNDUpdated)
	}

	data, _ := json.Marshal(dndServiceEvent{UserUUID: "u-1", TenantUUID: "t-1", Enabled: true})
	handler(context.Background(), EventServiceDNDUpdated, data)

	msgs := rec.Named(EventUserDNDUpdated)
	if len(msgs) != 1 {
		t.Fatalf("published %d %s events, want 1", len(msgs), EventUserDNDUpdated)
	}
	msg := msgs[0]
	if msg.TenantUUID != "t-1" {
		t.Errorf("tenant_uuid = %q, want %q", msg.TenantUUID, "t-1")
	}
	if len(msg.UserUUIDs) != 1 || msg.UserUUIDs[0] != "u-1" {
		t.Errorf("user uuids = %v, want [u-1]", msg.UserUUIDs)
	}
	payload, ok := msg.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload type = %T, want map", msg.Payload)
	}
	if payload["enabled"] != true {
		t.Errorf("enabled = %v, want true", payload["enabled"])
	}
}

func TestMalformedDNDEventsAreDropped(t *testing.T) {
	rec := bus.NewRecorder()
	relay := newTestRelay(switchtest.New(), rec)
	handler := relay.BusHandlers()[EventServiceDNDUpdated]

	handler(context.Background(), EventServiceDNDUpdated, json.RawMessage("not-json"))
	handler(context.Background(), EventServiceDNDUpdated, json.RawMessage(`{"tenant_uuid":"t-1","enabled":true}`))

	if got := len(rec.Messages()); got != 0 {
		t.Errorf("published %d events, want 0", got)
	}
}
