package switchctl_test

import (
	"testing"

	"github.com/wazo-platform/wazo-calld-sub001/internal/switchctl"
	"github.com/wazo-platform/wazo-calld-sub001/internal/switchctl/switchtest"
)

func TestStateStoreRoundTrip(t *testing.T) {
	fake := switchtest.New()
	store := switchctl.NewStateStore(fake)

	if _, ok, err := store.Get("c1"); err != nil || ok {
		t.Fatalf("Get on empty store = ok=%v, err=%v, want absent", ok, err)
	}

	entry := switchctl.CacheEntry{Application: "callcontrol", ApplicationInstance: "red", State: "ringing"}
	if err := store.Set("c1", entry); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := store.Get("c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("Get = absent, want present")
	}
	if got != entry {
		t.Errorf("Get = %+v, want %+v", got, entry)
	}

	if err := store.Unset("c1"); err != nil {
		t.Fatalf("Unset: %v", err)
	}
	if _, ok, _ := store.Get("c1"); ok {
		t.Error("Get after Unset = present, want absent")
	}
}

func TestStateStoreSurvivesNewInstance(t *testing.T) {
	// State lives switch-side: a fresh store over the same switch sees the
	// entries a previous process wrote.
	fake := switchtest.New()
	if err := switchctl.NewStateStore(fake).Set("c1", switchctl.CacheEntry{Application: "callcontrol", State: "talking"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	restarted := switchctl.NewStateStore(fake)
	entry, ok, err := restarted.Get("c1")
	if err != nil || !ok {
		t.Fatalf("Get after restart = ok=%v, err=%v, want present", ok, err)
	}
	if entry.State != "talking" {
		t.Errorf("State = %q, want %q", entry.State, "talking")
	}
}

func TestStateStoreCorruptEntry(t *testing.T) {
	fake := switchtest.New()
	if err := fake.SetGlobalVariable("WAZO_CHANNELS_c1", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store := switchctl.NewStateStore(fake)
	if _, _, err := store.Get("c1"); err == nil {
		t.Error("Get on corrupt entry = nil error, want failure")
	}
}

func TestBridgeVariables(t *testing.T) {
	fake := switchtest.New()
	store := switchctl.NewStateStore(fake)

	if err := store.SetBridgeVariable("conf-1", switchctl.BridgeVarHostChannelID, "c-host"); err != nil {
		t.Fatalf("SetBridgeVariable: %v", err)
	}
	got, err := store.BridgeVariable("conf-1", switchctl.BridgeVarHostChannelID)
	if err != nil {
		t.Fatalf("BridgeVariable: %v", err)
	}
	if got != "c-host" {
		t.Errorf("BridgeVariable = %q, want %q", got, "c-host")
	}

	if err := store.UnsetBridgeVariable("conf-1", switchctl.BridgeVarHostChannelID); err != nil {
		t.Fatalf("UnsetBridgeVariable: %v", err)
	}
	if got, _ := store.BridgeVariable("conf-1", switchctl.BridgeVarHostChannelID); got != "" {
		t.Errorf("BridgeVariable after unset = %q, want empty", got)
	}
}
