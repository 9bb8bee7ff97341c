package switchctl_test

import (
	"strings"
	"testing"
	"time"

	"github.com/wazo-platform/wazo-calld-sub001/internal/switchctl"
	"github.com/wazo-platform/wazo-calld-sub001/internal/switchctl/switchtest"
)

func newTestAccessor(fake *switchtest.Fake) *switchctl.Accessor {
	acc := switchctl.NewAccessor(fake)
	switchctl.SetSleep(acc, func(time.Duration) {})
	return acc
}

func TestIsLocal(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		want    bool
	}{
		{"local pairing leg", "Local/s@wazo-originate-0000;1", true},
		{"sip channel", "PJSIP/abc-00000001", false},
		{"empty name", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := switchctl.IsLocal(switchctl.ChannelInfo{Name: tt.channel})
			if got != tt.want {
				t.Errorf("IsLocal(%q) = %v, want %v", tt.channel, got, tt.want)
			}
		})
	}
}

func TestConnectedChannelIDs(t *testing.T) {
	fake := switchtest.New()
	for _, id := range []string{"c1", "c2", "c3", "c4"} {
		fake.CreateChannel(switchctl.ChannelInfo{ID: id, Name: "PJSIP/" + id}, nil)
	}
	if _, err := fake.CreateBridge("b1", switchctl.BridgeKindMixing); err != nil {
		t.Fatalf("create bridge: %v", err)
	}
	for _, id := range []string{"c1", "c2", "c3"} {
		if err := fake.AddChannel("b1", id); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}

	acc := newTestAccessor(fake)

	peers, err := acc.ConnectedChannelIDs("c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("peers = %v, want 2 entries", peers)
	}
	for _, want := range []string{"c2", "c3"} {
		if !switchctl.Contains(peers, want) {
			t.Errorf("peers = %v, missing %s", peers, want)
		}
	}

	// A channel outside any bridge has no peers.
	peers, err = acc.ConnectedChannelIDs("c4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(peers) != 0 {
		t.Errorf("peers = %v, want none", peers)
	}
}

func TestInBridge(t *testing.T) {
	fake := switchtest.New()
	fake.CreateChannel(switchctl.ChannelInfo{ID: "c1"}, nil)
	acc := newTestAccessor(fake)

	// Missing bridge is not an error: bridges are created lazily.
	in, err := acc.InBridge("missing", "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in {
		t.Error("InBridge on missing bridge = true, want false")
	}

	if _, err := fake.CreateBridge("b1", switchctl.BridgeKindHolding); err != nil {
		t.Fatalf("create bridge: %v", err)
	}
	if err := fake.AddChannel("b1", "c1"); err != nil {
		t.Fatalf("add channel: %v", err)
	}
	in, err = acc.InBridge("b1", "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !in {
		t.Error("InBridge = false, want true")
	}
}

func TestEnsureBridgeCreatesOnce(t *testing.T) {
	fake := switchtest.New()
	acc := newTestAccessor(fake)

	first, err := acc.EnsureBridge("b1", switchctl.BridgeKindHolding)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Kind != switchctl.BridgeKindHolding {
		t.Errorf("Kind = %q, want %q", first.Kind, switchctl.BridgeKindHolding)
	}

	// Second call must return the existing bridge, not fail on re-create.
	fake.CreateChannel(switchctl.ChannelInfo{ID: "c1"}, nil)
	if err := fake.AddChannel("b1", "c1"); err != nil {
		t.Fatalf("add channel: %v", err)
	}
	second, err := acc.EnsureBridge("b1", switchctl.BridgeKindHolding)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second.ChannelIDs) != 1 {
		t.Errorf("ChannelIDs = %v, want the existing member", second.ChannelIDs)
	}
}

func TestSetVariableConverges(t *testing.T) {
	fake := switchtest.New()
	fake.CreateChannel(switchctl.ChannelInfo{ID: "c1"}, nil)
	acc := newTestAccessor(fake)

	if err := acc.SetVariable("c1", switchctl.VarUserUUID, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fake.Var("c1", switchctl.VarUserUUID); got != "user-1" {
		t.Errorf("variable = %q, want %q", got, "user-1")
	}
}

// droppingClient accepts variable sets but never applies them, simulating a
// switch whose asynchronous acknowledgement never converges.
type droppingClient struct {
	*switchtest.Fake
}

func (d droppingClient) SetChannelVariable(id, name, value string) error { return nil }

func TestSetVariableNonConvergenceIsHardFailure(t *testing.T) {
	fake := switchtest.New()
	fake.CreateChannel(switchctl.ChannelInfo{ID: "c1"}, nil)
	acc := switchctl.NewAccessor(droppingClient{fake})
	switchctl.SetSleep(acc, func(time.Duration) {})

	err := acc.SetVariable("c1", switchctl.VarUserUUID, "user-1")
	if err == nil {
		t.Fatal("expected convergence failure, got nil")
	}
	if !strings.Contains(err.Error(), "did not converge") {
		t.Errorf("error = %v, want convergence failure", err)
	}
}

func TestBoolFlags(t *testing.T) {
	fake := switchtest.New()
	fake.CreateChannel(switchctl.ChannelInfo{ID: "c1"}, map[string]string{
		switchctl.VarOnHold: "true",
		switchctl.VarMuted:  "1",
	})
	acc := newTestAccessor(fake)

	held, err := acc.OnHold("c1")
	if err != nil || !held {
		t.Errorf("OnHold = %v, %v, want true, nil", held, err)
	}
	muted, err := acc.Muted("c1")
	if err != nil || !muted {
		t.Errorf("Muted = %v, %v, want true, nil", muted, err)
	}
	recorded, err := acc.Recorded("c1")
	if err != nil || recorded {
		t.Errorf("Recorded = %v, %v, want false, nil", recorded, err)
	}
}
