package calls

import (
	"context"
	"fmt"
	"testing"

	"github.com/wazo-platform/wazo-calld-sub001/internal/amid"
	"github.com/wazo-platform/wazo-calld-sub001/internal/bus"
	"github.com/wazo-platform/wazo-calld-sub001/internal/confd"
	"github.com/wazo-platform/wazo-calld-sub001/internal/errs"
	"github.com/wazo-platform/wazo-calld-sub001/internal/switchctl"
	"github.com/wazo-platform/wazo-calld-sub001/internal/switchctl/switchtest"
)

type fakeDirectory struct {
	users map[string]confd.User
	lines map[string][]confd.Line
}

func (d *fakeDirectory) UserLines(ctx context.Context, userUUID string) ([]confd.Line, error) {
	if _, ok := d.users[userUUID]; !ok {
		return nil, fmt.Errorf("user %s: %w", userUUID, confd.ErrNotFound)
	}
	return d.lines[userUUID], nil
}

type serviceFixture struct {
	fake    *switchtest.Fake
	rec     *bus.Recorder
	ami     *amid.Recorder
	service *Service
}

func newServiceFixture() *serviceFixture {
	fake := switchtest.New()
	rec := bus.NewRecorder()
	ami := amid.NewRecorder()
	directory := &fakeDirectory{
		users: map[string]confd.User{
			"u-1": {UUID: "u-1", TenantUUID: "t-1", Firstname: "Alice"},
		},
		lines: map[string][]confd.Line{
			"u-1": {{ID: 7, Name: "line-7", Endpoint: "PJSIP/alice"}},
		},
	}
	return &serviceFixture{
		fake:    fake,
		rec:     rec,
		ami:     ami,
		service: NewService(switchctl.NewAccessor(fake), rec, ami, directory),
	}
}

func TestOriginateThenListShowsExactlyOneCall(t *testing.T) {
	fx := newServiceFixture()
	ctx := context.Background()

	call, err := fx.service.Originate(ctx, OriginateParams{
		Extension:  "1234",
		Context:    "default",
		UserUUID:   "u-1",
		TenantUUID: "t-1",
	})
	if err != nil {
		t.Fatalf("Originate: %v", err)
	}
	if call.ID == "" {
		t.Fatal("originated call has no id")
	}
	if call.UserUUID != "u-1" {
		t.Errorf("UserUUID = %q, want u-1", call.UserUUID)
	}
	if call.Direction != "outbound" {
		t.Errorf("Direction = %q, want outbound", call.Direction)
	}

	reqs := fx.fake.Originates()
	if len(reqs) != 1 {
		t.Fatalf("originate requests = %d, want 1", len(reqs))
	}
	if reqs[0].Endpoint != "PJSIP/alice" {
		t.Errorf("Endpoint = %q, want the user's first line", reqs[0].Endpoint)
	}
	if reqs[0].Extension != "1234" || reqs[0].Context != "default" {
		t.Errorf("target = %s@%s, want 1234@default", reqs[0].Extension, reqs[0].Context)
	}

	listed, err := fx.service.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("List = %d calls, want 1", len(listed))
	}
	if listed[0].ID != call.ID || listed[0].UserUUID != "u-1" {
		t.Errorf("listed call = %+v, want id %s owned by u-1", listed[0], call.ID)
	}

	if len(fx.rec.Named(EventCallCreated)) != 1 {
		t.Error("call_created not published")
	}
}

func TestOriginateValidation(t *testing.T) {
	fx := newServiceFixture()
	ctx := context.Background()

	if _, err := fx.service.Originate(ctx, OriginateParams{Context: "default", UserUUID: "u-1"}); errs.StatusOf(err) != 400 {
		t.Errorf("missing extension status = %d, want 400", errs.StatusOf(err))
	}
	if _, err := fx.service.Originate(ctx, OriginateParams{Extension: "1234", Context: "default", UserUUID: "nobody"}); errs.StatusOf(err) != 404 {
		t.Errorf("unknown user status = %d, want 404", errs.StatusOf(err))
	}
	if len(fx.fake.Originates()) != 0 {
		t.Error("rejected requests must not reach the switch")
	}
}

func TestListSkipsLocalLegs(t *testing.T) {
	fx := newServiceFixture()
	fx.fake.CreateChannel(switchctl.ChannelInfo{ID: "real", Name: "PJSIP/a-1"}, nil)
	fx.fake.CreateChannel(switchctl.ChannelInfo{ID: "pair", Name: "Local/s@ctx-0000;1"}, nil)

	listed, err := fx.service.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != "real" {
		t.Errorf("List = %+v, want only the real channel", listed)
	}
}

func TestOperationsOnMissingCallAre404(t *testing.T) {
	fx := newServiceFixture()
	ctx := context.Background()

	ops := map[string]func() error{
		"hangup": func() error { return fx.service.Hangup(ctx, "ghost", "") },
		"hold":   func() error { return fx.service.Hold(ctx, "ghost", "") },
		"mute":   func() error { return fx.service.Mute(ctx, "ghost", "") },
		"dtmf":   func() error { return fx.service.SendDTMF(ctx, "ghost", "", "1") },
	}
	for name, op := range ops {
		if got := errs.StatusOf(op()); got != 404 {
			t.Errorf("%s on missing call status = %d, want 404", name, got)
		}
	}
	if _, err := fx.service.Get(ctx, "ghost"); errs.StatusOf(err) != 404 {
		t.Errorf("get on missing call status = %d, want 404", errs.StatusOf(err))
	}
}

func TestOwnershipGuard(t *testing.T) {
	fx := newServiceFixture()
	fx.fake.CreateChannel(switchctl.ChannelInfo{ID: "c1", Name: "PJSIP/a-1"}, map[string]string{
		switchctl.VarUserUUID: "u-1",
	})
	ctx := context.Background()

	if got := errs.StatusOf(fx.service.Hangup(ctx, "c1", "u-2")); got != 403 {
		t.Errorf("foreign hangup status = %d, want 403", got)
	}
	if len(fx.fake.Hangups()) != 0 {
		t.Error("foreign hangup reached the switch")
	}

	if err := fx.service.Hangup(ctx, "c1", "u-1"); err != nil {
		t.Fatalf("owner hangup: %v", err)
	}
	if len(fx.fake.Hangups()) != 1 {
		t.Error("owner hangup did not reach the switch")
	}
}

func TestHoldIsIdempotent(t *testing.T) {
	fx := newServiceFixture()
	fx.fake.CreateChannel(switchctl.ChannelInfo{ID: "c1", Name: "PJSIP/a-1"}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := fx.service.Hold(ctx, "c1", ""); err != nil {
			t.Fatalf("Hold #%d: %v", i+1, err)
		}
	}
	if fx.fake.Var("c1", switchctl.VarOnHold) != "true" {
		t.Error("hold flag not set")
	}

	if err := fx.service.Unhold(ctx, "c1", ""); err != nil {
		t.Fatalf("Unhold: %v", err)
	}
	if fx.fake.Var("c1", switchctl.VarOnHold) != "false" {
		t.Error("hold flag not cleared")
	}
}

func TestMuteGoesThroughManagerWithChannelName(t *testing.T) {
	fx := newServiceFixture()
	fx.fake.CreateChannel(switchctl.ChannelInfo{ID: "c1", Name: "PJSIP/alice-00000001"}, nil)
	ctx := context.Background()

	if err := fx.service.Mute(ctx, "c1", ""); err != nil {
		t.Fatalf("Mute: %v", err)
	}
	actions := fx.ami.Actions()
	if len(actions) != 1 || actions[0].Action != "MuteAudio" {
		t.Fatalf("actions = %+v, want one MuteAudio", actions)
	}
	if actions[0].Fields["Channel"] != "PJSIP/alice-00000001" {
		t.Errorf("Channel = %q, want the channel name, not the id", actions[0].Fields["Channel"])
	}
	if fx.fake.Var("c1", switchctl.VarMuted) != "true" {
		t.Error("mute flag not recorded")
	}
}

func TestSendDTMFPlaysEachDigit(t *testing.T) {
	fx := newServiceFixture()
	fx.fake.CreateChannel(switchctl.ChannelInfo{ID: "c1", Name: "PJSIP/a-1"}, nil)
	ctx := context.Background()

	if err := fx.service.SendDTMF(ctx, "c1", "", "12#"); err != nil {
		t.Fatalf("SendDTMF: %v", err)
	}
	actions := fx.ami.Actions()
	if len(actions) != 3 {
		t.Fatalf("actions = %d, want one per digit", len(actions))
	}
	want := []string{"1", "2", "#"}
	for i, action := range actions {
		if action.Action != "PlayDTMF" || action.Fields["Digit"] != want[i] {
			t.Errorf("action %d = %+v, want PlayDTMF %q", i, action, want[i])
		}
	}

	if got := errs.StatusOf(fx.service.SendDTMF(ctx, "c1", "", "")); got != 400 {
		t.Errorf("empty digits status = %d, want 400", got)
	}
}
