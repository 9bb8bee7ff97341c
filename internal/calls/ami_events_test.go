package calls

import (
	"testing"

	"github.com/wazo-platform/wazo-calld-sub001/internal/amid"
	"github.com/wazo-platform/wazo-calld-sub001/internal/bus"
	"github.com/wazo-platform/wazo-calld-sub001/internal/switchctl"
	"github.com/wazo-platform/wazo-calld-sub001/internal/switchctl/switchtest"
)

type managerStub struct {
	handlers map[string][]amid.Handler
}

func newManagerStub() *managerStub {
	return &managerStub{handlers: make(map[string][]amid.Handler)}
}

func (m *managerStub) RegisterHandler(event string, h amid.Handler) {
	m.handlers[event] = append(m.handlers[event], h)
}

func (m *managerStub) emit(event string, ev amid.Event) {
	for _, h := range m.handlers[event] {
		h(ev)
	}
}

func TestManagerRecordingEventsMaintainRecordFlag(t *testing.T) {
	fake := switchtest.New()
	fake.CreateChannel(switchctl.ChannelInfo{ID: "c1", Name: "PJSIP/a-1"}, nil)
	rec := bus.NewRecorder()
	relay := newTestRelay(fake, rec)

	m := newManagerStub()
	relay.RegisterManager(m)

	m.emit("MixMonitorStart", amid.Event{"Channel": "PJSIP/a-1", "Uniqueid": "c1"})
	if got := fake.Var("c1", switchctl.VarRecordActive); got != "true" {
		t.Errorf("record flag after start = %q, want true", got)
	}
	if got := len(rec.Named(EventCallUpdated)); got != 1 {
		t.Errorf("call_updated after start = %d, want 1", got)
	}

	m.emit("MixMonitorStop", amid.Event{"Channel": "PJSIP/a-1", "Uniqueid": "c1"})
	if got := fake.Var("c1", switchctl.VarRecordActive); got != "false" {
		t.Errorf("record flag after stop = %q, want false", got)
	}
}

func TestManagerRecordingEventsWithoutChannelIDAreDropped(t *testing.T) {
	fake := switchtest.New()
	rec := bus.NewRecorder()
	relay := newTestRelay(fake, rec)

	m := newManagerStub()
	relay.RegisterManager(m)

	m.emit("MixMonitorStart", amid.Event{"Channel": "PJSIP/a-1"})
	if got := len(rec.Messages()); got != 0 {
		t.Errorf("published %d events for an id-less manager event, want 0", got)
	}
}
