package calls

import (
	"context"
	"log/slog"

	"github.com/wazo-platform/wazo-calld-sub001/internal/bus"
)

// Stats emits per-application call statistics onto the bus. The names
// mirror the call lifecycle: start, connect, end, abandoned, duration.
type Stats struct {
	pub bus.Publisher
}

// NewStats builds a Stats emitter over pub.
func NewStats(pub bus.Publisher) *Stats {
	return &Stats{pub: pub}
}

type statPayload struct {
	Application string  `json:"application"`
	Instance    string  `json:"application_instance,omitempty"`
	Name        string  `json:"name"`
	Value       float64 `json:"value"`
}

func (s *Stats) emit(app, instance, name string, value float64) {
	err := s.pub.Publish(context.Background(), bus.Message{
		Name:       "call_statistic",
		RoutingKey: "calls.statistics." + name,
		Payload:    statPayload{Application: app, Instance: instance, Name: name, Value: value},
	})
	if err != nil {
		slog.Error("failed to publish call statistic", "name", name, "application", app, "error", err)
	}
}

// NewCall counts a call entering the application.
func (s *Stats) NewCall(app, instance string) { s.emit(app, instance, "start", 1) }

// Connect counts a call reaching its callee.
func (s *Stats) Connect(app, instance string) { s.emit(app, instance, "connect", 1) }

// End counts a call leaving the application.
func (s *Stats) End(app, instance string) { s.emit(app, instance, "end", 1) }

// Abandoned counts a call hung up while still ringing.
func (s *Stats) Abandoned(app, instance string) { s.emit(app, instance, "abandoned", 1) }

// Duration reports the total lifetime of an ended call in seconds.
func (s *Stats) Duration(app, instance string, seconds float64) {
	s.emit(app, instance, "duration", seconds)
}
