package switchctl

import (
	"context"
	"log/slog"

	"github.com/CyCoreSystems/ari/v6"
)

// EventHandler consumes one switch event.
type EventHandler func(ctx context.Context, e ari.Event)

// Dispatcher is a typed dispatch table for switch lifecycle events.
// Handlers are registered per event-type name and invoked sequentially in
// delivery order for a single event stream; a handler that panics is
// logged and never retried.
type Dispatcher struct {
	handlers map[string][]EventHandler
	types    []string
}

// NewDispatcher returns an empty dispatch table.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string][]EventHandler)}
}

// Register adds a handler for the given event-type name. Registration is
// not safe for use after Run has started.
func (d *Dispatcher) Register(eventType string, h EventHandler) {
	if _, ok := d.handlers[eventType]; !ok {
		d.types = append(d.types, eventType)
	}
	d.handlers[eventType] = append(d.handlers[eventType], h)
}

// Run subscribes to every registered event type and dispatches until ctx
// is done or the subscription closes.
func (d *Dispatcher) Run(ctx context.Context, cl ari.Client) {
	sub := cl.Bus().Subscribe(nil, d.types...)
	defer sub.Cancel()

	slog.Info("switch event dispatcher running", "event_types", len(d.types))
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.Events():
			if !ok {
				slog.Error("switch event subscription closed")
				return
			}
			d.dispatch(ctx, e)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, e ari.Event) {
	for _, h := range d.handlers[e.GetType()] {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("event handler panicked", "event_type", e.GetType(), "panic", rec)
				}
			}()
			h(ctx, e)
		}()
	}
}
