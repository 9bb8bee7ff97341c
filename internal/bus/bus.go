// Package bus publishes calld domain events to the message bus. Events are
// routed by routing key on a headers exchange; every message carries the
// tenant uuid header and, where applicable, per-user markers of the form
// "user_uuid:<id>" = true, so consumers can filter per user without
// per-user queues.
package bus

import "context"

// Message is one domain event to publish.
type Message struct {
	// Name is the domain event name, e.g. "call_created".
	Name string
	// RoutingKey routes the message on the exchange. Defaults to Name when
	// empty.
	RoutingKey string
	TenantUUID string
	// UserUUIDs lists the users allowed to receive the event; each becomes
	// a "user_uuid:<id>" header.
	UserUUIDs []string
	// Payload is the event body, marshalled to JSON under "data".
	Payload any
}

// Publisher publishes domain events.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}
