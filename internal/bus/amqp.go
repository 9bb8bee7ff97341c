package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// envelope is the wire format of a bus message.
type envelope struct {
	Name string `json:"name"`
	Data any    `json:"data"`
}

// AMQPPublisher publishes domain events to a headers exchange over AMQP.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// Connect dials the broker and declares the headers exchange.
func Connect(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "headers", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// Publish sends one domain event. Failures are returned to the caller;
// event emission is never retried here.
func (p *AMQPPublisher) Publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(envelope{Name: msg.Name, Data: msg.Payload})
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Name, err)
	}

	headers := amqp.Table{"name": msg.Name}
	if msg.TenantUUID != "" {
		headers["tenant_uuid"] = msg.TenantUUID
	}
	for _, user := range msg.UserUUIDs {
		headers["user_uuid:"+user] = true
	}

	routingKey := msg.RoutingKey
	if routingKey == "" {
		routingKey = msg.Name
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Headers:     headers,
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.Name, err)
	}
	slog.Debug("bus event published", "name", msg.Name, "routing_key", routingKey, "tenant_uuid", msg.TenantUUID)
	return nil
}

// Connected reports whether the underlying connection is still open.
func (p *AMQPPublisher) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil && !p.conn.IsClosed()
}

// Close tears down the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
