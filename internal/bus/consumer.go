package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one inbound bus event. The raw data payload is passed
// through undecoded; handlers unmarshal into their own types.
type Handler func(ctx context.Context, name string, data json.RawMessage)

// Consumer subscribes to a set of event names on the headers exchange and
// dispatches deliveries to registered handlers.
type Consumer struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	queue    string
	handlers map[string]Handler
}

// NewConsumer dials the broker and declares an exclusive auto-deleted queue
// bound to the given exchange, one binding per subscribed event name.
func NewConsumer(url, exchange string, handlers map[string]Handler) (*Consumer, error) {
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

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	for name := range handlers {
		args := amqp.Table{"x-match": "all", "name": name}
		if err := ch.QueueBind(q.Name, "", exchange, false, args); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("bind queue for %s: %w", name, err)
		}
	}

	return &Consumer{conn: conn, ch: ch, queue: q.Name, handlers: handlers}, nil
}

// Run consumes deliveries until the context is cancelled or the channel
// closes. Malformed messages are logged and dropped.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.ch.Consume(c.queue, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("amqp delivery channel closed")
			}
			c.dispatch(ctx, d)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	var env struct {
		Name string          `json:"name"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(d.Body, &env); err != nil {
		slog.Warn("dropping malformed bus message", "error", err)
		return
	}
	handler, ok := c.handlers[env.Name]
	if !ok {
		slog.Debug("no handler for bus event", "name", env.Name)
		return
	}
	handler(ctx, env.Name, env.Data)
}

// Close tears down the channel and connection.
func (c *Consumer) Close() error {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
