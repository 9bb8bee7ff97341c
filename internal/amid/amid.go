// Package amid speaks the switch's legacy manager/event protocol. It covers
// the two things the control interface cannot do: fire-and-forget actions
// (dialplan redirect, DTMF injection, audio mute, recording) and a live
// event stream delivered to registered handlers, keyed by the event-type
// name and dispatched in arrival order.
package amid

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

// Event is one manager-protocol event, keys as sent by the switch.
type Event map[string]string

// Handler consumes one event. Handlers for a single connection run
// sequentially in delivery order; a handler that misbehaves is never
// retried.
type Handler func(Event)

// Actioner is the action-sending half of the client, the only part
// orchestrators depend on.
type Actioner interface {
	Send(action string, fields map[string]string) error
}

// Client is a manager-protocol connection.
type Client struct {
	addr     string
	username string
	secret   string

	mu        sync.Mutex
	conn      net.Conn
	handlers  map[string][]Handler
	closed    bool
	connected bool
}

// Connect dials the manager port and logs in.
func Connect(addr, username, secret string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dial manager %s: %w", addr, err)
	}

	c := &Client{
		addr:      addr,
		username:  username,
		secret:    secret,
		conn:      conn,
		handlers:  make(map[string][]Handler),
		connected: true,
	}

	reader := bufio.NewReader(conn)

	// The switch greets with a single banner line before the first message.
	if _, err := reader.ReadString('\n'); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read manager banner: %w", err)
	}

	if err := c.write("Login", map[string]string{"Username": username, "Secret": secret}); err != nil {
		conn.Close()
		return nil, err
	}
	response, err := readMessage(reader)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read login response: %w", err)
	}
	if response["Response"] != "Success" {
		conn.Close()
		return nil, fmt.Errorf("manager login refused: %s", response["Message"])
	}

	go c.readLoop(reader)
	return c, nil
}

// RegisterHandler registers a callback for events with the given Event
// name. Registration must happen before events of that type are expected;
// multiple handlers for one name run in registration order.
func (c *Client) RegisterHandler(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

// Send fires an action without waiting for its response. The manager
// protocol acknowledges asynchronously; callers that need confirmation
// observe the effect through the control interface instead.
func (c *Client) Send(action string, fields map[string]string) error {
	return c.write(action, fields)
}

func (c *Client) write(action string, fields map[string]string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Action: %s\r\n", action)
	for key, value := range fields {
		fmt.Fprintf(&b, "%s: %s\r\n", key, value)
	}
	b.WriteString("\r\n")

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("manager connection closed")
	}
	if _, err := c.conn.Write([]byte(b.String())); err != nil {
		return fmt.Errorf("send %s action: %w", action, err)
	}
	return nil
}

// Connected reports whether the event read loop is still attached to the
// switch.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// readLoop consumes messages until the connection drops, dispatching
// events to registered handlers sequentially.
func (c *Client) readLoop(reader *bufio.Reader) {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()
	for {
		message, err := readMessage(reader)
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				slog.Error("manager connection lost", "addr", c.addr, "error", err)
			}
			return
		}
		name, ok := message["Event"]
		if !ok {
			// Action responses without a transaction id are dropped;
			// actions here are fire-and-forget.
			continue
		}
		c.mu.Lock()
		handlers := append([]Handler(nil), c.handlers[name]...)
		c.mu.Unlock()
		for _, h := range handlers {
			h(Event(message))
		}
	}
}

// Close logs off and tears down the connection.
func (c *Client) Close() error {
	c.write("Logoff", nil) //nolint:errcheck
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.connected = false
	return c.conn.Close()
}

// readMessage reads one blank-line-terminated block of "Key: Value" lines.
func readMessage(reader *bufio.Reader) (map[string]string, error) {
	message := make(map[string]string)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		if line == "\r\n" || line == "\n" {
			if len(message) == 0 {
				continue
			}
			return message, nil
		}
		parts := strings.SplitN(strings.TrimSpace(line), ":", 2)
		if len(parts) == 2 {
			message[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
}
