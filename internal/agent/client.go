package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"nyordd/internal/eventbus"
	logx "nyordd/pkg/logx"
)

// ErrNotConnected is returned for requests while the agent socket is down.
// Callers treat it as "capability absent", not as a fatal condition.
var ErrNotConnected = errors.New("agent: not connected")

const (
	dialTimeout    = 3 * time.Second
	reconnectMin   = time.Second
	reconnectMax   = 30 * time.Second
	requestTimeout = 10 * time.Second
	maxLineBytes   = 256 * 1024
)

// Client speaks the agent protocol over a unix socket. Run maintains the
// connection; requests fail fast with ErrNotConnected while it is down.
type Client struct {
	log    logx.Logger
	socket string
	bus    eventbus.Bus

	mu      sync.Mutex
	conn    net.Conn
	pending map[string]chan Message
}

func NewClient(socket string, bus eventbus.Bus, log logx.Logger) *Client {
	return &Client{
		log:     log.With(logx.String("service", "agent")),
		socket:  socket,
		bus:     bus,
		pending: map[string]chan Message{},
	}
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Run dials the socket and keeps it alive with backoff until ctx ends.
func (c *Client) Run(ctx context.Context) error {
	if c.socket == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	delay := reconnectMin
	for {
		conn, err := (&net.Dialer{Timeout: dialTimeout}).DialContext(ctx, "unix", c.socket)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Debug("agent socket dial failed", logx.Err(err), logx.Duration("retry_in", delay))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > reconnectMax {
				delay = reconnectMax
			}
			continue
		}

		delay = reconnectMin
		c.log.Info("agent socket connected", logx.String("socket", c.socket))
		c.setConn(conn)
		c.readLoop(ctx, conn)
		c.dropConn(conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("agent socket lost; reconnecting")
	}
}

func (c *Client) setConn(conn net.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// dropConn clears the connection and fails every in-flight request.
func (c *Client) dropConn(conn net.Conn) {
	_ = conn.Close()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

func (c *Client) readLoop(ctx context.Context, conn net.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 4096), maxLineBytes)
	for sc.Scan() {
		var msg Message
		if err := json.Unmarshal(sc.Bytes(), &msg); err != nil {
			c.log.Warn("agent sent malformed message", logx.Err(err))
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg Message) {
	if msg.ID != "" {
		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		if ok {
			delete(c.pending, msg.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- msg
			close(ch)
		}
		return
	}

	switch msg.Type {
	case MsgNavigateTo:
		c.log.Info("navigation requested by agent", logx.String("url", msg.URL))
		if c.bus != nil {
			c.bus.Publish(eventbus.Event{
				Type: eventbus.TypeNavigate,
				Time: time.Now(),
				Data: msg.URL,
			})
		}
	default:
		c.log.Debug("unhandled agent message", logx.String("type", msg.Type))
	}
}

func (c *Client) request(ctx context.Context, msg Message) (Message, error) {
	msg.ID = uuid.NewString()
	ch := make(chan Message, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return Message{}, ErrNotConnected
	}
	c.pending[msg.ID] = ch
	c.mu.Unlock()

	line, err := json.Marshal(msg)
	if err != nil {
		c.abandon(msg.ID)
		return Message{}, err
	}
	if _, err := conn.Write(append(line, '\n')); err != nil {
		c.abandon(msg.ID)
		return Message{}, fmt.Errorf("write to agent: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	select {
	case <-ctx.Done():
		c.abandon(msg.ID)
		return Message{}, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return Message{}, ErrNotConnected
		}
		if resp.Error != "" {
			return Message{}, fmt.Errorf("agent: %s", resp.Error)
		}
		return resp, nil
	}
}

func (c *Client) abandon(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// GetSubscription asks the agent for its current push subscription.
// (nil, nil) means the agent has none.
func (c *Client) GetSubscription(ctx context.Context) (*Subscription, error) {
	resp, err := c.request(ctx, Message{Type: MsgGetSubscription})
	if err != nil {
		return nil, err
	}
	return resp.Subscription, nil
}

// Subscribe asks the agent to create a push subscription keyed to the given
// application server key.
func (c *Client) Subscribe(ctx context.Context, applicationServerKey []byte) (*Subscription, error) {
	resp, err := c.request(ctx, Message{Type: MsgSubscribe, ApplicationServerKey: applicationServerKey})
	if err != nil {
		return nil, err
	}
	if resp.Subscription == nil {
		return nil, errors.New("agent: subscribe returned no subscription")
	}
	return resp.Subscription, nil
}

// Unsubscribe tears down the agent's push subscription. Already unsubscribed
// is success.
func (c *Client) Unsubscribe(ctx context.Context) error {
	_, err := c.request(ctx, Message{Type: MsgUnsubscribe})
	return err
}

// SkipWaiting tells the running agent to wind down for a staged replacement.
// Waits for the ack so the unit restart that follows doesn't race it.
func (c *Client) SkipWaiting(ctx context.Context) error {
	_, err := c.request(ctx, Message{Type: MsgSkipWaiting})
	return err
}
