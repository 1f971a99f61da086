package push

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"nyordd/internal/agent"
	"nyordd/internal/eventbus"
	logx "nyordd/pkg/logx"
)

// ErrNotRegistered is returned by Subscribe before a successful Initialize.
var ErrNotRegistered = errors.New("push: agent not registered")

type State int

const (
	StateUninitialized State = iota
	StateRegistered
	StateSubscribed
	StateUnsubscribed
)

func (s State) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateSubscribed:
		return "subscribed"
	case StateUnsubscribed:
		return "unsubscribed"
	default:
		return "uninitialized"
	}
}

// Transport is the agent-side subscription surface (*agent.Client).
type Transport interface {
	GetSubscription(ctx context.Context) (*agent.Subscription, error)
	Subscribe(ctx context.Context, applicationServerKey []byte) (*agent.Subscription, error)
	Unsubscribe(ctx context.Context) error
}

// ServerSync mirrors subscription state to the notification server.
type ServerSync interface {
	PushSubscribe(ctx context.Context, sub *agent.Subscription) error
	PushUnsubscribe(ctx context.Context) error
}

type Config struct {
	Enabled        bool
	VAPIDPublicKey string
}

type Manager struct {
	log       logx.Logger
	cfg       Config
	registrar agent.Registrar
	transport Transport
	server    ServerSync
	bus       eventbus.Bus

	mu    sync.Mutex
	state State
	sub   *agent.Subscription
}

func NewManager(cfg Config, registrar agent.Registrar, transport Transport, server ServerSync, bus eventbus.Bus, log logx.Logger) *Manager {
	return &Manager{
		log:       log.With(logx.String("service", "push")),
		cfg:       cfg,
		registrar: registrar,
		transport: transport,
		server:    server,
		bus:       bus,
	}
}

// Initialize registers the agent and adopts any subscription it already
// holds. Missing capability (disabled, no registrar, unsupported host) is
// reported as (false, nil): push is simply absent, the daemon carries on.
func (m *Manager) Initialize(ctx context.Context) (bool, error) {
	if !m.cfg.Enabled || m.registrar == nil || m.transport == nil {
		m.log.Debug("push disabled or capability absent")
		return false, nil
	}

	// Registration strictly precedes any subscription work.
	if err := m.registrar.Register(ctx); err != nil {
		m.log.Warn("agent registration failed; push unavailable", logx.Err(err))
		return false, nil
	}

	m.mu.Lock()
	m.state = StateRegistered
	m.mu.Unlock()

	sub, err := m.transport.GetSubscription(ctx)
	if err != nil {
		// Registered but agent unreachable right now; the subscription can
		// still be read later.
		m.log.Warn("existing subscription lookup failed", logx.Err(err))
		return true, nil
	}
	if sub != nil {
		m.mu.Lock()
		m.state = StateSubscribed
		m.sub = sub
		m.mu.Unlock()
		m.log.Info("existing push subscription adopted", logx.String("endpoint", sub.Endpoint))
	}
	return true, nil
}

// Subscribe creates a push subscription. Fails if Initialize has not
// registered the agent. Subscribing while subscribed is a no-op.
func (m *Manager) Subscribe(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateUninitialized:
		m.mu.Unlock()
		return ErrNotRegistered
	case StateSubscribed:
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	key, err := DecodeVAPIDKey(m.cfg.VAPIDPublicKey)
	if err != nil {
		return fmt.Errorf("vapid key: %w", err)
	}
	sub, err := m.transport.Subscribe(ctx, key)
	if err != nil {
		return fmt.Errorf("agent subscribe: %w", err)
	}

	// Local state commits regardless of server sync: the agent now holds a
	// live subscription and that is the truth IsSubscribed answers for.
	m.mu.Lock()
	m.state = StateSubscribed
	m.sub = sub
	m.mu.Unlock()
	m.publish(true)
	m.log.Info("push subscribed", logx.String("endpoint", sub.Endpoint))

	if m.server != nil {
		if err := m.server.PushSubscribe(ctx, sub); err != nil {
			m.log.Warn("server subscription sync failed", logx.Err(err))
		}
	}
	return nil
}

// Unsubscribe tears the subscription down. Idempotent.
func (m *Manager) Unsubscribe(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateSubscribed {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := m.transport.Unsubscribe(ctx); err != nil {
		return fmt.Errorf("agent unsubscribe: %w", err)
	}

	m.mu.Lock()
	m.state = StateUnsubscribed
	m.sub = nil
	m.mu.Unlock()
	m.publish(false)
	m.log.Info("push unsubscribed")

	if m.server != nil {
		if err := m.server.PushUnsubscribe(ctx); err != nil {
			m.log.Warn("server unsubscribe sync failed", logx.Err(err))
		}
	}
	return nil
}

// IsSubscribed answers from local state only.
func (m *Manager) IsSubscribed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateSubscribed
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscription returns a copy of the current descriptor, if any.
func (m *Manager) Subscription() (agent.Subscription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sub == nil {
		return agent.Subscription{}, false
	}
	return *m.sub, true
}

func (m *Manager) publish(subscribed bool) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{
		Type: eventbus.TypePushSubscribed,
		Time: time.Now(),
		Data: subscribed,
	})
}
