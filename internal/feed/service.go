package feed

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"nyordd/internal/eventbus"
	"nyordd/internal/notif"
	logx "nyordd/pkg/logx"
)

// Sink is where fetched and streamed records land (*store.Service).
type Sink interface {
	Append(ctx context.Context, rec notif.Record) (notif.Record, bool)
	Replace(ctx context.Context, recs []notif.Record)
}

type Options struct {
	Stream       bool
	WSURL        string
	PollInterval time.Duration
	ReconnectMax int
}

const (
	defaultPollInterval = 10 * time.Second
	defaultReconnectMax = 3
	reconnectDelay      = 5 * time.Second
	transactionLag      = time.Second
	handshakeTimeout    = 5 * time.Second
)

type Service struct {
	log    logx.Logger
	opts   Options
	client *Client
	sink   Sink
	bus    eventbus.Bus
	token  func() (string, error)
}

func New(opts Options, client *Client, sink Sink, bus eventbus.Bus, token func() (string, error), log logx.Logger) *Service {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = defaultReconnectMax
	}
	return &Service{
		log:    log.With(logx.String("service", "feed")),
		opts:   opts,
		client: client,
		sink:   sink,
		bus:    bus,
		token:  token,
	}
}

// Refresh pulls the full list and replaces the local copy. Called at
// startup, on the periodic schedule, and as the polling fallback.
func (s *Service) Refresh(ctx context.Context) error {
	recs, err := s.client.FetchNotifications(ctx)
	if err != nil {
		return err
	}
	s.sink.Replace(ctx, recs)
	s.log.Debug("feed refreshed", logx.Int("count", len(recs)))
	return nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.client.FetchStats(ctx)
}

// MarkRead forwards the read receipt to the server.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	return s.client.MarkRead(ctx, id)
}

func (s *Service) MarkAllRead(ctx context.Context) error {
	return s.client.MarkAllRead(ctx)
}

// Run drives the live path. The stream is tried first (when enabled); each
// connection gets ReconnectMax attempts with a fixed delay between them, and
// once the budget is spent the service settles on polling for good, exactly
// like losing the stream mid-flight.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Refresh(ctx); err != nil {
		s.log.Warn("initial refresh failed", logx.Err(err))
	}

	if s.opts.Stream && s.opts.WSURL != "" {
		attempts := 0
		for {
			connected := false
			if err := s.runStream(ctx, &connected); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			if connected {
				// A stream that was actually up earns a fresh budget.
				attempts = 0
			}
			attempts++
			s.log.Warn("stream lost",
				logx.Int("attempt", attempts),
				logx.Int("max", s.opts.ReconnectMax),
			)
			if attempts >= s.opts.ReconnectMax {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(reconnectDelay):
			}
		}
		s.log.Warn("stream reconnect budget spent; switching to polling")
	}

	return s.runPolling(ctx)
}

func (s *Service) runPolling(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.log.Warn("poll refresh failed", logx.Err(err))
			}
		}
	}
}

// runStream holds one websocket connection: dial, subscribe handshake, then
// the read loop until the connection dies or ctx ends. connected is set once
// the handshake goes through.
func (s *Service) runStream(ctx context.Context, connected *bool) error {
	wsURL, err := s.streamURL()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"type": wsTypeSubscribe}); err != nil {
		return err
	}
	*connected = true
	s.log.Info("stream connected")

	// Unblock ReadMessage on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handleMessage(ctx, data)
	}
}

func (s *Service) streamURL() (string, error) {
	u, err := url.Parse(s.opts.WSURL)
	if err != nil {
		return "", err
	}
	if s.token != nil {
		tok, err := s.token()
		if err != nil {
			return "", err
		}
		if tok != "" {
			q := u.Query()
			q.Set("token", tok)
			u.RawQuery = q.Encode()
		}
	}
	return u.String(), nil
}

func (s *Service) handleMessage(ctx context.Context, data []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.log.Warn("malformed stream message", logx.Err(err))
		return
	}

	switch env.Type {
	case wsTypeNotification:
		if env.Data == nil {
			return
		}
		rec, added := s.sink.Append(ctx, env.Data.record())
		if added {
			s.log.Debug("streamed notification stored", logx.String("id", rec.ID))
		}

	case wsTypeTransaction:
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{
				Type: eventbus.TypeBalanceUpdate,
				Time: time.Now(),
				Data: BalanceUpdate{
					TransactionID:  env.TransactionID.String(),
					Amount:         env.Amount,
					NewSrcBalance:  env.NewSrcBalance,
					NewDestBalance: env.NewDestBalance,
				},
			})
		}
		// The settled transaction's notification may not be streamed; give
		// the server a beat to commit, then pull.
		go func() {
			select {
			case <-ctx.Done():
			case <-time.After(transactionLag):
				if err := s.Refresh(ctx); err != nil {
					s.log.Warn("post-transaction refresh failed", logx.Err(err))
				}
			}
		}()

	case wsTypeSubscribeAck:
		s.log.Debug("stream subscription confirmed")

	default:
		s.log.Debug("unhandled stream message", logx.String("type", env.Type))
	}
}
