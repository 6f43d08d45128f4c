package eventsub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/beanjamin25/beanbot/telemetry"
)

const (
	messageTypeWelcome      = "session_welcome"
	messageTypeKeepalive    = "session_keepalive"
	messageTypeNotification = "notification"

	maxReconnectBackoff = 2 * time.Minute
)

// Socket is the persistent delivery transport: one long-lived websocket
// connection to the platform. Subscriptions are queued with Listen and
// (re-)issued every time a session is welcomed; on connection loss the
// transport reconnects with capped exponential backoff.
type Socket struct {
	// URL is the websocket endpoint.
	URL string

	api  PlatformAPI
	reg  *Registry
	disp *Dispatcher
	log  *slog.Logger

	mu        sync.Mutex
	desired   []Binding
	sessionID string
	conn      *websocket.Conn
	cancel    context.CancelFunc

	// dial and initialBackoff are swapped in tests.
	dial           func(ctx context.Context, url string) (*websocket.Conn, error)
	initialBackoff time.Duration
}

func NewSocket(api PlatformAPI, url string) *Socket {
	s := &Socket{
		URL: url,
		api: api,
		log: slog.Default().With(slog.String("component", "eventsub_socket")),
		dial: func(ctx context.Context, url string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			return conn, err
		},
		initialBackoff: time.Second,
	}
	s.reg = NewRegistry(api, func(ctx context.Context, topic Topic, cond Condition) (string, error) {
		s.mu.Lock()
		session := s.sessionID
		s.mu.Unlock()
		return api.CreateSocketSubscription(ctx, topic, Version(topic), cond, session)
	})
	s.disp = NewDispatcher(s.reg)
	return s
}

// Registry exposes the transport's subscription registry.
func (s *Socket) Registry() *Registry { return s.reg }

// Listen queues a handler for a topic. Queued bindings are subscribed when
// the session is welcomed; bindings added while a session is live are
// subscribed immediately.
func (s *Socket) Listen(ctx context.Context, topic Topic, cond Condition, h Handler) error {
	s.mu.Lock()
	s.desired = append(s.desired, Binding{Topic: topic, Cond: cond, Handler: h})
	session := s.sessionID
	s.mu.Unlock()
	if session == "" {
		return nil
	}
	id, err := s.api.CreateSocketSubscription(ctx, topic, Version(topic), cond, session)
	if err != nil {
		return err
	}
	s.reg.AddActive(id, topic, cond, h)
	return nil
}

// Start launches the connection loop. Non-blocking; the loop runs until ctx
// is cancelled or Stop is called, reconnecting on transport errors.
func (s *Socket) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	go s.run(runCtx)
	return nil
}

func (s *Socket) run(ctx context.Context) {
	backoff := s.initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		err := s.connectAndReceive(ctx)
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("socket connection lost; reconnecting", slog.Any("err", err), slog.Duration("backoff", backoff))
		if telemetry.SocketReconnects != nil {
			telemetry.SocketReconnects.Inc()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxReconnectBackoff {
			backoff = maxReconnectBackoff
		}
	}
}

// connectAndReceive dials, then reads control messages until the connection
// breaks. It returns the terminal read error.
func (s *Socket) connectAndReceive(ctx context.Context) error {
	conn, err := s.dial(ctx, s.URL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		s.conn = nil
		s.sessionID = ""
		s.mu.Unlock()
	}()

	// Close the connection when ctx ends so ReadMessage unblocks.
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
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var frame socketFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.log.Debug("undecodable socket frame", slog.Any("err", err))
			continue
		}
		switch frame.Metadata.MessageType {
		case messageTypeWelcome:
			if err := s.onWelcome(ctx, frame.Payload); err != nil {
				s.log.Error("welcome flow failed", slog.Any("err", err))
			}
		case messageTypeKeepalive:
			// no-op
		case messageTypeNotification:
			s.onNotification(ctx, frame.Payload)
		default:
			s.log.Debug("unhandled socket message", slog.String("type", frame.Metadata.MessageType))
		}
	}
}

// onWelcome captures the session id, deletes stale remote socket
// subscriptions, and (re-)issues every desired subscription bound to the new
// session. Entries from a previous session are re-keyed: the registry is
// cleared and repopulated with the ids the platform issues now.
func (s *Socket) onWelcome(ctx context.Context, payload json.RawMessage) error {
	var welcome welcomePayload
	if err := json.Unmarshal(payload, &welcome); err != nil {
		return err
	}
	s.mu.Lock()
	s.sessionID = welcome.Session.ID
	desired := make([]Binding, len(s.desired))
	copy(desired, s.desired)
	s.mu.Unlock()
	s.log.Info("session welcomed", slog.String("session_id", welcome.Session.ID), slog.Int("subscriptions", len(desired)))

	s.deleteStaleSocketSubscriptions(ctx)
	s.reg.Clear()

	for _, b := range desired {
		id, err := s.api.CreateSocketSubscription(ctx, b.Topic, Version(b.Topic), b.Cond, welcome.Session.ID)
		if err != nil {
			s.log.Error("subscription failed", slog.String("topic", string(b.Topic)), slog.Any("err", err))
			continue
		}
		s.reg.AddActive(id, b.Topic, b.Cond, b.Handler)
	}
	s.log.Info("socket listening", slog.Int("active", s.reg.Len()))
	return nil
}

// deleteStaleSocketSubscriptions removes remote subscriptions left behind by
// a previous session. Only websocket-transport entries are touched.
func (s *Socket) deleteStaleSocketSubscriptions(ctx context.Context) {
	remote, err := s.api.ListSubscriptions(ctx)
	if err != nil {
		s.log.Warn("failed to list remote subscriptions", slog.Any("err", err))
		return
	}
	for _, sub := range remote {
		if sub.Method != "websocket" {
			continue
		}
		if err := s.api.DeleteSubscription(ctx, sub.ID); err != nil {
			s.log.Warn("failed to delete stale subscription", slog.String("id", sub.ID), slog.Any("err", err))
		}
	}
}

func (s *Socket) onNotification(ctx context.Context, payload json.RawMessage) {
	kind, env := DecodeEnvelope(payload)
	if kind != KindNotification {
		s.log.Warn("notification frame without subscription id")
		return
	}
	if telemetry.NotificationsReceived != nil {
		telemetry.NotificationsReceived.Inc()
	}
	s.disp.Dispatch(context.WithoutCancel(ctx), env.Subscription.ID, env.Event)
}

// Stop cancels the connection loop, closes the socket, and deletes tracked
// subscriptions.
func (s *Socket) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel := s.cancel
	conn := s.conn
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	s.reg.UnsubscribeTracked(ctx)
}
