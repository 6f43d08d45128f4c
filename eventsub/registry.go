package eventsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/beanjamin25/beanbot/telemetry"
)

// ErrRegistrationTimeout is returned when a subscription is created remotely
// but its challenge never arrives within the registry's timeout.
var ErrRegistrationTimeout = errors.New("eventsub: subscription was never activated")

// DefaultRegistrationTimeout bounds how long Register blocks waiting for the
// challenge/welcome flow to activate a new subscription.
const DefaultRegistrationTimeout = 30 * time.Second

// CreateFunc creates a remote subscription for a topic and returns the id the
// platform issued. The transport in use supplies it at wiring time.
type CreateFunc func(ctx context.Context, topic Topic, cond Condition) (string, error)

type entry struct {
	id        string
	topic     Topic
	cond      Condition
	handler   Handler
	active    bool
	activated chan struct{}
}

// Registry tracks active remote subscriptions and maps subscription ids to
// local handlers. State is per-instance and mutex-guarded: handler dispatch,
// transport activation and registration all run concurrently.
type Registry struct {
	// Timeout bounds Register's wait for activation. Zero means
	// DefaultRegistrationTimeout.
	Timeout time.Duration

	api    PlatformAPI
	create CreateFunc

	mu   sync.Mutex
	subs map[string]*entry
	log  *slog.Logger
}

func NewRegistry(api PlatformAPI, create CreateFunc) *Registry {
	return &Registry{
		api:    api,
		create: create,
		subs:   make(map[string]*entry),
		log:    slog.Default().With(slog.String("component", "eventsub_registry")),
	}
}

// Register creates a remote subscription and blocks until the transport marks
// it active (challenge verified) or the timeout elapses. On timeout the
// pending entry is removed and ErrRegistrationTimeout returned; a delayed
// challenge can no longer activate it.
func (r *Registry) Register(ctx context.Context, topic Topic, cond Condition, h Handler) (string, error) {
	id, err := r.create(ctx, topic, cond)
	if err != nil {
		return "", fmt.Errorf("create subscription %s: %w", topic, err)
	}

	e := &entry{id: id, topic: topic, cond: cond, handler: h, activated: make(chan struct{})}
	r.mu.Lock()
	r.subs[id] = e
	r.mu.Unlock()

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultRegistrationTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-e.activated:
		r.log.Debug("subscription active", slog.String("id", id), slog.String("topic", string(topic)))
		r.updateGauge()
		return id, nil
	case <-ctx.Done():
		r.Remove(id)
		return "", ctx.Err()
	case <-timer.C:
		r.Remove(id)
		return "", fmt.Errorf("%w: %s after %s", ErrRegistrationTimeout, topic, timeout)
	}
}

// AddActive inserts an already-activated subscription. The socket transport
// uses it after the welcome flow, where subscriptions are enabled on creation.
func (r *Registry) AddActive(id string, topic Topic, cond Condition, h Handler) {
	e := &entry{id: id, topic: topic, cond: cond, handler: h, active: true, activated: make(chan struct{})}
	close(e.activated)
	r.mu.Lock()
	r.subs[id] = e
	r.mu.Unlock()
	r.updateGauge()
}

// Activate marks a subscription active. It reports false for ids the registry
// no longer tracks (e.g. removed by a registration timeout), in which case
// the caller must not treat the subscription as live.
func (r *Registry) Activate(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.subs[id]
	if !ok {
		return false
	}
	if !e.active {
		e.active = true
		close(e.activated)
	}
	return true
}

// Resolve returns the handler and topic for a subscription id, or false when
// the id is unknown or not yet activated.
func (r *Registry) Resolve(id string) (Handler, Topic, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.subs[id]
	if !ok || !e.active {
		return nil, "", false
	}
	return e.handler, e.topic, true
}

// Remove forgets a subscription id locally.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.subs, id)
	r.mu.Unlock()
	r.updateGauge()
}

// Len reports how many subscriptions are tracked.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Clear drops all local entries, keeping their topic/condition/handler
// bindings returned to the caller. The socket transport uses it to re-key
// subscriptions when a new session replaces the old ids.
func (r *Registry) Clear() []Binding {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Binding, 0, len(r.subs))
	for _, e := range r.subs {
		out = append(out, Binding{Topic: e.topic, Cond: e.cond, Handler: e.handler})
	}
	r.subs = make(map[string]*entry)
	return out
}

// Binding is a topic/condition/handler triple independent of any remote id.
type Binding struct {
	Topic   Topic
	Cond    Condition
	Handler Handler
}

// UnsubscribeAll queries the platform for every known remote subscription and
// deletes each. Used at startup to clear stale state from a previous run.
func (r *Registry) UnsubscribeAll(ctx context.Context) error {
	remote, err := r.api.ListSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	for _, sub := range remote {
		if err := r.api.DeleteSubscription(ctx, sub.ID); err != nil {
			r.log.Warn("failed to delete remote subscription", slog.String("id", sub.ID), slog.Any("err", err))
			continue
		}
		r.Remove(sub.ID)
	}
	return nil
}

// UnsubscribeTracked deletes only locally tracked subscriptions. Used at
// clean shutdown.
func (r *Registry) UnsubscribeTracked(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		if err := r.api.DeleteSubscription(ctx, id); err != nil {
			r.log.Warn("failed to unsubscribe", slog.String("id", id), slog.Any("err", err))
			continue
		}
		r.Remove(id)
	}
}

func (r *Registry) updateGauge() {
	telemetry.SetActiveSubscriptions(r.Len())
}
