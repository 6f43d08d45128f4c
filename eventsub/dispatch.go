package eventsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/beanjamin25/beanbot/telemetry"
)

// Dispatcher routes verified notifications to their registered handler.
// Handlers run on their own goroutine so a slow handler never delays
// acknowledgement of the next inbound notification.
type Dispatcher struct {
	reg *Registry
	log *slog.Logger
}

func NewDispatcher(reg *Registry) *Dispatcher {
	return &Dispatcher{
		reg: reg,
		log: slog.Default().With(slog.String("component", "eventsub_dispatch")),
	}
}

// Dispatch resolves the handler for a subscription id and invokes it
// asynchronously with the decoded event body. An unknown subscription is
// logged and dropped; it is never an error for the transport.
func (d *Dispatcher) Dispatch(ctx context.Context, subscriptionID string, event json.RawMessage) {
	h, topic, ok := d.reg.Resolve(subscriptionID)
	if !ok {
		d.log.Error("event received for unknown subscription", slog.String("id", subscriptionID))
		if telemetry.UnknownSubscription != nil {
			telemetry.UnknownSubscription.Inc()
		}
		return
	}
	if telemetry.EventsDispatched != nil {
		telemetry.EventsDispatched.Inc()
	}
	go func() {
		ctx, span := telemetry.StartSpan(ctx, "eventsub", "eventsub.handle",
			telemetry.TopicAttr(string(topic)))
		defer span.End()
		defer func() {
			if rec := recover(); rec != nil {
				d.log.Error("event handler panicked", slog.String("id", subscriptionID), slog.Any("panic", rec))
				if telemetry.HandlerPanics != nil {
					telemetry.HandlerPanics.Inc()
				}
				telemetry.RecordError(span, fmt.Errorf("handler panic: %v", rec))
			}
		}()
		telemetry.TimeFunc(telemetry.HandlerDuration, func() {
			h(ctx, event)
		})
	}()
}
