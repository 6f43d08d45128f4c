// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	NotificationsReceived prometheus.Counter
	SignatureRejected     prometheus.Counter
	ChallengesAccepted    prometheus.Counter
	EventsDispatched      prometheus.Counter
	UnknownSubscription   prometheus.Counter
	HandlerPanics         prometheus.Counter
	SocketReconnects      prometheus.Counter
	PollCycles            prometheus.Counter
	PollFailures          prometheus.Counter
	LedgerWrites          prometheus.Counter
	ChatMessagesSent      prometheus.Counter

	// Histograms (seconds)
	HandlerDuration prometheus.Observer

	// Gauges
	ActiveSubscriptions prometheus.Gauge
	StreamLiveGauge     prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		NotificationsReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_eventsub_notifications_total", Help: "Verified eventsub notifications received"})
		SignatureRejected = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_eventsub_signature_rejected_total", Help: "Inbound messages rejected for a bad signature"})
		ChallengesAccepted = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_eventsub_challenges_total", Help: "Webhook challenges verified and echoed"})
		EventsDispatched = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_events_dispatched_total", Help: "Events dispatched to a registered handler"})
		UnknownSubscription = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_events_unknown_subscription_total", Help: "Notifications referencing an unknown subscription id"})
		HandlerPanics = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_handler_panics_total", Help: "Recovered panics inside event handlers"})
		SocketReconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_eventsub_socket_reconnects_total", Help: "Websocket transport reconnect attempts"})
		PollCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_poll_cycles_total", Help: "Polling watcher ticks across all watchers"})
		PollFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_poll_failures_total", Help: "Polling watcher fetch failures (tick skipped, baseline kept)"})
		LedgerWrites = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_ledger_writes_total", Help: "Write-through ledger persistence operations"})
		ChatMessagesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_chat_messages_sent_total", Help: "Messages emitted to the chat channel"})
		HandlerDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "bot_handler_duration_seconds", Help: "Event handler execution duration seconds", Buckets: prometheus.DefBuckets})
		ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_eventsub_active_subscriptions", Help: "Currently active eventsub subscriptions"})
		StreamLiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_stream_live", Help: "Stream liveness flag (1=live, 0=offline)"})
	})
}

// SetStreamLive sets the liveness gauge to 1 if live else 0.
func SetStreamLive(live bool) {
	if StreamLiveGauge != nil {
		if live {
			StreamLiveGauge.Set(1)
		} else {
			StreamLiveGauge.Set(0)
		}
	}
}

// SetActiveSubscriptions records the current registry size.
func SetActiveSubscriptions(n int) {
	if ActiveSubscriptions != nil {
		ActiveSubscriptions.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
