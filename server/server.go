// Package server exposes the bot's HTTP surface: health, status, and
// metrics endpoints, the eventsub webhook callback, and the OAuth
// redirect that captures the broadcaster's user token. It injects
// correlation IDs into request contexts for consistent logging.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/beanjamin25/beanbot/telemetry"
)

// Deps are the collaborators the HTTP surface reads from. Optional
// fields may be nil; their endpoints degrade gracefully.
type Deps struct {
	Channel string

	// Live reports the last observed stream state.
	Live func() bool
	// Subscriptions reports the number of active eventsub subscriptions.
	Subscriptions func() int
	// Ready reports backend readiness (e.g. database ping). Nil means
	// always ready.
	Ready func(ctx context.Context) error

	// Webhook is the eventsub callback handler, mounted at
	// /eventsub/callback when the webhook transport is in use.
	Webhook http.Handler

	// OAuth is the Twitch auth-code redirect handler, mounted at
	// /oauth/twitch.
	OAuth http.Handler

	startedAt time.Time
}

// NewMux returns the HTTP handler with all routes.
func NewMux(deps Deps) http.Handler {
	deps.startedAt = time.Now()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", handleHealthz)
	mux.HandleFunc("/readyz", deps.handleReadyz)
	mux.HandleFunc("/status", deps.handleStatus)
	if deps.Webhook != nil {
		mux.Handle("/eventsub/callback", deps.Webhook)
	}
	if deps.OAuth != nil {
		mux.Handle("/oauth/twitch", deps.OAuth)
	}

	// Wrap with correlation ID injector and tracing middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			telemetry.HTTPMethodAttr(r.Method),
			telemetry.HTTPRouteAttr(r.URL.Path),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		mux.ServeHTTP(wrapped, r.WithContext(ctx))

		telemetry.SetSpanHTTPStatus(span, wrapped.statusCode)
		if wrapped.statusCode < 400 {
			telemetry.SetSpanSuccess(span)
		}
	})
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (d *Deps) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if d.Ready != nil {
		if err := d.Ready(r.Context()); err != nil {
			http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (d *Deps) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := struct {
		Channel       string  `json:"channel"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		StreamLive    bool    `json:"stream_live"`
		Subscriptions int     `json:"subscriptions"`
	}{
		Channel:       d.Channel,
		UptimeSeconds: time.Since(d.startedAt).Seconds(),
	}
	if d.Live != nil {
		status.StreamLive = d.Live()
	}
	if d.Subscriptions != nil {
		status.Subscriptions = d.Subscriptions()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		slog.Error("encode status", slog.Any("err", err))
	}
}

// statusRecorder wraps ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Start runs the HTTP server and shuts down gracefully on context
// cancellation.
func Start(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
