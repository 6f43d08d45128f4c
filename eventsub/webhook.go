package eventsub

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/beanjamin25/beanbot/telemetry"
)

// Webhook is the push delivery transport: the platform POSTs signed event
// envelopes to a callback endpoint. Subscriptions become active only after
// their challenge has been verified and echoed.
type Webhook struct {
	// Addr is the listen address when the transport runs its own server.
	// Leave empty to mount Handler() on an existing mux instead.
	Addr string
	// CallbackURL is the public URL the platform delivers to.
	CallbackURL string

	verifier Verifier
	secret   string
	api      PlatformAPI
	reg      *Registry
	disp     *Dispatcher
	srv      *http.Server
	log      *slog.Logger
}

// NewWebhook wires a webhook transport around its own registry. The secret
// signs both the remote subscription requests and inbound verification.
func NewWebhook(api PlatformAPI, callbackURL, secret string) *Webhook {
	w := &Webhook{
		CallbackURL: callbackURL,
		verifier:    Verifier{Secret: []byte(secret)},
		secret:      secret,
		api:         api,
		log:         slog.Default().With(slog.String("component", "eventsub_webhook")),
	}
	w.reg = NewRegistry(api, w.createSubscription)
	w.disp = NewDispatcher(w.reg)
	return w
}

// Registry exposes the transport's subscription registry.
func (w *Webhook) Registry() *Registry { return w.reg }

func (w *Webhook) createSubscription(ctx context.Context, topic Topic, cond Condition) (string, error) {
	return w.api.CreateWebhookSubscription(ctx, topic, Version(topic), cond, w.CallbackURL, w.secret)
}

// Listen registers a handler for a topic, blocking until the challenge flow
// completes or the registry timeout elapses.
func (w *Webhook) Listen(ctx context.Context, topic Topic, cond Condition, h Handler) error {
	_, err := w.reg.Register(ctx, topic, cond, h)
	return err
}

// Handler returns the callback endpoint handler for mounting on a mux.
func (w *Webhook) Handler() http.Handler {
	return http.HandlerFunc(w.handleCallback)
}

func (w *Webhook) handleCallback(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(rw, "read failed", http.StatusBadRequest)
		return
	}

	msgID := r.Header.Get(HeaderMessageID)
	msgTS := r.Header.Get(HeaderMessageTimestamp)
	sig := r.Header.Get(HeaderMessageSignature)
	if !w.verifier.Verify(msgID, msgTS, body, sig) {
		w.log.Warn("mismatched signature", slog.String("message_id", msgID))
		if telemetry.SignatureRejected != nil {
			telemetry.SignatureRejected.Inc()
		}
		rw.WriteHeader(http.StatusForbidden)
		return
	}

	kind, env := DecodeEnvelope(body)
	switch kind {
	case KindChallenge:
		w.log.Debug("challenge for subscription", slog.String("id", env.Subscription.ID))
		if !w.reg.Activate(env.Subscription.ID) {
			// A timed-out registration must not be resurrected by a late
			// challenge; refuse so the platform abandons the subscription.
			w.log.Warn("challenge for untracked subscription", slog.String("id", env.Subscription.ID))
			rw.WriteHeader(http.StatusForbidden)
			return
		}
		if telemetry.ChallengesAccepted != nil {
			telemetry.ChallengesAccepted.Inc()
		}
		rw.Header().Set("Content-Type", "text/plain")
		_, _ = rw.Write([]byte(env.Challenge))
	case KindNotification:
		if telemetry.NotificationsReceived != nil {
			telemetry.NotificationsReceived.Inc()
		}
		// Dispatch is asynchronous; respond 200 regardless of whether a
		// handler exists so the platform does not retry.
		w.disp.Dispatch(context.WithoutCancel(r.Context()), env.Subscription.ID, env.Event)
		rw.WriteHeader(http.StatusOK)
	default:
		w.log.Warn("undecodable envelope", slog.String("message_id", msgID))
		rw.WriteHeader(http.StatusBadRequest)
	}
}

// Start begins listening on Addr. Non-blocking; the server shuts down when
// Stop is called or ctx is cancelled. When Addr is empty, Start is a no-op
// and the caller is expected to have mounted Handler() elsewhere.
func (w *Webhook) Start(ctx context.Context) error {
	if w.Addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/eventsub/callback", w.Handler())
	w.srv = &http.Server{
		Addr:              w.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		w.Stop(context.WithoutCancel(ctx))
	}()
	go func() {
		w.log.Info("webhook transport listening", slog.String("addr", w.Addr))
		if err := w.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.log.Error("webhook server error", slog.Any("err", err))
		}
	}()
	return nil
}

// Stop shuts the listener down and deletes tracked subscriptions.
func (w *Webhook) Stop(ctx context.Context) {
	w.reg.UnsubscribeTracked(ctx)
	if w.srv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := w.srv.Shutdown(shutdownCtx); err != nil {
			w.log.Error("webhook shutdown error", slog.Any("err", err))
		}
	}
}
