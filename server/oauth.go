package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/beanjamin25/beanbot/config"
	"github.com/beanjamin25/beanbot/ledger"
	"github.com/beanjamin25/beanbot/twitchapi"
)

// OAuthHandler runs the broadcaster auth-code flow: GET /oauth/twitch
// redirects to the consent page, and the provider redirects back with
// a code that is exchanged and persisted to the ledger store.
type OAuthHandler struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       string
	Store        ledger.Store

	stateMu sync.Mutex
	states  map[string]time.Time

	// exchange is swappable in tests
	exchange func(ctx context.Context, clientID, clientSecret, code, redirectURI string) (*twitchapi.TokenRecord, error)
}

// NewOAuthHandler wires the handler from config.
func NewOAuthHandler(cfg *config.Config, store ledger.Store) *OAuthHandler {
	return &OAuthHandler{
		ClientID:     cfg.TwitchClientID,
		ClientSecret: cfg.TwitchClientSecret,
		RedirectURI:  cfg.TwitchRedirectURI,
		Scopes:       cfg.TwitchScopes,
		Store:        store,
		states:       make(map[string]time.Time),
		exchange:     twitchapi.ExchangeAuthCode,
	}
}

func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("code") != "" {
		h.callback(w, r)
		return
	}
	h.start(w, r)
}

func (h *OAuthHandler) start(w http.ResponseWriter, r *http.Request) {
	if h.ClientID == "" || h.RedirectURI == "" {
		http.Error(w, "oauth not configured (need TWITCH_CLIENT_ID + TWITCH_REDIRECT_URI)", http.StatusBadRequest)
		return
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "state gen error", http.StatusInternalServerError)
		return
	}
	st := hex.EncodeToString(b)
	h.stateMu.Lock()
	h.states[st] = time.Now().Add(10 * time.Minute)
	h.stateMu.Unlock()

	authURL, err := twitchapi.AuthorizeURL(h.ClientID, h.RedirectURI, h.Scopes, st)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (h *OAuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if st == "" {
		http.Error(w, "missing state", http.StatusBadRequest)
		return
	}
	h.stateMu.Lock()
	exp, ok := h.states[st]
	delete(h.states, st)
	h.stateMu.Unlock()
	if !ok || time.Now().After(exp) {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	exchange := h.exchange
	if exchange == nil {
		exchange = twitchapi.ExchangeAuthCode
	}
	record, err := exchange(ctx, h.ClientID, h.ClientSecret, code, h.RedirectURI)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := h.Store.Save(ctx, twitchapi.TokenLedger, record); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	slog.Info("stored broadcaster token", slog.Time("expires_at", record.ExpiresAt))
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("token stored, you can close this tab"))
}
