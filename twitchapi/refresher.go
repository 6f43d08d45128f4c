package twitchapi

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/beanjamin25/beanbot/ledger"
)

// TokenLedger is the ledger document holding the persisted user OAuth token.
const TokenLedger = "oauth_twitch"

// StoredTokenSource serves the persisted user token, refreshing it through
// the refresh grant when it is close to expiry. It satisfies
// oauth2.TokenSource so the Client's user-scoped endpoints can consume it
// directly.
type StoredTokenSource struct {
	Store        ledger.Store
	ClientID     string
	ClientSecret string

	mu sync.Mutex
}

func (s *StoredTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var rec TokenRecord
	if err := s.Store.Load(ctx, TokenLedger, &rec); err != nil {
		return nil, err
	}
	if time.Until(rec.ExpiresAt) > time.Minute {
		return &oauth2.Token{AccessToken: rec.AccessToken, Expiry: rec.ExpiresAt}, nil
	}
	if rec.RefreshToken == "" {
		return nil, errors.New("stored token expired and no refresh token available")
	}
	fresh, err := RefreshToken(ctx, s.ClientID, s.ClientSecret, rec.RefreshToken)
	if err != nil {
		return nil, err
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = rec.RefreshToken
	}
	if err := s.Store.Save(ctx, TokenLedger, fresh); err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: fresh.AccessToken, Expiry: fresh.ExpiresAt}, nil
}

// StartRefresher launches a goroutine that periodically checks the persisted
// user token and refreshes it when its remaining lifetime falls within
// window. Jitter spreads wakeups so several instances don't stampede the
// token endpoint.
func StartRefresher(ctx context.Context, store ledger.Store, clientID, clientSecret string, interval, window time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	log := slog.Default().With(slog.String("component", "token_refresher"))
	go func() {
		for {
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			jitter := time.Duration(rand.Int63n(int64(interval / 5)))
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval + jitter):
			}
			var rec TokenRecord
			if err := store.Load(ctx, TokenLedger, &rec); err != nil {
				continue
			}
			if rec.RefreshToken == "" || time.Until(rec.ExpiresAt) > window {
				continue
			}
			rctx, cancel := context.WithTimeout(ctx, 15*time.Second)
			fresh, err := RefreshToken(rctx, clientID, clientSecret, rec.RefreshToken)
			cancel()
			if err != nil {
				log.Warn("token refresh failed", slog.Any("err", err))
				continue
			}
			if fresh.RefreshToken == "" {
				fresh.RefreshToken = rec.RefreshToken
			}
			if err := store.Save(ctx, TokenLedger, fresh); err != nil {
				log.Warn("token persist failed", slog.Any("err", err))
				continue
			}
			log.Info("user token refreshed", slog.Time("expires_at", fresh.ExpiresAt))
		}
	}()
}
