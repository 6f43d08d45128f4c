package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/beanjamin25/beanbot/ledger"
	"github.com/beanjamin25/beanbot/twitchapi"
)

func newTestOAuthHandler(t *testing.T) (*OAuthHandler, ledger.Store) {
	t.Helper()
	store := ledger.NewFileStore(t.TempDir())
	h := &OAuthHandler{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://localhost:8080/oauth/twitch",
		Scopes:       "chat:read chat:edit",
		Store:        store,
		states:       make(map[string]time.Time),
	}
	h.exchange = func(ctx context.Context, clientID, clientSecret, code, redirectURI string) (*twitchapi.TokenRecord, error) {
		return &twitchapi.TokenRecord{
			AccessToken:  "access-" + code,
			RefreshToken: "refresh-" + code,
			ExpiresAt:    time.Now().Add(time.Hour),
		}, nil
	}
	return h, store
}

// startAndGetState runs the start leg and returns the state parameter
// from the consent redirect.
func startAndGetState(t *testing.T, h *OAuthHandler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/twitch", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("start status = %d, want 302", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	return loc.Query().Get("state")
}

func TestOAuthStartRedirects(t *testing.T) {
	h, _ := newTestOAuthHandler(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/twitch", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(loc.Host, "id.twitch.tv") {
		t.Errorf("redirect host = %s", loc.Host)
	}
	if loc.Query().Get("state") == "" {
		t.Error("redirect missing state")
	}
	if loc.Query().Get("client_id") != "client-id" {
		t.Errorf("client_id = %q", loc.Query().Get("client_id"))
	}
}

func TestOAuthStartUnconfigured(t *testing.T) {
	h, _ := newTestOAuthHandler(t)
	h.ClientID = ""
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/twitch", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestOAuthCallbackStoresToken(t *testing.T) {
	h, store := newTestOAuthHandler(t)
	state := startAndGetState(t, h)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/twitch?code=abc&state="+state, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("callback status = %d: %s", rec.Code, rec.Body.String())
	}

	var record twitchapi.TokenRecord
	if err := store.Load(context.Background(), twitchapi.TokenLedger, &record); err != nil {
		t.Fatalf("token not persisted: %v", err)
	}
	if record.AccessToken != "access-abc" || record.RefreshToken != "refresh-abc" {
		t.Errorf("record = %+v", record)
	}
}

func TestOAuthCallbackRejectsUnknownState(t *testing.T) {
	h, _ := newTestOAuthHandler(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/twitch?code=abc&state=forged", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestOAuthStateSingleUse(t *testing.T) {
	h, _ := newTestOAuthHandler(t)
	state := startAndGetState(t, h)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/twitch?code=abc&state="+state, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("first use status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/twitch?code=abc&state="+state, nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("replayed state accepted: status = %d", rec.Code)
	}
}
