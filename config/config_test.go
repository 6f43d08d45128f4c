package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"TWITCH_CHANNEL", "TWITCH_BOT_USERNAME", "TWITCH_OAUTH_TOKEN",
		"EVENTSUB_TRANSPORT", "EVENTSUB_SECRET", "LEDGER_BACKEND", "DATA_DIR",
		"LIVE_POLL_INTERVAL",
	} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.EventsubTransport != "websocket" {
		t.Errorf("default transport = %q, want websocket", cfg.EventsubTransport)
	}
	if cfg.LedgerBackend != "file" {
		t.Errorf("default ledger backend = %q, want file", cfg.LedgerBackend)
	}
	if cfg.DataDir != "data" {
		t.Errorf("default data dir = %q, want data", cfg.DataDir)
	}
	if cfg.EventsubSecret == "" {
		t.Error("expected a generated eventsub secret")
	}
	if cfg.LivePollInterval != 5*time.Second {
		t.Errorf("default live poll interval = %v, want 5s", cfg.LivePollInterval)
	}
}

func TestLoadGeneratedSecretIsFresh(t *testing.T) {
	t.Setenv("EVENTSUB_SECRET", "")
	a, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	b, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if a.EventsubSecret == b.EventsubSecret {
		t.Error("expected distinct generated secrets per load")
	}
}

func TestLoadInvalidTransport(t *testing.T) {
	t.Setenv("EVENTSUB_TRANSPORT", "carrier-pigeon")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "EVENTSUB_TRANSPORT") {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestValidateChatReady(t *testing.T) {
	t.Setenv("TWITCH_CHANNEL", "somechannel")
	t.Setenv("TWITCH_BOT_USERNAME", "somebot")
	t.Setenv("TWITCH_OAUTH_TOKEN", "")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.ValidateChatReady(); err == nil {
		t.Error("expected error when oauth token missing")
	}
	cfg.TwitchOAuthToken = "oauth:abc"
	if err := cfg.ValidateChatReady(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateEventsubReady(t *testing.T) {
	t.Setenv("TWITCH_CLIENT_ID", "cid")
	t.Setenv("TWITCH_CLIENT_SECRET", "csecret")
	t.Setenv("EVENTSUB_TRANSPORT", "webhook")
	t.Setenv("EVENTSUB_CALLBACK_URL", "")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.ValidateEventsubReady(); err == nil {
		t.Error("webhook transport without callback URL should fail validation")
	}
	cfg.EventsubCallbackURL = "https://bot.example.com"
	if err := cfg.ValidateEventsubReady(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
