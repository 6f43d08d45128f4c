// Command beanbot is the channel companion bot. It:
//   - Loads configuration and initializes structured logging.
//   - Opens the ledger store (JSON files or Postgres) for game state,
//     watchtimes, and OAuth tokens.
//   - Joins the channel's chat and routes "!" commands to the
//     mini-games and platform lookups.
//   - Subscribes to channel events (follows, raids, point redemptions,
//     resubs) over an eventsub transport and reacts in chat.
//   - Runs the pollers: stream liveness, new clips, viewer watchtime.
//   - Exposes a minimal HTTP server with /healthz, /status, /metrics,
//     the eventsub webhook callback, and the OAuth redirect.
//
// Shutdown is graceful on SIGINT/SIGTERM; tracked eventsub
// subscriptions are deleted on the way out.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/beanjamin25/beanbot/chat"
	"github.com/beanjamin25/beanbot/collect"
	"github.com/beanjamin25/beanbot/config"
	"github.com/beanjamin25/beanbot/crypto"
	"github.com/beanjamin25/beanbot/events"
	"github.com/beanjamin25/beanbot/eventsub"
	"github.com/beanjamin25/beanbot/gamble"
	"github.com/beanjamin25/beanbot/ledger"
	"github.com/beanjamin25/beanbot/server"
	"github.com/beanjamin25/beanbot/telemetry"
	"github.com/beanjamin25/beanbot/twitchapi"
	"github.com/beanjamin25/beanbot/watch"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	initLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateChatReady(); err != nil {
		slog.Error("config incomplete", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("beanbot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Ledger store: JSON files under DATA_DIR, or Postgres when configured
	var store ledger.Store
	var ready func(ctx context.Context) error
	switch cfg.LedgerBackend {
	case "postgres":
		pg, err := ledger.OpenPostgres(ctx, cfg.DBDsn)
		if err != nil {
			slog.Error("failed to open postgres ledger", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := pg.Close(); err != nil {
				slog.Error("failed to close postgres ledger", slog.Any("err", err))
			}
		}()
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("ledger migration failed", slog.Any("err", err))
			os.Exit(1)
		}
		store = pg
		ready = func(ctx context.Context) error { return pg.DB.PingContext(ctx) }
	default:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			slog.Error("failed to create data dir", slog.Any("err", err))
			os.Exit(1)
		}
		store = ledger.NewFileStore(cfg.DataDir)
	}

	// Tokens at rest: when LEDGER_ENC_KEY is set the OAuth token ledger
	// is encrypted; game ledgers stay plain JSON.
	tokenStore := store
	if enc, err := crypto.FromEnv(); err != nil {
		slog.Error("invalid ledger encryption key", slog.Any("err", err))
		os.Exit(1)
	} else if enc != nil {
		tokenStore = ledger.NewEncryptedStore(store, enc)
		slog.Info("token ledger encryption enabled")
	}

	// Platform API client: app token for public endpoints, stored
	// broadcaster token for user-scoped ones
	api := &twitchapi.Client{ClientID: cfg.TwitchClientID}
	if err := cfg.ValidateEventsubReady(); err == nil {
		appToken, err := twitchapi.NewAppTokenSource(ctx, cfg.TwitchClientID, cfg.TwitchClientSecret)
		if err != nil {
			slog.Error("app token source failed", slog.Any("err", err))
			os.Exit(1)
		}
		api.AppToken = appToken
		api.UserToken = &twitchapi.StoredTokenSource{
			Store:        tokenStore,
			ClientID:     cfg.TwitchClientID,
			ClientSecret: cfg.TwitchClientSecret,
		}
		twitchapi.StartRefresher(ctx, tokenStore, cfg.TwitchClientID, cfg.TwitchClientSecret, 5*time.Minute, 15*time.Minute)
	} else {
		slog.Warn("helix api disabled", slog.Any("err", err))
	}

	channelName := strings.TrimPrefix(cfg.TwitchChannel, "#")
	broadcasterID := ""
	if api.AppToken != nil {
		id, err := api.GetChannelID(ctx, channelName)
		if err != nil {
			slog.Error("broadcaster lookup failed", slog.String("channel", channelName), slog.Any("err", err))
			os.Exit(1)
		}
		broadcasterID = id
	}

	// Chat connection and command router
	ircClient := chat.NewClient(cfg.TwitchBotUsername, cfg.TwitchOAuthToken, channelName)
	bot := chat.NewBot(channelName, broadcasterID, ircClient, api)

	// Mini-games
	bank, err := gamble.NewBank(ctx, store)
	if err != nil {
		slog.Error("failed to load points bank", slog.Any("err", err))
		os.Exit(1)
	}
	bot.Gamble = gamble.NewGame(bank)

	var collectGame *collect.Game
	if cfg.CollectCatalog != "" {
		catalog, err := collect.LoadCatalog(cfg.CollectCatalog)
		if err != nil {
			slog.Error("failed to load catch catalog", slog.Any("err", err))
			os.Exit(1)
		}
		collectGame, err = collect.NewGame(ctx, store, catalog)
		if err != nil {
			slog.Error("failed to load catch game", slog.Any("err", err))
			os.Exit(1)
		}
		bot.Collect = collectGame
	} else {
		slog.Info("catch game disabled (no COLLECT_CATALOG)")
	}

	// Pollers: liveness drives the clip watcher and watchtime persistence
	var liveness *watch.Liveness
	var clipWatcher *watch.ClipWatcher
	var roster *watch.Roster
	if api.AppToken != nil {
		clipWatcher = watch.NewClipWatcher(api, broadcasterID, strings.ToLower(cfg.TwitchBotUsername), cfg.ClipPollInterval, func(url string) {
			ircClient.Say(url)
		})
		bot.Clips = clipWatcher

		liveness = &watch.Liveness{
			Channel:  channelName,
			Interval: cfg.LivePollInterval,
			Probe: func(ctx context.Context) (*twitchapi.StreamInfo, error) {
				return api.GetStreamInfo(ctx, channelName)
			},
			OnLive: func(ctx context.Context, info *twitchapi.StreamInfo) {
				clipWatcher.StreamStarted(ctx, info.StartedAt)
			},
			OnOffline: func(ctx context.Context) {
				clipWatcher.StreamEnded()
			},
		}

		roster, err = watch.NewRoster(ctx, store, cfg.RosterPollInterval, func(ctx context.Context) ([]string, error) {
			return api.GetChatters(ctx, broadcasterID, broadcasterID)
		}, liveness.Live)
		if err != nil {
			slog.Error("failed to load watchtimes", slog.Any("err", err))
			os.Exit(1)
		}
		bot.Roster = roster

		go liveness.Run(ctx)
		go clipWatcher.Run(ctx)
		go roster.Run(ctx)
	} else {
		slog.Info("pollers disabled (helix api not configured)")
	}

	ircClient.OnMessage(func(user string, isMod bool, text string) {
		bot.HandleMessage(ctx, user, isMod, text)
	})

	// Eventsub transport and reactions
	var transport eventsub.Transport
	var webhookHandler *eventsub.Webhook
	if api.AppToken != nil {
		switch cfg.EventsubTransport {
		case "webhook":
			webhookHandler = eventsub.NewWebhook(api, cfg.EventsubCallbackURL, cfg.EventsubSecret)
			transport = webhookHandler
		default:
			transport = eventsub.NewSocket(api, cfg.EventsubWSURL)
		}

		reactor := &events.Reactor{
			Sender:  ircClient,
			Collect: collectGame,
			SFX:     loadSFXMappings(cfg.SFXMappings),
		}
		if cfg.SFXDir != "" {
			reactor.Sounds = events.NewExecPlayer(cfg.SFXDir)
		}
		if cfg.OBSWSURL != "" {
			reactor.Scenes = events.NewOBSControl(cfg.OBSWSURL, cfg.OBSWSPassword)
		}

		if err := transport.Start(ctx); err != nil {
			slog.Error("eventsub transport start failed", slog.Any("err", err))
			os.Exit(1)
		}
		// clear leftovers from previous runs before re-registering
		if err := registryOf(transport).UnsubscribeAll(ctx); err != nil {
			slog.Warn("unsubscribe all failed", slog.Any("err", err))
		}
		go func() {
			if err := reactor.Subscribe(ctx, transport, broadcasterID); err != nil {
				slog.Error("event subscription failed", slog.Any("err", err))
			}
		}()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			transport.Stop(stopCtx)
		}()
	} else {
		slog.Info("eventsub disabled (helix api not configured)")
	}

	// HTTP server: health, status, metrics, webhook callback, oauth redirect
	deps := server.Deps{
		Channel: channelName,
		Ready:   ready,
		OAuth:   server.NewOAuthHandler(cfg, tokenStore),
	}
	if liveness != nil {
		deps.Live = liveness.Live
	}
	if transport != nil {
		reg := registryOf(transport)
		deps.Subscriptions = reg.Len
	}
	if webhookHandler != nil {
		deps.Webhook = webhookHandler.Handler()
	}
	go func() {
		if err := server.Start(ctx, cfg.HTTPAddr, server.NewMux(deps)); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Chat connection blocks until shutdown
	if err := ircClient.Run(ctx); err != nil {
		slog.Error("chat connection failed", slog.Any("err", err))
		stop()
	}

	<-ctx.Done()
	if roster != nil {
		slog.Info("viewers this stream", slog.Any("viewers", roster.ThisStream()))
	}
	slog.Info("shutting down")
}

func initLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))
}

// loadSFXMappings reads the reward-title to sound-file mapping. A
// missing or unreadable file just disables sound reactions.
func loadSFXMappings(path string) map[string]string {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("sfx mappings not loaded", slog.String("path", path), slog.Any("err", err))
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		slog.Warn("sfx mappings not parsed", slog.String("path", path), slog.Any("err", err))
		return nil
	}
	return m
}

func registryOf(t eventsub.Transport) *eventsub.Registry {
	switch tt := t.(type) {
	case *eventsub.Webhook:
		return tt.Registry()
	case *eventsub.Socket:
		return tt.Registry()
	}
	return nil
}
