package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/beanjamin25/beanbot/collect"
	"github.com/beanjamin25/beanbot/gamble"
	"github.com/beanjamin25/beanbot/ledger"
	"github.com/beanjamin25/beanbot/twitchapi"
	"github.com/beanjamin25/beanbot/watch"
)

// clipWindow is the global cooldown on the !clip command.
const clipWindow = 30 * time.Second

// API is the slice of the platform client the command router needs.
type API interface {
	GetStreamInfo(ctx context.Context, login string) (*twitchapi.StreamInfo, error)
	CreateClip(ctx context.Context, broadcasterID string) (string, string, error)
	GetChannelID(ctx context.Context, login string) (string, error)
	GetLastGame(ctx context.Context, broadcasterID string) (string, error)
	GetFollowage(ctx context.Context, broadcasterID, userID string) (time.Time, bool, error)
}

// Bot routes "!" commands from chat to the mini-games and platform
// lookups, sending the reply back to the channel.
type Bot struct {
	ChannelName   string
	BroadcasterID string

	Sender  Sender
	API     API
	Gamble  *gamble.Game
	Collect *collect.Game
	Roster  *watch.Roster
	Clips   *watch.ClipWatcher

	clipCooldown *ledger.Cooldown
	now          func() time.Time
}

// NewBot wires the command router.
func NewBot(channelName, broadcasterID string, sender Sender, api API) *Bot {
	return &Bot{
		ChannelName:   channelName,
		BroadcasterID: broadcasterID,
		Sender:        sender,
		API:           api,
		clipCooldown:  ledger.NewCooldown(clipWindow),
		now:           time.Now,
	}
}

// HandleMessage parses a chat line and runs the command it names.
// Non-command chatter and unknown commands are ignored.
func (b *Bot) HandleMessage(ctx context.Context, user string, isMod bool, text string) {
	if !strings.HasPrefix(text, "!") {
		return
	}
	parts := strings.Fields(text)
	cmd := strings.TrimPrefix(parts[0], "!")
	args := parts[1:]
	user = strings.ToLower(user)

	switch cmd {
	case "points":
		if b.Gamble != nil {
			b.Sender.Say(b.Gamble.Points(user))
		}
	case "gamble":
		if b.Gamble != nil {
			b.Sender.Say(b.Gamble.Gamble(ctx, user, args))
		}
	case "borrow":
		if b.Gamble != nil {
			b.Sender.Say(b.Gamble.Borrow(ctx, user))
		}
	case "payback":
		if b.Gamble != nil {
			b.Sender.Say(b.Gamble.Payback(ctx, user))
		}
	case "catch":
		if b.Collect != nil {
			b.Sender.Say(b.Collect.Catch(ctx, user))
		}
	case "pokedex":
		if b.Collect != nil {
			b.Sender.Say(b.Collect.Status(user))
		}
	case "standings":
		if b.Collect != nil {
			b.Sender.Say(b.Collect.Standings())
		}
	case "watchtime":
		b.watchtime(user, isMod, args)
	case "uptime":
		b.uptime(ctx)
	case "clip":
		b.clip(ctx)
	case "followage":
		b.followage(ctx, user)
	case "so":
		if isMod && len(args) > 0 {
			b.shoutout(ctx, strings.TrimPrefix(args[0], "@"))
		}
	default:
		slog.Debug("unknown command", "command", cmd, "user", user)
	}
}

func (b *Bot) watchtime(user string, isMod bool, args []string) {
	if b.Roster == nil {
		return
	}
	target := user
	if len(args) > 0 {
		if !isMod {
			return
		}
		target = strings.ToLower(args[0])
	}
	d := b.Roster.Watchtime(target)
	b.Sender.Say(fmt.Sprintf("%s has watched for %s", target, watch.FormatDuration(d)))
}

func (b *Bot) uptime(ctx context.Context) {
	info, err := b.API.GetStreamInfo(ctx, b.ChannelName)
	if err != nil {
		slog.Warn("uptime lookup failed", "error", err)
		return
	}
	if info == nil {
		return
	}
	up := b.now().Sub(info.StartedAt)
	b.Sender.Say(fmt.Sprintf("The stream has been going for %s", watch.FormatDuration(up)))
}

func (b *Bot) clip(ctx context.Context) {
	if ok, _ := b.clipCooldown.Try("clip"); !ok {
		return
	}
	id, url, err := b.API.CreateClip(ctx, b.BroadcasterID)
	if err != nil {
		slog.Warn("create clip failed", "error", err)
		return
	}
	if b.Clips != nil {
		b.Clips.AddSeen(id)
	}
	b.Sender.Say(url)
}

func (b *Bot) followage(ctx context.Context, user string) {
	userID, err := b.API.GetChannelID(ctx, user)
	if err != nil {
		slog.Warn("followage user lookup failed", "user", user, "error", err)
		return
	}
	since, following, err := b.API.GetFollowage(ctx, b.BroadcasterID, userID)
	if err != nil {
		slog.Warn("followage lookup failed", "user", user, "error", err)
		return
	}
	if !following {
		b.Sender.Say(fmt.Sprintf("Silly %s, you don't even follow %s yet! Go and give them a follow right now :-o", user, b.ChannelName))
		return
	}
	b.Sender.Say(fmt.Sprintf("%s, you have been following for %s", user, formatFollowage(b.now().Sub(since))))
}

func (b *Bot) shoutout(ctx context.Context, streamer string) {
	channelID, err := b.API.GetChannelID(ctx, streamer)
	if err != nil {
		slog.Warn("shoutout lookup failed", "streamer", streamer, "error", err)
		return
	}
	game, err := b.API.GetLastGame(ctx, channelID)
	if err != nil {
		slog.Warn("shoutout game lookup failed", "streamer", streamer, "error", err)
		return
	}
	b.Sender.Say(fmt.Sprintf("Go checkout %s at twitch.tv/%s! They were last playing %s!", streamer, streamer, game))
}

// formatFollowage renders a follow duration in descending units,
// skipping leading zero units.
func formatFollowage(d time.Duration) string {
	total := int(d.Seconds())
	years := total / (365 * 24 * 3600)
	total -= years * 365 * 24 * 3600
	days := total / (24 * 3600)
	total -= days * 24 * 3600
	hours := total / 3600
	total -= hours * 3600
	minutes := total / 60
	seconds := total % 60

	var sb strings.Builder
	if years > 0 {
		fmt.Fprintf(&sb, "%d %s, ", years, plural("year", years))
	}
	if days > 0 || years > 0 {
		fmt.Fprintf(&sb, "%d %s, ", days, plural("day", days))
	}
	if hours > 0 || days > 0 {
		fmt.Fprintf(&sb, "%d %s, ", hours, plural("hour", hours))
	}
	if minutes > 0 || hours > 0 {
		fmt.Fprintf(&sb, "%d %s, ", minutes, plural("minute", minutes))
	}
	fmt.Fprintf(&sb, "%d %s", seconds, plural("second", seconds))
	return sb.String()
}

func plural(unit string, n int) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}
