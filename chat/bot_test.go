package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/beanjamin25/beanbot/gamble"
	"github.com/beanjamin25/beanbot/ledger"
	"github.com/beanjamin25/beanbot/twitchapi"
)

type recordingSender struct {
	said []string
}

func (s *recordingSender) Say(text string) { s.said = append(s.said, text) }

type fakeAPI struct {
	streamInfo *twitchapi.StreamInfo
	clipID     string
	clipURL    string
	followedAt time.Time
	following  bool
	lastGame   string
	clipCalls  int
}

func (f *fakeAPI) GetStreamInfo(ctx context.Context, login string) (*twitchapi.StreamInfo, error) {
	return f.streamInfo, nil
}

func (f *fakeAPI) CreateClip(ctx context.Context, broadcasterID string) (string, string, error) {
	f.clipCalls++
	return f.clipID, f.clipURL, nil
}

func (f *fakeAPI) GetChannelID(ctx context.Context, login string) (string, error) {
	return "id-" + login, nil
}

func (f *fakeAPI) GetLastGame(ctx context.Context, broadcasterID string) (string, error) {
	return f.lastGame, nil
}

func (f *fakeAPI) GetFollowage(ctx context.Context, broadcasterID, userID string) (time.Time, bool, error) {
	return f.followedAt, f.following, nil
}

func newTestBot(t *testing.T) (*Bot, *recordingSender, *fakeAPI) {
	t.Helper()
	sender := &recordingSender{}
	api := &fakeAPI{}
	b := NewBot("somechannel", "123", sender, api)

	bank, err := gamble.NewBank(context.Background(), ledger.NewFileStore(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	b.Gamble = gamble.NewGame(bank)
	return b, sender, api
}

func TestHandleMessageIgnoresPlainChat(t *testing.T) {
	b, sender, _ := newTestBot(t)
	b.HandleMessage(context.Background(), "alice", false, "hello everyone")
	if len(sender.said) != 0 {
		t.Errorf("replied to plain chat: %v", sender.said)
	}
}

func TestHandleMessagePoints(t *testing.T) {
	b, sender, _ := newTestBot(t)
	b.HandleMessage(context.Background(), "Alice", false, "!points")
	if len(sender.said) != 1 || sender.said[0] != "alice, you have 100 points" {
		t.Errorf("said = %v", sender.said)
	}
}

func TestHandleMessageUnknownCommand(t *testing.T) {
	b, sender, _ := newTestBot(t)
	b.HandleMessage(context.Background(), "alice", false, "!dance")
	if len(sender.said) != 0 {
		t.Errorf("replied to unknown command: %v", sender.said)
	}
}

func TestUptime(t *testing.T) {
	b, sender, api := newTestBot(t)
	start := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	api.streamInfo = &twitchapi.StreamInfo{StartedAt: start}
	b.now = func() time.Time { return start.Add(2*time.Hour + 3*time.Minute + 4*time.Second) }

	b.HandleMessage(context.Background(), "alice", false, "!uptime")
	want := "The stream has been going for 2 hours, 3 minutes, and 4 seconds"
	if len(sender.said) != 1 || sender.said[0] != want {
		t.Errorf("said = %v, want %q", sender.said, want)
	}
}

func TestUptimeSilentWhenOffline(t *testing.T) {
	b, sender, _ := newTestBot(t)
	b.HandleMessage(context.Background(), "alice", false, "!uptime")
	if len(sender.said) != 0 {
		t.Errorf("said = %v", sender.said)
	}
}

func TestClipCooldown(t *testing.T) {
	b, sender, api := newTestBot(t)
	api.clipID = "FunnyClip"
	api.clipURL = "https://clips.twitch.tv/FunnyClip"

	ctx := context.Background()
	b.HandleMessage(ctx, "alice", false, "!clip")
	b.HandleMessage(ctx, "bob", false, "!clip")

	if api.clipCalls != 1 {
		t.Errorf("clipCalls = %d, want 1 (cooldown is global)", api.clipCalls)
	}
	if len(sender.said) != 1 || sender.said[0] != "https://clips.twitch.tv/FunnyClip" {
		t.Errorf("said = %v", sender.said)
	}
}

func TestFollowage(t *testing.T) {
	b, sender, api := newTestBot(t)
	api.following = true
	now := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	api.followedAt = now.Add(-(400*24*time.Hour + 5*time.Hour + 30*time.Second))
	b.now = func() time.Time { return now }

	b.HandleMessage(context.Background(), "alice", false, "!followage")
	want := "alice, you have been following for 1 year, 35 days, 5 hours, 0 minutes, 30 seconds"
	if len(sender.said) != 1 || sender.said[0] != want {
		t.Errorf("said = %v, want %q", sender.said, want)
	}
}

func TestFollowageNotFollowing(t *testing.T) {
	b, sender, _ := newTestBot(t)
	b.HandleMessage(context.Background(), "alice", false, "!followage")
	if len(sender.said) != 1 || !strings.Contains(sender.said[0], "you don't even follow somechannel yet") {
		t.Errorf("said = %v", sender.said)
	}
}

func TestShoutoutModOnly(t *testing.T) {
	b, sender, api := newTestBot(t)
	api.lastGame = "Splatoon 3"

	ctx := context.Background()
	b.HandleMessage(ctx, "alice", false, "!so @coolstreamer")
	if len(sender.said) != 0 {
		t.Fatalf("non-mod shoutout went through: %v", sender.said)
	}

	b.HandleMessage(ctx, "alice", true, "!so @coolstreamer")
	want := "Go checkout coolstreamer at twitch.tv/coolstreamer! They were last playing Splatoon 3!"
	if len(sender.said) != 1 || sender.said[0] != want {
		t.Errorf("said = %v, want %q", sender.said, want)
	}
}
