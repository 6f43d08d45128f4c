// Package events binds eventsub topics to the bot's chat reactions:
// thanking followers, welcoming raiders, and acting on channel point
// redemptions.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/beanjamin25/beanbot/chat"
	"github.com/beanjamin25/beanbot/collect"
	"github.com/beanjamin25/beanbot/eventsub"
)

// SoundPlayer plays a named sound effect file. Playback errors are the
// player's to log; reactions fire and forget.
type SoundPlayer interface {
	Play(name string)
}

// SceneControl triggers broadcast-software actions.
type SceneControl interface {
	TriggerReplay()
}

// moreTokensReward is the channel points reward that grants pokeballs.
const moreTokensReward = "More Pokeballs"

// instantReplayReward triggers the replay hotkey in the broadcast
// software.
const instantReplayReward = "Instant Replay"

// Reactor holds the chat-facing reactions to channel events. Optional
// collaborators may be nil; their reactions are skipped.
type Reactor struct {
	Sender  chat.Sender
	Collect *collect.Game
	Sounds  SoundPlayer
	Scenes  SceneControl

	// SFX maps a channel points reward title to a sound file name.
	SFX map[string]string
}

type followEvent struct {
	UserName string `json:"user_name"`
}

type raidEvent struct {
	FromBroadcasterUserName string `json:"from_broadcaster_user_name"`
	Viewers                 int    `json:"viewers"`
}

type redeemEvent struct {
	UserName string `json:"user_name"`
	Reward   struct {
		Title string `json:"title"`
	} `json:"reward"`
}

type subMessageEvent struct {
	UserName         string `json:"user_name"`
	CumulativeMonths int    `json:"cumulative_months"`
}

// Subscribe registers every reaction with the transport. The follow
// topic is v2 and requires the broadcaster doubling as moderator in
// its condition.
func (r *Reactor) Subscribe(ctx context.Context, sub eventsub.Subscriber, broadcasterID string) error {
	topics := []struct {
		topic eventsub.Topic
		cond  eventsub.Condition
		h     eventsub.Handler
	}{
		{eventsub.TopicFollow, eventsub.Condition{"broadcaster_user_id": broadcasterID, "moderator_user_id": broadcasterID}, r.onFollow},
		{eventsub.TopicRaid, eventsub.Condition{"to_broadcaster_user_id": broadcasterID}, r.onRaid},
		{eventsub.TopicPointsRedeem, eventsub.Condition{"broadcaster_user_id": broadcasterID}, r.onRedeem},
		{eventsub.TopicSubMessage, eventsub.Condition{"broadcaster_user_id": broadcasterID}, r.onSubMessage},
	}
	for _, t := range topics {
		if err := sub.Listen(ctx, t.topic, t.cond, t.h); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reactor) onFollow(ctx context.Context, event json.RawMessage) {
	var ev followEvent
	if err := json.Unmarshal(event, &ev); err != nil {
		slog.Warn("undecodable follow event", "error", err)
		return
	}
	r.Sender.Say("Thank you for following " + ev.UserName + ", welcome to the Bean Squad!")
}

func (r *Reactor) onRaid(ctx context.Context, event json.RawMessage) {
	var ev raidEvent
	if err := json.Unmarshal(event, &ev); err != nil {
		slog.Warn("undecodable raid event", "error", err)
		return
	}
	r.Sender.Say(fmt.Sprintf("%s just raided the channel with %d viewers! Welcome raiders the Bean Stream!", ev.FromBroadcasterUserName, ev.Viewers))
}

func (r *Reactor) onRedeem(ctx context.Context, event json.RawMessage) {
	var ev redeemEvent
	if err := json.Unmarshal(event, &ev); err != nil {
		slog.Warn("undecodable redemption event", "error", err)
		return
	}
	title := ev.Reward.Title
	slog.Info("points redemption", "reward", title, "user", ev.UserName)

	if sfx, ok := r.SFX[title]; ok && r.Sounds != nil {
		r.Sounds.Play(sfx)
		return
	}
	switch title {
	case instantReplayReward:
		if r.Scenes != nil {
			r.Scenes.TriggerReplay()
		}
	case moreTokensReward:
		if r.Collect != nil {
			// chat commands key users by lowercased login name
			r.Sender.Say(r.Collect.AddPokeballs(strings.ToLower(ev.UserName)))
		}
	}
}

func (r *Reactor) onSubMessage(ctx context.Context, event json.RawMessage) {
	var ev subMessageEvent
	if err := json.Unmarshal(event, &ev); err != nil {
		slog.Warn("undecodable sub message event", "error", err)
		return
	}
	msg := "Thank you for the sub " + ev.UserName + "!"
	if ev.CumulativeMonths > 1 {
		msg = fmt.Sprintf("Thank you for %d months of support %s!", ev.CumulativeMonths, ev.UserName)
	}
	r.Sender.Say(msg)
}
