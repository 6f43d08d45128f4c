// Package eventsub implements the bot's event subscription and delivery core:
// registering interest in Twitch EventSub topics, verifying inbound
// notifications, and dispatching them to registered handlers over either a
// webhook callback server or a persistent websocket connection.
package eventsub

import (
	"context"
	"encoding/json"
)

// Topic is a named category of remote platform event.
type Topic string

const (
	TopicFollow       Topic = "channel.follow"
	TopicBan          Topic = "channel.ban"
	TopicUnban        Topic = "channel.unban"
	TopicRaid         Topic = "channel.raid"
	TopicPointsRedeem Topic = "channel.channel_points_custom_reward_redemption.add"
	TopicSubMessage   Topic = "channel.subscription.message"
)

// Version returns the subscription payload version for a topic.
// channel.follow moved to v2 (and requires a moderator_user_id condition).
func Version(t Topic) string {
	if t == TopicFollow {
		return "2"
	}
	return "1"
}

// Condition holds topic-specific filter keys (broadcaster_user_id etc).
type Condition map[string]string

// Handler receives the decoded event body of a verified notification.
// Handlers run on their own goroutine and must not assume any ordering
// across events.
type Handler func(ctx context.Context, event json.RawMessage)

// RemoteSubscription is a subscription as reported by the platform.
type RemoteSubscription struct {
	ID     string
	Type   string
	Status string
	Method string // transport method: "webhook" | "websocket"
}

// PlatformAPI is the slice of the Twitch Helix API the delivery core depends
// on. twitchapi.Client implements it.
type PlatformAPI interface {
	CreateWebhookSubscription(ctx context.Context, topic Topic, version string, cond Condition, callbackURL, secret string) (string, error)
	CreateSocketSubscription(ctx context.Context, topic Topic, version string, cond Condition, sessionID string) (string, error)
	DeleteSubscription(ctx context.Context, id string) error
	ListSubscriptions(ctx context.Context) ([]RemoteSubscription, error)
}

// Subscriber is the transport-facing registration surface. The webhook
// transport registers synchronously (challenge-gated); the socket transport
// queues until its session is welcomed.
type Subscriber interface {
	Listen(ctx context.Context, topic Topic, cond Condition, h Handler) error
}

// Transport is the common lifecycle contract of both delivery variants.
type Transport interface {
	Subscriber
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}
