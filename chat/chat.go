// Package chat connects the bot to the channel's IRC chat: an outbound
// sender plus a command router over inbound messages.
package chat

import (
	"context"
	"log/slog"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/beanjamin25/beanbot/telemetry"
)

// Sender emits a line of text to the channel. Everything that talks
// back to chat depends on this rather than on the IRC client.
type Sender interface {
	Say(text string)
}

// Client wraps the IRC connection for a single channel.
type Client struct {
	channel string
	irc     *twitch.Client
}

// NewClient builds a connected-on-Run IRC client. The oauth token must
// carry the "oauth:" prefix the IRC gateway expects.
func NewClient(username, oauthToken, channel string) *Client {
	return &Client{
		channel: channel,
		irc:     twitch.NewClient(username, oauthToken),
	}
}

// Say sends a message to the channel.
func (c *Client) Say(text string) {
	if telemetry.ChatMessagesSent != nil {
		telemetry.ChatMessagesSent.Inc()
	}
	c.irc.Say(c.channel, text)
}

// OnMessage registers the inbound message callback. The user name is
// lowercased, and mod status is read from the message badges. The
// broadcaster counts as a mod.
func (c *Client) OnMessage(fn func(user string, isMod bool, text string)) {
	c.irc.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		isMod := msg.User.Badges["moderator"] > 0 || msg.User.Badges["broadcaster"] > 0
		fn(msg.User.Name, isMod, msg.Message)
	})
}

// Run joins the channel and blocks until ctx is cancelled or the
// connection fails.
func (c *Client) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		if err := c.irc.Disconnect(); err != nil {
			slog.Debug("irc disconnect", "error", err)
		}
		close(done)
	}()

	c.irc.Join(c.channel)
	slog.Info("joining chat", "channel", c.channel)
	if err := c.irc.Connect(); err != nil && ctx.Err() == nil {
		return err
	}
	<-done
	return nil
}
