// Package twitchapi contains helpers to interact with Twitch Helix APIs:
// user id resolution, stream info, clips, chatters, and eventsub subscription
// management. App-token endpoints use a client-credentials token source; the
// few user-scoped endpoints (clip creation, chatters) take a user token
// source.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const defaultBaseURL = "https://api.twitch.tv/helix"

// Client provides the Helix methods the bot needs.
type Client struct {
	ClientID   string
	AppToken   oauth2.TokenSource
	UserToken  oauth2.TokenSource // optional; required for CreateClip and GetChatters
	HTTPClient *http.Client
	BaseURL    string // overridable for tests
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return strings.TrimSuffix(c.BaseURL, "/")
	}
	return defaultBaseURL
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader, user bool) (*http.Request, error) {
	ts := c.AppToken
	if user {
		ts = c.UserToken
	}
	if ts == nil {
		return nil, fmt.Errorf("no token source for %s", path)
	}
	tok, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base()+path, body)
	if err != nil {
		return nil, err
	}
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}
	req.Header.Set("Client-Id", c.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}

// apiError renders a non-2xx Helix response as an error.
func apiError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("twitch api: %s: %s", resp.Status, string(b))
}

// GetChannelID resolves a login name to its user ID.
func (c *Client) GetChannelID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	q := url.Values{"login": {login}}
	req, err := c.newRequest(ctx, http.MethodGet, "/users", q, nil, false)
	if err != nil {
		return "", err
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return "", err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp)
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("user not found")
	}
	return body.Data[0].ID, nil
}

// StreamInfo describes a live stream.
type StreamInfo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	GameName  string    `json:"game_name"`
	StartedAt time.Time `json:"started_at"`
}

// GetStreamInfo returns live stream info for a channel, or nil when the
// channel is offline.
func (c *Client) GetStreamInfo(ctx context.Context, login string) (*StreamInfo, error) {
	q := url.Values{"user_login": {login}}
	req, err := c.newRequest(ctx, http.MethodGet, "/streams", q, nil, false)
	if err != nil {
		return nil, err
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	var body struct {
		Data []StreamInfo `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, nil
	}
	return &body.Data[0], nil
}

// Clip is a channel clip as returned by Helix.
type Clip struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	CreatorName string `json:"creator_name"`
}

// GetClips lists clips for a broadcaster created at or after since.
func (c *Client) GetClips(ctx context.Context, broadcasterID string, since time.Time) ([]Clip, error) {
	q := url.Values{"broadcaster_id": {broadcasterID}}
	if !since.IsZero() {
		q.Set("started_at", since.UTC().Format(time.RFC3339))
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/clips", q, nil, false)
	if err != nil {
		return nil, err
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	var body struct {
		Data []Clip `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// CreateClip requests a clip of the running stream. It returns the clip id
// and the public URL (derived from the edit URL the API responds with).
// Requires a user token with clips:edit.
func (c *Client) CreateClip(ctx context.Context, broadcasterID string) (string, string, error) {
	q := url.Values{"broadcaster_id": {broadcasterID}}
	req, err := c.newRequest(ctx, http.MethodPost, "/clips", q, nil, true)
	if err != nil {
		return "", "", err
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return "", "", err
	}
	defer closeBody(resp)
	if resp.StatusCode >= 400 {
		return "", "", apiError(resp)
	}
	var body struct {
		Data []struct {
			ID      string `json:"id"`
			EditURL string `json:"edit_url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", "", err
	}
	if len(body.Data) == 0 {
		return "", "", fmt.Errorf("empty clip response")
	}
	clip := body.Data[0]
	url := strings.Split(clip.EditURL, "/edit")[0]
	return clip.ID, url, nil
}

// GetChatters lists the current viewers in chat. Requires a user token with
// moderator:read:chatters for the given broadcaster.
func (c *Client) GetChatters(ctx context.Context, broadcasterID, moderatorID string) ([]string, error) {
	q := url.Values{
		"broadcaster_id": {broadcasterID},
		"moderator_id":   {moderatorID},
		"first":          {"1000"},
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/chat/chatters", q, nil, true)
	if err != nil {
		return nil, err
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	var body struct {
		Data []struct {
			UserLogin string `json:"user_login"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(body.Data))
	for _, d := range body.Data {
		out = append(out, d.UserLogin)
	}
	return out, nil
}

// GetLastGame returns the game a channel last played.
func (c *Client) GetLastGame(ctx context.Context, broadcasterID string) (string, error) {
	q := url.Values{"broadcaster_id": {broadcasterID}}
	req, err := c.newRequest(ctx, http.MethodGet, "/channels", q, nil, false)
	if err != nil {
		return "", err
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return "", err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp)
	}
	var body struct {
		Data []struct {
			GameName string `json:"game_name"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("channel not found")
	}
	return body.Data[0].GameName, nil
}

// GetFollowage returns when a user followed a broadcaster, or false when they
// do not follow. Requires a user token with moderator:read:followers.
func (c *Client) GetFollowage(ctx context.Context, broadcasterID, userID string) (time.Time, bool, error) {
	q := url.Values{
		"broadcaster_id": {broadcasterID},
		"user_id":        {userID},
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/channels/followers", q, nil, true)
	if err != nil {
		return time.Time{}, false, err
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return time.Time{}, false, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return time.Time{}, false, apiError(resp)
	}
	var body struct {
		Data []struct {
			FollowedAt time.Time `json:"followed_at"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return time.Time{}, false, err
	}
	if len(body.Data) == 0 {
		return time.Time{}, false, nil
	}
	return body.Data[0].FollowedAt, true, nil
}
