package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/beanjamin25/beanbot/eventsub"
)

// subscriptionRequest is the eventsub subscription creation payload.
type subscriptionRequest struct {
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	Condition map[string]string `json:"condition"`
	Transport map[string]string `json:"transport"`
}

func (c *Client) createSubscription(ctx context.Context, reqBody subscriptionRequest) (string, error) {
	buf, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/eventsub/subscriptions", nil, bytes.NewReader(buf), false)
	if err != nil {
		return "", err
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return "", err
	}
	defer closeBody(resp)
	if resp.StatusCode >= 400 {
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
		return "", fmt.Errorf("empty subscription response")
	}
	return body.Data[0].ID, nil
}

// CreateWebhookSubscription registers a webhook-delivered subscription.
func (c *Client) CreateWebhookSubscription(ctx context.Context, topic eventsub.Topic, version string, cond eventsub.Condition, callbackURL, secret string) (string, error) {
	return c.createSubscription(ctx, subscriptionRequest{
		Type:      string(topic),
		Version:   version,
		Condition: cond,
		Transport: map[string]string{
			"method":   "webhook",
			"callback": callbackURL,
			"secret":   secret,
		},
	})
}

// CreateSocketSubscription registers a websocket-delivered subscription bound
// to a session.
func (c *Client) CreateSocketSubscription(ctx context.Context, topic eventsub.Topic, version string, cond eventsub.Condition, sessionID string) (string, error) {
	return c.createSubscription(ctx, subscriptionRequest{
		Type:      string(topic),
		Version:   version,
		Condition: cond,
		Transport: map[string]string{
			"method":     "websocket",
			"session_id": sessionID,
		},
	})
}

// DeleteSubscription removes a single eventsub subscription by id.
func (c *Client) DeleteSubscription(ctx context.Context, id string) error {
	q := url.Values{"id": {id}}
	req, err := c.newRequest(ctx, http.MethodDelete, "/eventsub/subscriptions", q, nil, false)
	if err != nil {
		return err
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

// ListSubscriptions returns every eventsub subscription the platform knows
// for this client id.
func (c *Client) ListSubscriptions(ctx context.Context) ([]eventsub.RemoteSubscription, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/eventsub/subscriptions", nil, nil, false)
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
			ID        string `json:"id"`
			Type      string `json:"type"`
			Status    string `json:"status"`
			Transport struct {
				Method string `json:"method"`
			} `json:"transport"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	out := make([]eventsub.RemoteSubscription, 0, len(body.Data))
	for _, d := range body.Data {
		out = append(out, eventsub.RemoteSubscription{ID: d.ID, Type: d.Type, Status: d.Status, Method: d.Transport.Method})
	}
	return out, nil
}
