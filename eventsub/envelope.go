package eventsub

import "encoding/json"

// Kind tags the decoded inbound envelope so business logic never branches on
// the raw JSON shape.
type Kind int

const (
	KindUnknown Kind = iota
	KindChallenge
	KindNotification
)

// Envelope is the decoded body of a webhook delivery or socket notification
// payload: either a verification challenge or a real notification.
type Envelope struct {
	Challenge    string `json:"challenge"`
	Subscription struct {
		ID      string `json:"id"`
		Type    string `json:"type"`
		Status  string `json:"status"`
		Version string `json:"version"`
	} `json:"subscription"`
	Event json.RawMessage `json:"event"`
}

// DecodeEnvelope parses an inbound body into a tagged variant. A body that is
// not valid JSON, or that carries neither a challenge nor a subscription id,
// decodes as KindUnknown.
func DecodeEnvelope(body []byte) (Kind, *Envelope) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return KindUnknown, nil
	}
	switch {
	case env.Challenge != "":
		return KindChallenge, &env
	case env.Subscription.ID != "":
		return KindNotification, &env
	default:
		return KindUnknown, nil
	}
}

// socketFrame is the outer control-message envelope of the websocket
// transport.
type socketFrame struct {
	Metadata struct {
		MessageType string `json:"message_type"`
	} `json:"metadata"`
	Payload json.RawMessage `json:"payload"`
}

// welcomePayload is the session_welcome payload body.
type welcomePayload struct {
	Session struct {
		ID string `json:"id"`
	} `json:"session"`
}
