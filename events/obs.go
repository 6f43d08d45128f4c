package events

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// obs-websocket v5 opcodes, the subset the replay trigger needs.
const (
	obsOpHello      = 0
	obsOpIdentify   = 1
	obsOpIdentified = 2
	obsOpRequest    = 6
	obsOpResponse   = 7
)

// OBSControl saves the broadcast software's replay buffer over the
// obs-websocket protocol. Each trigger dials, identifies and sends one
// request; replays are rare enough that holding a connection open buys
// nothing.
type OBSControl struct {
	URL      string // e.g. ws://localhost:4455
	Password string

	// dial is swappable in tests
	dial func(url string) (*websocket.Conn, error)

	log *slog.Logger
}

func NewOBSControl(url, password string) *OBSControl {
	return &OBSControl{
		URL:      url,
		Password: password,
		dial: func(url string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			return conn, err
		},
		log: slog.Default().With(slog.String("component", "obs")),
	}
}

type obsMessage struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type obsHello struct {
	Authentication *struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication"`
}

type obsRequestStatus struct {
	RequestStatus struct {
		Result  bool   `json:"result"`
		Comment string `json:"comment"`
	} `json:"requestStatus"`
}

// TriggerReplay asks the broadcast software to save its replay buffer.
// The saved-replay scene swap is automated on the OBS side. Failures
// are logged, not surfaced: a missed replay never breaks the redeem.
func (o *OBSControl) TriggerReplay() {
	if err := o.request("SaveReplayBuffer"); err != nil {
		o.log.Error("replay trigger failed", slog.Any("err", err))
	}
}

func (o *OBSControl) request(requestType string) error {
	conn, err := o.dial(o.URL)
	if err != nil {
		return fmt.Errorf("dial obs: %w", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	if err := o.identify(conn); err != nil {
		return err
	}

	id := uuid.New().String()
	req := map[string]any{"requestType": requestType, "requestId": id}
	if err := writeObs(conn, obsOpRequest, req); err != nil {
		return fmt.Errorf("send %s: %w", requestType, err)
	}
	for {
		op, d, err := readObs(conn)
		if err != nil {
			return fmt.Errorf("await %s response: %w", requestType, err)
		}
		if op != obsOpResponse {
			continue // events can interleave
		}
		var status obsRequestStatus
		if err := json.Unmarshal(d, &status); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if !status.RequestStatus.Result {
			return fmt.Errorf("%s rejected: %s", requestType, status.RequestStatus.Comment)
		}
		return nil
	}
}

// identify performs the Hello/Identify/Identified handshake, answering
// the auth challenge when the server salts one.
func (o *OBSControl) identify(conn *websocket.Conn) error {
	op, d, err := readObs(conn)
	if err != nil || op != obsOpHello {
		return fmt.Errorf("awaiting hello (op %d): %w", op, err)
	}
	var hello obsHello
	if err := json.Unmarshal(d, &hello); err != nil {
		return fmt.Errorf("decode hello: %w", err)
	}

	identify := map[string]any{"rpcVersion": 1}
	if hello.Authentication != nil {
		identify["authentication"] = obsAuthToken(o.Password, hello.Authentication.Salt, hello.Authentication.Challenge)
	}
	if err := writeObs(conn, obsOpIdentify, identify); err != nil {
		return fmt.Errorf("send identify: %w", err)
	}
	if op, _, err = readObs(conn); err != nil || op != obsOpIdentified {
		return fmt.Errorf("identify rejected (op %d): %w", op, err)
	}
	return nil
}

// obsAuthToken derives the v5 challenge response:
// base64(sha256(base64(sha256(password+salt)) + challenge)).
func obsAuthToken(password, salt, challenge string) string {
	secret := sha256.Sum256([]byte(password + salt))
	secretB64 := base64.StdEncoding.EncodeToString(secret[:])
	proof := sha256.Sum256([]byte(secretB64 + challenge))
	return base64.StdEncoding.EncodeToString(proof[:])
}

func writeObs(conn *websocket.Conn, op int, d any) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return conn.WriteJSON(obsMessage{Op: op, D: raw})
}

func readObs(conn *websocket.Conn) (int, json.RawMessage, error) {
	var msg obsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		return -1, nil, err
	}
	return msg.Op, msg.D, nil
}
