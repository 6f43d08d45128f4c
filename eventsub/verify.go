package eventsub

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Signature header names used by the platform on webhook deliveries.
const (
	HeaderMessageID        = "Twitch-Eventsub-Message-Id"
	HeaderMessageTimestamp = "Twitch-Eventsub-Message-Timestamp"
	HeaderMessageSignature = "Twitch-Eventsub-Message-Signature"

	signaturePrefix = "sha256="
)

// Verifier checks the authenticity of inbound messages via an HMAC-SHA256
// keyed hash over message id + timestamp + raw body.
type Verifier struct {
	Secret []byte
}

// Sign computes the hex-encoded signature for a message, with the sha256=
// prefix as the platform sends it.
func (v Verifier) Sign(messageID, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, v.Secret)
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether the provided signature header matches the expected
// keyed hash. Missing or malformed input yields false, never a panic; the
// comparison is constant-time.
func (v Verifier) Verify(messageID, timestamp string, body []byte, signature string) bool {
	if messageID == "" || timestamp == "" || signature == "" {
		return false
	}
	provided, ok := strings.CutPrefix(signature, signaturePrefix)
	if !ok {
		return false
	}
	providedRaw, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, v.Secret)
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hmac.Equal(providedRaw, mac.Sum(nil))
}
