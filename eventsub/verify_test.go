package eventsub

import (
	"strings"
	"testing"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := Verifier{Secret: []byte("s3cret")}
	body := []byte(`{"subscription":{"id":"abc"},"event":{"user_name":"alice"}}`)
	sig := v.Sign("msg-1", "2023-01-01T00:00:00Z", body)

	if !v.Verify("msg-1", "2023-01-01T00:00:00Z", body, sig) {
		t.Fatal("valid signature should verify")
	}
}

func TestVerifySingleByteMutationFlips(t *testing.T) {
	v := Verifier{Secret: []byte("s3cret")}
	body := []byte(`{"event":"payload"}`)
	id, ts := "msg-1", "2023-01-01T00:00:00Z"
	sig := v.Sign(id, ts, body)

	mutated := append([]byte(nil), body...)
	mutated[0] ^= 0x01
	if v.Verify(id, ts, mutated, sig) {
		t.Error("mutated body should not verify")
	}
	if v.Verify("msg-2", ts, body, sig) {
		t.Error("mutated message id should not verify")
	}
	if v.Verify(id, "2023-01-01T00:00:01Z", body, sig) {
		t.Error("mutated timestamp should not verify")
	}
	badSig := strings.Replace(sig, sig[len(sig)-1:], "0", 1)
	if badSig != sig && v.Verify(id, ts, body, badSig) {
		t.Error("mutated signature should not verify")
	}
}

func TestVerifyMalformedInput(t *testing.T) {
	v := Verifier{Secret: []byte("s3cret")}
	body := []byte("{}")
	cases := []struct {
		name          string
		id, ts, sig   string
	}{
		{"missing id", "", "ts", v.Sign("", "ts", body)},
		{"missing timestamp", "id", "", v.Sign("id", "", body)},
		{"missing signature", "id", "ts", ""},
		{"no prefix", "id", "ts", "deadbeef"},
		{"not hex", "id", "ts", "sha256=zzzz"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if v.Verify(tc.id, tc.ts, body, tc.sig) {
				t.Error("expected verification failure")
			}
		})
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	body := []byte("{}")
	sig := Verifier{Secret: []byte("one")}.Sign("id", "ts", body)
	if (Verifier{Secret: []byte("two")}).Verify("id", "ts", body, sig) {
		t.Error("signature from a different secret should not verify")
	}
}
