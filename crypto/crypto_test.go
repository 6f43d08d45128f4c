package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"testing"
)

func testKey(t *testing.T) string {
	t.Helper()
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func TestNewAESEncryptorKeyValidation(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid 32-byte key", base64.StdEncoding.EncodeToString(make([]byte, 32)), false},
		{"empty key", "", true},
		{"not base64", "!!!not-base64!!!", true},
		{"wrong length", base64.StdEncoding.EncodeToString(make([]byte, 16)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAESEncryptor(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewAESEncryptor() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor: %v", err)
	}
	plaintext := []byte(`{"access_token":"abc","refresh_token":"def"}`)
	sealed, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(sealed, []byte("access_token")) {
		t.Error("ciphertext contains plaintext")
	}
	opened, err := enc.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("round trip mismatch: got %q, want %q", opened, plaintext)
	}
}

func TestEncryptNonceVaries(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor: %v", err)
	}
	a, _ := enc.Encrypt([]byte("same input"))
	b, _ := enc.Encrypt([]byte("same input"))
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same plaintext produced identical ciphertext")
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor: %v", err)
	}
	sealed, err := enc.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xff
	if _, err := enc.Decrypt(sealed); err == nil {
		t.Error("Decrypt accepted tampered ciphertext")
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	enc1, _ := NewAESEncryptor(testKey(t))
	enc2, _ := NewAESEncryptor(testKey(t))
	sealed, err := enc1.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := enc2.Decrypt(sealed); err == nil {
		t.Error("Decrypt with wrong key succeeded")
	}
}

func TestDecryptRejectsShortInput(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(t))
	if _, err := enc.Decrypt([]byte("short")); err == nil {
		t.Error("Decrypt accepted truncated input")
	}
}

func TestFromEnv(t *testing.T) {
	t.Run("unset disables encryption", func(t *testing.T) {
		t.Setenv(keyEnv, "")
		enc, err := FromEnv()
		if err != nil {
			t.Fatalf("FromEnv: %v", err)
		}
		if enc != nil {
			t.Error("expected nil encryptor when key is unset")
		}
	})
	t.Run("set builds encryptor", func(t *testing.T) {
		t.Setenv(keyEnv, testKey(t))
		enc, err := FromEnv()
		if err != nil {
			t.Fatalf("FromEnv: %v", err)
		}
		if enc == nil {
			t.Fatal("expected encryptor")
		}
	})
	t.Run("bad key errors", func(t *testing.T) {
		t.Setenv(keyEnv, "nope")
		if _, err := FromEnv(); err == nil {
			t.Error("expected error for malformed key")
		}
	})
}
