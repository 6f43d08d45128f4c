// Package crypto encrypts sensitive ledger documents at rest,
// primarily the broadcaster's OAuth token. It implements AES-256-GCM
// authenticated encryption.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
)

// keyEnv names the environment variable carrying the base64-encoded
// 32-byte encryption key.
const keyEnv = "LEDGER_ENC_KEY"

// ErrDecrypt is returned for any authentication or integrity failure.
// The underlying cause is deliberately not exposed.
var ErrDecrypt = errors.New("crypto: decryption failed")

// Encryptor provides authenticated encryption for small documents.
type Encryptor interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// AESEncryptor implements Encryptor with AES-256-GCM. Sealed output is
// nonce || ciphertext || tag.
type AESEncryptor struct {
	aead cipher.AEAD
}

// NewAESEncryptor builds an encryptor from a base64-encoded 32-byte key
// (generate one with: openssl rand -base64 32).
func NewAESEncryptor(base64Key string) (*AESEncryptor, error) {
	if base64Key == "" {
		return nil, errors.New("crypto: encryption key is empty")
	}
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("crypto: key is not valid base64: %w", err)
	}
	if n := len(key); n != 32 {
		return nil, fmt.Errorf("crypto: key must decode to 32 bytes, got %d", n)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	return &AESEncryptor{aead: aead}, nil
}

// FromEnv builds an encryptor from LEDGER_ENC_KEY. It returns
// (nil, nil) when the variable is unset, which disables encryption.
func FromEnv() (*AESEncryptor, error) {
	key := os.Getenv(keyEnv)
	if key == "" {
		return nil, nil
	}
	return NewAESEncryptor(key)
}

// Encrypt seals plaintext under a fresh random nonce.
func (e *AESEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, errors.New("crypto: nothing to encrypt")
	}
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens output of Encrypt, verifying the authentication tag.
func (e *AESEncryptor) Decrypt(sealed []byte) ([]byte, error) {
	ns := e.aead.NonceSize()
	if len(sealed) <= ns {
		return nil, ErrDecrypt
	}
	plaintext, err := e.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
