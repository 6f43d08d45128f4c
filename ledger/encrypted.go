package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/beanjamin25/beanbot/crypto"
)

// envelope is the on-disk shape of an encrypted ledger document. The
// sealed payload is the JSON encoding of the caller's value.
type envelope struct {
	Sealed []byte `json:"sealed"`
}

// EncryptedStore wraps another Store and encrypts each document before
// it is persisted. Used for the OAuth token ledger so credentials are
// never written to disk in the clear; game ledgers stay readable JSON.
type EncryptedStore struct {
	inner Store
	enc   crypto.Encryptor
}

func NewEncryptedStore(inner Store, enc crypto.Encryptor) *EncryptedStore {
	return &EncryptedStore{inner: inner, enc: enc}
}

func (s *EncryptedStore) Load(ctx context.Context, name string, v any) error {
	var env envelope
	if err := s.inner.Load(ctx, name, &env); err != nil {
		return err
	}
	plain, err := s.enc.Decrypt(env.Sealed)
	if err != nil {
		return fmt.Errorf("decrypt ledger %s: %w", name, err)
	}
	if err := json.Unmarshal(plain, v); err != nil {
		return fmt.Errorf("decode ledger %s: %w", name, err)
	}
	return nil
}

func (s *EncryptedStore) Save(ctx context.Context, name string, v any) error {
	plain, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode ledger %s: %w", name, err)
	}
	sealed, err := s.enc.Encrypt(plain)
	if err != nil {
		return fmt.Errorf("encrypt ledger %s: %w", name, err)
	}
	return s.inner.Save(ctx, name, envelope{Sealed: sealed})
}
