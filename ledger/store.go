// Package ledger provides persisted per-user state (points, cooldowns, dedup sets)
// shared by the bot's subsystems. Each ledger is a named JSON document written
// through in full after every mutation so a fresh process can always reload it.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/beanjamin25/beanbot/telemetry"
)

// ErrNotFound is returned by Load when the named ledger has never been saved.
var ErrNotFound = errors.New("ledger: not found")

// Store persists named ledger documents. Implementations must make Save
// all-or-nothing: a crash mid-write must never leave a partially written
// document behind.
type Store interface {
	Load(ctx context.Context, name string, v any) error
	Save(ctx context.Context, name string, v any) error
}

// FileStore keeps each ledger as <dir>/<name>.json, written via a temp file
// and os.Rename so readers never observe a torn write.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.Dir, name+".json")
}

func (s *FileStore) Load(_ context.Context, name string, v any) error {
	b, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("read ledger %s: %w", name, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode ledger %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) Save(_ context.Context, name string, v any) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(s.Dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("temp ledger %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write ledger %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close ledger %s: %w", name, err)
	}
	if err := os.Rename(tmpName, s.path(name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename ledger %s: %w", name, err)
	}
	if telemetry.LedgerWrites != nil {
		telemetry.LedgerWrites.Inc()
	}
	return nil
}
