package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/beanjamin25/beanbot/telemetry"
)

// PostgresStore keeps each ledger as a single JSONB row. It exists for
// deployments that already run Postgres and want ledgers to survive the
// container filesystem; the file store remains the default backend.
type PostgresStore struct {
	DB *sql.DB
}

// OpenPostgres opens a Postgres connection for ledger storage and applies the
// idempotent schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s := &PostgresStore{DB: db}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies idempotent schema changes.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS ledgers (
		name TEXT PRIMARY KEY,
		doc JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return fmt.Errorf("migrate ledgers table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, name string, v any) error {
	var doc []byte
	err := s.DB.QueryRowContext(ctx, `SELECT doc FROM ledgers WHERE name=$1`, name).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load ledger %s: %w", name, err)
	}
	if err := json.Unmarshal(doc, v); err != nil {
		return fmt.Errorf("decode ledger %s: %w", name, err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, name string, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode ledger %s: %w", name, err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO ledgers (name, doc, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (name) DO UPDATE SET doc=EXCLUDED.doc, updated_at=NOW()`,
		name, doc)
	if err != nil {
		return fmt.Errorf("save ledger %s: %w", name, err)
	}
	if telemetry.LedgerWrites != nil {
		telemetry.LedgerWrites.Inc()
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error { return s.DB.Close() }
