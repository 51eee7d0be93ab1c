package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const defaultTable = "kv_store"

// PostgresStore keeps values in a single key/value table.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// NewPostgresStore wraps an open database. The table name is quoted, so any
// identifier is accepted; an empty name uses "kv_store".
func NewPostgresStore(db *sql.DB, table string) *PostgresStore {
	if table == "" {
		table = defaultTable
	}
	return &PostgresStore{db: db, table: pq.QuoteIdentifier(table)}
}

// EnsureSchema creates the backing table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
create table if not exists `+s.table+` (
  key        text primary key,
  value      bytea not null,
  updated_at timestamptz not null default now()
)`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := checkKey(key); err != nil {
		return nil, false, err
	}
	var value []byte
	err := s.db.QueryRowContext(ctx, `select value from `+s.table+` where key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
insert into `+s.table+` (key, value, updated_at)
values ($1, $2, now())
on conflict (key) do update
set value = excluded.value,
    updated_at = now()
`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `delete from `+s.table+` where key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
