package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/vietddude/chainmetrics/internal/infra/storage"
)

const deleteChunk = 1000

// Store implements storage.Store on two tables: kv_values for single values
// and kv_lists for ordered, de-duplicated indexes.
type Store struct {
	db *DB
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a PostgreSQL-backed store.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM kv_values WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO kv_values (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *Store) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_values (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO NOTHING
	`, key, value)
	if err != nil {
		return false, fmt.Errorf("failed to insert %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) ListGet(ctx context.Context, key string) ([]string, error) {
	items := []string{}
	err := s.db.SelectContext(ctx, &items, `SELECT item FROM kv_lists WHERE key = $1 ORDER BY seq`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read list %s: %w", key, err)
	}
	return items, nil
}

func (s *Store) ListAppend(ctx context.Context, key, item string) (bool, error) {
	n, err := s.ListUpsert(ctx, key, []string{item})
	return n == 1, err
}

func (s *Store) ListUpsert(ctx context.Context, key string, items []string) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_lists (key, item)
		SELECT $1, item FROM unnest($2::text[]) WITH ORDINALITY AS t(item, ord)
		ORDER BY ord
		ON CONFLICT (key, item) DO NOTHING
	`, key, pq.Array(items))
	if err != nil {
		return 0, fmt.Errorf("failed to upsert into %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Store) ListContains(ctx context.Context, key, item string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM kv_lists WHERE key = $1 AND item = $2)`, key, item)
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", key, err)
	}
	return exists, nil
}

func (s *Store) ListLen(ctx context.Context, key string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM kv_lists WHERE key = $1`, key); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", key, err)
	}
	return n, nil
}

func (s *Store) ListDelete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_lists WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete list %s: %w", key, err)
	}
	return nil
}

func (s *Store) KeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	err := s.db.SelectContext(ctx, &keys, `
		SELECT key FROM kv_values WHERE starts_with(key, $1)
		UNION
		SELECT DISTINCT key FROM kv_lists WHERE starts_with(key, $1)
		ORDER BY key
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys with prefix %s: %w", prefix, err)
	}
	return keys, nil
}

func (s *Store) BulkDelete(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += deleteChunk {
		chunk := pq.Array(keys[start:min(start+deleteChunk, len(keys))])

		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv_values WHERE key = ANY($1)`, chunk); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to delete values: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv_lists WHERE key = ANY($1)`, chunk); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to delete lists: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit delete: %w", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
