package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-adp-portal/internal/models"
)

type tokenRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// PostgresTokenStore persists the token pair as two rows of the portal_tokens table.
type PostgresTokenStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPostgresTokenStore constructs a Postgres-backed store.
func NewPostgresTokenStore(db *sqlx.DB) *PostgresTokenStore {
	return &PostgresTokenStore{db: db, now: time.Now}
}

// EnsureSchema creates the portal_tokens table when missing.
func (r *PostgresTokenStore) EnsureSchema(ctx context.Context) error {
	const query = `CREATE TABLE IF NOT EXISTS portal_tokens (key TEXT PRIMARY KEY, value TEXT NOT NULL, updated_at TIMESTAMPTZ NOT NULL)`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure portal_tokens: %w", err)
	}
	return nil
}

// Load returns the stored pair. A partial pair is deleted and reported as empty.
func (r *PostgresTokenStore) Load(ctx context.Context) (models.TokenPair, error) {
	const query = `SELECT key, value FROM portal_tokens WHERE key IN ($1, $2)`
	var rows []tokenRow
	if err := r.db.SelectContext(ctx, &rows, query, KeyAccessToken, KeyRefreshToken); err != nil {
		return models.TokenPair{}, fmt.Errorf("load tokens: %w", err)
	}

	var pair models.TokenPair
	for _, row := range rows {
		switch row.Key {
		case KeyAccessToken:
			pair.AccessToken = row.Value
		case KeyRefreshToken:
			pair.RefreshToken = row.Value
		}
	}
	if pair.Complete() {
		return pair, nil
	}
	if !pair.Empty() {
		if err := r.Clear(ctx); err != nil {
			return models.TokenPair{}, err
		}
	}
	return models.TokenPair{}, nil
}

// Save upserts both rows in one transaction.
func (r *PostgresTokenStore) Save(ctx context.Context, pair models.TokenPair) error {
	if !pair.Complete() {
		return ErrPartialTokenPair
	}
	const query = `INSERT INTO portal_tokens (key, value, updated_at) VALUES ($1, $2, $3) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tokens: %w", err)
	}
	now := r.now().UTC()
	for _, row := range []tokenRow{{Key: KeyAccessToken, Value: pair.AccessToken}, {Key: KeyRefreshToken, Value: pair.RefreshToken}} {
		if _, err := tx.ExecContext(ctx, query, row.Key, row.Value, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("save %s: %w", row.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save tokens: %w", err)
	}
	return nil
}

// Clear deletes both rows.
func (r *PostgresTokenStore) Clear(ctx context.Context) error {
	const query = `DELETE FROM portal_tokens WHERE key IN ($1, $2)`
	if _, err := r.db.ExecContext(ctx, query, KeyAccessToken, KeyRefreshToken); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return nil
}
