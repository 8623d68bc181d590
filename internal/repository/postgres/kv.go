package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/sinaabedii/arian-etc-sub001/internal/repository"
	"github.com/sinaabedii/arian-etc-sub001/pkg/database"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	getQuery    = `SELECT value FROM session_kv WHERE key = $1`
	setQuery    = `INSERT INTO session_kv (key, value, updated_at) VALUES ($1, $2, NOW()) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	deleteQuery = `DELETE FROM session_kv WHERE key = $1`
	pingQuery   = `SELECT 1`
)

// Migrate creates the session_kv table.
func Migrate(ctx context.Context, db database.TxStarter, logger *slog.Logger) error {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	return database.RunMigrations(ctx, db, sub, logger)
}

// KVStore implements repository.KVStore on a PostgreSQL table.
type KVStore struct {
	db database.DBTX
}

// NewKVStore creates a PostgreSQL-backed store. Run Migrate first.
func NewKVStore(db database.DBTX) *KVStore {
	return &KVStore{db: db}
}

// Get retrieves the value stored under key.
func (s *KVStore) Get(ctx context.Context, key string) (_ []byte, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "storage.get", getQuery)
	defer func() { end(err) }()

	var value []byte
	if err = s.db.QueryRow(ctx, getQuery, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.NotFound(key)
		}
		return nil, fmt.Errorf("select %s: %w", key, err)
	}
	return value, nil
}

// Set upserts value under key.
func (s *KVStore) Set(ctx context.Context, key string, value []byte) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "storage.set", setQuery)
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, setQuery, key, value); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *KVStore) Delete(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "storage.delete", deleteQuery)
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, deleteQuery, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Ping runs a trivial query for readiness probes.
func (s *KVStore) Ping(ctx context.Context) error {
	_, err := s.db.Exec(ctx, pingQuery)
	return err
}
