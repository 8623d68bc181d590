package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// Registers the pure-Go "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/sinaabedii/arian-etc-sub001/internal/repository"
	"github.com/sinaabedii/arian-etc-sub001/pkg/database"
)

const (
	schema = `CREATE TABLE IF NOT EXISTS session_kv (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`
	getQuery    = `SELECT value FROM session_kv WHERE key = ?`
	setQuery    = `INSERT INTO session_kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP) ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`
	deleteQuery = `DELETE FROM session_kv WHERE key = ?`
)

// KVStore implements repository.KVStore on a single SQLite file. It suits
// single-node deployments that want the mirror to survive restarts without
// running Redis or PostgreSQL.
type KVStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
// ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*KVStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite serializes writers anyway, and every :memory: connection
	// would otherwise see its own empty database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create session_kv: %w", err)
	}
	return &KVStore{db: db}, nil
}

// Get retrieves the value stored under key.
func (s *KVStore) Get(ctx context.Context, key string) (_ []byte, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemSQLite, "storage.get", getQuery)
	defer func() { end(err) }()

	var value []byte
	if err = s.db.QueryRowContext(ctx, getQuery, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NotFound(key)
		}
		return nil, fmt.Errorf("select %s: %w", key, err)
	}
	return value, nil
}

// Set upserts value under key.
func (s *KVStore) Set(ctx context.Context, key string, value []byte) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemSQLite, "storage.set", setQuery)
	defer func() { end(err) }()

	if _, err = s.db.ExecContext(ctx, setQuery, key, value); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *KVStore) Delete(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemSQLite, "storage.delete", deleteQuery)
	defer func() { end(err) }()

	if _, err = s.db.ExecContext(ctx, deleteQuery, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Ping checks the database handle.
func (s *KVStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *KVStore) Close() error {
	return s.db.Close()
}
