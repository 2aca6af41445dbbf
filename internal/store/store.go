// File: internal/store/store.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	sqlCreateTable = `
		CREATE TABLE IF NOT EXISTS storage_items (
			area TEXT NOT NULL,
			key TEXT NOT NULL,
			value JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (area, key)
		);`
	sqlSelectItems = `SELECT key, value FROM storage_items WHERE area = $1 AND key = ANY($2);`
	sqlUpsertItem  = `
		INSERT INTO storage_items (area, key, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (area, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at;`
	sqlDeleteItems = `DELETE FROM storage_items WHERE area = $1 AND key = ANY($2);`
)

// Store is the PostgreSQL backend, for profiles shared between machines.
type Store struct {
	pool  DBPool
	log   *zap.Logger
	close func()
}

// New creates a new store instance, verifies the connection and makes sure the
// table exists.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateTable); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store.postgres"),
	}, nil
}

// Area returns the named area.
func (s *Store) Area(name string) Area {
	return &pgArea{s: s, name: name}
}

// Close releases the pool when the store owns it.
func (s *Store) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

type pgArea struct {
	s    *Store
	name string
}

func (a *pgArea) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	rows, err := a.s.pool.Query(ctx, sqlSelectItems, a.name, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s storage: %w", a.name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan storage row: %w", err)
		}
		out[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

func (a *pgArea) Set(ctx context.Context, items map[string]any) error {
	encoded, err := encodeItems(items)
	if err != nil {
		return err
	}

	tx, err := a.s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a successful commit returns ErrTxClosed.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			a.s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	now := time.Now().UTC()
	for _, key := range slices.Sorted(maps.Keys(encoded)) {
		if _, err := tx.Exec(ctx, sqlUpsertItem, a.name, key, encoded[key], now); err != nil {
			return fmt.Errorf("failed to write %s.%s: %w", a.name, key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (a *pgArea) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := a.s.pool.Exec(ctx, sqlDeleteItems, a.name, keys); err != nil {
		return fmt.Errorf("failed to remove from %s storage: %w", a.name, err)
	}
	return nil
}

// Open connects the configured backend: "sqlite" with a file path, or
// "postgres" with a connection URL.
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (Backend, error) {
	switch driver {
	case "", "sqlite":
		return OpenSQLite(ctx, dsn, logger)
	case "postgres":
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		s, err := New(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		s.close = pool.Close
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}
