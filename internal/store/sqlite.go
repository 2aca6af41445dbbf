// File: internal/store/sqlite.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS storage_items (
		area TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (area, key)
	);
`

// SQLite is the default single-user backend, one database file per profile.
type SQLite struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps writers from failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLite{db: db, log: logger.Named("store.sqlite")}, nil
}

// Area returns the named area.
func (s *SQLite) Area(name string) Area {
	return &sqliteArea{s: s, name: name}
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type sqliteArea struct {
	s    *SQLite
	name string
}

func (a *sqliteArea) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	args := make([]any, 0, len(keys)+1)
	args = append(args, a.name)
	for _, k := range keys {
		args = append(args, k)
	}
	query := fmt.Sprintf(
		"SELECT key, value FROM storage_items WHERE area = ? AND key IN (%s)",
		strings.TrimSuffix(strings.Repeat("?,", len(keys)), ","),
	)

	rows, err := a.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s storage: %w", a.name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
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

func (a *sqliteArea) Set(ctx context.Context, items map[string]any) error {
	encoded, err := encodeItems(items)
	if err != nil {
		return err
	}

	tx, err := a.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			a.s.log.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
	}()

	now := time.Now().UnixMilli()
	for _, key := range slices.Sorted(maps.Keys(encoded)) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO storage_items (area, key, value, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (area, key) DO UPDATE SET
				value = excluded.value,
				updated_at = excluded.updated_at`,
			a.name, key, string(encoded[key]), now,
		)
		if err != nil {
			return fmt.Errorf("failed to write %s.%s: %w", a.name, key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (a *sqliteArea) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	args := make([]any, 0, len(keys)+1)
	args = append(args, a.name)
	for _, k := range keys {
		args = append(args, k)
	}
	query := fmt.Sprintf(
		"DELETE FROM storage_items WHERE area = ? AND key IN (%s)",
		strings.TrimSuffix(strings.Repeat("?,", len(keys)), ","),
	)
	if _, err := a.s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to remove from %s storage: %w", a.name, err)
	}
	return nil
}
