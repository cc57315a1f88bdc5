package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteFileName is the database file created under the data directory
const SQLiteFileName = "flagstage.sqlite"

const defaultBusyTimeout = 5 * time.Second

const sqlCreateConfig = `
CREATE TABLE IF NOT EXISTS config (
	id           INTEGER PRIMARY KEY,
	namespace    TEXT NOT NULL,
	config_key   TEXT NOT NULL,
	config_value TEXT NOT NULL,
	UNIQUE (namespace, config_key)
)`

// SQLiteStore implements Store on an embedded SQLite database. The UNIQUE
// constraint enforces one row per (namespace, key).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the SQLite database under dataDir
func NewSQLiteStore(dataDir string, timeout time.Duration) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, SQLiteFileName)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writers at the transaction boundary
	db.SetMaxOpenConns(1)

	if timeout <= 0 {
		timeout = defaultBusyTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", int(timeout.Milliseconds())),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, sqlCreateConfig); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetValues(namespace string, keys ...string) (map[string]string, error) {
	query := `SELECT config_key, config_value FROM config WHERE namespace = ?`
	args := []any{namespace}

	if len(keys) > 0 {
		placeholders := strings.TrimRight(strings.Repeat("?,", len(keys)), ",")
		query += fmt.Sprintf(" AND config_key IN (%s)", placeholders)
		for _, key := range keys {
			args = append(args, key)
		}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, s.wrap("get values", namespace, err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, s.wrap("scan row", namespace, err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("iterate rows", namespace, err)
	}
	return values, nil
}

func (s *SQLiteStore) SetValues(namespace string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	err := s.withTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO config (namespace, config_key, config_value)
			VALUES (?, ?, ?)
			ON CONFLICT (namespace, config_key) DO UPDATE SET
				config_value = excluded.config_value
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for key, value := range values {
			if _, err := stmt.Exec(namespace, key, value); err != nil {
				return fmt.Errorf("upsert %q: %w", key, err)
			}
		}
		return nil
	})
	return s.wrap("set values", namespace, err)
}

func (s *SQLiteStore) DeleteValue(namespace, key string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM config WHERE namespace = ? AND config_key = ?`, namespace, key)
	if err != nil {
		return false, s.wrap("delete value", namespace, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, s.wrap("delete value", namespace, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListNamespaces() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT namespace FROM config ORDER BY namespace`)
	if err != nil {
		return nil, s.wrap("list namespaces", "", err)
	}
	defer rows.Close()

	var namespaces []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, s.wrap("scan namespace", "", err)
		}
		namespaces = append(namespaces, ns)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("iterate namespaces", "", err)
	}
	return namespaces, nil
}

func (s *SQLiteStore) withTx(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed after %v: %w", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) wrap(op, namespace string, err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "database is closed") {
		err = fmt.Errorf("%w: %v", ErrClosed, err)
	}
	if namespace == "" {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s in namespace %s: %w", op, namespace, err)
}
