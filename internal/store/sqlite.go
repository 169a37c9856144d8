package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLite is a Store backed by a single SQLite file. One documents table
// holds every collection; the version column carries the compare-and-swap
// counter.
type SQLite struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	version    INTEGER NOT NULL DEFAULT 1,
	body       BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection, updated_at DESC);
`

// NewSQLite opens (creating if necessary) the database at path.
func NewSQLite(path string, logger *zap.Logger) (*SQLite, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// WAL with NORMAL sync keeps single-writer throughput reasonable while
	// preserving crash recovery.
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logger.Debug("pragma failed", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	logger.Info("document store opened", zap.String("path", path))
	return &SQLite{db: db, path: path, logger: logger}, nil
}

func (s *SQLite) Create(ctx context.Context, collection, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, version, body, created_at, updated_at) VALUES (?, ?, 1, ?, ?, ?)`,
		collection, id, body, now, now)
	if err != nil {
		// modernc reports constraint violations as generic errors; a prior
		// existence check keeps the sentinel meaningful.
		var exists int
		row := s.db.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE collection = ? AND id = ?`, collection, id)
		if scanErr := row.Scan(&exists); scanErr == nil {
			return fmt.Errorf("%w: %s/%s", ErrExists, collection, id)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, collection, id string, out any) error {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`,
		collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	return json.Unmarshal(body, out)
}

func (s *SQLite) Put(ctx context.Context, collection, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET body = ?, updated_at = ? WHERE collection = ? AND id = ?`,
		body, time.Now().Unix(), collection, id)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	return nil
}

func (s *SQLite) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM documents WHERE collection = ? ORDER BY updated_at DESC`, collection)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, body)
	}
	return out, rows.Err()
}

func (s *SQLite) CompareAndSwap(ctx context.Context, collection, id string, expected int64, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET body = ?, version = version + 1, updated_at = ?
		 WHERE collection = ? AND id = ? AND version = ?`,
		body, time.Now().Unix(), collection, id, expected)
	if err != nil {
		return fmt.Errorf("compare-and-swap: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var current int64
		row := s.db.QueryRowContext(ctx,
			`SELECT version FROM documents WHERE collection = ? AND id = ?`, collection, id)
		if scanErr := row.Scan(&current); scanErr != nil {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
		}
		return fmt.Errorf("%w: %s/%s have %d, expected %d", ErrVersionMismatch, collection, id, current, expected)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
